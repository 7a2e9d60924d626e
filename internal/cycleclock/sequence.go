/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package cycleclock

// Sequence is a deterministic Clock for tests. Each Now call returns the next
// scripted reading. Once the script is exhausted the last reading repeats.
type Sequence struct {
	readings []uint64
	next     int
}

// NewSequence returns a Sequence that replays readings in order.
func NewSequence(readings ...uint64) *Sequence {
	return &Sequence{readings: readings}
}

// Stepping returns a Sequence of n readings starting at start and advancing by
// step ticks per read.
func Stepping(start, step uint64, n int) *Sequence {
	readings := make([]uint64, n)
	for i := range readings {
		readings[i] = start + uint64(i)*step
	}
	return NewSequence(readings...)
}

func (s *Sequence) Now() uint64 {
	if len(s.readings) == 0 {
		return 0
	}
	if s.next >= len(s.readings) {
		return s.readings[len(s.readings)-1]
	}
	v := s.readings[s.next]
	s.next++
	return v
}

// Reads returns how many readings have been consumed.
func (s *Sequence) Reads() int {
	return s.next
}
