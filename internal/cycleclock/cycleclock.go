/*
Package cycleclock provides the time sources used by the measurements: the hardware
cycle counter in a fast and a serializing flavor, the monotonic wall clock, and a
scripted fake for tests.
*/
/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package cycleclock

import (
	"errors"
	"time"
)

// ErrUnsupported is returned by Supported when no usable cycle counter exists
// on this platform.
var ErrUnsupported = errors.New("cycle counter not supported on this platform")

// Clock is a monotonic time source. Two successive Now calls on the same core
// never go backwards for the duration of a measurement.
type Clock interface {
	Now() uint64
}

// ClockFunc adapts a plain function to the Clock interface.
type ClockFunc func() uint64

func (f ClockFunc) Now() uint64 { return f() }

// Counter returns the fast, non-serializing cycle counter reader. Reads may be
// reordered with surrounding instructions.
func Counter() Clock {
	return ClockFunc(readCounter)
}

// SerializedCounter returns the serializing cycle counter reader. All prior
// instructions on the core retire before the counter is read, and later
// instructions do not start until the read completes.
func SerializedCounter() Clock {
	return ClockFunc(readCounterSerialized)
}

// Supported reports whether the hardware counter can be used. The driver calls
// it once at startup and treats an error as fatal.
func Supported() error {
	if !counterAvailable() {
		return ErrUnsupported
	}
	return nil
}

var wallEpoch = time.Now()

// Wall returns monotonic nanoseconds elapsed since process start.
func Wall() Clock {
	return ClockFunc(func() uint64 {
		return uint64(time.Since(wallEpoch))
	})
}
