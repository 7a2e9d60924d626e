/*
Package resolution measures the least observable difference (LOD) of a clock
source: the smallest non-zero interval it reliably distinguishes.
*/
/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package resolution

import (
	"errors"
	"fmt"

	"github.com/intel/core-timing/internal/cycleclock"
	"github.com/intel/core-timing/internal/machine"
	"github.com/intel/core-timing/internal/stats"
	"golang.org/x/exp/slices"
)

// Kind selects how a source's samples are reduced.
type Kind int

const (
	// KindCounter sources report the median delta, converted to nanoseconds
	// with a ratio measured over the probe itself.
	KindCounter Kind = iota
	// KindWall sources report the first non-zero delta in observation order.
	// Wall clock deltas are mostly exactly zero, the granularity is a step
	// actually seen, not a central tendency. The deltas are not sorted, so a
	// preemption that lands on the first non-zero pair inflates the result
	// instead of being masked by a smaller step observed later.
	KindWall
)

var (
	ErrNoElapsed = errors.New("no wall time elapsed during probe")
	ErrAllZero   = errors.New("clock never advanced between back-to-back reads")
)

// Source is a named clock to probe.
type Source struct {
	Name  string
	Clock cycleclock.Clock
	Kind  Kind
}

// Result is the LOD of one source.
type Result struct {
	Source       string  `json:"source"`
	Ticks        uint64  `json:"ticks"`
	Nanos        float64 `json:"nanos"`
	TicksPerNano float64 `json:"ticks_per_nano"`
}

// Standard returns the three sources the tool reports on: the fast counter,
// the serializing counter and the wall clock.
func Standard() []Source {
	return []Source{
		{Name: "counter", Clock: cycleclock.Counter(), Kind: KindCounter},
		{Name: "counter-serialized", Clock: cycleclock.SerializedCounter(), Kind: KindCounter},
		{Name: "clock", Clock: cycleclock.Wall(), Kind: KindWall},
	}
}

// Probe takes iterations pairs of back-to-back reads from src. Counter sources
// are converted to nanoseconds using wall, read once before and once after the
// loop. The probe does not use the Calibrator, it is one of its inputs.
func Probe(src Source, wall cycleclock.Clock, iterations int) (result Result, err error) {
	if iterations <= 0 {
		err = fmt.Errorf("probe iterations must be positive, got %d", iterations)
		return
	}
	result.Source = src.Name
	deltas := make([]uint64, iterations)
	switch src.Kind {
	case KindCounter:
		wallStart := wall.Now()
		ticksStart := src.Clock.Now()
		for i := range deltas {
			t1 := src.Clock.Now()
			t2 := src.Clock.Now()
			deltas[i] = t2 - t1
		}
		ticksEnd := src.Clock.Now()
		wallEnd := wall.Now()
		if wallEnd <= wallStart {
			err = fmt.Errorf("%s: %w", src.Name, ErrNoElapsed)
			return
		}
		slices.Sort(deltas)
		if result.Ticks, err = stats.MedianSorted(deltas); err != nil {
			return
		}
		result.TicksPerNano = float64(ticksEnd-ticksStart) / float64(wallEnd-wallStart)
		if result.TicksPerNano <= 0 {
			err = fmt.Errorf("%s: counter did not advance over %d ns", src.Name, wallEnd-wallStart)
			return
		}
		result.Nanos = float64(result.Ticks) / result.TicksPerNano
	case KindWall:
		for i := range deltas {
			t1 := src.Clock.Now()
			t2 := src.Clock.Now()
			deltas[i] = t2 - t1
		}
		if result.Ticks, err = stats.FirstNonZero(deltas); err != nil {
			err = fmt.Errorf("%s: %w", src.Name, ErrAllZero)
			return
		}
		result.TicksPerNano = 1
		result.Nanos = float64(result.Ticks)
	default:
		err = fmt.Errorf("%s: unknown source kind %d", src.Name, src.Kind)
	}
	return
}

// ProbeAll probes each source in order and stops at the first failure.
func ProbeAll(sources []Source, wall cycleclock.Clock, iterations int) (results []Result, err error) {
	for _, src := range sources {
		var result Result
		if result, err = Probe(src, wall, iterations); err != nil {
			return
		}
		results = append(results, result)
	}
	return
}

// NominalTick is the tick length implied by the platform's nominal counter
// frequency, reported next to the measured LODs.
type NominalTick struct {
	Nanos        float64 `json:"nanos"`
	FrequencyMHz float64 `json:"frequency_mhz"`
	Source       string  `json:"source"`
}

// Nominal returns the nominal tick for info, ok is false when the frequency is unknown.
func Nominal(info machine.Info) (tick NominalTick, ok bool) {
	if info.TSCFrequencyHz <= 0 {
		return
	}
	tick = NominalTick{
		Nanos:        1e9 / float64(info.TSCFrequencyHz),
		FrequencyMHz: float64(info.TSCFrequencyHz) / 1e6,
		Source:       info.TSCFrequencySource,
	}
	ok = true
	return
}
