/*
Package calibrate derives the length of one cycle counter tick in nanoseconds by
correlating a wall clock interval with the counter delta over the same interval.
*/
/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package calibrate

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/intel/core-timing/internal/affinity"
	"github.com/intel/core-timing/internal/cycleclock"
	"github.com/intel/core-timing/internal/machine"
)

// ErrInvalidFactor is returned when a calibration pass does not produce a
// strictly positive, finite factor.
var ErrInvalidFactor = errors.New("calibration produced an invalid nanoseconds-per-tick factor")

// sink keeps the busy loop from being optimized away
var sink uint64

// Calibrator measures nanoseconds per tick once and caches the result.
type Calibrator struct {
	counter    cycleclock.Clock
	wall       cycleclock.Clock
	iterations int

	once   sync.Once
	factor float64
	err    error
}

// New returns a Calibrator correlating counter against wall over a busy loop
// of the given number of iterations. The counter should be the serializing
// variant. iterations must be large enough that the wall clock's own resolution
// is negligible against the interval, on the order of 1e7 to 1e8.
func New(counter, wall cycleclock.Clock, iterations int) *Calibrator {
	return &Calibrator{
		counter:    counter,
		wall:       wall,
		iterations: iterations,
	}
}

// NanosecondsPerTick returns the cached factor, measuring it on first use.
func (c *Calibrator) NanosecondsPerTick() (float64, error) {
	c.once.Do(func() {
		c.factor, c.err = c.Measure()
	})
	return c.factor, c.err
}

// OnCore returns NanosecondsPerTick measured on a fresh goroutine pinned to
// core, so the counter is read on the same CPU at both ends of the interval.
func (c *Calibrator) OnCore(pinner affinity.Pinner, core affinity.CoreID) (factor float64, err error) {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("calibration on CPU %d panicked: %v", core, r)
			}
		}()
		if e := pinner.Pin(core); e != nil {
			done <- fmt.Errorf("calibration on CPU %d failed: %w", core, e)
			return
		}
		var e error
		factor, e = c.NanosecondsPerTick()
		done <- e
	}()
	err = <-done
	if err != nil {
		factor = 0
	}
	return
}

// Measure runs a fresh calibration pass without touching the cache.
func (c *Calibrator) Measure() (factor float64, err error) {
	if c.iterations <= 0 {
		err = fmt.Errorf("calibration iterations must be positive, got %d", c.iterations)
		return
	}
	wallStart := c.wall.Now()
	ticksStart := c.counter.Now()
	var acc uint64
	for i := 0; i < c.iterations; i++ {
		acc += uint64(i)
	}
	sink = acc
	ticksEnd := c.counter.Now()
	wallEnd := c.wall.Now()
	if ticksEnd <= ticksStart || wallEnd <= wallStart {
		err = fmt.Errorf("%w: %d ticks over %d ns", ErrInvalidFactor, ticksEnd-ticksStart, wallEnd-wallStart)
		return
	}
	factor = float64(wallEnd-wallStart) / float64(ticksEnd-ticksStart)
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		err = fmt.Errorf("%w: %f", ErrInvalidFactor, factor)
		factor = 0
	}
	return
}

// CheckInvariance returns warnings about the counter's fitness for cross-core
// comparison. A non-invariant counter does not stop the run.
func CheckInvariance(info machine.Info) (warnings []string) {
	if !info.TSCInvarianceKnown {
		warnings = append(warnings, "unable to determine whether the TSC is invariant, cross-core results may not be comparable")
	} else if !info.TSCInvariant {
		warnings = append(warnings, "TSC is not invariant across cores and frequency states, results may be unreliable")
	}
	return
}

// CrossCheck compares a measured factor with the nominal TSC frequency and
// returns a warning when they differ by more than tolerancePct percent. A zero
// nominal frequency is not checked.
func CrossCheck(factor float64, nominalHz int64, tolerancePct float64) (warning string) {
	if nominalHz <= 0 || factor <= 0 {
		return
	}
	nominal := 1e9 / float64(nominalHz)
	deviation := math.Abs(factor-nominal) / nominal * 100
	if deviation > tolerancePct {
		warning = fmt.Sprintf("measured %.4f ns/tick deviates %.1f%% from the nominal %.4f ns/tick (%.1f MHz)",
			factor, deviation, nominal, float64(nominalHz)/1e6)
	}
	return
}
