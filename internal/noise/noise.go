/*
Package noise quantifies how much of a busy-polling core's time is taken away by
interrupts, SMIs and scheduler activity.

The sampler pins to a core and reads the fast cycle counter twice per iteration.
Whenever a pair of reads is further apart than the tolerance, the excess is
attributed to an external interruption and accumulated.
*/
/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package noise

import (
	"fmt"

	"github.com/intel/core-timing/internal/affinity"
	"github.com/intel/core-timing/internal/cycleclock"
)

// Config controls one noise pass per core.
type Config struct {
	Iterations  int
	ToleranceNs uint64 // deltas up to this many nanoseconds are not noise
}

// Report is the outcome of one pass on one core.
type Report struct {
	Core       affinity.CoreID `json:"core"`
	NoiseTicks uint64          `json:"noise_ticks"`
	TotalTicks uint64          `json:"total_ticks"`
	Percent    float64         `json:"percent"`
	LostMicros float64         `json:"lost_micros"`
}

// TickTolerance converts a nanosecond tolerance to ticks. The conversion
// truncates.
func TickTolerance(toleranceNs uint64, nsPerTick float64) uint64 {
	return uint64(float64(toleranceNs) / nsPerTick)
}

// Sample runs the sampling loop on the calling thread, which the caller has
// already pinned to core. clock should be the fast, non-serializing counter.
func Sample(clock cycleclock.Clock, core affinity.CoreID, cfg Config, nsPerTick float64) (report Report) {
	tolerance := TickTolerance(cfg.ToleranceNs, nsPerTick)
	var noiseSum uint64
	start := clock.Now()
	for i := 0; i < cfg.Iterations; i++ {
		t1 := clock.Now()
		t2 := clock.Now()
		// deltas at or below the tolerance are skipped, never clamped
		if delta := t2 - t1; delta > tolerance {
			noiseSum += delta - tolerance
		}
	}
	end := clock.Now()
	report = Report{
		Core:       core,
		NoiseTicks: noiseSum,
		TotalTicks: end - start,
		LostMicros: float64(noiseSum) * nsPerTick / 1000,
	}
	if report.TotalTicks > 0 {
		report.Percent = float64(noiseSum) / float64(report.TotalTicks) * 100
	}
	return
}

// Run samples each core in turn and hands each report to emit as soon as it is
// ready. Every pass runs on a fresh goroutine pinned to its core. A pin failure
// stops the run, reports already emitted stay valid.
func Run(pinner affinity.Pinner, clock cycleclock.Clock, cores []affinity.CoreID, cfg Config, nsPerTick float64, emit func(Report)) (err error) {
	if cfg.Iterations <= 0 {
		err = fmt.Errorf("noise iterations must be positive, got %d", cfg.Iterations)
		return
	}
	if nsPerTick <= 0 {
		err = fmt.Errorf("nanoseconds per tick must be positive, got %f", nsPerTick)
		return
	}
	for _, core := range cores {
		done := make(chan error, 1)
		var report Report
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("noise sampler on CPU %d panicked: %v", core, r)
				}
			}()
			if e := pinner.Pin(core); e != nil {
				done <- e
				return
			}
			report = Sample(clock, core, cfg, nsPerTick)
			done <- nil
		}()
		if err = <-done; err != nil {
			err = fmt.Errorf("noise measurement on CPU %d failed: %w", core, err)
			return
		}
		if emit != nil {
			emit(report)
		}
	}
	return
}
