/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package pingpong

import (
	"fmt"

	"github.com/intel/core-timing/internal/affinity"
	"github.com/intel/core-timing/internal/stats"
)

// Sweep measures every pair (i, j) with i < j in enumeration order and returns
// the populated upper triangle. Pairs run strictly one after another. Each pair
// is measured cfg.Runs times and the median run is kept, which discards a single
// disturbed run. onRow, if not nil, is called before each row is started.
//
// The first failing pass aborts the sweep and no matrix is returned.
func Sweep(pinner affinity.Pinner, cores []affinity.CoreID, cfg Config, onRow func(affinity.CoreID)) (matrix *Matrix, err error) {
	if len(cores) < 2 {
		err = fmt.Errorf("at least two CPUs are required, got %d", len(cores))
		return
	}
	if cfg.Runs <= 0 {
		err = fmt.Errorf("runs per pair must be positive, got %d", cfg.Runs)
		return
	}
	m := NewMatrix(cores)
	runs := make([]float64, cfg.Runs)
	for row, first := range cores {
		if onRow != nil {
			onRow(first)
		}
		for col := row + 1; col < len(cores); col++ {
			second := cores[col]
			for run := range runs {
				elapsed, e := MeasurePair(pinner, first, second, cfg.RoundTrips)
				if e != nil {
					err = e
					return
				}
				runs[run] = OneWay(elapsed, cfg.RoundTrips)
			}
			var latency float64
			if latency, err = stats.Median(runs); err != nil {
				return
			}
			if err = m.Set(row, col, latency); err != nil {
				return
			}
		}
	}
	matrix = m
	return
}
