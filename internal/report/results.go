/*
Package report renders measurement results as text, JSON or an Excel workbook.
It only formats, every value is computed by the measurement packages.
*/
/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package report

import (
	"time"

	"github.com/intel/core-timing/internal/affinity"
	"github.com/intel/core-timing/internal/machine"
	"github.com/intel/core-timing/internal/noise"
	"github.com/intel/core-timing/internal/pingpong"
	"github.com/intel/core-timing/internal/resolution"
	"github.com/intel/core-timing/internal/stats"
	"github.com/intel/core-timing/internal/verdict"
)

// Pair is the result of a targeted two-core latency check.
type Pair struct {
	First      affinity.CoreID `json:"first"`
	Second     affinity.CoreID `json:"second"`
	RoundTrips int             `json:"round_trips"`
	Elapsed    time.Duration   `json:"elapsed_ns"`
	OneWayNs   float64         `json:"one_way_ns"`
}

// Results collects everything a run produced. Phases that did not run are left
// empty.
type Results struct {
	Machine            *machine.Info           `json:"machine,omitempty"`
	Warnings           []string                `json:"warnings,omitempty"`
	Resolution         []resolution.Result     `json:"resolution,omitempty"`
	Nominal            *resolution.NominalTick `json:"nominal_tick,omitempty"`
	NanosecondsPerTick float64                 `json:"ns_per_tick,omitempty"`
	Matrix             *pingpong.Matrix        `json:"-"`
	Pair               *Pair                   `json:"pair,omitempty"`
	NoiseToleranceNs   uint64                  `json:"noise_tolerance_ns,omitempty"`
	Noise              []noise.Report          `json:"noise,omitempty"`
}

// Variables exposes the results to check expressions.
func (r *Results) Variables() verdict.Variables {
	vars := verdict.Variables{}
	for _, res := range r.Resolution {
		switch res.Source {
		case "counter":
			vars["lod_counter"] = res.Nanos
		case "counter-serialized":
			vars["lod_counter_serialized"] = res.Nanos
		case "clock":
			vars["lod_clock"] = res.Nanos
		}
	}
	if r.NanosecondsPerTick > 0 {
		vars["ns_per_tick"] = r.NanosecondsPerTick
	}
	if r.Matrix != nil {
		if min, median, max, err := r.Matrix.Summary(); err == nil {
			vars["latency_min"] = min
			vars["latency_median"] = median
			vars["latency_max"] = max
		}
	}
	if r.Pair != nil {
		vars["pair_latency"] = r.Pair.OneWayNs
	}
	if len(r.Noise) > 0 {
		percents := make([]float64, len(r.Noise))
		lost := make([]float64, len(r.Noise))
		for i, n := range r.Noise {
			percents[i] = n.Percent
			lost[i] = n.LostMicros
		}
		// non-empty, errors are impossible
		vars["noise_pct_max"], _ = stats.Max(percents)
		vars["noise_lost_us_max"], _ = stats.Max(lost)
	}
	return vars
}
