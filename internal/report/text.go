/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/intel/core-timing/internal/machine"
	"github.com/intel/core-timing/internal/noise"
	"github.com/intel/core-timing/internal/pingpong"
	"github.com/intel/core-timing/internal/resolution"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const cellWidth = 5

// Text writes human readable results as each phase completes.
type Text struct {
	w io.Writer
	p *message.Printer
}

func NewText(w io.Writer) *Text {
	return &Text{w: w, p: message.NewPrinter(language.English)}
}

// Resolution prints one line per probed source followed by the nominal tick.
func (t *Text) Resolution(results []resolution.Result, nominal *resolution.NominalTick) {
	for _, r := range results {
		if r.Source == "clock" {
			t.p.Fprintf(t.w, "%-20s LOD is %5.0f nanos derived from non-zero measurements\n", r.Source, r.Nanos)
			continue
		}
		t.p.Fprintf(t.w, "%-20s LOD is %5.0f nanos derived from %d ticks observed on median\n", r.Source, r.Nanos, r.Ticks)
	}
	if nominal != nil {
		t.p.Fprintf(t.w, "%-20s 1 tick = %.1f nanos - TSC frequency = %.1f MHz (%s)\n", "nominal", nominal.Nanos, nominal.FrequencyMHz, nominal.Source)
	}
}

// Calibration prints the measured tick length.
func (t *Text) Calibration(nsPerTick float64) {
	t.p.Fprintf(t.w, "%-20s 1 tick = %.4f nanos (%.1f MHz)\n", "calibrated", nsPerTick, 1e3/nsPerTick)
}

// Matrix prints the populated upper triangle, unmeasured cells are blank.
func (t *Text) Matrix(m *pingpong.Matrix) {
	var header strings.Builder
	fmt.Fprintf(&header, "%*s", cellWidth, "CPU")
	for _, core := range m.Cores() {
		fmt.Fprintf(&header, "%*d", cellWidth, core)
	}
	fmt.Fprintln(t.w, header.String())
	for row, core := range m.Cores() {
		var line strings.Builder
		fmt.Fprintf(&line, "%*d", cellWidth, core)
		for col := range m.Cores() {
			if v, ok := m.At(row, col); ok {
				fmt.Fprintf(&line, "%*.0f", cellWidth, v)
			} else {
				fmt.Fprintf(&line, "%*s", cellWidth, "")
			}
		}
		fmt.Fprintln(t.w, strings.TrimRight(line.String(), " "))
	}
}

// Pair prints a targeted two-core result.
func (t *Text) Pair(p *Pair) {
	t.p.Fprintf(t.w, "Total time for %d ping-pong operations between CPU %d and CPU %d: %v corresponding to: %.1f nanos / single trip\n",
		p.RoundTrips, p.First, p.Second, p.Elapsed, p.OneWayNs)
}

// NoiseHeader announces the noise phase.
func (t *Text) NoiseHeader(toleranceNs uint64) {
	t.p.Fprintf(t.w, "Measuring core noise - with tolerance of %d nanos (ie. collect measurements above this number)\n", toleranceNs)
}

// Noise prints one core's report.
func (t *Text) Noise(r noise.Report) {
	t.p.Fprintf(t.w, "CPU %d - Total noise: %.0f micros - corresponding to %.2f%% of total runtime\n", r.Core, r.LostMicros, r.Percent)
}

// Warnings prints measurement validity warnings.
func (t *Text) Warnings(warnings []string) {
	for _, w := range warnings {
		fmt.Fprintf(t.w, "WARNING: %s\n", w)
	}
}

// Frequencies prints the current frequency of each CPU.
func (t *Text) Frequencies(mhz []float64) {
	for _, f := range mhz {
		t.p.Fprintf(t.w, "Current CPU frequency: %.0f MHz\n", f)
	}
}

// Machine prints the machine info.
func (t *Text) Machine(info machine.Info) {
	fmt.Fprint(t.w, info.String())
}
