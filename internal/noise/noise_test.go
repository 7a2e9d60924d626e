/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package noise

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/intel/core-timing/internal/affinity"
	"github.com/intel/core-timing/internal/cycleclock"
)

// opening read, four pairs with deltas 3, 7, 0 and 5, closing read
func scriptedClock() *cycleclock.Sequence {
	return cycleclock.NewSequence(0, 10, 13, 13, 20, 20, 20, 20, 25, 30)
}

func TestTickTolerance(t *testing.T) {
	tests := []struct {
		ns        uint64
		nsPerTick float64
		want      uint64
	}{
		{100, 1, 100},
		{10, 3, 3},    // 3.33 truncates
		{11, 0.4, 27}, // 27.5 truncates
		{0, 0.3, 0},
	}
	for _, tc := range tests {
		if got := TickTolerance(tc.ns, tc.nsPerTick); got != tc.want {
			t.Errorf("TickTolerance(%d, %f) = %d, want %d", tc.ns, tc.nsPerTick, got, tc.want)
		}
	}
}

func TestSampleToleranceAboveAllDeltas(t *testing.T) {
	report := Sample(scriptedClock(), 2, Config{Iterations: 4, ToleranceNs: 100}, 1)
	want := Report{Core: 2, NoiseTicks: 0, TotalTicks: 30, Percent: 0, LostMicros: 0}
	if diff := cmp.Diff(want, report); diff != "" {
		t.Fatalf("report mismatch (-want +got):\n%s", diff)
	}
}

func TestSampleZeroTolerance(t *testing.T) {
	report := Sample(scriptedClock(), 0, Config{Iterations: 4, ToleranceNs: 0}, 2)
	want := Report{Core: 0, NoiseTicks: 15, TotalTicks: 30, Percent: 50, LostMicros: 0.03}
	if diff := cmp.Diff(want, report); diff != "" {
		t.Fatalf("report mismatch (-want +got):\n%s", diff)
	}
}

func TestSampleExcludesDeltasBelowTolerance(t *testing.T) {
	// tolerance 4 ticks: 7 contributes 3, 5 contributes 1, 3 and 0 contribute nothing
	report := Sample(scriptedClock(), 0, Config{Iterations: 4, ToleranceNs: 4}, 1)
	if report.NoiseTicks != 4 {
		t.Fatalf("expected 4 noise ticks, got %d", report.NoiseTicks)
	}
}

func TestRun(t *testing.T) {
	var pinned []affinity.CoreID
	pinner := affinity.PinnerFunc(func(core affinity.CoreID) error {
		pinned = append(pinned, core)
		return nil
	})
	var reports []Report
	err := Run(pinner, cycleclock.Stepping(0, 1, 1000), []affinity.CoreID{0, 1, 2}, Config{Iterations: 10, ToleranceNs: 5}, 1, func(r Report) {
		reports = append(reports, r)
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]affinity.CoreID{0, 1, 2}, pinned); diff != "" {
		t.Fatalf("pinned cores mismatch (-want +got):\n%s", diff)
	}
	if len(reports) != 3 {
		t.Fatalf("expected 3 reports, got %d", len(reports))
	}
	for i, r := range reports {
		if r.Core != affinity.CoreID(i) || r.NoiseTicks != 0 || r.TotalTicks == 0 {
			t.Errorf("unexpected report %+v", r)
		}
	}
}

func TestRunPinFailure(t *testing.T) {
	denied := errors.New("denied")
	pinner := affinity.PinnerFunc(func(core affinity.CoreID) error {
		if core == 1 {
			return &affinity.PinError{Core: core, Err: denied}
		}
		return nil
	})
	var reports []Report
	err := Run(pinner, cycleclock.Stepping(0, 1, 1000), []affinity.CoreID{0, 1, 2}, Config{Iterations: 10}, 1, func(r Report) {
		reports = append(reports, r)
	})
	if !errors.Is(err, denied) {
		t.Fatalf("expected pin failure, got %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected only the first core to report, got %d", len(reports))
	}
}

func TestRunRejectsConfig(t *testing.T) {
	if err := Run(affinity.OS{}, cycleclock.NewSequence(), nil, Config{}, 1, nil); err == nil {
		t.Fatal("expected error for zero iterations")
	}
	if err := Run(affinity.OS{}, cycleclock.NewSequence(), nil, Config{Iterations: 1}, 0, nil); err == nil {
		t.Fatal("expected error for zero factor")
	}
}

func TestSampleHardware(t *testing.T) {
	if testing.Short() {
		t.Skip("hardware sampling")
	}
	if err := cycleclock.Supported(); err != nil {
		t.Skip(err)
	}
	report := Sample(cycleclock.Counter(), 0, Config{Iterations: 100000, ToleranceNs: 1 << 40}, 1)
	if report.NoiseTicks != 0 || report.Percent != 0 {
		t.Fatalf("tolerance above every delta must yield no noise, got %+v", report)
	}
}
