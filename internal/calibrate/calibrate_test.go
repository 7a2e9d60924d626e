/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package calibrate

import (
	"errors"
	"math"
	"testing"

	"github.com/intel/core-timing/internal/affinity"
	"github.com/intel/core-timing/internal/cycleclock"
	"github.com/intel/core-timing/internal/machine"
)

func TestMeasureSynthetic(t *testing.T) {
	// 3000 ticks over 1000 ns
	counter := cycleclock.NewSequence(1000, 4000)
	wall := cycleclock.NewSequence(500, 1500)
	factor, err := New(counter, wall, 10).Measure()
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(factor-1.0/3.0) > 1e-12 {
		t.Fatalf("expected 0.3333 ns/tick, got %f", factor)
	}
}

func TestMeasureZeroTicks(t *testing.T) {
	counter := cycleclock.NewSequence(1000, 1000)
	wall := cycleclock.NewSequence(0, 100)
	if _, err := New(counter, wall, 10).Measure(); !errors.Is(err, ErrInvalidFactor) {
		t.Fatalf("expected ErrInvalidFactor, got %v", err)
	}
}

func TestMeasureZeroWall(t *testing.T) {
	counter := cycleclock.NewSequence(1000, 2000)
	wall := cycleclock.NewSequence(100, 100)
	if _, err := New(counter, wall, 10).Measure(); !errors.Is(err, ErrInvalidFactor) {
		t.Fatalf("expected ErrInvalidFactor, got %v", err)
	}
}

func TestMeasureRejectsIterations(t *testing.T) {
	if _, err := New(cycleclock.NewSequence(), cycleclock.NewSequence(), 0).Measure(); err == nil {
		t.Fatal("expected error for zero iterations")
	}
}

func TestNanosecondsPerTickCached(t *testing.T) {
	counter := cycleclock.NewSequence(0, 200, 0, 100)
	wall := cycleclock.NewSequence(0, 100, 0, 100)
	c := New(counter, wall, 1)
	first, err := c.NanosecondsPerTick()
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.NanosecondsPerTick()
	if err != nil {
		t.Fatal(err)
	}
	if first != 0.5 || second != 0.5 {
		t.Fatalf("expected cached 0.5, got %f then %f", first, second)
	}
	if counter.Reads() != 2 {
		t.Fatalf("expected a single calibration pass, counter read %d times", counter.Reads())
	}
}

func TestOnCorePinsBeforeMeasuring(t *testing.T) {
	counter := cycleclock.NewSequence(0, 400)
	wall := cycleclock.NewSequence(0, 100)
	var pinned []affinity.CoreID
	pinner := affinity.PinnerFunc(func(core affinity.CoreID) error {
		if counter.Reads() != 0 {
			t.Errorf("counter read before pinning to CPU %d", core)
		}
		pinned = append(pinned, core)
		return nil
	})
	factor, err := New(counter, wall, 1).OnCore(pinner, 3)
	if err != nil {
		t.Fatal(err)
	}
	if factor != 0.25 {
		t.Fatalf("expected 0.25 ns/tick, got %f", factor)
	}
	if len(pinned) != 1 || pinned[0] != 3 {
		t.Fatalf("expected a single pin to CPU 3, got %v", pinned)
	}
}

func TestOnCorePinFailure(t *testing.T) {
	pinErr := errors.New("sched_setaffinity: invalid argument")
	counter := cycleclock.NewSequence(0, 400)
	pinner := affinity.PinnerFunc(func(affinity.CoreID) error { return pinErr })
	factor, err := New(counter, cycleclock.NewSequence(0, 100), 1).OnCore(pinner, 7)
	if !errors.Is(err, pinErr) {
		t.Fatalf("expected pin error, got %v", err)
	}
	if factor != 0 || counter.Reads() != 0 {
		t.Fatalf("expected no measurement, got factor %f after %d reads", factor, counter.Reads())
	}
}

func TestRepeatable(t *testing.T) {
	if testing.Short() {
		t.Skip("hardware calibration")
	}
	if err := cycleclock.Supported(); err != nil {
		t.Skip(err)
	}
	c := New(cycleclock.SerializedCounter(), cycleclock.Wall(), 50_000_000)
	first, err := c.Measure()
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.Measure()
	if err != nil {
		t.Fatal(err)
	}
	deviation := math.Abs(first-second) / first
	t.Logf("%.6f ns/tick, %.6f ns/tick (%.3f%%)", first, second, deviation*100)
	if deviation > 0.01 {
		t.Errorf("repeated calibrations differ by more than 1%%: %f vs %f", first, second)
	}
}

func TestCheckInvariance(t *testing.T) {
	if w := CheckInvariance(machine.Info{TSCInvarianceKnown: true, TSCInvariant: true}); len(w) != 0 {
		t.Fatalf("expected no warnings, got %v", w)
	}
	if w := CheckInvariance(machine.Info{TSCInvarianceKnown: true}); len(w) != 1 {
		t.Fatalf("expected non-invariant warning, got %v", w)
	}
	if w := CheckInvariance(machine.Info{}); len(w) != 1 {
		t.Fatalf("expected unknown invariance warning, got %v", w)
	}
}

func TestCrossCheck(t *testing.T) {
	// 2 GHz nominal is 0.5 ns/tick
	if w := CrossCheck(0.51, 2_000_000_000, 5); w != "" {
		t.Fatalf("2%% deviation should pass, got %q", w)
	}
	if w := CrossCheck(0.6, 2_000_000_000, 5); w == "" {
		t.Fatal("20% deviation should warn")
	}
	if w := CrossCheck(0.6, 0, 5); w != "" {
		t.Fatal("unknown nominal frequency should not warn")
	}
}
