/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package affinity

import (
	"errors"
	"runtime"
	"testing"
)

func TestEnumerate(t *testing.T) {
	cores, err := Enumerate()
	if err != nil {
		t.Fatal(err)
	}
	if len(cores) == 0 {
		t.Fatal("expected at least one CPU")
	}
	for i := 1; i < len(cores); i++ {
		if cores[i] <= cores[i-1] {
			t.Fatalf("CPUs not in ascending order: %v", cores)
		}
	}
}

func TestPin(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("pinning only supported on linux")
	}
	cores, err := Enumerate()
	if err != nil {
		t.Fatal(err)
	}
	target := cores[len(cores)-1]
	done := make(chan error)
	go func() {
		done <- OS{}.Pin(target)
	}()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func TestPinInvalidCore(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("pinning only supported on linux")
	}
	done := make(chan error)
	go func() {
		done <- OS{}.Pin(CoreID(1023))
	}()
	err := <-done
	var pinErr *PinError
	if !errors.As(err, &pinErr) {
		t.Fatalf("expected *PinError, got %v", err)
	}
	if pinErr.Core != 1023 {
		t.Fatalf("expected core 1023 in error, got %d", pinErr.Core)
	}
}

func TestValidate(t *testing.T) {
	cores := []CoreID{0, 1, 2, 3}
	tests := []struct {
		name          string
		first, second int
		wantErr       bool
	}{
		{"valid", 0, 3, false},
		{"reversed", 2, 1, false},
		{"same", 1, 1, true},
		{"first out of range", 4, 0, true},
		{"second out of range", 0, 4, true},
		{"negative", -1, 0, true},
	}
	for _, tc := range tests {
		err := Validate(cores, tc.first, tc.second)
		if (err != nil) != tc.wantErr {
			t.Errorf("%s: Validate(%d, %d) error = %v, wantErr %v", tc.name, tc.first, tc.second, err, tc.wantErr)
		}
	}
}
