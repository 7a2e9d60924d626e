/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package msr

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// fakeMSRRoot writes a sparse msr device file holding val at register reg
func fakeMSRRoot(t *testing.T, dir string, reg uint64, val uint64) string {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, dir), 0755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(filepath.Join(root, dir, "msr"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	buf := binary.LittleEndian.AppendUint64(nil, val)
	if _, err = f.WriteAt(buf, int64(reg)); err != nil {
		t.Fatal(err)
	}
	return root
}

func TestNewMSRMissing(t *testing.T) {
	if _, err := NewMSR(t.TempDir()); err == nil {
		t.Fatal("expected error for root without msr files")
	}
}

func TestReadOne(t *testing.T) {
	root := fakeMSRRoot(t, "0", 0x1B0, 0x7857000158488)
	msr, err := NewMSR(root)
	if err != nil {
		t.Fatal(err)
	}
	val, err := msr.ReadOne(0x1B0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if val != 0x7857000158488 {
		t.Fatalf("unexpected value %#x", val)
	}
	partial, err := msr.ReadField(0x1B0, 0, 14, 0)
	if err != nil {
		t.Fatal(err)
	}
	if partial != 0x488 {
		t.Fatalf("unexpected masked value %#x", partial)
	}
}

func TestReadFieldRange(t *testing.T) {
	root := fakeMSRRoot(t, "cpu0", 0x10, 1)
	msr, err := NewMSR(root)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = msr.ReadField(0x10, 0, 0, 1); err == nil {
		t.Fatal("highBit < lowBit - should have failed")
	}
	if _, err = msr.ReadField(0x10, 0, 64, 0); err == nil {
		t.Fatal("highBit > 63 - should have failed")
	}
	if _, err = msr.ReadField(0x10, 0, 63, 0); err != nil {
		t.Fatal(err)
	}
}

func TestNominalTSCHz(t *testing.T) {
	// ratio 0x1C (28) in bits 15:8
	root := fakeMSRRoot(t, "0", PlatformInfo, 0x80000001C00)
	msr, err := NewMSR(root)
	if err != nil {
		t.Fatal(err)
	}
	hz, err := msr.NominalTSCHz(0)
	if err != nil {
		t.Fatal(err)
	}
	if hz != 2_800_000_000 {
		t.Fatalf("expected 2.8 GHz, got %d", hz)
	}
}

func TestMaskUint64(t *testing.T) {
	var inputVal uint64 = 0xffffffff
	outputVal := maskUint64(63, 0, inputVal)
	if outputVal != inputVal {
		t.Fatal("should match")
	}
	outputVal = maskUint64(3, 0, inputVal)
	if outputVal != 0xf {
		t.Fatal("should match")
	}
}
