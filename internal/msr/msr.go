/*
Package msr reads model specific registers through the Linux msr driver.
*/
/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package msr

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultRoot is where the msr driver exposes one device file per CPU.
const DefaultRoot = "/dev/cpu"

// PlatformInfo is MSR_PLATFORM_INFO. Bits 15:8 hold the maximum non-turbo
// ratio, which multiplied by the 100 MHz bus clock is the nominal TSC frequency
// on Intel parts.
const PlatformInfo = 0xCE

// BusClockHz is the reference clock the platform ratios are expressed in.
const BusClockHz = 100_000_000

type MSR struct {
	root         string
	fileStyleNew bool // /dev/cpu/N/msr if true, /dev/cpu/cpuN/msr if false
}

// NewMSR locates the msr device files under root. An empty root means DefaultRoot.
func NewMSR(root string) (msr *MSR, err error) {
	if root == "" {
		root = DefaultRoot
	}
	msr = &MSR{root: root}
	if _, err = os.Stat(filepath.Join(root, "cpu0", "msr")); err == nil {
		msr.fileStyleNew = false
		return
	}
	if _, err = os.Stat(filepath.Join(root, "0", "msr")); err == nil {
		msr.fileStyleNew = true
		return
	}
	err = fmt.Errorf("could not find the MSR files in %s (maybe you need a sudo modprobe msr)", root)
	msr = nil
	return
}

func (msr *MSR) fileName(core int) string {
	if msr.fileStyleNew {
		return filepath.Join(msr.root, fmt.Sprint(core), "msr")
	}
	return filepath.Join(msr.root, fmt.Sprintf("cpu%d", core), "msr")
}

func maskUint64(highBit int, lowBit int, val uint64) (v uint64) {
	bits := highBit - lowBit + 1
	if bits < 64 {
		val >>= uint64(lowBit)
		val &= (uint64(1) << bits) - 1
	}
	v = val
	return
}

// ReadOne returns the full 64 bit register value for the specified core.
func (msr *MSR) ReadOne(reg uint64, core int) (val uint64, err error) {
	f, err := os.Open(msr.fileName(core))
	if err != nil {
		return
	}
	defer f.Close()
	buf := make([]byte, 8)
	read, err := f.ReadAt(buf, int64(reg))
	if err != nil {
		return
	}
	if read != len(buf) {
		err = fmt.Errorf("didn't read intended number of bytes")
		return
	}
	val = binary.LittleEndian.Uint64(buf)
	return
}

// ReadField returns bits highBit:lowBit (inclusive) of the register.
func (msr *MSR) ReadField(reg uint64, core int, highBit int, lowBit int) (val uint64, err error) {
	if lowBit > highBit {
		err = fmt.Errorf("lowBit must not be greater than highBit")
		return
	}
	if lowBit < 0 || highBit > 63 {
		err = fmt.Errorf("bit range %d:%d outside 63:0", highBit, lowBit)
		return
	}
	if val, err = msr.ReadOne(reg, core); err != nil {
		return
	}
	val = maskUint64(highBit, lowBit, val)
	return
}

// NominalTSCHz derives the nominal TSC frequency from MSR_PLATFORM_INFO.
func (msr *MSR) NominalTSCHz(core int) (hz int64, err error) {
	var ratio uint64
	if ratio, err = msr.ReadField(PlatformInfo, core, 15, 8); err != nil {
		return
	}
	if ratio == 0 {
		err = fmt.Errorf("MSR_PLATFORM_INFO reports a zero non-turbo ratio")
		return
	}
	hz = int64(ratio) * BusClockHz
	return
}
