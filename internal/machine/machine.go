/*
Package machine gathers the platform facts reported next to the measurements:
CPU identification, memory totals and the properties of the time stamp counter.
*/
/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package machine

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/intel/core-timing/internal/msr"
	"github.com/klauspost/cpuid/v2"
	"github.com/pbnjay/memory"
	"gopkg.in/yaml.v2"
)

// Info is the representation of the platform's identity and timer capabilities
type Info struct {
	Brand              string    `yaml:"Brand" json:"brand"`
	Vendor             string    `yaml:"Vendor" json:"vendor"`
	LogicalCores       int       `yaml:"LogicalCores" json:"logical_cores"`
	PhysicalCores      int       `yaml:"PhysicalCores" json:"physical_cores"`
	CacheLine          int       `yaml:"CacheLine" json:"cache_line"`
	CPUFrequenciesMHz  []float64 `yaml:"CPUFrequenciesMHz,flow" json:"cpu_frequencies_mhz"`
	MemoryTotalBytes   uint64    `yaml:"MemoryTotalBytes" json:"memory_total_bytes"`
	SwapTotalBytes     uint64    `yaml:"SwapTotalBytes" json:"swap_total_bytes"`
	TSCFrequencyHz     int64     `yaml:"TSCFrequencyHz" json:"tsc_frequency_hz"`
	TSCFrequencySource string    `yaml:"TSCFrequencySource" json:"tsc_frequency_source"`
	TSCInvariant       bool      `yaml:"TSCInvariant" json:"tsc_invariant"`
	TSCInvarianceKnown bool      `yaml:"TSCInvarianceKnown" json:"tsc_invariance_known"`
}

// Paths lets tests point the loader at fixture files.
type Paths struct {
	CPUInfo string
	MemInfo string
	MSRRoot string
}

var DefaultPaths = Paths{
	CPUInfo: "/proc/cpuinfo",
	MemInfo: "/proc/meminfo",
	MSRRoot: msr.DefaultRoot,
}

// flags that together make up an invariant TSC on x86
var invariantTSCFlags = []string{"constant_tsc", "nonstop_tsc"}

// cpuidInvariantTSC reads CPUID leaf 0x80000007 EDX bit 8. known is false when
// the leaf cannot be read on this platform.
var cpuidInvariantTSC = func() (invariant, known bool) {
	if runtime.GOARCH != "amd64" && runtime.GOARCH != "386" {
		return
	}
	if cpuid.CPU.VendorID == cpuid.VendorUnknown {
		return
	}
	return cpuid.CPU.Supports(cpuid.INVTSC), true
}

// Load populates and returns an Info for the running system. Facts that cannot
// be determined are left at their zero value, the caller decides which of them
// it cannot do without.
func Load() (Info, error) {
	return LoadFrom(DefaultPaths)
}

func LoadFrom(paths Paths) (info Info, err error) {
	info.Brand = cpuid.CPU.BrandName
	info.Vendor = cpuid.CPU.VendorString
	info.LogicalCores = cpuid.CPU.LogicalCores
	info.PhysicalCores = cpuid.CPU.PhysicalCores
	info.CacheLine = cpuid.CPU.CacheLine
	if info.LogicalCores == 0 {
		info.LogicalCores = runtime.NumCPU()
	}
	info.MemoryTotalBytes = memory.TotalMemory()
	if cpuid.CPU.Hz > 0 {
		info.TSCFrequencyHz = cpuid.CPU.Hz
		info.TSCFrequencySource = "cpuid"
	}
	if f, e := os.Open(paths.CPUInfo); e == nil {
		var cpuInfo CPUInfo
		cpuInfo, err = ParseCPUInfo(f)
		f.Close()
		if err != nil {
			err = fmt.Errorf("failed to parse %s: %v", paths.CPUInfo, err)
			return
		}
		info.CPUFrequenciesMHz = cpuInfo.FrequenciesMHz
		if info.Brand == "" {
			info.Brand = cpuInfo.ModelName
		}
		if cpuInfo.Flags.Cardinality() > 0 {
			info.TSCInvarianceKnown = true
			info.TSCInvariant = cpuInfo.Flags.Contains(invariantTSCFlags...)
		}
	} else {
		log.Printf("failed to read %s: %v", paths.CPUInfo, e)
	}
	if !info.TSCInvarianceKnown {
		info.TSCInvariant, info.TSCInvarianceKnown = cpuidInvariantTSC()
	}
	if runtime.GOARCH == "arm64" {
		// the generic timer runs at a fixed frequency by definition
		info.TSCInvarianceKnown = true
		info.TSCInvariant = true
	}
	if f, e := os.Open(paths.MemInfo); e == nil {
		info.SwapTotalBytes, err = parseSwapTotal(f)
		f.Close()
		if err != nil {
			err = fmt.Errorf("failed to parse %s: %v", paths.MemInfo, err)
			return
		}
	}
	if info.TSCFrequencyHz == 0 {
		if reader, e := msr.NewMSR(paths.MSRRoot); e == nil {
			if hz, e := reader.NominalTSCHz(0); e == nil {
				info.TSCFrequencyHz = hz
				info.TSCFrequencySource = "msr"
			}
		}
	}
	return
}

// CPUInfo holds the parts of /proc/cpuinfo that are used here.
type CPUInfo struct {
	ModelName      string
	FrequenciesMHz []float64
	Flags          mapset.Set[string]
}

// ParseCPUInfo reads /proc/cpuinfo formatted text. Flags are taken from the
// first processor entry, the kernel reports the same set for every CPU.
func ParseCPUInfo(r io.Reader) (cpuInfo CPUInfo, err error) {
	cpuInfo.Flags = mapset.NewSet[string]()
	haveFlags := false
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		key, value, found := strings.Cut(scanner.Text(), ":")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case "model name":
			if cpuInfo.ModelName == "" {
				cpuInfo.ModelName = value
			}
		case "cpu MHz":
			var mhz float64
			if mhz, err = strconv.ParseFloat(value, 64); err != nil {
				return
			}
			cpuInfo.FrequenciesMHz = append(cpuInfo.FrequenciesMHz, mhz)
		case "flags":
			if !haveFlags {
				cpuInfo.Flags.Append(strings.Fields(value)...)
				haveFlags = true
			}
		}
	}
	err = scanner.Err()
	return
}

func parseSwapTotal(r io.Reader) (bytes uint64, err error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 || fields[0] != "SwapTotal:" {
			continue
		}
		var kb uint64
		if kb, err = strconv.ParseUint(fields[1], 10, 64); err != nil {
			return
		}
		bytes = kb * 1024
		return
	}
	err = scanner.Err()
	return
}

// RequireTSCInfo returns an error when the invariance of the counter could not
// be determined. Calibration based measurements cannot be trusted without it.
func (info Info) RequireTSCInfo() error {
	if !info.TSCInvarianceKnown {
		return fmt.Errorf("could not determine whether the time stamp counter is invariant")
	}
	return nil
}

func (info Info) String() string {
	out, err := yaml.Marshal(info)
	if err != nil {
		return fmt.Sprintf("failed to marshal machine info: %v", err)
	}
	return string(out)
}
