/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package machine

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const cpuInfoFixture = `processor	: 0
vendor_id	: GenuineIntel
model name	: Intel(R) Xeon(R) Platinum 8380 CPU @ 2.30GHz
cpu MHz		: 2300.000
flags		: fpu vme tsc msr constant_tsc nonstop_tsc rdtscp

processor	: 1
vendor_id	: GenuineIntel
model name	: Intel(R) Xeon(R) Platinum 8380 CPU @ 2.30GHz
cpu MHz		: 3400.125
flags		: fpu vme tsc msr constant_tsc nonstop_tsc rdtscp
`

const memInfoFixture = `MemTotal:       263846284 kB
MemFree:        251324128 kB
SwapTotal:        8388604 kB
SwapFree:         8388604 kB
`

func TestParseCPUInfo(t *testing.T) {
	cpuInfo, err := ParseCPUInfo(strings.NewReader(cpuInfoFixture))
	if err != nil {
		t.Fatal(err)
	}
	if cpuInfo.ModelName != "Intel(R) Xeon(R) Platinum 8380 CPU @ 2.30GHz" {
		t.Fatalf("unexpected model name %q", cpuInfo.ModelName)
	}
	if diff := cmp.Diff([]float64{2300, 3400.125}, cpuInfo.FrequenciesMHz); diff != "" {
		t.Fatalf("frequencies mismatch (-want +got):\n%s", diff)
	}
	if !cpuInfo.Flags.Contains("constant_tsc", "nonstop_tsc") {
		t.Fatal("expected invariant TSC flags")
	}
	if cpuInfo.Flags.Cardinality() != 7 {
		t.Fatalf("expected 7 distinct flags, got %d", cpuInfo.Flags.Cardinality())
	}
}

func TestParseSwapTotal(t *testing.T) {
	swap, err := parseSwapTotal(strings.NewReader(memInfoFixture))
	if err != nil {
		t.Fatal(err)
	}
	if swap != 8388604*1024 {
		t.Fatalf("unexpected swap total %d", swap)
	}
}

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFromFixtures(t *testing.T) {
	paths := Paths{
		CPUInfo: writeFixture(t, "cpuinfo", cpuInfoFixture),
		MemInfo: writeFixture(t, "meminfo", memInfoFixture),
		MSRRoot: t.TempDir(),
	}
	info, err := LoadFrom(paths)
	if err != nil {
		t.Fatal(err)
	}
	if !info.TSCInvarianceKnown || !info.TSCInvariant {
		t.Fatalf("expected invariant TSC, got %+v", info)
	}
	if info.SwapTotalBytes != 8388604*1024 {
		t.Fatalf("unexpected swap %d", info.SwapTotalBytes)
	}
	if len(info.CPUFrequenciesMHz) != 2 {
		t.Fatalf("expected 2 frequencies, got %v", info.CPUFrequenciesMHz)
	}
	if err = info.RequireTSCInfo(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(info.String(), "TSCInvariant: true") {
		t.Fatalf("unexpected rendering:\n%s", info)
	}
}

func TestLoadWithoutInvariantFlags(t *testing.T) {
	if runtime.GOARCH == "arm64" {
		t.Skip("arm64 counter is always invariant")
	}
	fixture := strings.ReplaceAll(cpuInfoFixture, " constant_tsc nonstop_tsc", "")
	info, err := LoadFrom(Paths{
		CPUInfo: writeFixture(t, "cpuinfo", fixture),
		MemInfo: writeFixture(t, "meminfo", memInfoFixture),
		MSRRoot: t.TempDir(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !info.TSCInvarianceKnown || info.TSCInvariant {
		t.Fatalf("expected known, non-invariant TSC, got %+v", info)
	}
}

func stubCPUIDInvariantTSC(t *testing.T, invariant, known bool) {
	saved := cpuidInvariantTSC
	cpuidInvariantTSC = func() (bool, bool) { return invariant, known }
	t.Cleanup(func() { cpuidInvariantTSC = saved })
}

func TestLoadMissingCPUInfo(t *testing.T) {
	if runtime.GOARCH == "arm64" {
		t.Skip("arm64 counter is always invariant")
	}
	stubCPUIDInvariantTSC(t, false, false)
	info, err := LoadFrom(Paths{
		CPUInfo: filepath.Join(t.TempDir(), "missing"),
		MemInfo: filepath.Join(t.TempDir(), "missing"),
		MSRRoot: t.TempDir(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if info.RequireTSCInfo() == nil {
		t.Fatal("expected missing invariance info to be reported")
	}
}

func TestLoadFallsBackToCPUID(t *testing.T) {
	if runtime.GOARCH == "arm64" {
		t.Skip("arm64 counter is always invariant")
	}
	stubCPUIDInvariantTSC(t, true, true)
	info, err := LoadFrom(Paths{
		CPUInfo: filepath.Join(t.TempDir(), "missing"),
		MemInfo: filepath.Join(t.TempDir(), "missing"),
		MSRRoot: t.TempDir(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !info.TSCInvarianceKnown || !info.TSCInvariant {
		t.Fatalf("expected invariant TSC from cpuid, got %+v", info)
	}
}

func TestLoadPrefersCPUInfoFlags(t *testing.T) {
	if runtime.GOARCH == "arm64" {
		t.Skip("arm64 counter is always invariant")
	}
	stubCPUIDInvariantTSC(t, true, true)
	fixture := strings.ReplaceAll(cpuInfoFixture, " constant_tsc nonstop_tsc", "")
	info, err := LoadFrom(Paths{
		CPUInfo: writeFixture(t, "cpuinfo", fixture),
		MemInfo: writeFixture(t, "meminfo", memInfoFixture),
		MSRRoot: t.TempDir(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !info.TSCInvarianceKnown || info.TSCInvariant {
		t.Fatalf("cpuinfo flags should win over cpuid, got %+v", info)
	}
}
