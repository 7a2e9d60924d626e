/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package cycleclock

import "github.com/klauspost/cpuid/v2"

var haveRDTSCP = cpuid.CPU.Supports(cpuid.RDTSCP)

// rdtsc reads the time stamp counter. Implemented in counter_amd64.s
//
//go:noescape
func rdtsc() uint64

// rdtscp waits for prior instructions to retire, reads the time stamp counter
// and fences later instructions. Implemented in counter_amd64.s
//
//go:noescape
func rdtscp() uint64

// lfenceRdtsc is the serializing read for CPUs without RDTSCP.
//
//go:noescape
func lfenceRdtsc() uint64

func readCounter() uint64 {
	return rdtsc()
}

func readCounterSerialized() uint64 {
	if haveRDTSCP {
		return rdtscp()
	}
	return lfenceRdtsc()
}

// every x86-64 CPU has RDTSC
func counterAvailable() bool {
	return true
}
