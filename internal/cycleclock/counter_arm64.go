/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package cycleclock

// cntvct reads the virtual counter (CNTVCT_EL0). Implemented in counter_arm64.s
//
//go:noescape
func cntvct() uint64

// cntvctSerialized issues an ISB before reading CNTVCT_EL0.
//
//go:noescape
func cntvctSerialized() uint64

func readCounter() uint64 {
	return cntvct()
}

func readCounterSerialized() uint64 {
	return cntvctSerialized()
}

// the generic timer is architectural on ARMv8
func counterAvailable() bool {
	return true
}
