//go:build !amd64 && !arm64

/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package cycleclock

func readCounter() uint64 {
	return 0
}

func readCounterSerialized() uint64 {
	return 0
}

func counterAvailable() bool {
	return false
}
