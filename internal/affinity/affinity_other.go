//go:build !linux

/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package affinity

import "runtime"

func enumerate() (cores []CoreID, err error) {
	for cpu := 0; cpu < runtime.NumCPU(); cpu++ {
		cores = append(cores, CoreID(cpu))
	}
	return
}

func pinCurrentThread(core CoreID) error {
	return &PinError{Core: core, Err: ErrUnsupported}
}
