/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package affinity

import (
	"fmt"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

func enumerate() (cores []CoreID, err error) {
	var set unix.CPUSet
	if err = unix.SchedGetaffinity(0, &set); err != nil {
		return
	}
	remaining := set.Count()
	bits := int(unsafe.Sizeof(set)) * 8
	for cpu := 0; cpu < bits && remaining > 0; cpu++ {
		if set.IsSet(cpu) {
			cores = append(cores, CoreID(cpu))
			remaining--
		}
	}
	return
}

func pinCurrentThread(core CoreID) (err error) {
	runtime.LockOSThread()
	var set unix.CPUSet
	set.Zero()
	set.Set(int(core))
	// pid 0 is the calling thread
	if err = unix.SchedSetaffinity(0, &set); err != nil {
		return &PinError{Core: core, Err: err}
	}
	var got unix.CPUSet
	if err = unix.SchedGetaffinity(0, &got); err != nil {
		return &PinError{Core: core, Err: err}
	}
	if got.Count() != 1 || !got.IsSet(int(core)) {
		return &PinError{Core: core, Err: fmt.Errorf("affinity mask not applied, %d CPUs still allowed", got.Count())}
	}
	return
}
