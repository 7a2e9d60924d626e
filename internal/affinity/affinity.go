/*
Package affinity enumerates the logical CPUs available to the process and pins
the calling goroutine's OS thread to one of them.
*/
/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package affinity

import (
	"errors"
	"fmt"
)

// CoreID identifies a logical CPU as numbered by the operating system.
type CoreID int

var (
	ErrUnsupported = errors.New("thread pinning not supported on this platform")
	ErrNoCores     = errors.New("no logical CPUs available to this process")
)

// PinError reports a failure to bind the current thread to a core. A measurement
// that gets one must be abandoned, its samples would come from the wrong core.
type PinError struct {
	Core CoreID
	Err  error
}

func (e *PinError) Error() string {
	return fmt.Sprintf("failed to pin thread to CPU %d: %v", e.Core, e.Err)
}

func (e *PinError) Unwrap() error { return e.Err }

// Pinner binds the calling goroutine to a core.
type Pinner interface {
	Pin(core CoreID) error
}

// PinnerFunc adapts a function to the Pinner interface.
type PinnerFunc func(CoreID) error

func (f PinnerFunc) Pin(core CoreID) error { return f(core) }

// OS pins through the operating system scheduler. Pin locks the goroutine to
// its OS thread and never unlocks it: callers run pinned work on a dedicated
// goroutine and let it exit, which discards the thread along with its affinity.
type OS struct{}

func (OS) Pin(core CoreID) error {
	return pinCurrentThread(core)
}

// Enumerate returns the logical CPUs the process may run on, in ascending order.
func Enumerate() (cores []CoreID, err error) {
	if cores, err = enumerate(); err != nil {
		err = fmt.Errorf("failed to enumerate CPUs: %w", err)
		return
	}
	if len(cores) == 0 {
		err = ErrNoCores
	}
	return
}

// Validate checks the preconditions of a targeted two-core measurement: both
// indices address an entry of cores and they differ.
func Validate(cores []CoreID, first, second int) (err error) {
	if first < 0 || first >= len(cores) {
		err = fmt.Errorf("CPU index %d out of range, %d CPUs available", first, len(cores))
		return
	}
	if second < 0 || second >= len(cores) {
		err = fmt.Errorf("CPU index %d out of range, %d CPUs available", second, len(cores))
		return
	}
	if first == second {
		err = fmt.Errorf("the CPU indices cannot be the same: %d", first)
	}
	return
}
