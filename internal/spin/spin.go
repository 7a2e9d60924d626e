/*
Package spin provides the busy-wait turn flag used to bounce a cache line
between two cores.
*/
/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package spin

import (
	"errors"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// ErrAborted is returned by Handoff when the flag was aborted while waiting.
var ErrAborted = errors.New("spin wait aborted")

// Flag is a two-party turn flag. Each party owns one value of the flag and may
// only flip it when the flag holds that value.
//
// Ordering contract: every access is a sync/atomic operation, which Go defines
// as sequentially consistent. The compare-and-swap in Handoff is therefore
// sequentially consistent on both its success and failure paths, and both cores
// observe a single total order of flag transitions. Do not replace these
// operations with plain loads or stores.
//
// The flag and the abort word live on separate cache lines so that polling the
// abort word does not add coherence traffic to the measured line.
type Flag struct {
	_     cpu.CacheLinePad
	turn  atomic.Bool
	_     cpu.CacheLinePad
	abort atomic.Bool
	_     cpu.CacheLinePad
}

// NewFlag returns a Flag holding initial.
func NewFlag(initial bool) *Flag {
	f := &Flag{}
	f.turn.Store(initial)
	return f
}

// Handoff spins until the flag equals mine, then flips it to !mine. It never
// blocks or yields. The abort word is only read while the turn is not ours.
func (f *Flag) Handoff(mine bool) error {
	for !f.turn.CompareAndSwap(mine, !mine) {
		if f.abort.Load() {
			return ErrAborted
		}
	}
	return nil
}

// Abort releases any party spinning in Handoff.
func (f *Flag) Abort() {
	f.abort.Store(true)
}

// Aborted reports whether Abort has been called.
func (f *Flag) Aborted() bool {
	return f.abort.Load()
}

// Turn returns the current flag value.
func (f *Flag) Turn() bool {
	return f.turn.Load()
}
