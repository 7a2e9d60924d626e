/*
Package pingpong measures the latency of bouncing a cache line between two
pinned cores.

Two workers, each pinned to one of the cores under test, share a single turn
flag. Each worker waits for its turn, flips the flag, and repeats for a fixed
number of round trips. The elapsed wall time divided by twice the round trip
count approximates the one-way core-to-core latency.

Preconditions: the cores passed in are valid, distinct identifiers from the
current enumeration. The driver validates user input before calling in.
*/
/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package pingpong

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/intel/core-timing/internal/affinity"
	"github.com/intel/core-timing/internal/spin"
	"golang.org/x/sync/errgroup"
)

var ErrSameCore = errors.New("cannot measure a core against itself")

// Config controls one sweep or pair measurement.
type Config struct {
	RoundTrips int // flips performed by each worker
	Runs       int // runs per pair in a sweep, the median is kept
}

// MeasurePair runs one ping-pong pass between cores a and b and returns the
// wall time from just before the workers are started until both have been
// joined. Any worker failure discards the whole pass.
func MeasurePair(pinner affinity.Pinner, a, b affinity.CoreID, roundTrips int) (elapsed time.Duration, err error) {
	if a == b {
		err = ErrSameCore
		return
	}
	if roundTrips <= 0 {
		err = fmt.Errorf("round trips must be positive, got %d", roundTrips)
		return
	}
	flag := spin.NewFlag(false)
	var (
		pinned   sync.WaitGroup
		pinMutex sync.Mutex
		pinErr   error
	)
	pinned.Add(2)
	var g errgroup.Group
	start := time.Now()
	for _, w := range []struct {
		core affinity.CoreID
		mine bool
	}{{a, false}, {b, true}} {
		core, mine := w.core, w.mine
		g.Go(func() (err error) {
			barrier := false
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("worker on CPU %d panicked: %v", core, r)
				}
				if err != nil {
					flag.Abort()
				}
				if !barrier {
					pinned.Done()
				}
			}()
			if e := pinner.Pin(core); e != nil {
				pinMutex.Lock()
				pinErr = e
				pinMutex.Unlock()
			}
			// both workers are pinned, or know that one of them is not, before any flip
			barrier = true
			pinned.Done()
			pinned.Wait()
			pinMutex.Lock()
			e := pinErr
			pinMutex.Unlock()
			if e != nil {
				return e
			}
			for i := 0; i < roundTrips; i++ {
				if err = flag.Handoff(mine); err != nil {
					return
				}
			}
			return
		})
	}
	err = g.Wait()
	elapsed = time.Since(start)
	if err != nil {
		err = fmt.Errorf("ping-pong between CPU %d and CPU %d failed: %w", a, b, err)
		elapsed = 0
	}
	return
}

// OneWay converts the elapsed time of a pass into nanoseconds per single trip.
func OneWay(elapsed time.Duration, roundTrips int) float64 {
	return float64(elapsed.Nanoseconds()) / float64(2*roundTrips)
}
