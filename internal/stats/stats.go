/*
Package stats implements the reductions applied to raw measurement samples.
*/
/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package stats

import (
	"errors"

	"golang.org/x/exp/constraints"
	"golang.org/x/exp/slices"
)

var (
	ErrEmpty   = errors.New("empty sample set")
	ErrAllZero = errors.New("no non-zero sample observed")
)

// Number is any sample type the reductions accept.
type Number interface {
	constraints.Integer | constraints.Float
}

// Median sorts samples in place and returns the element at index len/2. For an
// odd length that is the exact middle element; for an even length it is the
// upper of the two middle elements.
func Median[T Number](samples []T) (median T, err error) {
	if len(samples) == 0 {
		err = ErrEmpty
		return
	}
	slices.Sort(samples)
	median = samples[len(samples)/2]
	return
}

// MedianSorted returns the middle element of an already sorted sample set.
func MedianSorted[T Number](sorted []T) (median T, err error) {
	if len(sorted) == 0 {
		err = ErrEmpty
		return
	}
	median = sorted[len(sorted)/2]
	return
}

// FirstNonZero returns the first sample greater than zero, in the order given.
func FirstNonZero[T Number](samples []T) (value T, err error) {
	for _, s := range samples {
		if s > 0 {
			value = s
			return
		}
	}
	err = ErrAllZero
	return
}

// Max returns the largest sample.
func Max[T Number](samples []T) (max T, err error) {
	if len(samples) == 0 {
		err = ErrEmpty
		return
	}
	max = samples[0]
	for _, s := range samples[1:] {
		if s > max {
			max = s
		}
	}
	return
}

// Min returns the smallest sample.
func Min[T Number](samples []T) (min T, err error) {
	if len(samples) == 0 {
		err = ErrEmpty
		return
	}
	min = samples[0]
	for _, s := range samples[1:] {
		if s < min {
			min = s
		}
	}
	return
}
