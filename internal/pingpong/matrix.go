/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package pingpong

import (
	"fmt"

	"github.com/intel/core-timing/internal/affinity"
	"github.com/intel/core-timing/internal/stats"
)

// Unmeasured marks matrix cells that hold no measurement: the diagonal and the
// lower triangle.
const Unmeasured = -1.0

// Matrix holds one-way latencies in nanoseconds indexed by position in the core
// enumeration. Only the upper triangle (row < col) is populated.
type Matrix struct {
	cores  []affinity.CoreID
	values [][]float64
}

// NewMatrix returns a matrix for cores with every cell unmeasured.
func NewMatrix(cores []affinity.CoreID) *Matrix {
	m := &Matrix{
		cores:  append([]affinity.CoreID(nil), cores...),
		values: make([][]float64, len(cores)),
	}
	for i := range m.values {
		m.values[i] = make([]float64, len(cores))
		for j := range m.values[i] {
			m.values[i][j] = Unmeasured
		}
	}
	return m
}

// Cores returns the core enumeration the matrix is indexed by.
func (m *Matrix) Cores() []affinity.CoreID {
	return m.cores
}

// Size returns the number of rows (and columns).
func (m *Matrix) Size() int {
	return len(m.cores)
}

// Set stores a latency for the pair at positions (row, col). row must be less
// than col and latency must not be negative.
func (m *Matrix) Set(row, col int, latency float64) (err error) {
	if row >= col {
		err = fmt.Errorf("only the upper triangle may be set, got (%d, %d)", row, col)
		return
	}
	if col >= len(m.cores) || row < 0 {
		err = fmt.Errorf("cell (%d, %d) outside %dx%d matrix", row, col, len(m.cores), len(m.cores))
		return
	}
	if latency < 0 {
		err = fmt.Errorf("negative latency %f for cell (%d, %d)", latency, row, col)
		return
	}
	m.values[row][col] = latency
	return
}

// At returns the latency stored at (row, col) and whether the cell was measured.
func (m *Matrix) At(row, col int) (latency float64, ok bool) {
	if row < 0 || col < 0 || row >= len(m.cores) || col >= len(m.cores) {
		return Unmeasured, false
	}
	latency = m.values[row][col]
	ok = latency != Unmeasured
	return
}

// Values returns all populated latencies in row-major order.
func (m *Matrix) Values() (values []float64) {
	for row := range m.values {
		for col := row + 1; col < len(m.values); col++ {
			if v, ok := m.At(row, col); ok {
				values = append(values, v)
			}
		}
	}
	return
}

// Populated returns the number of measured cells.
func (m *Matrix) Populated() int {
	return len(m.Values())
}

// Rows returns a copy of the raw cells, unmeasured cells hold Unmeasured.
func (m *Matrix) Rows() [][]float64 {
	rows := make([][]float64, len(m.values))
	for i := range m.values {
		rows[i] = append([]float64(nil), m.values[i]...)
	}
	return rows
}

// Summary reduces the populated cells to min, median and max.
func (m *Matrix) Summary() (min, median, max float64, err error) {
	values := m.Values()
	if min, err = stats.Min(values); err != nil {
		return
	}
	if max, err = stats.Max(values); err != nil {
		return
	}
	median, err = stats.Median(values)
	return
}
