/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/intel/core-timing/internal/affinity"
	"github.com/intel/core-timing/internal/pingpong"
)

// LatencyMatrix is the JSON form of a latency matrix. Unmeasured cells are null.
type LatencyMatrix struct {
	Cores []affinity.CoreID `json:"cores"`
	Rows  [][]*float64      `json:"rows"`
}

func newLatencyMatrix(m *pingpong.Matrix) *LatencyMatrix {
	if m == nil {
		return nil
	}
	cells := m.Rows()
	lm := &LatencyMatrix{Cores: m.Cores(), Rows: make([][]*float64, len(cells))}
	for row := range cells {
		lm.Rows[row] = make([]*float64, len(cells[row]))
		for col, v := range cells[row] {
			if v != pingpong.Unmeasured {
				v := v
				lm.Rows[row][col] = &v
			}
		}
	}
	return lm
}

// WriteJSON writes the results as indented JSON.
func WriteJSON(w io.Writer, r *Results) (err error) {
	data := struct {
		*Results
		Latency *LatencyMatrix `json:"latency,omitempty"`
	}{
		Results: r,
		Latency: newLatencyMatrix(r.Matrix),
	}
	var jsonData []byte
	if jsonData, err = json.MarshalIndent(data, "", "  "); err != nil {
		err = fmt.Errorf("failed to marshal results: %v", err)
		return
	}
	jsonData = append(jsonData, '\n')
	_, err = w.Write(jsonData)
	return
}
