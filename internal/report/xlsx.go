/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	sheetResolution = "Resolution"
	sheetLatency    = "Latency"
	sheetNoise      = "Noise"
	sheetMachine    = "Machine"
)

func cellName(col int, row int) (name string) {
	columnName, err := excelize.ColumnNumberToName(col)
	if err != nil {
		return
	}
	name, err = excelize.JoinCellName(columnName, row)
	if err != nil {
		return
	}
	return
}

// renderTable writes headers and values starting at (originRow, originCol) and
// returns the first row below the table. Values that parse as numbers are
// stored as numbers.
func renderTable(f *excelize.File, sheet string, headers []string, values [][]string, originRow int, originCol int) int {
	row := originRow
	bold, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
	})
	alignLeft, _ := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{
			Horizontal: "left",
		},
	})
	if len(values) == 0 {
		f.SetCellStr(sheet, cellName(originCol, row), "No data found.")
		return row + 1
	}
	if len(headers) > 0 {
		for i, header := range headers {
			f.SetCellStr(sheet, cellName(originCol+i, row), header)
			f.SetCellStyle(sheet, cellName(originCol+i, row), cellName(originCol+i, row), bold)
		}
		row++
	}
	for _, rowValues := range values {
		for i, value := range rowValues {
			cell := cellName(originCol+i, row)
			if value == "" {
				continue
			}
			if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
				f.SetCellFloat(sheet, cell, floatValue, -1, 64)
				f.SetCellStyle(sheet, cell, cell, alignLeft)
			} else {
				f.SetCellStr(sheet, cell, value)
			}
		}
		row++
	}
	return row
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func resolutionTable(r *Results) (headers []string, values [][]string) {
	headers = []string{"Source", "Ticks", "Nanoseconds", "Ticks per ns"}
	for _, res := range r.Resolution {
		values = append(values, []string{res.Source, strconv.FormatUint(res.Ticks, 10), formatFloat(res.Nanos), formatFloat(res.TicksPerNano)})
	}
	if r.Nominal != nil {
		values = append(values, []string{"nominal (" + r.Nominal.Source + ")", "1", formatFloat(r.Nominal.Nanos), ""})
	}
	if r.NanosecondsPerTick > 0 {
		values = append(values, []string{"calibrated", "1", formatFloat(r.NanosecondsPerTick), ""})
	}
	return
}

func latencyTable(r *Results) (headers []string, values [][]string) {
	if r.Matrix == nil {
		return
	}
	headers = []string{"CPU"}
	for _, core := range r.Matrix.Cores() {
		headers = append(headers, strconv.Itoa(int(core)))
	}
	for row, core := range r.Matrix.Cores() {
		rowValues := []string{strconv.Itoa(int(core))}
		for col := range r.Matrix.Cores() {
			if v, ok := r.Matrix.At(row, col); ok {
				rowValues = append(rowValues, formatFloat(v))
			} else {
				rowValues = append(rowValues, "")
			}
		}
		values = append(values, rowValues)
	}
	return
}

func pairTable(r *Results) (headers []string, values [][]string) {
	if r.Pair == nil {
		return
	}
	headers = []string{"First CPU", "Second CPU", "Round trips", "Elapsed (ns)", "One-way (ns)"}
	values = [][]string{{
		strconv.Itoa(int(r.Pair.First)),
		strconv.Itoa(int(r.Pair.Second)),
		strconv.Itoa(r.Pair.RoundTrips),
		strconv.FormatInt(r.Pair.Elapsed.Nanoseconds(), 10),
		formatFloat(r.Pair.OneWayNs),
	}}
	return
}

func noiseTable(r *Results) (headers []string, values [][]string) {
	headers = []string{"CPU", "Noise ticks", "Total ticks", "Noise (%)", "Lost (us)"}
	for _, n := range r.Noise {
		values = append(values, []string{
			strconv.Itoa(int(n.Core)),
			strconv.FormatUint(n.NoiseTicks, 10),
			strconv.FormatUint(n.TotalTicks, 10),
			formatFloat(n.Percent),
			formatFloat(n.LostMicros),
		})
	}
	return
}

func machineTable(r *Results) (headers []string, values [][]string) {
	if r.Machine == nil {
		return
	}
	m := r.Machine
	var freqs []string
	for _, f := range m.CPUFrequenciesMHz {
		freqs = append(freqs, formatFloat(f))
	}
	values = [][]string{
		{"Brand", m.Brand},
		{"Vendor", m.Vendor},
		{"Logical cores", strconv.Itoa(m.LogicalCores)},
		{"Physical cores", strconv.Itoa(m.PhysicalCores)},
		{"Cache line (bytes)", strconv.Itoa(m.CacheLine)},
		{"CPU frequencies (MHz)", strings.Join(freqs, " ")},
		{"Memory total (bytes)", strconv.FormatUint(m.MemoryTotalBytes, 10)},
		{"Swap total (bytes)", strconv.FormatUint(m.SwapTotalBytes, 10)},
		{"TSC frequency (Hz)", strconv.FormatInt(m.TSCFrequencyHz, 10)},
		{"TSC frequency source", m.TSCFrequencySource},
		{"TSC invariant", strconv.FormatBool(m.TSCInvariant)},
		{"TSC invariance known", strconv.FormatBool(m.TSCInvarianceKnown)},
	}
	for _, w := range r.Warnings {
		values = append(values, []string{"Warning", w})
	}
	return
}

// NewWorkbook lays the results out on one sheet per measurement phase.
func NewWorkbook(r *Results) (f *excelize.File, err error) {
	f = excelize.NewFile()
	if err = f.SetSheetName("Sheet1", sheetResolution); err != nil {
		return
	}
	for _, name := range []string{sheetLatency, sheetNoise, sheetMachine} {
		if _, err = f.NewSheet(name); err != nil {
			return
		}
	}
	headers, values := resolutionTable(r)
	renderTable(f, sheetResolution, headers, values, 1, 1)
	f.SetColWidth(sheetResolution, "A", "A", 25)

	row := 1
	if r.Matrix != nil {
		headers, values = latencyTable(r)
		row = renderTable(f, sheetLatency, headers, values, row, 1) + 1
	}
	if r.Pair != nil || r.Matrix == nil {
		headers, values = pairTable(r)
		renderTable(f, sheetLatency, headers, values, row, 1)
	}

	headers, values = noiseTable(r)
	renderTable(f, sheetNoise, headers, values, 1, 1)

	headers, values = machineTable(r)
	renderTable(f, sheetMachine, headers, values, 1, 1)
	f.SetColWidth(sheetMachine, "A", "A", 25)
	f.SetColWidth(sheetMachine, "B", "B", 50)
	return
}

// WriteXLSX writes the results workbook to w.
func WriteXLSX(w io.Writer, r *Results) (err error) {
	var f *excelize.File
	if f, err = NewWorkbook(r); err != nil {
		err = fmt.Errorf("failed to build workbook: %v", err)
		return
	}
	defer f.Close()
	if _, err = f.WriteTo(w); err != nil {
		err = fmt.Errorf("failed to write workbook: %v", err)
	}
	return
}
