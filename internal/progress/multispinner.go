/*
Package progress draws one status line per measurement phase on stderr between
the passes of the long running phases.
*/
/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/term"
)

var spinChars []string = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

type spinnerState struct {
	label       string
	status      string
	statusIsNew bool
	spinIndex   int
}

// MultiSpinner redraws all phase lines in place on a terminal. When the output
// is not a terminal only changed statuses are written, one line each.
//
// There is no background redraw. Callers draw from their own goroutine between
// measurement passes, so nothing runs alongside a pinned measurement.
type MultiSpinner struct {
	out      io.Writer
	terminal bool

	mu       sync.Mutex
	spinners []spinnerState
}

// NewMultiSpinner draws on stderr.
func NewMultiSpinner() *MultiSpinner {
	return NewMultiSpinnerTo(os.Stderr, term.IsTerminal(int(os.Stderr.Fd())))
}

// NewMultiSpinnerTo draws on out. terminal enables in-place redraws.
func NewMultiSpinnerTo(out io.Writer, terminal bool) *MultiSpinner {
	return &MultiSpinner{
		out:      out,
		terminal: terminal,
	}
}

func (ms *MultiSpinner) AddSpinner(label string) (err error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for _, spinner := range ms.spinners {
		if spinner.label == label {
			err = fmt.Errorf("spinner with label %s already exists", label)
			return
		}
	}
	ms.spinners = append(ms.spinners, spinnerState{label: label, status: "waiting", statusIsNew: true})
	return
}

// Status replaces the status shown next to label. It does not draw.
func (ms *MultiSpinner) Status(label string, status string) (err error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for spinnerIdx, spinner := range ms.spinners {
		if spinner.label == label {
			if status != spinner.status {
				ms.spinners[spinnerIdx].status = status
				ms.spinners[spinnerIdx].statusIsNew = true
			}
			return
		}
	}
	err = fmt.Errorf("did not find spinner with label %s", label)
	return
}

// Draw writes the current statuses and, on a terminal, moves the cursor back up
// so the next Draw overwrites them.
func (ms *MultiSpinner) Draw() {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.draw(true)
}

// Finish writes the final statuses and leaves them on screen.
func (ms *MultiSpinner) Finish() {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.draw(false)
}

// draw must be called with mu held.
func (ms *MultiSpinner) draw(goUp bool) {
	for i, spinner := range ms.spinners {
		if !ms.terminal && !spinner.statusIsNew {
			continue
		}
		fmt.Fprintf(ms.out, "%-20s  %s  %-40s\n", spinner.label, spinChars[spinner.spinIndex], spinner.status)
		ms.spinners[i].statusIsNew = false
		ms.spinners[i].spinIndex = (spinner.spinIndex + 1) % len(spinChars)
	}
	if goUp && ms.terminal {
		for range ms.spinners {
			fmt.Fprintf(ms.out, "\x1b[1A")
		}
	}
}
