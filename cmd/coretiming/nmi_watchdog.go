/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
//
// nmi_watchdog disables the NMI (non-maskable interrupt) watchdog for the noise
// phase, its periodic interrupt shows up in every core's noise figure
//
package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

const nmiWatchdogPath = "/proc/sys/kernel/nmi_watchdog"

// nmiWatchdog reads and writes kernel.nmi_watchdog. procPath is tried first,
// sysctl is the fallback when the proc file is not accessible.
type nmiWatchdog struct {
	procPath string
}

// Get returns the kernel.nmi_watchdog configuration value (0 or 1)
func (w nmiWatchdog) Get() (setting string, err error) {
	var data []byte
	if data, err = os.ReadFile(w.procPath); err == nil {
		setting = strings.TrimSpace(string(data))
		return
	}
	// sysctl kernel.nmi_watchdog
	// kernel.nmi_watchdog = [0|1]
	var sysctl string
	if sysctl, err = findSysctl(); err != nil {
		return
	}
	var stdout []byte
	if stdout, err = exec.Command(sysctl, "kernel.nmi_watchdog").Output(); err != nil {
		return
	}
	setting, err = parseSysctlValue(string(stdout))
	return
}

// Set writes the kernel.nmi_watchdog configuration value and confirms it took
func (w nmiWatchdog) Set(setting string) (err error) {
	if err = os.WriteFile(w.procPath, []byte(setting+"\n"), 0644); err == nil {
		var got string
		if got, err = w.Get(); err != nil {
			return
		}
		if got != setting {
			err = fmt.Errorf("failed to set NMI watchdog to %s, it is %s", setting, got)
		}
		return
	}
	// sysctl kernel.nmi_watchdog=[0|1]
	var sysctl string
	if sysctl, err = findSysctl(); err != nil {
		return
	}
	var stdout []byte
	if stdout, err = exec.Command(sysctl, fmt.Sprintf("kernel.nmi_watchdog=%s", setting)).Output(); err != nil {
		return
	}
	var outSetting string
	if outSetting, err = parseSysctlValue(string(stdout)); err != nil {
		return
	}
	if outSetting != setting {
		err = fmt.Errorf("failed to set NMI watchdog to %s", setting)
	}
	return
}

// Disable turns the watchdog off and returns a function that restores the
// previous setting. restore is never nil.
func (w nmiWatchdog) Disable() (restore func() error, err error) {
	restore = func() error { return nil }
	var previous string
	if previous, err = w.Get(); err != nil {
		err = fmt.Errorf("failed to retrieve NMI watchdog status: %v", err)
		return
	}
	if previous == "0" {
		return
	}
	if err = w.Set("0"); err != nil {
		err = fmt.Errorf("failed to disable NMI watchdog: %v", err)
		return
	}
	restore = func() error { return w.Set(previous) }
	return
}

// parseSysctlValue extracts the value from "key = value" output
func parseSysctlValue(out string) (value string, err error) {
	fields := strings.SplitN(strings.TrimSpace(out), "=", 2)
	if len(fields) != 2 {
		err = fmt.Errorf("unexpected sysctl output: %q", out)
		return
	}
	value = strings.TrimSpace(fields[1])
	return
}

// findSysctl gets a useable path to sysctl or error
func findSysctl() (path string, err error) {
	if path, err = exec.LookPath("sysctl"); err == nil {
		return
	}
	// didn't find it on the path, try being specific
	sbinPath := "/usr/sbin/sysctl"
	if _, statErr := os.Stat(sbinPath); statErr == nil {
		path, err = sbinPath, nil
		return
	}
	err = fmt.Errorf("sysctl not found on path or at %s", sbinPath)
	return
}
