/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
//
// Command line interface and program logic
//
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/intel/core-timing/internal/affinity"
	"github.com/intel/core-timing/internal/calibrate"
	"github.com/intel/core-timing/internal/config"
	"github.com/intel/core-timing/internal/cycleclock"
	"github.com/intel/core-timing/internal/machine"
	"github.com/intel/core-timing/internal/noise"
	"github.com/intel/core-timing/internal/pingpong"
	"github.com/intel/core-timing/internal/progress"
	"github.com/intel/core-timing/internal/report"
	"github.com/intel/core-timing/internal/resolution"
	"github.com/intel/core-timing/internal/verdict"
)

// globals
var (
	gVersion string = "dev"
)

// Mode selects the measurements to run
type Mode int

const (
	ModeTickResolution Mode = iota
	ModeCPULatency
	ModeCoreNoise
	ModeInfo
	ModeAll
)

var modeNames = map[string]Mode{
	"tr":              ModeTickResolution,
	"tick-resolution": ModeTickResolution,
	"cl":              ModeCPULatency,
	"cpulatency":      ModeCPULatency,
	"cn":              ModeCoreNoise,
	"core-noise":      ModeCoreNoise,
	"info":            ModeInfo,
	"all":             ModeAll,
}

// CmdLineArgs represents the program arguments provided by the user
type CmdLineArgs struct {
	showHelp    bool
	showVersion bool
	// measurement options
	mode           Mode
	pair           bool
	firstIndex     int
	secondIndex    int
	toleranceNs    uint64
	toleranceSet   bool
	configFilePath string
	nmiOff         bool
	// output options
	printJSON    bool
	xlsxFilePath string
	checkExpr    string
	// debugging options
	debug       bool
	logFilePath string
}

// showUsage prints program usage and options to stdout
func showUsage() {
	fmt.Printf("\nusage: %s [OPTIONS] <mode> [ARGS]\n", filepath.Base(os.Args[0]))
	fmt.Print("\nmodes:")
	modes := `
  tr, tick-resolution
  	Measure the least observable difference of the counter, the serializing counter and the clock.
  cl, cpulatency [<cpu1> <cpu2>]
  	Measure the one-way core to core latency matrix, or a single pair of CPU indices.
  cn, core-noise [<tolerance ns>]
  	Measure the share of each core's time lost to interruptions longer than the tolerance.
  info
  	Show the machine and time stamp counter information.
  all
  	Run tick-resolution, cpulatency and core-noise.`
	fmt.Println(modes)
	fmt.Print("\noptional arguments:")
	usage := `
  -h, -help
  	Print this usage message and exit.
  -v, -version
  	Show program version and exit.
  -config <path>
  	YAML file overriding iteration counts and tolerances.
  -nmi-off
  	Disable the NMI watchdog during core-noise, restored afterwards. Requires root.

Output Options:
  -json
  	Print results as JSON instead of text.
  -xlsx <path>
  	Also write results to an Excel workbook.
  -check <expression>
  	Boolean expression over the results, e.g., 'latency_max < 200 && noise_pct_max < 0.5'.
  	Exit code is 2 when it evaluates to false.

Debugging Options:
  -debug
  	Include source file and line in log messages.
  -log <path>
  	Append log messages to a file instead of stderr.`
	fmt.Println(usage)
}

// parseArgs defines and parses the arguments accepted by the application
func parseArgs(fs *flag.FlagSet, arguments []string) (args CmdLineArgs, err error) {
	fs.Usage = func() { showUsage() } // override default usage output
	fs.SetOutput(io.Discard)
	fs.BoolVar(&args.showHelp, "h", false, "")
	fs.BoolVar(&args.showHelp, "help", false, "")
	fs.BoolVar(&args.showVersion, "v", false, "")
	fs.BoolVar(&args.showVersion, "version", false, "")
	fs.StringVar(&args.configFilePath, "config", "", "")
	fs.BoolVar(&args.nmiOff, "nmi-off", false, "")
	// output options
	fs.BoolVar(&args.printJSON, "json", false, "")
	fs.StringVar(&args.xlsxFilePath, "xlsx", "", "")
	fs.StringVar(&args.checkExpr, "check", "", "")
	// debugging options
	fs.BoolVar(&args.debug, "debug", false, "")
	fs.StringVar(&args.logFilePath, "log", "", "")
	if err = fs.Parse(arguments); err != nil {
		return
	}
	if args.showHelp || args.showVersion {
		return
	}
	err = parseMode(&args, fs.Args())
	return
}

// parseMode interprets the positional arguments. CPU indices are only checked
// for form here, their range depends on the enumerated CPUs.
func parseMode(args *CmdLineArgs, positional []string) (err error) {
	if len(positional) == 0 {
		err = fmt.Errorf("a mode is required")
		return
	}
	var ok bool
	if args.mode, ok = modeNames[strings.ToLower(positional[0])]; !ok {
		err = fmt.Errorf("unknown mode: %s", positional[0])
		return
	}
	extra := positional[1:]
	switch args.mode {
	case ModeCPULatency:
		switch len(extra) {
		case 0:
		case 2:
			if args.firstIndex, err = strconv.Atoi(extra[0]); err != nil {
				err = fmt.Errorf("the CPU index 1 is not a valid integer: %s", extra[0])
				return
			}
			if args.secondIndex, err = strconv.Atoi(extra[1]); err != nil {
				err = fmt.Errorf("the CPU index 2 is not a valid integer: %s", extra[1])
				return
			}
			if args.firstIndex == args.secondIndex {
				err = fmt.Errorf("the CPU indices cannot be the same: %d", args.firstIndex)
				return
			}
			args.pair = true
		default:
			err = fmt.Errorf("cpulatency takes zero or two CPU indices, got %d arguments", len(extra))
		}
	case ModeCoreNoise:
		switch len(extra) {
		case 0:
		case 1:
			if args.toleranceNs, err = strconv.ParseUint(extra[0], 10, 64); err != nil {
				err = fmt.Errorf("the tolerance is not a valid number of nanoseconds: %s", extra[0])
				return
			}
			args.toleranceSet = true
		default:
			err = fmt.Errorf("core-noise takes at most one tolerance, got %d arguments", len(extra))
		}
	default:
		if len(extra) > 0 {
			err = fmt.Errorf("%s takes no arguments", positional[0])
		}
	}
	if err == nil && args.nmiOff && args.mode != ModeCoreNoise && args.mode != ModeAll {
		err = fmt.Errorf("-nmi-off is only valid for core-noise and all")
	}
	return
}

// The program will exit with one of these exit codes
const (
	exitNoError     = 0
	exitError       = 1
	exitCheckFailed = 2
)

// runner carries what the measurement phases share
type runner struct {
	args    CmdLineArgs
	cfg     config.Config
	info    machine.Info
	cores   []affinity.CoreID
	text    *report.Text
	results report.Results
}

func (r *runner) needsCounter() bool {
	return r.args.mode == ModeTickResolution || r.args.mode == ModeCoreNoise || r.args.mode == ModeAll
}

func (r *runner) needsCores() bool {
	return r.args.mode == ModeCPULatency || r.args.mode == ModeCoreNoise || r.args.mode == ModeAll
}

func (r *runner) tickResolution() (err error) {
	log.Printf("Probing clock resolution with %d iterations per source.", r.cfg.ResolutionIterations)
	if r.results.Resolution, err = resolution.ProbeAll(resolution.Standard(), cycleclock.Wall(), r.cfg.ResolutionIterations); err != nil {
		err = fmt.Errorf("failed to probe clock resolution: %w", err)
		return
	}
	if nominal, ok := resolution.Nominal(r.info); ok {
		r.results.Nominal = &nominal
	}
	r.text.Resolution(r.results.Resolution, r.results.Nominal)
	return
}

func (r *runner) calibrate() (err error) {
	if err = r.info.RequireTSCInfo(); err != nil {
		return
	}
	r.results.Warnings = append(r.results.Warnings, calibrate.CheckInvariance(r.info)...)
	log.Printf("Calibrating the counter with %d iterations.", r.cfg.CalibrationIterations)
	calibrator := calibrate.New(cycleclock.SerializedCounter(), cycleclock.Wall(), r.cfg.CalibrationIterations)
	if r.results.NanosecondsPerTick, err = calibrator.OnCore(affinity.OS{}, r.cores[0]); err != nil {
		err = fmt.Errorf("failed to calibrate the counter: %w", err)
		return
	}
	if warning := calibrate.CrossCheck(r.results.NanosecondsPerTick, r.info.TSCFrequencyHz, r.cfg.CrossCheckTolerancePct); warning != "" {
		r.results.Warnings = append(r.results.Warnings, warning)
	}
	for _, warning := range r.results.Warnings {
		log.Printf("WARNING: %s", warning)
	}
	r.text.Calibration(r.results.NanosecondsPerTick)
	r.text.Warnings(r.results.Warnings)
	return
}

func (r *runner) latencyPair() (err error) {
	if err = affinity.Validate(r.cores, r.args.firstIndex, r.args.secondIndex); err != nil {
		return
	}
	first, second := r.cores[r.args.firstIndex], r.cores[r.args.secondIndex]
	log.Printf("Will measure latency between CPUs: %d and %d", first, second)
	roundTrips := r.cfg.PairRoundTrips
	elapsed, err := pingpong.MeasurePair(affinity.OS{}, first, second, roundTrips)
	if err != nil {
		return
	}
	r.results.Pair = &report.Pair{
		First:      first,
		Second:     second,
		RoundTrips: roundTrips,
		Elapsed:    elapsed,
		OneWayNs:   pingpong.OneWay(elapsed, roundTrips),
	}
	r.text.Pair(r.results.Pair)
	r.text.Frequencies(r.info.CPUFrequenciesMHz)
	return
}

func (r *runner) latencyMatrix() (err error) {
	spinner := progress.NewMultiSpinner()
	label := "core latency"
	if err = spinner.AddSpinner(label); err != nil {
		return
	}
	matrixConfig := r.cfg.Matrix()
	log.Printf("Measuring core to core latency on %d CPUs, %d round trips x %d runs per pair.", len(r.cores), matrixConfig.RoundTrips, matrixConfig.Runs)
	rows := 0
	// onRow runs on this goroutine between pairs, never during a pass
	r.results.Matrix, err = pingpong.Sweep(affinity.OS{}, r.cores, matrixConfig, func(core affinity.CoreID) {
		rows++
		_ = spinner.Status(label, fmt.Sprintf("row %d of %d (CPU %d)", rows, len(r.cores), core))
		spinner.Draw()
	})
	if err != nil {
		_ = spinner.Status(label, "failed")
		spinner.Finish()
		return
	}
	_ = spinner.Status(label, fmt.Sprintf("done, %d pairs", r.results.Matrix.Populated()))
	spinner.Finish()
	r.text.Matrix(r.results.Matrix)
	return
}

func (r *runner) coreNoise() (err error) {
	noiseConfig := r.cfg.Noise()
	if r.args.toleranceSet {
		noiseConfig.ToleranceNs = r.args.toleranceNs
	}
	r.results.NoiseToleranceNs = noiseConfig.ToleranceNs
	if r.args.nmiOff {
		var restore func() error
		if restore, err = (nmiWatchdog{procPath: nmiWatchdogPath}).Disable(); err != nil {
			return
		}
		defer func() {
			if restoreErr := restore(); restoreErr != nil {
				log.Printf("failed to restore NMI watchdog: %v", restoreErr)
			}
		}()
	}
	spinner := progress.NewMultiSpinner()
	label := "core noise"
	if err = spinner.AddSpinner(label); err != nil {
		return
	}
	log.Printf("Measuring core noise on %d CPUs, %d iterations, tolerance %d ns.", len(r.cores), noiseConfig.Iterations, noiseConfig.ToleranceNs)
	_ = spinner.Status(label, fmt.Sprintf("0 of %d CPUs", len(r.cores)))
	spinner.Draw()
	err = noise.Run(affinity.OS{}, cycleclock.Counter(), r.cores, noiseConfig, r.results.NanosecondsPerTick, func(rpt noise.Report) {
		r.results.Noise = append(r.results.Noise, rpt)
		_ = spinner.Status(label, fmt.Sprintf("%d of %d CPUs", len(r.results.Noise), len(r.cores)))
		spinner.Draw()
	})
	if err != nil {
		_ = spinner.Status(label, "failed")
	}
	spinner.Finish()
	r.text.NoiseHeader(noiseConfig.ToleranceNs)
	for _, rpt := range r.results.Noise {
		r.text.Noise(rpt)
	}
	return
}

// run executes the phases selected by the mode, in order
func (r *runner) run() (err error) {
	if r.args.mode == ModeInfo {
		r.text.Machine(r.info)
		return
	}
	if r.args.mode == ModeTickResolution || r.args.mode == ModeAll {
		if err = r.tickResolution(); err != nil {
			return
		}
	}
	if r.args.mode == ModeCoreNoise || r.args.mode == ModeAll {
		if r.args.mode == ModeCoreNoise {
			if err = r.tickResolution(); err != nil {
				return
			}
		}
		if err = r.calibrate(); err != nil {
			return
		}
	}
	if r.args.mode == ModeCPULatency || r.args.mode == ModeAll {
		if r.args.pair {
			err = r.latencyPair()
		} else {
			err = r.latencyMatrix()
		}
		if err != nil {
			return
		}
	}
	if r.args.mode == ModeCoreNoise || r.args.mode == ModeAll {
		if err = r.coreNoise(); err != nil {
			return
		}
	}
	return
}

func writeXLSXFile(path string, results *report.Results) (err error) {
	var f *os.File
	if f, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644); err != nil {
		return
	}
	defer f.Close()
	err = report.WriteXLSX(f, results)
	return
}

// mainReturnWithCode is responsible for initialization and highest-level program
// logic/flow
func mainReturnWithCode() int {
	args, err := parseArgs(flag.NewFlagSet(os.Args[0], flag.ContinueOnError), os.Args[1:])
	if err != nil {
		log.Printf("Invalid argument error: %v", err)
		showUsage()
		return exitError
	}
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	if args.debug {
		log.SetFlags(log.Flags() | log.Lshortfile)
	}
	if args.showHelp {
		showUsage()
		return exitNoError
	}
	if args.showVersion {
		fmt.Println(gVersion)
		return exitNoError
	}
	if args.logFilePath != "" {
		var logFile *os.File
		if logFile, err = os.OpenFile(args.logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err != nil {
			log.Printf("failed to open log file: %v", err)
			return exitError
		}
		defer logFile.Close()
		log.SetOutput(logFile)
	}
	log.Printf("Starting up %s, version: %s, arguments: %s",
		filepath.Base(os.Args[0]),
		gVersion,
		strings.Join(os.Args[1:], " "),
	)
	cfg := config.Default()
	if args.configFilePath != "" {
		if cfg, err = config.Load(args.configFilePath); err != nil {
			log.Printf("failed to load configuration: %v", err)
			return exitError
		}
	}
	if args.debug {
		log.Printf("configuration:\n%s", cfg)
	}
	r := &runner{args: args, cfg: cfg}
	var textOut io.Writer = os.Stdout
	if args.printJSON {
		textOut = io.Discard
	}
	r.text = report.NewText(textOut)
	if r.info, err = machine.Load(); err != nil {
		log.Printf("failed to load machine info: %v", err)
		return exitError
	}
	r.results.Machine = &r.info
	if args.debug {
		log.Printf("machine info:\n%s", r.info)
	}
	if r.needsCounter() {
		if err = cycleclock.Supported(); err != nil {
			log.Printf("%v", err)
			return exitError
		}
	}
	if r.needsCores() {
		if r.cores, err = affinity.Enumerate(); err != nil {
			log.Printf("%v", err)
			return exitError
		}
		// input errors are reported before anything is pinned
		if args.pair {
			if err = affinity.Validate(r.cores, args.firstIndex, args.secondIndex); err != nil {
				log.Printf("Invalid argument error: %v", err)
				return exitError
			}
		}
	}
	if err = r.run(); err != nil {
		log.Printf("%v", err)
		return exitError
	}
	if args.printJSON {
		if err = report.WriteJSON(os.Stdout, &r.results); err != nil {
			log.Printf("%v", err)
			return exitError
		}
	}
	if args.xlsxFilePath != "" {
		if err = writeXLSXFile(args.xlsxFilePath, &r.results); err != nil {
			log.Printf("failed to write %s: %v", args.xlsxFilePath, err)
			return exitError
		}
		log.Printf("Results written to %s", args.xlsxFilePath)
	}
	if args.checkExpr != "" {
		var pass bool
		if pass, err = verdict.Check(args.checkExpr, r.results.Variables()); err != nil {
			log.Printf("%v", err)
			return exitError
		}
		if !pass {
			log.Printf("check failed: %s", args.checkExpr)
			return exitCheckFailed
		}
		log.Printf("check passed: %s", args.checkExpr)
	}
	return exitNoError
}

// main exits the process with code returned by called function
func main() {
	os.Exit(mainReturnWithCode())
}
