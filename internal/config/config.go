/*
Package config holds the iteration counts and tolerances used by every
measurement, with defaults and an optional YAML override file.
*/
/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/creasty/defaults"
	"github.com/intel/core-timing/internal/noise"
	"github.com/intel/core-timing/internal/pingpong"
	"gopkg.in/yaml.v2"
)

type Config struct {
	ResolutionIterations   int     `default:"10000000" yaml:"resolution_iterations"`
	CalibrationIterations  int     `default:"50000000" yaml:"calibration_iterations"`
	NoiseIterations        int     `default:"100000000" yaml:"noise_iterations"`
	NoiseToleranceNs       uint64  `default:"100" yaml:"noise_tolerance_ns"`
	MatrixRoundTrips       int     `default:"1000000" yaml:"matrix_round_trips"`
	PairRoundTrips         int     `default:"50000000" yaml:"pair_round_trips"`
	MatrixRuns             int     `default:"3" yaml:"matrix_runs"`
	CrossCheckTolerancePct float64 `default:"5" yaml:"cross_check_tolerance_pct"`
}

func (c *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	if err := defaults.Set(c); err != nil {
		return err
	}
	type plain Config
	if err := unmarshal((*plain)(c)); err != nil {
		return err
	}
	return nil
}

// Default returns the configuration used when no file is given.
func Default() (c Config) {
	// only fails for malformed tags
	if err := defaults.Set(&c); err != nil {
		panic(err)
	}
	return
}

// Load reads a YAML configuration file. Keys missing from the file keep their
// defaults. A leading '~' in path is expanded to the user's home directory.
func Load(path string) (c Config, err error) {
	var data []byte
	if data, err = os.ReadFile(expandUser(path)); err != nil {
		return
	}
	c = Default()
	if err = yaml.UnmarshalStrict(data, &c); err != nil {
		err = fmt.Errorf("failed to parse %s: %v", path, err)
		return
	}
	err = c.Validate()
	return
}

// Validate rejects counts that would make a measurement meaningless.
func (c Config) Validate() error {
	counts := []struct {
		name  string
		value int
	}{
		{"resolution_iterations", c.ResolutionIterations},
		{"calibration_iterations", c.CalibrationIterations},
		{"noise_iterations", c.NoiseIterations},
		{"matrix_round_trips", c.MatrixRoundTrips},
		{"pair_round_trips", c.PairRoundTrips},
		{"matrix_runs", c.MatrixRuns},
	}
	for _, count := range counts {
		if count.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", count.name, count.value)
		}
	}
	if c.CrossCheckTolerancePct < 0 {
		return fmt.Errorf("cross_check_tolerance_pct must not be negative, got %f", c.CrossCheckTolerancePct)
	}
	return nil
}

// Matrix returns the ping-pong configuration for a full sweep.
func (c Config) Matrix() pingpong.Config {
	return pingpong.Config{RoundTrips: c.MatrixRoundTrips, Runs: c.MatrixRuns}
}

// Noise returns the noise sampler configuration.
func (c Config) Noise() noise.Config {
	return noise.Config{Iterations: c.NoiseIterations, ToleranceNs: c.NoiseToleranceNs}
}

func (c Config) String() string {
	out, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("failed to marshal configuration: %v", err)
	}
	return string(out)
}

// expandUser expands '~' to user's home directory, if found, otherwise returns original path
func expandUser(path string) string {
	usr, err := user.Current()
	if err != nil {
		return path
	}
	if path == "~" {
		return usr.HomeDir
	} else if strings.HasPrefix(path, "~"+string(os.PathSeparator)) {
		return filepath.Join(usr.HomeDir, path[2:])
	}
	return path
}
