// icucohort: ICU Cohort Selection and Outcome Modeling
// Copyright (c) 2022 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/ptra/blob/master/LICENSE.txt>.

// Package config holds the run configuration, read from a TOML file.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"icucohort/cohort"
)

// Config is the configuration of a pipeline run.
type Config struct {
	// Root is the data root. Relative paths elsewhere are resolved against it.
	Root string

	Source    SourceConfig
	Blob      BlobConfig
	Log       LogConfig
	Selection SelectionConfig
	Features  FeaturesConfig
	Model     ModelConfig
}

// SourceConfig selects where the MIMIC tables are read from.
type SourceConfig struct {
	Kind   string //postgres or file
	DSN    string //connection string for postgres
	Schema string
	Dir    string //directory of <table>.csv or <table>.csv.sz files
}

// BlobConfig selects where artifacts are stored.
type BlobConfig struct {
	Kind   string //s3 or dir
	Bucket string
	Region string
	Prefix string
	Dir    string
}

// LogConfig configures the logger.
type LogConfig struct {
	Level      string
	Format     string //json or console
	OutputPath string
}

// SelectionConfig configures group selection. Diagnosis and Exclusions
// are used when select is run without them.
type SelectionConfig struct {
	Diagnosis  string
	Exclusions []string
	Match      bool
	Seed       int64
}

// FeaturesConfig configures the readings merged into the dataset.
type FeaturesConfig struct {
	Reading   string   //first or last
	Populated float64  //minimum share of non-missing values per group
	Profile   []string //extra cohort columns
}

// ModelConfig configures training.
type ModelConfig struct {
	Name       string
	Folds      int
	Iterations int
	Seed       int64
	Drop       []string //columns never used as features
	Threads    int
}

// Default returns the configuration used for settings absent from a file.
func Default() *Config {
	return &Config{
		Root:   ".",
		Source: SourceConfig{Kind: "file", Schema: "mimiciii", Dir: "mimic"},
		Blob:   BlobConfig{Kind: "dir", Dir: "store"},
		Log:    LogConfig{Level: "info", Format: "console", OutputPath: "stderr"},
		Selection: SelectionConfig{
			Match: true,
			Seed:  8,
		},
		Features: FeaturesConfig{Reading: "first", Populated: 0.5},
		Model:    ModelConfig{Name: "logistic", Folds: 5, Iterations: 20, Seed: 50},
	}
}

// Load reads a TOML file over the defaults and validates the result.
func Load(filename string) (*Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(filename, cfg)
	if err != nil {
		return nil, fmt.Errorf("reading configuration %v: %w", filename, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown configuration keys in %v: %v", filename, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path resolves p against the data root.
func (c *Config) Path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}

// Validate reports every problem of the configuration at once.
func (c *Config) Validate() error {
	var errs []string
	if c.Root == "" {
		errs = append(errs, "Root is required")
	}
	switch c.Source.Kind {
	case "postgres":
		if c.Source.DSN == "" {
			errs = append(errs, "Source.DSN is required for a postgres source")
		}
	case "file":
		if c.Source.Dir == "" {
			errs = append(errs, "Source.Dir is required for a file source")
		}
	default:
		errs = append(errs, fmt.Sprintf("Source.Kind %q is not postgres or file", c.Source.Kind))
	}
	switch c.Blob.Kind {
	case "s3":
		if c.Blob.Bucket == "" {
			errs = append(errs, "Blob.Bucket is required for an s3 store")
		}
	case "dir":
		if c.Blob.Dir == "" {
			errs = append(errs, "Blob.Dir is required for a dir store")
		}
	default:
		errs = append(errs, fmt.Sprintf("Blob.Kind %q is not s3 or dir", c.Blob.Kind))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("Log.Format %q is not json or console", c.Log.Format))
	}
	switch c.Features.Reading {
	case "first", "last":
	default:
		errs = append(errs, fmt.Sprintf("Features.Reading %q is not first or last", c.Features.Reading))
	}
	for _, e := range c.Selection.Exclusions {
		if _, err := cohort.ParseExclusion(e); err != nil {
			errs = append(errs, "Selection.Exclusions: "+err.Error())
		}
	}
	if c.Features.Populated < 0 || c.Features.Populated > 1 {
		errs = append(errs, "Features.Populated must be between 0 and 1")
	}
	if c.Model.Folds < 2 {
		errs = append(errs, "Model.Folds must be at least 2")
	}
	if c.Model.Iterations < 1 {
		errs = append(errs, "Model.Iterations must be at least 1")
	}
	if c.Model.Threads < 0 {
		errs = append(errs, "Model.Threads cannot be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// SelectArgs resolves the positional arguments of select, [icd9
// [exclusions]], falling back to the configured diagnosis and exclusions.
func (c *Config) SelectArgs(args []string) (string, []cohort.Exclusion, error) {
	if len(args) > 2 {
		return "", nil, fmt.Errorf("select takes at most 2 arguments, got %v", len(args))
	}
	code := c.Selection.Diagnosis
	if len(args) > 0 {
		code = strings.TrimSpace(args[0])
	}
	if code == "" {
		return "", nil, errors.New("no diagnosis given and Selection.Diagnosis is not set")
	}
	if len(args) > 1 {
		exclusions, err := cohort.ParseExclusions(args[1])
		return code, exclusions, err
	}
	exclusions := make([]cohort.Exclusion, 0, len(c.Selection.Exclusions))
	for _, name := range c.Selection.Exclusions {
		e, err := cohort.ParseExclusion(name)
		if err != nil {
			return "", nil, err
		}
		exclusions = append(exclusions, e)
	}
	return code, exclusions, nil
}
