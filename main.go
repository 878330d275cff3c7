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

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"go.uber.org/zap"

	"icucohort/app"
	"icucohort/cohort"
	"icucohort/config"
	"icucohort/logger"
)

/*
Icucohort selects ICU patient cohorts from MIMIC-III and models their outcomes.

Usage:
	icucohort command config.toml [args] [flags]

Example:
	icucohort build run.toml
	icucohort select run.toml 4019 exclude_newborns,exclude_deaths --seed 8
	icucohort train run.toml data/4019_exclude_newborns_exclude_deaths.csv --iter 50
	icucohort compare run.toml data/4019_exclude_newborns_exclude_deaths.csv --out reports/4019

The commands are:

build
	Reads the patients, admissions, diagnoses_icd and d_icd_diagnoses tables from the configured source, joins them
	into one row per admission and diagnosis, and stores the result as data/admission_diagnosis_table.csv.
select [icd9 [exclusions]]
	Splits the stored cohort into the admissions with the ICD9 diagnosis and all other admissions, optionally
	restricted by a comma-separated list of first_diagnosis_only, exclude_newborns and exclude_deaths. The other
	admissions are sampled to the age and gender distribution of the diagnosed ones, the first or last chart and lab
	readings are merged in, and the labeled table is stored under data/. Without arguments the diagnosis and
	exclusions of the Selection section of the configuration are used.
train key
	Runs a random search of cross-validated logistic regressions over a stored dataset, fits the best parameters on
	all rows and stores the model under models/.
compare key
	Charts the diagnosed and sampled groups of a stored dataset side by side.

The flags are:

--root path
	Overrides the data root of the configuration.
--nomatch
	select: keeps the whole base group instead of sampling it.
--seed nr
	select: the seed of the matching sample. train: the seed of the random search.
--iter nr
	train: the number of random search iterations.
--folds nr
	train: the number of cross-validation folds.
--nrOfThreads nr
	train: the number of folds trained in parallel. 0 uses all cores.
--out path
	train, compare: the directory charts are written to.
*/

const (
	programVersion = 0.1
	programName    = "icucohort"
)

func programMessage() string {
	return fmt.Sprint(programName, " version ", programVersion, " compiled with ", runtime.Version())
}

const icucohortHelp = "\nicucohort commands:\n" +
	"icucohort build config.toml [--root path]\n" +
	"icucohort select config.toml [icd9 [exclusions]] [--root path] [--nomatch] [--seed nr]\n" +
	"icucohort train config.toml key [--root path] [--seed nr] [--iter nr] [--folds nr] [--nrOfThreads nr] [--out path]\n" +
	"icucohort compare config.toml key [--root path] [--out path]\n"

func parseFlags(flags *flag.FlagSet, requiredArgs int, help string) {
	if len(os.Args) < requiredArgs {
		fmt.Fprintln(os.Stderr, "Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, help)
		os.Exit(1)
	}
	flags.SetOutput(io.Discard)
	if err := flags.Parse(os.Args[requiredArgs:]); err != nil {
		x := 0
		if err != flag.ErrHelp {
			fmt.Fprint(os.Stderr, err)
			x = 1
		}
		fmt.Fprint(os.Stderr, help)
		os.Exit(x)
	}
	if flags.NArg() > 0 {
		fmt.Fprint(os.Stderr, "Cannot parse remaining parameters:", flags.Args())
		fmt.Fprint(os.Stderr, help)
		os.Exit(1)
	}
}

func getFileName(s, help string) string {
	switch s {
	case "-h", "--h", "-help", "--help":
		fmt.Fprint(os.Stderr, help)
		os.Exit(1)
	}
	return s
}

func exitOnError(log *zap.Logger, err error) {
	if err != nil {
		log.Error("failed", zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
}

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, icucohortHelp)
		os.Exit(1)
	}
	command := getFileName(os.Args[1], icucohortHelp)
	configFile := getFileName(os.Args[2], icucohortHelp)

	var (
		root       string
		noMatch    bool
		seed       int64
		iterations int
		folds      int
		threads    int
		out        string
		arg        string
		selectArgs []string
		exclusions []cohort.Exclusion
	)
	seed, threads = -1, -1
	flags := flag.NewFlagSet(programName, flag.ContinueOnError)
	flags.StringVar(&root, "root", "", "data root")
	switch command {
	case "build":
		parseFlags(flags, 3, icucohortHelp)
	case "select":
		flags.BoolVar(&noMatch, "nomatch", false, "keep the whole base group")
		flags.Int64Var(&seed, "seed", -1, "matching seed")
		required := 3
		for required < len(os.Args) && required < 5 && !strings.HasPrefix(os.Args[required], "-") {
			selectArgs = append(selectArgs, os.Args[required])
			required++
		}
		parseFlags(flags, required, icucohortHelp)
	case "train":
		flags.Int64Var(&seed, "seed", -1, "random search seed")
		flags.IntVar(&iterations, "iter", 0, "random search iterations")
		flags.IntVar(&folds, "folds", 0, "cross-validation folds")
		flags.IntVar(&threads, "nrOfThreads", -1, "parallel folds")
		flags.StringVar(&out, "out", "reports", "chart directory")
		parseFlags(flags, 4, icucohortHelp)
		arg = getFileName(os.Args[3], icucohortHelp)
	case "compare":
		flags.StringVar(&out, "out", "reports", "chart directory")
		parseFlags(flags, 4, icucohortHelp)
		arg = getFileName(os.Args[3], icucohortHelp)
	default:
		fmt.Fprintln(os.Stderr, "Unknown command:", command)
		fmt.Fprint(os.Stderr, icucohortHelp)
		os.Exit(1)
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if root != "" {
		cfg.Root = root
	}
	if noMatch {
		cfg.Selection.Match = false
	}
	if seed >= 0 {
		cfg.Selection.Seed = seed
		cfg.Model.Seed = seed
	}
	if iterations > 0 {
		cfg.Model.Iterations = iterations
	}
	if folds > 0 {
		cfg.Model.Folds = folds
	}
	if threads >= 0 {
		cfg.Model.Threads = threads
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if command == "select" {
		if arg, exclusions, err = cfg.SelectArgs(selectArgs); err != nil {
			fmt.Fprintln(os.Stderr, err)
			fmt.Fprint(os.Stderr, icucohortHelp)
			os.Exit(1)
		}
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info(programMessage(), zap.String("command", command), zap.String("config", configFile))

	ctx := context.Background()
	p, err := app.Open(ctx, cfg, log)
	exitOnError(log, err)

	err = app.Run(func() error {
		switch command {
		case "build":
			_, err := p.BuildCohort(ctx)
			return err
		case "select":
			_, _, err := p.SelectDataset(ctx, arg, exclusions)
			return err
		case "train":
			_, results, err := p.Train(ctx, arg)
			if err != nil {
				return err
			}
			_, err = p.SearchChart(results, out)
			return err
		default:
			_, err := p.Compare(ctx, arg, out)
			return err
		}
	})
	closeErr := p.Close()
	exitOnError(log, err)
	exitOnError(log, closeErr)
}
