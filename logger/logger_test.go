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

package logger_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"icucohort/config"
	"icucohort/logger"
)

func TestNew(t *testing.T) {
	out := filepath.Join(t.TempDir(), "run.log")
	log, err := logger.New(config.LogConfig{Level: "debug", Format: "json", OutputPath: out})
	if err != nil {
		t.Fatal(err)
	}
	log.Info("cohort built")
	_ = log.Sync()
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"msg":"cohort built"`) {
		t.Errorf("unexpected log output %q", data)
	}
	if _, err := logger.New(config.LogConfig{Level: "loud"}); err == nil {
		t.Error("expected an invalid level error")
	}
}
