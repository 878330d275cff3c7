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

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/golang/snappy"

	"icucohort/cohort"
	"icucohort/table"
)

// FileSource reads tables from a directory mirror of the database, one
// <table>.csv or snappy-compressed <table>.csv.sz file per table. Column
// names are matched case-insensitively.
type FileSource struct {
	Dir string
}

// NewFileSource returns a source over dir, which must exist.
func NewFileSource(dir string) (*FileSource, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("opening file source: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("opening file source: %v is not a directory", dir)
	}
	return &FileSource{Dir: dir}, nil
}

// Close is a no-op; files are closed after every query.
func (s *FileSource) Close() error {
	return nil
}

func (s *FileSource) open(name string) (io.ReadCloser, bool, error) {
	for _, ext := range []string{".csv", ".csv.sz"} {
		f, err := os.Open(filepath.Join(s.Dir, name+ext))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		return f, ext == ".csv.sz", nil
	}
	return nil, false, fmt.Errorf("table %v: no %v.csv or %v.csv.sz in %v: %w", name, name, name, s.Dir, fs.ErrNotExist)
}

// Table reads the file of the query table, keeping the rows that satisfy
// its In predicate. Raw SQL predicates are not supported.
func (s *FileSource) Table(_ context.Context, q Query) (*table.Table, error) {
	if q.Where != "" {
		return nil, fmt.Errorf("%w: file source cannot evaluate %q", ErrUnsupportedQuery, q.Where)
	}
	f, compressed, err := s.open(q.Table)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var r io.Reader = f
	if compressed {
		r = snappy.NewReader(f)
	}
	match := q.matcher()
	lowered := false
	t, err := table.ReadCSVFunc(r, false, func(t *table.Table, row table.Row) bool {
		if !lowered {
			t.LowerColumns()
			lowered = true
		}
		return match(t, row)
	})
	if err != nil {
		return nil, fmt.Errorf("reading %v: %w", q, err)
	}
	t.LowerColumns()
	projected, err := t.Project(q.Columns...)
	if err != nil {
		return nil, fmt.Errorf("reading %v: %w: %w", q, cohort.ErrSchemaMismatch, err)
	}
	return projected.Distinct(), nil
}
