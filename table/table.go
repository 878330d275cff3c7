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

// Package table holds the string-typed frames exchanged between data
// sources, blob storage and the typed decoders.
package table

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingColumn is returned when a frame lacks a required column.
var ErrMissingColumn = errors.New("missing column")

// Cell is a single value of a frame. A cell that is not Valid is null.
type Cell struct {
	String string
	Valid  bool
}

// Str returns a valid cell holding s.
func Str(s string) Cell {
	return Cell{String: s, Valid: true}
}

// Null returns a null cell.
func Null() Cell {
	return Cell{}
}

// Row is one row of a frame, aligned with Table.Columns.
type Row []Cell

// Table is a rectangular frame of named columns.
type Table struct {
	Columns []string
	Rows    []Row
	index   map[string]int
}

// New creates an empty table with the given columns.
func New(columns ...string) *Table {
	return &Table{Columns: append([]string(nil), columns...)}
}

// Append adds a row, which must have one cell per column.
func (t *Table) Append(cells ...Cell) error {
	if len(cells) != len(t.Columns) {
		return fmt.Errorf("row has %v cells, table has %v columns", len(cells), len(t.Columns))
	}
	t.Rows = append(t.Rows, Row(cells))
	return nil
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Index returns the position of a column, or -1.
func (t *Table) Index(name string) int {
	if t.index == nil || len(t.index) != len(t.Columns) {
		t.index = make(map[string]int, len(t.Columns))
		for i, c := range t.Columns {
			t.index[c] = i
		}
	}
	if i, ok := t.index[name]; ok {
		return i
	}
	return -1
}

// Require returns the positions of the named columns, failing with
// ErrMissingColumn on the first one that is absent.
func (t *Table) Require(names ...string) ([]int, error) {
	pos := make([]int, len(names))
	for i, name := range names {
		j := t.Index(name)
		if j < 0 {
			return nil, fmt.Errorf("%w %q", ErrMissingColumn, name)
		}
		pos[i] = j
	}
	return pos, nil
}

// Get returns the cell of row in the named column, or a null cell when the
// column does not exist.
func (t *Table) Get(row Row, name string) Cell {
	if i := t.Index(name); i >= 0 {
		return row[i]
	}
	return Null()
}

// LowerColumns lower-cases all column names in place.
func (t *Table) LowerColumns() *Table {
	for i, c := range t.Columns {
		t.Columns[i] = strings.ToLower(c)
	}
	t.index = nil
	return t
}

// Project returns a new table restricted to the named columns, in that order.
func (t *Table) Project(names ...string) (*Table, error) {
	pos, err := t.Require(names...)
	if err != nil {
		return nil, err
	}
	result := New(names...)
	result.Rows = make([]Row, 0, len(t.Rows))
	for _, row := range t.Rows {
		projected := make(Row, len(pos))
		for i, j := range pos {
			projected[i] = row[j]
		}
		result.Rows = append(result.Rows, projected)
	}
	return result, nil
}

// Filter returns a new table with the rows for which keep returns true.
func (t *Table) Filter(keep func(t *Table, row Row) bool) *Table {
	result := New(t.Columns...)
	for _, row := range t.Rows {
		if keep(t, row) {
			result.Rows = append(result.Rows, row)
		}
	}
	return result
}

func (row Row) key() string {
	var b strings.Builder
	for _, c := range row {
		if c.Valid {
			b.WriteByte('v')
			b.WriteString(fmt.Sprint(len(c.String)))
			b.WriteByte(':')
			b.WriteString(c.String)
		} else {
			b.WriteByte('n')
		}
	}
	return b.String()
}

// Distinct returns a new table without duplicate rows, keeping the first
// occurrence of each.
func (t *Table) Distinct() *Table {
	result := New(t.Columns...)
	seen := make(map[string]struct{}, len(t.Rows))
	for _, row := range t.Rows {
		k := row.key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		result.Rows = append(result.Rows, row)
	}
	return result
}
