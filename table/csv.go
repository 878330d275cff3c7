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

package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// ErrIndexColumn is returned when an indexed CSV file does not start with
// the unnamed index column.
var ErrIndexColumn = errors.New("first column is not an unnamed index")

// WriteCSV writes a table as CSV. Null cells are written as empty fields. When
// indexed is set, an unnamed first column holds the 0-based row position.
func WriteCSV(w io.Writer, t *Table, indexed bool) error {
	writer := csv.NewWriter(w)
	header := t.Columns
	if indexed {
		header = append([]string{""}, t.Columns...)
	}
	if err := writer.Write(header); err != nil {
		return err
	}
	record := make([]string, len(header))
	for i, row := range t.Rows {
		offset := 0
		if indexed {
			record[0] = strconv.Itoa(i)
			offset = 1
		}
		for j, c := range row {
			if c.Valid {
				record[j+offset] = c.String
			} else {
				record[j+offset] = ""
			}
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadCSV reads a CSV file with a header line. Empty fields read back as
// null cells. When indexed is set, the unnamed first column is dropped.
func ReadCSV(r io.Reader, indexed bool) (*Table, error) {
	return ReadCSVFunc(r, indexed, nil)
}

// ReadCSVFunc reads a CSV file like ReadCSV, keeping only the rows for
// which keep returns true. A nil keep keeps every row.
func ReadCSVFunc(r io.Reader, indexed bool, keep func(t *Table, row Row) bool) (*Table, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = false
	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("reading header: %w", io.ErrUnexpectedEOF)
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	offset := 0
	if indexed {
		if len(header) == 0 || header[0] != "" {
			return nil, ErrIndexColumn
		}
		offset = 1
	}
	t := New(header[offset:]...)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading line %v: %w", line, err)
		}
		row := make(Row, len(record)-offset)
		for j, field := range record[offset:] {
			if field != "" {
				row[j] = Str(field)
			}
		}
		if len(row) != len(t.Columns) {
			return nil, fmt.Errorf("line %v has %v fields, header has %v", line, len(record), len(header))
		}
		if keep == nil || keep(t, row) {
			t.Rows = append(t.Rows, row)
		}
	}
	return t, nil
}
