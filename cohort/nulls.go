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

package cohort

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"icucohort/table"
)

var (
	// ErrNonIntegralID is returned when an identifier holds a fractional value.
	ErrNonIntegralID = errors.New("non-integral identifier")
	// ErrSchemaMismatch is returned when a frame lacks or misorders its required columns.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrBadTimestamp is returned for timestamps in none of the accepted layouts.
	ErrBadTimestamp = errors.New("unrecognized timestamp")
)

// TimeLayout is the layout of timestamps in persisted tables.
const TimeLayout = "2006-01-02 15:04:05"

var timeLayouts = []string{TimeLayout, "2006-01-02 15:04:05.999999999", time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

// ID is an integer-or-absent value. It is used for identifiers and for the
// integer columns of the cohort table.
type ID struct {
	Int   int64
	Valid bool
}

// IDOf returns a valid ID.
func IDOf(i int64) ID {
	return ID{Int: i, Valid: true}
}

// ParseID parses an integer cell. Integral floats such as "123.0", as
// written by dataframe libraries for columns with nulls, are accepted;
// fractional, infinite or out of range values are not.
func ParseID(c table.Cell) (ID, error) {
	if !c.Valid {
		return ID{}, nil
	}
	s := strings.TrimSpace(c.String)
	if s == "" || strings.EqualFold(s, "nan") {
		return ID{}, nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return IDOf(i), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return ID{}, fmt.Errorf("parsing %q: %w", s, err)
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return ID{}, fmt.Errorf("%w %q", ErrNonIntegralID, s)
	}
	if math.Abs(f) >= 1<<63 {
		return ID{}, fmt.Errorf("%w %q: out of range", ErrNonIntegralID, s)
	}
	return IDOf(int64(f)), nil
}

// Cell formats the ID for a table.
func (id ID) Cell() table.Cell {
	if !id.Valid {
		return table.Null()
	}
	return table.Str(strconv.FormatInt(id.Int, 10))
}

func (id ID) String() string {
	if !id.Valid {
		return "null"
	}
	return strconv.FormatInt(id.Int, 10)
}

// NullTime is a timestamp-or-absent value. Valid times are always in UTC.
type NullTime struct {
	Time  time.Time
	Valid bool
}

// TimeOf returns a valid NullTime.
func TimeOf(t time.Time) NullTime {
	return NullTime{Time: t.UTC(), Valid: true}
}

// ParseTime parses a timestamp cell in any of the accepted layouts.
func ParseTime(c table.Cell) (NullTime, error) {
	if !c.Valid {
		return NullTime{}, nil
	}
	s := strings.TrimSpace(c.String)
	if s == "" || s == "NaT" {
		return NullTime{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return TimeOf(t), nil
		}
	}
	return NullTime{}, fmt.Errorf("%w %q", ErrBadTimestamp, s)
}

// Cell formats the time for a table.
func (t NullTime) Cell() table.Cell {
	if !t.Valid {
		return table.Null()
	}
	return table.Str(t.Time.Format(TimeLayout))
}

// Before orders null times after every valid time.
func (t NullTime) Before(u NullTime) bool {
	switch {
	case !t.Valid:
		return false
	case !u.Valid:
		return true
	}
	return t.Time.Before(u.Time)
}

// NullString is a string-or-absent value.
type NullString struct {
	String string
	Valid  bool
}

// StringOf returns a valid NullString.
func StringOf(s string) NullString {
	return NullString{String: s, Valid: true}
}

// ParseString converts a cell.
func ParseString(c table.Cell) NullString {
	return NullString{String: c.String, Valid: c.Valid}
}

// Cell formats the string for a table.
func (s NullString) Cell() table.Cell {
	return table.Cell{String: s.String, Valid: s.Valid}
}
