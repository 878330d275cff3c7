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

package table_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"icucohort/table"
)

func sample() *table.Table {
	t := table.New("Subject_ID", "Gender")
	_ = t.Append(table.Str("1"), table.Str("F"))
	_ = t.Append(table.Str("2"), table.Null())
	_ = t.Append(table.Str("1"), table.Str("F"))
	return t
}

func TestDistinctAndLower(t *testing.T) {
	tbl := sample().LowerColumns().Distinct()
	if tbl.Len() != 2 {
		t.Fatalf("expected 2 distinct rows, got %v", tbl.Len())
	}
	if tbl.Index("subject_id") != 0 || tbl.Index("Subject_ID") != -1 {
		t.Errorf("columns were not lower-cased: %v", tbl.Columns)
	}
	if tbl.Get(tbl.Rows[1], "gender").Valid {
		t.Error("expected null gender for second row")
	}
}

func TestProjectMissingColumn(t *testing.T) {
	_, err := sample().Project("dob")
	if !errors.Is(err, table.ErrMissingColumn) {
		t.Fatalf("expected ErrMissingColumn, got %v", err)
	}
	if !strings.Contains(err.Error(), "dob") {
		t.Errorf("error does not name the column: %v", err)
	}
}

func TestCSVRoundTrip(t *testing.T) {
	for _, indexed := range []bool{false, true} {
		var buf bytes.Buffer
		if err := table.WriteCSV(&buf, sample(), indexed); err != nil {
			t.Fatal(err)
		}
		if indexed && !strings.HasPrefix(buf.String(), ",Subject_ID,Gender\n0,1,F\n") {
			t.Errorf("unexpected indexed output: %q", buf.String())
		}
		tbl, err := table.ReadCSV(&buf, indexed)
		if err != nil {
			t.Fatal(err)
		}
		if tbl.Len() != 3 || len(tbl.Columns) != 2 {
			t.Fatalf("unexpected shape %v x %v", tbl.Len(), len(tbl.Columns))
		}
		if tbl.Rows[1][1].Valid {
			t.Error("null cell did not survive the round trip")
		}
	}
}

func TestReadCSVRequiresIndex(t *testing.T) {
	_, err := table.ReadCSV(strings.NewReader("a,b\n1,2\n"), true)
	if !errors.Is(err, table.ErrIndexColumn) {
		t.Errorf("expected ErrIndexColumn, got %v", err)
	}
}
