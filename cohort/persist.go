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
	"io"
	"strconv"

	"icucohort/table"
)

func (r *Record) cells() []table.Cell {
	return []table.Cell{
		r.SubjectID.Cell(),
		r.Gender.Cell(),
		r.DOB.Cell(),
		r.DOD.Cell(),
		r.ExpireFlag.Cell(),
		r.TotalAdmissions.Cell(),
		r.AdmissionNumber.Cell(),
		r.HadmID.Cell(),
		r.EntryDiagnosis.Cell(),
		r.AgeOnAdmission.Cell(),
		r.AgeBucket.Cell(),
		r.AgeShifted.Cell(),
		r.AdmitTime.Cell(),
		r.DischTime.Cell(),
		r.DeathTime.Cell(),
		r.AdmissionType.Cell(),
		r.Ethnicity.Cell(),
		r.EthnicitySimple.Cell(),
		r.HospitalExpireFlag.Cell(),
		r.DiagnosisICD9.Cell(),
		r.DiagnosisName.Cell(),
	}
}

// rowDecoder collects the first parse error of a row.
type rowDecoder struct {
	row  table.Row
	line int
	err  error
}

func (d *rowDecoder) id(i int) ID {
	id, err := ParseID(d.row[i])
	if err != nil && d.err == nil {
		d.err = fmt.Errorf("row %v, column %v: %w", d.line, Columns[i].Name, err)
	}
	return id
}

func (d *rowDecoder) time(i int) NullTime {
	t, err := ParseTime(d.row[i])
	if err != nil && d.err == nil {
		d.err = fmt.Errorf("row %v, column %v: %w", d.line, Columns[i].Name, err)
	}
	return t
}

func (d *rowDecoder) str(i int) NullString {
	return ParseString(d.row[i])
}

func checkSchema(got []string, want []Column) error {
	if len(got) != len(want) {
		return fmt.Errorf("%w: %v columns, expected %v", ErrSchemaMismatch, len(got), len(want))
	}
	for i, c := range want {
		if got[i] != c.Name {
			return fmt.Errorf("%w: column %v is %q, expected %q", ErrSchemaMismatch, i, got[i], c.Name)
		}
	}
	return nil
}

// Table converts records to a frame with the cohort columns.
func Table(records []*Record) *table.Table {
	t := table.New(ColumnNames(Columns)...)
	t.Rows = make([]table.Row, len(records))
	for i, r := range records {
		t.Rows[i] = r.cells()
	}
	return t
}

// FromTable converts a frame with exactly the cohort columns to records.
func FromTable(t *table.Table) ([]*Record, error) {
	if err := checkSchema(t.Columns, Columns); err != nil {
		return nil, err
	}
	records := make([]*Record, len(t.Rows))
	for i, row := range t.Rows {
		d := &rowDecoder{row: row, line: i}
		records[i] = &Record{
			Row: Row{
				SubjectID:          d.id(0),
				Gender:             d.str(1),
				DOB:                d.time(2),
				DOD:                d.time(3),
				ExpireFlag:         d.id(4),
				TotalAdmissions:    d.id(5),
				AdmissionNumber:    d.id(6),
				HadmID:             d.id(7),
				EntryDiagnosis:     d.str(8),
				AgeOnAdmission:     d.id(9),
				AgeBucket:          d.str(10),
				AgeShifted:         d.id(11),
				AdmitTime:          d.time(12),
				DischTime:          d.time(13),
				DeathTime:          d.time(14),
				AdmissionType:      d.str(15),
				Ethnicity:          d.str(16),
				EthnicitySimple:    d.str(17),
				HospitalExpireFlag: d.id(18),
			},
			DiagnosisICD9: d.str(19),
			DiagnosisName: d.str(20),
		}
		if d.err != nil {
			return nil, d.err
		}
	}
	return records, nil
}

// WriteCSV persists the cohort table with an unnamed 0-based index column.
func WriteCSV(w io.Writer, records []*Record) error {
	return table.WriteCSV(w, Table(records), true)
}

// ReadCSV reads a table written by WriteCSV. The header must list the
// cohort columns in order.
func ReadCSV(r io.Reader) ([]*Record, error) {
	t, err := table.ReadCSV(r, true)
	if errors.Is(err, table.ErrIndexColumn) {
		return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	if err != nil {
		return nil, err
	}
	return FromTable(t)
}

func (m *ModelRow) cells() []table.Cell {
	return []table.Cell{
		IDOf(m.SubjectID).Cell(),
		m.Gender.Cell(),
		m.ExpireFlag.Cell(),
		m.TotalAdmissions.Cell(),
		m.AdmissionNumber.Cell(),
		IDOf(m.HadmID).Cell(),
		m.AgeOnAdmission.Cell(),
		m.AgeBucket.Cell(),
		m.AdmissionType.Cell(),
		m.EthnicitySimple.Cell(),
		m.HospitalExpireFlag.Cell(),
		table.Str(strconv.Itoa(m.Target)),
	}
}

// ModelTable converts labeled rows to a frame with the modeling columns.
func ModelTable(rows []*ModelRow) *table.Table {
	t := table.New(ColumnNames(ModelColumns)...)
	t.Rows = make([]table.Row, len(rows))
	for i, m := range rows {
		t.Rows[i] = m.cells()
	}
	return t
}

// Cell returns the value of a cohort column of the record.
func (r *Record) Cell(name string) (table.Cell, bool) {
	for i, c := range Columns {
		if c.Name == name {
			return r.cells()[i], true
		}
	}
	return table.Cell{}, false
}
