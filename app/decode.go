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
	"fmt"
	"math"
	"strconv"

	"icucohort/cohort"
	"icucohort/features"
	"icucohort/table"
)

// Columns read from each MIMIC table.
var (
	PatientColumns   = []string{"subject_id", "dob", "dod", "gender", "expire_flag"}
	AdmissionColumns = []string{"subject_id", "hadm_id", "admittime", "dischtime", "deathtime", "admission_type",
		"ethnicity", "hospital_expire_flag", "diagnosis"}
	DiagnosisColumns = []string{"subject_id", "hadm_id", "icd9_code"}
	CatalogColumns   = []string{"icd9_code", "short_title"}
	EventColumns     = []string{"subject_id", "hadm_id", "itemid", "charttime", "valuenum"}
)

// decoder reads typed values from the rows of a frame, keeping the first
// error it meets.
type decoder struct {
	name string
	pos  map[string]int
	row  table.Row
	line int
	err  error
}

func newDecoder(name string, t *table.Table, columns []string) (*decoder, error) {
	pos, err := t.Require(columns...)
	if err != nil {
		return nil, fmt.Errorf("decoding %v: %w: %w", name, cohort.ErrSchemaMismatch, err)
	}
	d := &decoder{name: name, pos: make(map[string]int, len(columns))}
	for i, c := range columns {
		d.pos[c] = pos[i]
	}
	return d, nil
}

func (d *decoder) fail(column string, err error) {
	if d.err == nil {
		d.err = fmt.Errorf("decoding %v row %v, column %v: %w", d.name, d.line, column, err)
	}
}

func (d *decoder) id(column string) cohort.ID {
	id, err := cohort.ParseID(d.row[d.pos[column]])
	if err != nil {
		d.fail(column, err)
	}
	return id
}

func (d *decoder) time(column string) cohort.NullTime {
	t, err := cohort.ParseTime(d.row[d.pos[column]])
	if err != nil {
		d.fail(column, err)
	}
	return t
}

func (d *decoder) str(column string) cohort.NullString {
	return cohort.ParseString(d.row[d.pos[column]])
}

func (d *decoder) float(column string) float64 {
	c := d.row[d.pos[column]]
	if !c.Valid || c.String == "" {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(c.String, 64)
	if err != nil {
		d.fail(column, err)
	}
	return f
}

// each calls f for every row of t, stopping at the first decoding error.
func (d *decoder) each(t *table.Table, f func()) error {
	for i, row := range t.Rows {
		d.row, d.line = row, i
		f()
		if d.err != nil {
			return d.err
		}
	}
	return nil
}

// DecodePatients maps a patients frame to typed records.
func DecodePatients(t *table.Table) ([]cohort.Patient, error) {
	d, err := newDecoder("patients", t, PatientColumns)
	if err != nil {
		return nil, err
	}
	patients := make([]cohort.Patient, 0, t.Len())
	err = d.each(t, func() {
		patients = append(patients, cohort.Patient{
			SubjectID:  d.id("subject_id"),
			Gender:     d.str("gender"),
			DOB:        d.time("dob"),
			DOD:        d.time("dod"),
			ExpireFlag: d.id("expire_flag"),
		})
	})
	return patients, err
}

// DecodeAdmissions maps an admissions frame to typed records.
func DecodeAdmissions(t *table.Table) ([]cohort.Admission, error) {
	d, err := newDecoder("admissions", t, AdmissionColumns)
	if err != nil {
		return nil, err
	}
	admissions := make([]cohort.Admission, 0, t.Len())
	err = d.each(t, func() {
		admissions = append(admissions, cohort.Admission{
			SubjectID:          d.id("subject_id"),
			HadmID:             d.id("hadm_id"),
			AdmitTime:          d.time("admittime"),
			DischTime:          d.time("dischtime"),
			DeathTime:          d.time("deathtime"),
			AdmissionType:      d.str("admission_type"),
			Ethnicity:          d.str("ethnicity"),
			HospitalExpireFlag: d.id("hospital_expire_flag"),
			EntryDiagnosis:     d.str("diagnosis"),
		})
	})
	return admissions, err
}

// DecodeDiagnoses maps a diagnoses_icd frame to typed records.
func DecodeDiagnoses(t *table.Table) ([]cohort.Diagnosis, error) {
	d, err := newDecoder("diagnoses", t, DiagnosisColumns)
	if err != nil {
		return nil, err
	}
	diagnoses := make([]cohort.Diagnosis, 0, t.Len())
	err = d.each(t, func() {
		diagnoses = append(diagnoses, cohort.Diagnosis{
			SubjectID: d.id("subject_id"),
			HadmID:    d.id("hadm_id"),
			ICD9Code:  d.str("icd9_code"),
		})
	})
	return diagnoses, err
}

// DecodeCatalog maps a d_icd_diagnoses frame to typed records.
func DecodeCatalog(t *table.Table) ([]cohort.CatalogEntry, error) {
	d, err := newDecoder("catalog", t, CatalogColumns)
	if err != nil {
		return nil, err
	}
	catalog := make([]cohort.CatalogEntry, 0, t.Len())
	err = d.each(t, func() {
		catalog = append(catalog, cohort.CatalogEntry{
			ICD9Code:   d.str("icd9_code"),
			ShortTitle: d.str("short_title"),
		})
	})
	return catalog, err
}

// DecodeEvents maps a chart or lab events frame to events. The label and
// dbsource columns are optional. Events without subject, admission, item or
// charttime cannot be placed and are skipped.
func DecodeEvents(t *table.Table) ([]features.Event, error) {
	d, err := newDecoder("events", t, EventColumns)
	if err != nil {
		return nil, err
	}
	label, source := t.Index("label"), t.Index("dbsource")
	events := make([]features.Event, 0, t.Len())
	err = d.each(t, func() {
		subject, hadm, item := d.id("subject_id"), d.id("hadm_id"), d.id("itemid")
		chartTime := d.time("charttime")
		if !subject.Valid || !hadm.Valid || !item.Valid || !chartTime.Valid {
			return
		}
		e := features.Event{
			SubjectID: subject.Int,
			HadmID:    hadm.Int,
			ItemID:    item.Int,
			ChartTime: chartTime.Time,
			Value:     d.float("valuenum"),
		}
		if label >= 0 {
			e.Label = d.row[label].String
		}
		if source >= 0 {
			e.Source = d.row[source].String
		}
		events = append(events, e)
	})
	return events, err
}
