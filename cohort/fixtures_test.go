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

package cohort_test

import (
	"time"

	"icucohort/cohort"
)

func id(i int64) cohort.ID { return cohort.IDOf(i) }

func str(s string) cohort.NullString { return cohort.StringOf(s) }

func at(s string) cohort.NullTime {
	t, err := time.Parse(cohort.TimeLayout, s)
	if err != nil {
		panic(err)
	}
	return cohort.TimeOf(t)
}

// smallCohort has three patients: 1 with two admissions diagnosed with
// 4019 on the second one, 2 with one admission without diagnoses, and 3
// without admissions.
func smallCohort() ([]cohort.Patient, []cohort.Admission, []cohort.Diagnosis, []cohort.CatalogEntry) {
	patients := []cohort.Patient{
		{SubjectID: id(1), Gender: str("M"), DOB: at("2050-03-01 00:00:00"), ExpireFlag: id(0)},
		{SubjectID: id(2), Gender: str("F"), DOB: at("2080-01-01 00:00:00"), ExpireFlag: id(1)},
		{SubjectID: id(3), Gender: str("F"), DOB: at("2070-01-01 00:00:00"), ExpireFlag: id(0)},
		{SubjectID: id(1), Gender: str("M"), DOB: at("2050-03-01 00:00:00"), ExpireFlag: id(0)},
	}
	admissions := []cohort.Admission{
		{SubjectID: id(1), HadmID: id(11), AdmitTime: at("2110-05-01 10:00:00"), AdmissionType: str("EMERGENCY"),
			Ethnicity: str("WHITE - RUSSIAN"), HospitalExpireFlag: id(0)},
		{SubjectID: id(1), HadmID: id(10), AdmitTime: at("2100-02-01 10:00:00"), AdmissionType: str("ELECTIVE"),
			Ethnicity: str("WHITE"), HospitalExpireFlag: id(0)},
		{SubjectID: id(2), HadmID: id(20), AdmitTime: at("2100-01-01 00:00:00"), AdmissionType: str("NEWBORN"),
			Ethnicity: str("HISPANIC OR LATINO"), HospitalExpireFlag: id(1)},
	}
	diagnoses := []cohort.Diagnosis{
		{SubjectID: id(1), HadmID: id(11), ICD9Code: str("4019")},
		{SubjectID: id(1), HadmID: id(11), ICD9Code: str("25000")},
		{SubjectID: id(1), HadmID: id(10), ICD9Code: cohort.NullString{}},
		{SubjectID: id(1), HadmID: id(11), ICD9Code: str("4019")},
	}
	catalog := []cohort.CatalogEntry{
		{ICD9Code: str("4019"), ShortTitle: str("Hypertension NOS")},
	}
	return patients, admissions, diagnoses, catalog
}

// stratumRows makes n distinct admissions in one stratum.
func stratumRows(first int64, n int, bucket, gender string) []*cohort.Row {
	rows := make([]*cohort.Row, n)
	for i := range rows {
		rows[i] = &cohort.Row{
			SubjectID:          id(first + int64(i)),
			HadmID:             id(1000 + first + int64(i)),
			Gender:             str(gender),
			AgeBucket:          str(bucket),
			AdmissionNumber:    id(1),
			HospitalExpireFlag: id(0),
		}
	}
	return rows
}
