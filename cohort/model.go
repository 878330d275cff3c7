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

// Package cohort builds the denormalized ICU cohort table and selects
// matched subject and base groups from it.
package cohort

// Patient is a row of the patients table.
type Patient struct {
	SubjectID  ID
	Gender     NullString
	DOB        NullTime
	DOD        NullTime
	ExpireFlag ID
}

// Admission is a row of the admissions table.
type Admission struct {
	SubjectID          ID
	HadmID             ID
	AdmitTime          NullTime
	DischTime          NullTime
	DeathTime          NullTime
	AdmissionType      NullString
	Ethnicity          NullString
	HospitalExpireFlag ID
	EntryDiagnosis     NullString //free text diagnosis on entry
}

// Diagnosis is a row of the diagnoses table.
type Diagnosis struct {
	SubjectID ID
	HadmID    ID
	ICD9Code  NullString
}

// CatalogEntry maps an ICD9 code to a short title.
type CatalogEntry struct {
	ICD9Code   NullString
	ShortTitle NullString
}

// Row is the admission-level part of a cohort record: every column except
// the diagnosis code and name.
type Row struct {
	SubjectID          ID
	Gender             NullString
	DOB                NullTime
	DOD                NullTime
	ExpireFlag         ID
	TotalAdmissions    ID //distinct admissions of the patient
	AdmissionNumber    ID //1-based rank of this admission by admit time
	HadmID             ID
	EntryDiagnosis     NullString
	AgeOnAdmission     ID
	AgeBucket          NullString
	AgeShifted         ID //1 when the age was masked by de-identification
	AdmitTime          NullTime
	DischTime          NullTime
	DeathTime          NullTime
	AdmissionType      NullString
	Ethnicity          NullString
	EthnicitySimple    NullString
	HospitalExpireFlag ID
}

// Record is one row of the cohort table: a patient x admission x diagnosis.
type Record struct {
	Row
	DiagnosisICD9 NullString
	DiagnosisName NullString
}

// Stratum is the demographic cell used for matching.
type Stratum struct {
	AgeBucket string
	Gender    string
}

// Stratum returns the demographic cell of a row. The second result is false
// when the bucket or gender is null; such rows belong to no stratum.
func (r *Row) Stratum() (Stratum, bool) {
	if !r.AgeBucket.Valid || !r.Gender.Valid {
		return Stratum{}, false
	}
	return Stratum{AgeBucket: r.AgeBucket.String, Gender: r.Gender.String}, true
}

// Less orders strata by bucket position, then by gender.
func (s Stratum) Less(t Stratum) bool {
	bs, bt := bucketRank(s.AgeBucket), bucketRank(t.AgeBucket)
	if bs != bt {
		return bs < bt
	}
	return s.Gender < t.Gender
}

func (s Stratum) String() string {
	return s.AgeBucket + "/" + s.Gender
}

// ModelRow is a labeled admission of the modeling dataset.
type ModelRow struct {
	SubjectID          int64
	HadmID             int64
	Gender             NullString
	ExpireFlag         ID
	TotalAdmissions    ID
	AdmissionNumber    ID
	AgeOnAdmission     ID
	AgeBucket          NullString
	AdmissionType      NullString
	EthnicitySimple    NullString
	HospitalExpireFlag ID
	Target             int //1 for subjects, 0 for controls
}

// Role tells how a column is treated by downstream consumers.
type Role int

const (
	RoleIdentifier Role = iota
	RoleCategorical
	RoleContinuous
	RoleTimestamp
	RoleText
)

func (r Role) String() string {
	switch r {
	case RoleIdentifier:
		return "identifier"
	case RoleCategorical:
		return "categorical"
	case RoleContinuous:
		return "continuous"
	case RoleTimestamp:
		return "timestamp"
	default:
		return "text"
	}
}

// Column is a named column of the cohort schema.
type Column struct {
	Name string
	Role Role
}

// Columns is the fixed column order of the cohort table.
var Columns = []Column{
	{"subject_id", RoleIdentifier},
	{"gender", RoleCategorical},
	{"dob", RoleTimestamp},
	{"dod", RoleTimestamp},
	{"expire_flag", RoleCategorical},
	{"total_admissions", RoleContinuous},
	{"admission_number", RoleContinuous},
	{"hadm_id", RoleIdentifier},
	{"entry_diagnosis", RoleText},
	{"age_on_admission", RoleContinuous},
	{"age_adm_bucket", RoleCategorical},
	{"age_on_admission_shifted", RoleCategorical},
	{"admittime", RoleTimestamp},
	{"dischtime", RoleTimestamp},
	{"deathtime", RoleTimestamp},
	{"admission_type", RoleCategorical},
	{"ethnicity", RoleCategorical},
	{"ethnicity_simple", RoleCategorical},
	{"hospital_expire_flag", RoleCategorical},
	{"diagnosis_icd9", RoleCategorical},
	{"diagnosis_name", RoleText},
}

// ModelColumns is the column order of the labeled modeling dataset.
var ModelColumns = []Column{
	{"subject_id", RoleIdentifier},
	{"gender", RoleCategorical},
	{"expire_flag", RoleCategorical},
	{"total_admissions", RoleContinuous},
	{"admission_number", RoleContinuous},
	{"hadm_id", RoleIdentifier},
	{"age_on_admission", RoleContinuous},
	{"age_adm_bucket", RoleCategorical},
	{"admission_type", RoleCategorical},
	{"ethnicity_simple", RoleCategorical},
	{"hospital_expire_flag", RoleCategorical},
	{"target", RoleIdentifier},
}

// ColumnNames returns the names of a schema.
func ColumnNames(columns []Column) []string {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	return names
}

// RoleOf looks up the role of a column in the cohort and modeling schemas.
// Unknown columns, such as reading labels, are continuous.
func RoleOf(name string) Role {
	for _, schema := range [][]Column{Columns, ModelColumns} {
		for _, c := range schema {
			if c.Name == name {
				return c.Role
			}
		}
	}
	return RoleContinuous
}
