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
	"sort"
)

// distinct removes exact duplicates, keeping first occurrences in order.
func distinct[T comparable](xs []T) []T {
	seen := make(map[T]struct{}, len(xs))
	result := make([]T, 0, len(xs))
	for _, x := range xs {
		if _, ok := seen[x]; ok {
			continue
		}
		seen[x] = struct{}{}
		result = append(result, x)
	}
	return result
}

// numberedAdmission is an admission with its per-patient counters.
type numberedAdmission struct {
	Admission
	total  ID
	number ID
}

type admissionKey struct {
	subject, hadm ID
}

// numberAdmissions orders admissions by (subject_id, admittime), keeping the
// input order for ties, and assigns each its 1-based rank within the patient
// and the patient's number of distinct admissions. Null keys sort last.
func numberAdmissions(admissions []Admission) []*numberedAdmission {
	sorted := make([]*numberedAdmission, len(admissions))
	for i := range admissions {
		sorted[i] = &numberedAdmission{Admission: admissions[i]}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.SubjectID != b.SubjectID {
			switch {
			case !a.SubjectID.Valid:
				return false
			case !b.SubjectID.Valid:
				return true
			}
			return a.SubjectID.Int < b.SubjectID.Int
		}
		return a.AdmitTime.Before(b.AdmitTime)
	})
	distinctHadm := make(map[ID]map[ID]struct{})
	for _, a := range sorted {
		hadms := distinctHadm[a.SubjectID]
		if hadms == nil {
			hadms = make(map[ID]struct{})
			distinctHadm[a.SubjectID] = hadms
		}
		if a.HadmID.Valid {
			hadms[a.HadmID] = struct{}{}
		}
	}
	var rank int64
	for i, a := range sorted {
		if i == 0 || sorted[i-1].SubjectID != a.SubjectID {
			rank = 0
		}
		rank++
		a.number = IDOf(rank)
		a.total = IDOf(int64(len(distinctHadm[a.SubjectID])))
	}
	return sorted
}

// namedDiagnosis is a diagnosis joined with its catalog title.
type namedDiagnosis struct {
	code, name NullString
}

// nameDiagnoses drops diagnoses without a code and joins their titles. A
// code listed with several titles yields one entry per title.
func nameDiagnoses(diagnoses []Diagnosis, catalog []CatalogEntry) map[admissionKey][]namedDiagnosis {
	titles := make(map[string][]NullString)
	for _, entry := range catalog {
		if entry.ICD9Code.Valid {
			titles[entry.ICD9Code.String] = append(titles[entry.ICD9Code.String], entry.ShortTitle)
		}
	}
	named := make(map[admissionKey][]namedDiagnosis)
	for _, d := range diagnoses {
		if !d.ICD9Code.Valid {
			continue
		}
		key := admissionKey{d.SubjectID, d.HadmID}
		names, ok := titles[d.ICD9Code.String]
		if !ok {
			named[key] = append(named[key], namedDiagnosis{code: d.ICD9Code})
			continue
		}
		for _, name := range names {
			named[key] = append(named[key], namedDiagnosis{code: d.ICD9Code, name: name})
		}
	}
	return named
}

// Build joins patients, admissions and diagnoses into the cohort table.
//
// Every patient appears at least once. A patient without admissions yields
// one record with null admission fields, an admission without diagnoses one
// record with null diagnosis fields. Records follow the patients in input
// order, their admissions by admission number and their diagnoses in input
// order. Exact duplicates are removed from the inputs and the output, so
// building twice from the same inputs yields the same table.
func Build(patients []Patient, admissions []Admission, diagnoses []Diagnosis, catalog []CatalogEntry) []*Record {
	patients = distinct(patients)
	numbered := numberAdmissions(distinct(admissions))
	named := nameDiagnoses(distinct(diagnoses), distinct(catalog))

	bySubject := make(map[ID][]*numberedAdmission)
	for _, a := range numbered {
		bySubject[a.SubjectID] = append(bySubject[a.SubjectID], a)
	}

	var records []*Record
	for _, p := range patients {
		admissions := bySubject[p.SubjectID]
		if len(admissions) == 0 {
			records = append(records, newRecord(p, nil, namedDiagnosis{}))
			continue
		}
		for _, a := range admissions {
			diagnoses := named[admissionKey{a.SubjectID, a.HadmID}]
			if len(diagnoses) == 0 {
				records = append(records, newRecord(p, a, namedDiagnosis{}))
				continue
			}
			for _, d := range diagnoses {
				records = append(records, newRecord(p, a, d))
			}
		}
	}
	return distinctRecords(records)
}

func newRecord(p Patient, a *numberedAdmission, d namedDiagnosis) *Record {
	r := &Record{
		Row: Row{
			SubjectID:  p.SubjectID,
			Gender:     p.Gender,
			DOB:        p.DOB,
			DOD:        p.DOD,
			ExpireFlag: p.ExpireFlag,
		},
		DiagnosisICD9: d.code,
		DiagnosisName: d.name,
	}
	if a != nil {
		r.TotalAdmissions = a.total
		r.AdmissionNumber = a.number
		r.HadmID = a.HadmID
		r.EntryDiagnosis = a.EntryDiagnosis
		r.AdmitTime = a.AdmitTime
		r.DischTime = a.DischTime
		r.DeathTime = a.DeathTime
		r.AdmissionType = a.AdmissionType
		r.Ethnicity = a.Ethnicity
		r.HospitalExpireFlag = a.HospitalExpireFlag
		r.AgeOnAdmission, r.AgeShifted = AgeOnAdmission(p.DOB, a.AdmitTime)
		r.AgeBucket = AgeBucket(r.AgeOnAdmission)
	}
	r.EthnicitySimple = SimplifyEthnicity(r.Ethnicity)
	return r
}

func distinctRecords(records []*Record) []*Record {
	seen := make(map[Record]struct{}, len(records))
	result := records[:0]
	for _, r := range records {
		if _, ok := seen[*r]; ok {
			continue
		}
		seen[*r] = struct{}{}
		result = append(result, r)
	}
	return result
}
