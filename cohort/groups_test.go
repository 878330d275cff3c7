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
	"testing"

	"icucohort/cohort"
)

func subjects(rows []*cohort.Row) map[cohort.ID]bool {
	ids := make(map[cohort.ID]bool)
	for _, r := range rows {
		ids[r.SubjectID] = true
	}
	return ids
}

func TestSelectGroupsExclusive(t *testing.T) {
	records := cohort.Build(smallCohort())
	subject, base := cohort.SelectGroups(records, "4019")
	if len(subject) != 1 || subject[0].HadmID != id(11) {
		t.Fatalf("expected admission 11 as only subject row, got %v rows", len(subject))
	}
	inSubject := subjects(subject)
	for _, r := range base {
		if inSubject[r.SubjectID] {
			t.Errorf("patient %v is in both groups", r.SubjectID)
		}
	}
	// patient 1's other admission must not show up in the base group
	if got := subjects(base); len(got) != 2 || !got[id(2)] || !got[id(3)] {
		t.Errorf("unexpected base patients %v", got)
	}
}

func TestSelectGroupsUnknownCode(t *testing.T) {
	subject, base := cohort.SelectGroups(cohort.Build(smallCohort()), "99999")
	if len(subject) != 0 {
		t.Errorf("expected empty subject group, got %v", len(subject))
	}
	if len(base) != 4 {
		t.Errorf("expected every admission in the base group, got %v", len(base))
	}
}

func TestExclusions(t *testing.T) {
	records := cohort.Build(smallCohort())
	tests := []struct {
		name       string
		exclusions []cohort.Exclusion
		base       int
	}{
		{"none", nil, 2},
		{"newborns", []cohort.Exclusion{cohort.ExcludeNewborns}, 1},
		{"deaths", []cohort.Exclusion{cohort.ExcludeDeaths}, 0},
		{"first", []cohort.Exclusion{cohort.FirstDiagnosisOnly}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, base := cohort.SelectGroups(records, "25000", tt.exclusions...)
			if len(base) != tt.base {
				t.Errorf("expected %v base rows, got %v", tt.base, len(base))
			}
		})
	}
}

func TestFirstDiagnosisOnly(t *testing.T) {
	patients := []cohort.Patient{{SubjectID: id(5), Gender: str("M")}, {SubjectID: id(4), Gender: str("F")}}
	admissions := []cohort.Admission{
		{SubjectID: id(5), HadmID: id(52), AdmitTime: at("2120-01-01 00:00:00")},
		{SubjectID: id(5), HadmID: id(51), AdmitTime: at("2110-01-01 00:00:00")},
		{SubjectID: id(4), HadmID: id(41), AdmitTime: at("2110-01-01 00:00:00")},
	}
	diagnoses := []cohort.Diagnosis{
		{SubjectID: id(5), HadmID: id(52), ICD9Code: str("430")},
		{SubjectID: id(5), HadmID: id(51), ICD9Code: str("430")},
		{SubjectID: id(4), HadmID: id(41), ICD9Code: str("430")},
	}
	records := cohort.Build(patients, admissions, diagnoses, nil)
	subject, _ := cohort.SelectGroups(records, "430", cohort.FirstDiagnosisOnly)
	if len(subject) != 2 {
		t.Fatalf("expected one row per patient, got %v", len(subject))
	}
	if subject[0].SubjectID != id(4) || subject[1].HadmID != id(51) {
		t.Errorf("expected earliest admissions ordered by patient, got %v and %v", subject[0].HadmID, subject[1].HadmID)
	}
}

func TestParseExclusions(t *testing.T) {
	got, err := cohort.ParseExclusions("exclude_deaths, first_diagnosis_only")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != cohort.ExcludeDeaths || got[1] != cohort.FirstDiagnosisOnly {
		t.Errorf("unexpected exclusions %v", got)
	}
	if _, err := cohort.ParseExclusion("exclude_everyone"); err == nil {
		t.Error("expected an error for an unknown exclusion")
	}
}
