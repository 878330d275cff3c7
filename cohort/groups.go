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
	"fmt"
	"sort"
	"strings"
)

// Exclusion is an optional restriction of the subject and base groups.
type Exclusion int

// Exclusions are applied in this order, whatever order they are given in.
const (
	FirstDiagnosisOnly Exclusion = iota
	ExcludeNewborns
	ExcludeDeaths
)

var exclusionNames = []string{"first_diagnosis_only", "exclude_newborns", "exclude_deaths"}

func (e Exclusion) String() string {
	if e < 0 || int(e) >= len(exclusionNames) {
		return fmt.Sprintf("Exclusion(%d)", int(e))
	}
	return exclusionNames[e]
}

// ParseExclusion parses the snake_case name of an exclusion.
func ParseExclusion(s string) (Exclusion, error) {
	for i, name := range exclusionNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return Exclusion(i), nil
		}
	}
	return 0, fmt.Errorf("unknown exclusion %q, expected one of %v", s, strings.Join(exclusionNames, ", "))
}

// ParseExclusions parses a comma-separated list of exclusion names.
func ParseExclusions(s string) ([]Exclusion, error) {
	var result []Exclusion
	for _, name := range strings.Split(s, ",") {
		if strings.TrimSpace(name) == "" {
			continue
		}
		e, err := ParseExclusion(name)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, nil
}

// RowFilter selects rows of a group.
type RowFilter func(*Row) bool

// ApplyRowFilters returns the rows accepted by every filter.
func ApplyRowFilters(filters []RowFilter, rows []*Row) []*Row {
	var result []*Row
	for _, r := range rows {
		keep := true
		for _, filter := range filters {
			if !filter(r) {
				keep = false
				break
			}
		}
		if keep {
			result = append(result, r)
		}
	}
	return result
}

// NotNewbornFilter drops newborn admissions. Rows without admission type are kept.
func NotNewbornFilter() RowFilter {
	return func(r *Row) bool {
		return !(r.AdmissionType.Valid && r.AdmissionType.String == "NEWBORN")
	}
}

// SurvivedFilter keeps admissions known to end without in-hospital death.
func SurvivedFilter() RowFilter {
	return func(r *Row) bool {
		return r.HospitalExpireFlag.Valid && r.HospitalExpireFlag.Int == 0
	}
}

// FirstAdmissionFilter keeps first admissions.
func FirstAdmissionFilter() RowFilter {
	return func(r *Row) bool {
		return r.AdmissionNumber.Valid && r.AdmissionNumber.Int == 1
	}
}

// earliestPerPatient keeps, per patient, the row with the lowest admission
// number. Ties keep the first row in input order. The result is ordered by
// subject_id.
func earliestPerPatient(rows []*Row) []*Row {
	sorted := append([]*Row(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.SubjectID != b.SubjectID {
			return a.SubjectID.Int < b.SubjectID.Int
		}
		switch {
		case !a.AdmissionNumber.Valid:
			return false
		case !b.AdmissionNumber.Valid:
			return true
		}
		return a.AdmissionNumber.Int < b.AdmissionNumber.Int
	})
	var result []*Row
	for i, r := range sorted {
		if i == 0 || sorted[i-1].SubjectID != r.SubjectID {
			result = append(result, r)
		}
	}
	return result
}

func distinctRows(rows []*Row) []*Row {
	seen := make(map[Row]struct{}, len(rows))
	var result []*Row
	for _, r := range rows {
		if _, ok := seen[*r]; ok {
			continue
		}
		seen[*r] = struct{}{}
		result = append(result, r)
	}
	return result
}

// SelectGroups splits the cohort into the admissions diagnosed with code
// (the subject group) and the admissions of patients never diagnosed with
// it (the base group). Both groups are deduplicated at admission level; a
// patient is never in both. Exclusions restrict both groups. Empty groups
// are valid results.
func SelectGroups(records []*Record, code string, exclusions ...Exclusion) (subject, base []*Row) {
	subjectIDs := make(map[ID]struct{})
	for _, r := range records {
		if r.DiagnosisICD9.Valid && r.DiagnosisICD9.String == code {
			subjectIDs[r.SubjectID] = struct{}{}
			row := r.Row
			subject = append(subject, &row)
		}
	}
	for _, r := range records {
		if _, ok := subjectIDs[r.SubjectID]; !ok {
			row := r.Row
			base = append(base, &row)
		}
	}
	subject, base = distinctRows(subject), distinctRows(base)

	active := make(map[Exclusion]bool)
	for _, e := range exclusions {
		active[e] = true
	}
	if active[FirstDiagnosisOnly] {
		subject = earliestPerPatient(subject)
		base = ApplyRowFilters([]RowFilter{FirstAdmissionFilter()}, base)
	}
	var filters []RowFilter
	if active[ExcludeNewborns] {
		filters = append(filters, NotNewbornFilter())
	}
	if active[ExcludeDeaths] {
		filters = append(filters, SurvivedFilter())
	}
	if len(filters) > 0 {
		subject = ApplyRowFilters(filters, subject)
		base = ApplyRowFilters(filters, base)
	}
	return subject, base
}

// SelectOptions configures SelectTestGroups.
type SelectOptions struct {
	Exclusions []Exclusion
	Match      bool  //sample the base group to the subject demographics
	Seed       int64 //seed of the matching sample
}

// Selection is the outcome of SelectTestGroups.
type Selection struct {
	Subject []*Row
	Base    []*Row
	Match   *MatchResult //nil when matching is off
	Control []*Row       //the sampled base group, or the whole base group
	Rows    []*ModelRow
}

// SelectTestGroups selects the groups for a diagnosis, optionally matches
// the base group to the subject group and labels the result.
func SelectTestGroups(records []*Record, code string, opts SelectOptions) *Selection {
	s := &Selection{}
	s.Subject, s.Base = SelectGroups(records, code, opts.Exclusions...)
	s.Control = s.Base
	if opts.Match {
		s.Match = MatchControl(s.Subject, s.Base, opts.Seed)
		s.Control = s.Match.Rows
	}
	s.Rows = Label(s.Subject, s.Control)
	return s
}
