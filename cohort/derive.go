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
	"strings"

	"icucohort/utils"
)

// MaxAge is the age assigned to patients whose date of birth was shifted.
const MaxAge = 89

// AgeBuckets are the age groups in ascending order. Intervals are
// right-open; the last bucket holds only MaxAge.
var AgeBuckets = []string{"<45", "45-60", "60-75", "75-89", "89"}

var bucketBounds = []int64{45, 60, 75, MaxAge}

func bucketRank(bucket string) int {
	for i, b := range AgeBuckets {
		if b == bucket {
			return i
		}
	}
	return len(AgeBuckets)
}

const secondsPerDay = 24 * 60 * 60

// AgeOnAdmission computes the age in whole years at admission from the
// number of elapsed days. Negative ages and ages above MaxAge only arise
// from the date of birth shift applied for de-identification; they are
// reported as MaxAge with shifted set.
func AgeOnAdmission(dob, admit NullTime) (age ID, shifted ID) {
	if !dob.Valid || !admit.Valid {
		return ID{}, ID{}
	}
	// Unix seconds, since a time.Duration cannot hold the shifted spans.
	days := utils.FloorDiv(admit.Time.Unix()-dob.Time.Unix(), secondsPerDay)
	years := utils.FloorDiv(days, 365)
	if years < 0 || years > MaxAge {
		return IDOf(MaxAge), IDOf(1)
	}
	return IDOf(years), IDOf(0)
}

// AgeBucket returns the bucket of an age.
func AgeBucket(age ID) NullString {
	if !age.Valid {
		return NullString{}
	}
	for i, bound := range bucketBounds {
		if age.Int < bound {
			return StringOf(AgeBuckets[i])
		}
	}
	return StringOf(AgeBuckets[len(AgeBuckets)-1])
}

// EthnicityGroups are matched as substrings in this order; the first hit wins.
var EthnicityGroups = []string{
	"WHITE",
	"BLACK",
	"HISPANIC",
	"ASIAN",
	"UNABLE TO OBTAIN",
	"PATIENT DECLINED TO ANSWER",
	"UNKNOWN/NOT SPECIFIED",
}

// OtherEthnicity is the group of every ethnicity that matches no other group.
const OtherEthnicity = "OTHER"

// SimplifyEthnicity maps a detailed ethnicity to its group.
func SimplifyEthnicity(ethnicity NullString) NullString {
	if ethnicity.Valid {
		for _, group := range EthnicityGroups {
			if strings.Contains(ethnicity.String, group) {
				return StringOf(group)
			}
		}
	}
	return StringOf(OtherEthnicity)
}
