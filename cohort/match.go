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
	"math"
	"math/rand"
	"sort"

	"icucohort/utils"
)

// DefaultSeed is the seed used for matching when none is configured.
const DefaultSeed = 8

// StratumPlan is the matching plan of one stratum.
type StratumPlan struct {
	Stratum      Stratum
	SubjectCount int     //distinct subject admissions
	BaseCount    int     //distinct base admissions
	SubjectProp  float64 //share of all subject admissions
	BaseProp     float64 //share of all base admissions
	Ratio        float64 //BaseProp / SubjectProp, +Inf when SubjectProp is 0
	Binding      bool    //the stratum that limits the total sample size
	Target       int     //admissions to sample
	Clamped      bool    //Target was cut down to the rows available
}

// MatchResult is the outcome of MatchControl.
type MatchResult struct {
	Plan  []StratumPlan //in stratum order
	Total int           //the base group size implied by the binding stratum
	Rows  []*Row        //the sampled base rows
}

type strata struct {
	rows  map[Stratum][]*Row
	hadms map[Stratum]map[ID]struct{}
	total int
}

func stratify(rows []*Row) *strata {
	s := &strata{rows: make(map[Stratum][]*Row), hadms: make(map[Stratum]map[ID]struct{})}
	for _, r := range rows {
		st, ok := r.Stratum()
		if !ok || !r.HadmID.Valid {
			continue
		}
		s.rows[st] = append(s.rows[st], r)
		hadms := s.hadms[st]
		if hadms == nil {
			hadms = make(map[ID]struct{})
			s.hadms[st] = hadms
		}
		hadms[r.HadmID] = struct{}{}
	}
	for _, hadms := range s.hadms {
		s.total += len(hadms)
	}
	return s
}

func (s *strata) count(st Stratum) int {
	return len(s.hadms[st])
}

// MatchControl samples the base group so that its (age bucket, gender)
// distribution follows the subject group, as large as the scarcest base
// stratum allows. Rows without bucket, gender or admission id are never
// sampled. Each stratum is sampled uniformly without replacement from its
// own generator seeded with seed, so a seed reproduces the sample.
func MatchControl(subject, base []*Row, seed int64) *MatchResult {
	subj, bs := stratify(subject), stratify(base)
	result := &MatchResult{}
	if subj.total == 0 || bs.total == 0 {
		return result
	}

	union := make(map[Stratum]struct{})
	for st := range subj.hadms {
		union[st] = struct{}{}
	}
	for st := range bs.hadms {
		union[st] = struct{}{}
	}
	order := make([]Stratum, 0, len(union))
	for st := range union {
		order = append(order, st)
	}
	sort.Slice(order, func(i, j int) bool { return order[i].Less(order[j]) })

	// Ratios are compared and floored on integer counts, so the sizes do not
	// suffer from rounding in the proportions.
	binding := -1
	for i, st := range order {
		sn, bn := subj.count(st), bs.count(st)
		plan := StratumPlan{
			Stratum:      st,
			SubjectCount: sn,
			BaseCount:    bn,
			SubjectProp:  float64(sn) / float64(subj.total),
			BaseProp:     float64(bn) / float64(bs.total),
		}
		plan.Ratio = math.Inf(1)
		if sn > 0 {
			plan.Ratio = plan.BaseProp / plan.SubjectProp
			if binding < 0 || int64(bn)*int64(result.Plan[binding].SubjectCount) < int64(result.Plan[binding].BaseCount)*int64(sn) {
				binding = i
			}
		}
		result.Plan = append(result.Plan, plan)
	}
	b := &result.Plan[binding]
	b.Binding = true
	total := int64(b.BaseCount) * int64(subj.total) / int64(b.SubjectCount)
	result.Total = int(total)

	for i := range result.Plan {
		plan := &result.Plan[i]
		plan.Target = int(total * int64(plan.SubjectCount) / int64(subj.total))
		available := len(bs.rows[plan.Stratum])
		if plan.Target > available {
			plan.Target = available
			plan.Clamped = true
		}
		result.Rows = append(result.Rows, sample(bs.rows[plan.Stratum], plan.Target, seed)...)
	}
	return result
}

// sample draws n of rows uniformly without replacement, in draw order.
func sample(rows []*Row, n int, seed int64) []*Row {
	n = utils.MinInt(n, len(rows))
	if n <= 0 {
		return nil
	}
	rng := rand.New(rand.NewSource(seed))
	pool := append([]*Row(nil), rows...)
	for i := 0; i < n; i++ {
		j := i + rng.Intn(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:n]
}

// Label combines the subject and control groups into the modeling dataset,
// with target 1 for subjects and 0 for controls. Rows without subject or
// admission id cannot be labeled and are left out, as are duplicates.
func Label(subject, control []*Row) []*ModelRow {
	result := make([]*ModelRow, 0, len(subject)+len(control))
	seen := make(map[ModelRow]struct{})
	add := func(rows []*Row, target int) {
		for _, r := range rows {
			if !r.SubjectID.Valid || !r.HadmID.Valid {
				continue
			}
			m := ModelRow{
				SubjectID:          r.SubjectID.Int,
				HadmID:             r.HadmID.Int,
				Gender:             r.Gender,
				ExpireFlag:         r.ExpireFlag,
				TotalAdmissions:    r.TotalAdmissions,
				AdmissionNumber:    r.AdmissionNumber,
				AgeOnAdmission:     r.AgeOnAdmission,
				AgeBucket:          r.AgeBucket,
				AdmissionType:      r.AdmissionType,
				EthnicitySimple:    r.EthnicitySimple,
				HospitalExpireFlag: r.HospitalExpireFlag,
				Target:             target,
			}
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			result = append(result, &m)
		}
	}
	add(subject, 1)
	add(control, 0)
	return result
}
