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

// Package report compares the subject and base groups of a dataset.
package report

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"icucohort/features"
	"icucohort/utils"
)

// Group names.
const (
	Subject = "subject"
	Base    = "base"
)

// Groups lists the group names in display order.
var Groups = []string{Subject, Base}

func groupOf(target int) string {
	if target == 1 {
		return Subject
	}
	return Base
}

// Share is the share of a group's patients falling in a category.
type Share struct {
	Group    string
	Category string
	Count    int //distinct patients
	Share    float64
}

func categorical(f *features.Frame, feature string) ([]string, error) {
	if column, ok := f.CategoricalColumn(feature); ok {
		return column, nil
	}
	if values, ok := f.NumericColumn(feature); ok {
		column := make([]string, len(values))
		for i, v := range values {
			if !math.IsNaN(v) {
				column[i] = fmt.Sprint(v)
			}
		}
		return column, nil
	}
	return nil, fmt.Errorf("no feature %q", feature)
}

// Proportions counts the distinct patients per group and category, as a
// share of the group's patient-category pairs. Missing values are left out.
func Proportions(f *features.Frame, feature string) ([]Share, error) {
	column, err := categorical(f, feature)
	if err != nil {
		return nil, err
	}
	type cell struct{ group, category string }
	patients := make(map[cell]map[int64]struct{})
	for i, k := range f.Keys {
		if column[i] == "" {
			continue
		}
		c := cell{groupOf(f.Target[i]), column[i]}
		if patients[c] == nil {
			patients[c] = make(map[int64]struct{})
		}
		patients[c][k.SubjectID] = struct{}{}
	}
	totals := make(map[string]int)
	for c, ids := range patients {
		totals[c.group] += len(ids)
	}
	var shares []Share
	for c, ids := range patients {
		shares = append(shares, Share{
			Group:    c.group,
			Category: c.category,
			Count:    len(ids),
			Share:    float64(len(ids)) / float64(totals[c.group]),
		})
	}
	sort.Slice(shares, func(i, j int) bool {
		if shares[i].Group != shares[j].Group {
			return shares[i].Group == Subject
		}
		return shares[i].Category < shares[j].Category
	})
	return shares, nil
}

// Summary describes a continuous feature in one group.
type Summary struct {
	Group  string
	N      int
	Mean   float64
	SD     float64
	Median float64
}

// Summaries describes a numeric feature per group, ignoring missing values.
func Summaries(f *features.Frame, feature string) ([]Summary, error) {
	values, ok := f.NumericColumn(feature)
	if !ok {
		return nil, fmt.Errorf("no numeric feature %q", feature)
	}
	byGroup := make(map[string][]float64)
	for i, v := range values {
		if !math.IsNaN(v) {
			g := groupOf(f.Target[i])
			byGroup[g] = append(byGroup[g], v)
		}
	}
	var summaries []Summary
	for _, g := range Groups {
		xs := byGroup[g]
		s := Summary{Group: g, N: len(xs), Mean: math.NaN(), SD: math.NaN(), Median: math.NaN()}
		if len(xs) > 0 {
			sort.Float64s(xs)
			s.Mean, s.SD = stat.MeanStdDev(xs, nil)
			s.Median = stat.Quantile(0.5, stat.Empirical, xs, nil)
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

// Excess tests whether a category is over-represented among subjects.
type Excess struct {
	Category     string
	SubjectCount int
	SubjectTotal int
	BaseShare    float64
	// PValue is the probability of at least SubjectCount subjects in the
	// category if subjects fell in it at the base group's rate.
	PValue float64
}

// ExcessTests runs the binomial excess test for every category of a feature.
func ExcessTests(f *features.Frame, feature string) ([]Excess, error) {
	shares, err := Proportions(f, feature)
	if err != nil {
		return nil, err
	}
	subjectTotal := 0
	subjectCount := make(map[string]int)
	baseShare := make(map[string]float64)
	seen := make(map[string]bool)
	var categories []string
	for _, s := range shares {
		if !seen[s.Category] {
			seen[s.Category] = true
			categories = append(categories, s.Category)
		}
		if s.Group == Subject {
			subjectCount[s.Category] = s.Count
			subjectTotal += s.Count
		} else {
			baseShare[s.Category] = s.Share
		}
	}
	sort.Strings(categories)
	tests := make([]Excess, 0, len(categories))
	for _, c := range categories {
		e := Excess{Category: c, SubjectCount: subjectCount[c], SubjectTotal: subjectTotal, BaseShare: baseShare[c]}
		if e.PValue, err = utils.BinomialTail(e.BaseShare, e.SubjectTotal, e.SubjectCount); err != nil {
			return nil, fmt.Errorf("category %v: %w", c, err)
		}
		tests = append(tests, e)
	}
	return tests, nil
}
