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

package report_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"icucohort/features"
	"icucohort/model"
	"icucohort/report"
)

func frame() *features.Frame {
	f := &features.Frame{
		Categorical: []string{"gender"},
		Numeric:     []string{"age_on_admission"},
	}
	add := func(subject int64, target int, gender string, age float64) {
		f.Keys = append(f.Keys, features.Key{SubjectID: subject, HadmID: subject*10 + int64(len(f.Keys))})
		f.Target = append(f.Target, target)
		f.Source = append(f.Source, "carevue")
		f.Labels = append(f.Labels, []string{gender})
		f.Values = append(f.Values, []float64{age})
	}
	add(1, 1, "M", 60)
	add(1, 1, "M", 70)
	add(2, 1, "F", math.NaN())
	add(3, 1, "M", 80)
	add(4, 0, "F", 50)
	add(5, 0, "F", 55)
	add(6, 0, "M", 65)
	add(7, 0, "F", 70)
	add(8, 0, "", 40)
	return f
}

func TestProportions(t *testing.T) {
	shares, err := report.Proportions(frame(), "gender")
	if err != nil {
		t.Fatal(err)
	}
	want := []report.Share{
		{Group: report.Subject, Category: "F", Count: 1, Share: 1.0 / 3},
		{Group: report.Subject, Category: "M", Count: 2, Share: 2.0 / 3},
		{Group: report.Base, Category: "F", Count: 3, Share: 0.75},
		{Group: report.Base, Category: "M", Count: 1, Share: 0.25},
	}
	if len(shares) != len(want) {
		t.Fatalf("got %+v, want %+v", shares, want)
	}
	for i := range want {
		if shares[i].Group != want[i].Group || shares[i].Category != want[i].Category ||
			shares[i].Count != want[i].Count || math.Abs(shares[i].Share-want[i].Share) > 1e-12 {
			t.Errorf("share %v: got %+v, want %+v", i, shares[i], want[i])
		}
	}
	if _, err := report.Proportions(frame(), "unknown"); err == nil {
		t.Error("expected an error for an unknown feature")
	}
}

func TestSummaries(t *testing.T) {
	summaries, err := report.Summaries(frame(), "age_on_admission")
	if err != nil {
		t.Fatal(err)
	}
	s := summaries[0]
	if s.Group != report.Subject || s.N != 3 || s.Mean != 70 || math.Abs(s.SD-10) > 1e-12 || s.Median != 70 {
		t.Errorf("unexpected subject summary %+v", s)
	}
	if summaries[1].N != 5 {
		t.Errorf("unexpected base summary %+v", summaries[1])
	}
}

func TestExcessTests(t *testing.T) {
	tests, err := report.ExcessTests(frame(), "gender")
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]float64{"F": 0.984375, "M": 0.15625}
	if len(tests) != len(want) {
		t.Fatalf("unexpected tests %+v", tests)
	}
	for _, e := range tests {
		if e.SubjectTotal != 3 || math.Abs(e.PValue-want[e.Category]) > 1e-9 {
			t.Errorf("unexpected test %+v", e)
		}
	}
}

func TestCompare(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "charts")
	files, err := report.Compare(frame(), []string{"gender", "age_on_admission"}, dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "gender.png" {
		t.Fatalf("unexpected files %v", files)
	}
	for _, file := range files {
		if info, err := os.Stat(file); err != nil || info.Size() == 0 {
			t.Errorf("chart %v not written: %v", file, err)
		}
	}
	if _, err := report.Compare(frame(), []string{"missing"}, dir); err == nil {
		t.Error("expected an error for a missing feature")
	}
}

func TestFileName(t *testing.T) {
	if got := report.FileName("Arterial BP [Systolic]"); got != "Arterial_BP__Systolic_.png" {
		t.Errorf("got %v", got)
	}
}

func TestBestScoreByRun(t *testing.T) {
	var results []model.SearchResult
	for i, auc := range []float64{0.6, 0.55, 0.7} {
		results = append(results, model.SearchResult{Run: i, CV: &model.CVResult{Valid: auc}})
	}
	path := filepath.Join(t.TempDir(), "best.png")
	if err := report.BestScoreByRun(results, path); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Error(err)
	}
	if err := report.BestScoreByRun(nil, path); err == nil {
		t.Error("expected an error without results")
	}
}
