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

package features_test

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"icucohort/cohort"
	"icucohort/features"
)

var t0 = time.Date(2101, 3, 4, 10, 0, 0, 0, time.UTC)

func events() []features.Event {
	return []features.Event{
		{SubjectID: 1, HadmID: 10, ItemID: 211, ChartTime: t0.Add(time.Hour), Value: 80, Label: "Heart Rate", Source: "carevue"},
		{SubjectID: 1, HadmID: 10, ItemID: 211, ChartTime: t0, Value: 90, Label: "Heart Rate", Source: "carevue"},
		{SubjectID: 1, HadmID: 10, ItemID: 211, ChartTime: t0, Value: 100, Label: "Heart Rate", Source: "carevue"},
		{SubjectID: 1, HadmID: 10, ItemID: 211, ChartTime: t0.Add(-time.Hour), Value: math.NaN(), Label: "Heart Rate", Source: "carevue"},
		{SubjectID: 1, HadmID: 10, ItemID: 50912, ChartTime: t0, Value: 1.1, Source: "lab"},
		{SubjectID: 2, HadmID: 20, ItemID: 211, ChartTime: t0, Value: 70, Label: "Heart Rate", Source: "metavision"},
	}
}

func TestSelectReadings(t *testing.T) {
	first := features.SelectReadings(events(), features.First)
	if len(first) != 3 {
		t.Fatalf("expected 3 readings, got %v", len(first))
	}
	if first[0].ItemID != 211 || first[0].Value != 95 || !first[0].ChartTime.Equal(t0) {
		t.Errorf("expected the mean of the earliest values, got %+v", first[0])
	}
	last := features.SelectReadings(events(), features.Last)
	if last[0].Value != 80 {
		t.Errorf("expected the latest value, got %+v", last[0])
	}
}

func TestPivotAndMerge(t *testing.T) {
	m := features.Pivot(features.SelectReadings(events(), features.First))
	if want := []string{"Heart Rate", "item_50912"}; !reflect.DeepEqual(m.Columns, want) {
		t.Errorf("columns %v, want %v", m.Columns, want)
	}
	if len(m.Keys) != 2 || m.Source[0] != "carevue" || !math.IsNaN(m.Values[1][1]) {
		t.Errorf("unexpected matrix %+v", m)
	}
	rows := []*cohort.ModelRow{
		{SubjectID: 1, HadmID: 10, Gender: cohort.StringOf("M"), AgeOnAdmission: cohort.IDOf(64), Target: 1},
		{SubjectID: 3, HadmID: 30, Gender: cohort.StringOf("F"), Target: 0},
	}
	f := features.Merge(rows, m)
	if f.Len() != 2 {
		t.Fatalf("expected 2 rows, got %v", f.Len())
	}
	hr, ok := f.NumericColumn("Heart Rate")
	if !ok || hr[0] != 95 || !math.IsNaN(hr[1]) {
		t.Errorf("unexpected heart rate column %v", hr)
	}
	age, _ := f.NumericColumn("age_on_admission")
	if age[0] != 64 || !math.IsNaN(age[1]) {
		t.Errorf("unexpected age column %v", age)
	}
	gender, _ := f.CategoricalColumn("gender")
	if !reflect.DeepEqual(gender, []string{"M", "F"}) {
		t.Errorf("unexpected gender column %v", gender)
	}
}

func TestAddProfile(t *testing.T) {
	f := features.Merge([]*cohort.ModelRow{{SubjectID: 1, HadmID: 10, Target: 1}}, features.Pivot(nil))
	records := []*cohort.Record{
		{Row: cohort.Row{SubjectID: cohort.IDOf(1), HadmID: cohort.IDOf(10), Ethnicity: cohort.StringOf("WHITE - RUSSIAN")}},
		{Row: cohort.Row{SubjectID: cohort.IDOf(1), HadmID: cohort.IDOf(10), Ethnicity: cohort.StringOf("WHITE - RUSSIAN")},
			DiagnosisICD9: cohort.StringOf("4019")},
	}
	if err := features.AddProfile(f, records, "ethnicity"); err != nil {
		t.Fatal(err)
	}
	if got, _ := f.CategoricalColumn("ethnicity"); len(got) != 1 || got[0] != "WHITE - RUSSIAN" {
		t.Errorf("unexpected ethnicity column %v", got)
	}
	if err := features.AddProfile(f, records, "gender"); !errors.Is(err, features.ErrDuplicateColumn) {
		t.Errorf("expected ErrDuplicateColumn, got %v", err)
	}
	if err := features.AddProfile(f, records, "shoe_size"); !errors.Is(err, cohort.ErrSchemaMismatch) {
		t.Errorf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestPivotColumnCollisions(t *testing.T) {
	readings := []features.Reading{
		{SubjectID: 1, HadmID: 10, ItemID: 1, Value: 1, Label: "HR"},
		{SubjectID: 1, HadmID: 10, ItemID: 2, Value: 2, Label: "HR"},
		{SubjectID: 1, HadmID: 10, ItemID: 3, Value: 3, Label: "HR_1"},
		{SubjectID: 1, HadmID: 10, ItemID: 4, Value: 4, Label: "item_5"},
		{SubjectID: 1, HadmID: 10, ItemID: 5, Value: 5},
	}
	m := features.Pivot(readings)
	want := []string{"HR_2", "item_1", "item_3", "item_4", "item_5"}
	if !reflect.DeepEqual(m.Columns, want) {
		t.Fatalf("columns %v, want %v", m.Columns, want)
	}
	if !reflect.DeepEqual(m.Values[0], []float64{2, 1, 3, 4, 5}) {
		t.Errorf("values %v, a column was overwritten", m.Values[0])
	}
}

func TestPopulatedColumns(t *testing.T) {
	nan := math.NaN()
	f := &features.Frame{
		Keys:    []features.Key{{1, 1}, {2, 2}, {3, 3}, {4, 4}},
		Target:  []int{1, 1, 0, 0},
		Source:  []string{"carevue", "carevue", "carevue", "carevue"},
		Numeric: []string{"always", "subjects only", "half"},
		Values: [][]float64{
			{1, 1, 1},
			{1, 1, nan},
			{1, nan, 1},
			{1, nan, nan},
		},
		Labels: [][]string{{}, {}, {}, {}},
	}
	if got := features.PopulatedColumns(f, 0.25); !reflect.DeepEqual(got, []string{"always", "half"}) {
		t.Errorf("PopulatedColumns(0.25) = %v", got)
	}
	// Exactly half missing is not fewer than half missing.
	if got := features.PopulatedColumns(f, 0.5); !reflect.DeepEqual(got, []string{"always"}) {
		t.Errorf("PopulatedColumns(0.5) = %v", got)
	}
	if s := f.SelectNumeric([]string{"half"}); len(s.Numeric) != 1 || s.Values[0][0] != 1 || !math.IsNaN(s.Values[1][0]) {
		t.Errorf("unexpected selection %+v", s)
	}
}

func TestPopulatedColumnsBySource(t *testing.T) {
	nan := math.NaN()
	f := &features.Frame{
		Keys:    []features.Key{{1, 1}, {2, 2}, {3, 3}, {4, 4}, {5, 5}, {6, 6}},
		Target:  []int{1, 1, 0, 0, 0, 0},
		Source:  []string{"carevue", "metavision", "carevue", "carevue", "metavision", ""},
		Numeric: []string{"carevue only", "metavision only", "nowhere"},
		Values: [][]float64{
			{1, nan, nan},
			{nan, 1, nan},
			{1, nan, nan},
			{1, nan, nan},
			{nan, 1, nan},
			{nan, nan, 1},
		},
		Labels: [][]string{{}, {}, {}, {}, {}, {}},
	}
	// Any dbsource group can carry a feature for its target, and rows
	// without a dbsource do not count.
	if got := features.PopulatedColumns(f, 0.5); !reflect.DeepEqual(got, []string{"carevue only", "metavision only"}) {
		t.Errorf("PopulatedColumns(0.5) = %v", got)
	}
}

func TestFrameTableRoundTrip(t *testing.T) {
	m := features.Pivot(features.SelectReadings(events(), features.Last))
	rows := []*cohort.ModelRow{
		{SubjectID: 1, HadmID: 10, Gender: cohort.StringOf("M"), Target: 1},
		{SubjectID: 2, HadmID: 20, Gender: cohort.StringOf("F"), Target: 0},
	}
	f := features.Merge(rows, m)
	read, err := features.FromTable(f.Table())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(read.Keys, f.Keys) || !reflect.DeepEqual(read.Source, f.Source) || !reflect.DeepEqual(read.Numeric, f.Numeric) {
		t.Errorf("frame changed:\n%+v\n%+v", f, read)
	}
	hr, _ := read.NumericColumn("Heart Rate")
	if hr[0] != 80 || hr[1] != 70 {
		t.Errorf("unexpected heart rate %v", hr)
	}
}
