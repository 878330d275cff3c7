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

package model_test

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"icucohort/blob"
	"icucohort/features"
	"icucohort/model"
)

func TestKFold(t *testing.T) {
	folds, err := model.KFold(10, 3)
	if err != nil {
		t.Fatal(err)
	}
	want := [][]int{{0, 1, 2, 3}, {4, 5, 6}, {7, 8, 9}}
	for f, fold := range folds {
		if !reflect.DeepEqual(fold.Valid, want[f]) {
			t.Errorf("fold %v validates %v, want %v", f, fold.Valid, want[f])
		}
		if len(fold.Train)+len(fold.Valid) != 10 {
			t.Errorf("fold %v does not cover all rows", f)
		}
	}
	if _, err := model.KFold(2, 3); err == nil {
		t.Error("expected an error for more folds than rows")
	}
}

func TestAUC(t *testing.T) {
	tests := []struct {
		scores, labels []float64
		want           float64
	}{
		{[]float64{0.1, 0.4, 0.35, 0.8}, []float64{0, 0, 1, 1}, 0.75},
		{[]float64{0.1, 0.2, 0.8, 0.9}, []float64{0, 0, 1, 1}, 1},
		{[]float64{0.9, 0.8, 0.2, 0.1}, []float64{0, 0, 1, 1}, 0},
		{[]float64{0.5, 0.5, 0.5, 0.5}, []float64{0, 1, 0, 1}, 0.5},
	}
	for _, tt := range tests {
		got, err := model.AUC(tt.scores, tt.labels)
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("AUC(%v, %v) = %v, want %v", tt.scores, tt.labels, got, tt.want)
		}
	}
	if _, err := model.AUC([]float64{1, 2}, []float64{1, 1}); !errors.Is(err, model.ErrSingleClass) {
		t.Errorf("expected ErrSingleClass, got %v", err)
	}
}

func frame() *features.Frame {
	nan := math.NaN()
	return &features.Frame{
		Keys:        []features.Key{{SubjectID: 1, HadmID: 10}, {SubjectID: 2, HadmID: 20}, {SubjectID: 3, HadmID: 30}},
		Target:      []int{1, 0, 1},
		Source:      []string{"", "", ""},
		Categorical: []string{"gender", "expire_flag"},
		Labels:      [][]string{{"M", "0"}, {"F", "1"}, {"", "0"}},
		Numeric:     []string{"Heart Rate"},
		Values:      [][]float64{{1}, {nan}, {3}},
	}
}

func TestPrepare(t *testing.T) {
	ds, tr, err := model.Prepare(frame(), "expire_flag")
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"Heart Rate", "gender=F", "gender=M"}; !reflect.DeepEqual(ds.Names, want) {
		t.Fatalf("names %v, want %v", ds.Names, want)
	}
	if tr.Medians[0] != 2 {
		t.Errorf("median %v, want 2", tr.Medians[0])
	}
	sd := math.Sqrt(2.0 / 3)
	for i, k := range ds.Keys {
		row := ds.X[i]
		switch k.SubjectID {
		case 1:
			if math.Abs(row[0]+1/sd) > 1e-9 || ds.Y[i] != 1 {
				t.Errorf("row of subject 1: %v, label %v", row, ds.Y[i])
			}
		case 2:
			if math.Abs(row[0]) > 1e-9 || ds.Y[i] != 0 {
				t.Errorf("imputed row of subject 2: %v, label %v", row, ds.Y[i])
			}
		case 3:
			// missing gender encodes as zeros before scaling
			if row[1] >= 0 || row[2] >= 0 {
				t.Errorf("row of subject 3: %v", row)
			}
		}
	}
	test, err := tr.Transform(frame())
	if err != nil {
		t.Fatal(err)
	}
	if test.Keys[1].SubjectID != 2 || math.Abs(test.X[1][0]) > 1e-9 {
		t.Errorf("transform should keep order and impute with the training median: %v", test.X)
	}
	if _, _, err := model.Prepare(&features.Frame{}); !errors.Is(err, model.ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}
}

// separable has one informative and one noise feature.
func separable(n int) *model.Dataset {
	ds := &model.Dataset{Names: []string{"signal", "noise"}}
	for i := 0; i < n; i++ {
		label := float64(i % 2)
		ds.X = append(ds.X, []float64{2*label - 1 + float64(i%5)*0.1, float64(i%7) - 3})
		ds.Y = append(ds.Y, label)
	}
	return ds
}

func TestCrossValidate(t *testing.T) {
	ds := separable(100)
	cv, err := model.CrossValidate(func() model.Classifier { return model.NewLogistic(model.DefaultParams) }, ds, 5, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(cv.Folds) != 5 {
		t.Fatalf("expected 5 folds, got %v", len(cv.Folds))
	}
	if cv.Valid < 0.99 || cv.Train < 0.99 {
		t.Errorf("separable data scored %v train, %v valid", cv.Train, cv.Valid)
	}
}

func TestRandomSearchAndFinalRun(t *testing.T) {
	ds := separable(60)
	results, err := model.RandomSearch(ds, model.DefaultSpace, 3, 3, 0, 50)
	if err != nil {
		t.Fatal(err)
	}
	again, _ := model.RandomSearch(ds, model.DefaultSpace, 3, 3, 0, 50)
	for i, r := range results {
		if r.Run != i {
			t.Errorf("result %v has run %v", i, r.Run)
		}
		if r.Params != again[i].Params {
			t.Errorf("seeded search drew %+v then %+v", r.Params, again[i].Params)
		}
	}
	best, ok := model.Best(results)
	if !ok {
		t.Fatal("no best result")
	}
	store, _ := blob.NewDirStore(t.TempDir())
	key := model.ModelKey("mimic", "logistic")
	if _, err := model.FinalRun(context.Background(), store, key, ds, nil, best); err != nil {
		t.Fatal(err)
	}
	var stored model.Stored
	if err := blob.GetModel(context.Background(), store, key, &stored); err != nil {
		t.Fatal(err)
	}
	if len(stored.Model.Weights) != 2 || stored.Model.Params != best.Params {
		t.Errorf("unexpected stored model %+v", stored.Model)
	}
}
