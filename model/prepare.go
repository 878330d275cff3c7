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

// Package model prepares feature matrices and trains, cross-validates and
// stores outcome classifiers.
package model

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/valyala/fastrand"
	"gonum.org/v1/gonum/stat"

	"icucohort/features"
)

// ErrEmpty is returned when there is nothing to train on.
var ErrEmpty = errors.New("empty dataset")

// Dataset is a dense feature matrix with binary labels.
type Dataset struct {
	X     [][]float64
	Y     []float64
	Names []string
	Keys  []features.Key
}

// Len returns the number of rows.
func (ds *Dataset) Len() int {
	return len(ds.Y)
}

// Subset returns the rows at the given positions.
func (ds *Dataset) Subset(rows []int) *Dataset {
	sub := &Dataset{Names: ds.Names, X: make([][]float64, len(rows)), Y: make([]float64, len(rows))}
	for i, r := range rows {
		sub.X[i] = ds.X[r]
		sub.Y[i] = ds.Y[r]
	}
	if ds.Keys != nil {
		sub.Keys = make([]features.Key, len(rows))
		for i, r := range rows {
			sub.Keys[i] = ds.Keys[r]
		}
	}
	return sub
}

// Transformer turns frames into feature matrices with the imputation and
// scaling learned on a training frame.
type Transformer struct {
	Numeric     []string
	Categorical map[string][]string //categories per column, each one a 0/1 feature
	Medians     []float64
	Means       []float64
	SDs         []float64
}

// Names returns the feature names of the matrices the transformer produces.
func (tr *Transformer) Names() []string {
	names := append([]string(nil), tr.Numeric...)
	for _, c := range tr.categoricalColumns() {
		for _, v := range tr.Categorical[c] {
			names = append(names, c+"="+v)
		}
	}
	return names
}

func (tr *Transformer) categoricalColumns() []string {
	columns := make([]string, 0, len(tr.Categorical))
	for c := range tr.Categorical {
		columns = append(columns, c)
	}
	sort.Strings(columns)
	return columns
}

func dropSet(drop []string) map[string]bool {
	set := make(map[string]bool, len(drop))
	for _, d := range drop {
		set[d] = true
	}
	return set
}

// encode builds the raw matrix of a frame, with NaN for missing values.
func (tr *Transformer) encode(f *features.Frame) ([][]float64, error) {
	numeric := make([]int, len(tr.Numeric))
	for i, name := range tr.Numeric {
		numeric[i] = -1
		for j, c := range f.Numeric {
			if c == name {
				numeric[i] = j
			}
		}
		if numeric[i] < 0 {
			return nil, fmt.Errorf("frame has no numeric feature %q", name)
		}
	}
	columns := tr.categoricalColumns()
	categorical := make([]int, len(columns))
	for i, name := range columns {
		categorical[i] = -1
		for j, c := range f.Categorical {
			if c == name {
				categorical[i] = j
			}
		}
		if categorical[i] < 0 {
			return nil, fmt.Errorf("frame has no categorical feature %q", name)
		}
	}
	width := len(tr.Names())
	X := make([][]float64, f.Len())
	for r := range X {
		row := make([]float64, 0, width)
		for _, j := range numeric {
			row = append(row, f.Values[r][j])
		}
		for i, c := range columns {
			l := f.Labels[r][categorical[i]]
			for _, v := range tr.Categorical[c] {
				if l == v {
					row = append(row, 1)
				} else {
					row = append(row, 0)
				}
			}
		}
		X[r] = row
	}
	return X, nil
}

// median sorts xs and returns the middle value, or the mean of the two
// middle values.
func median(xs []float64) float64 {
	sort.Float64s(xs)
	n := len(xs)
	if n%2 == 1 {
		return xs[n/2]
	}
	return (xs[n/2-1] + xs[n/2]) / 2
}

// shuffle permutes the rows of a dataset in place.
func shuffle(ds *Dataset) {
	for i := ds.Len() - 1; i > 0; i-- {
		j := int(fastrand.Uint32n(uint32(i + 1)))
		ds.X[i], ds.X[j] = ds.X[j], ds.X[i]
		ds.Y[i], ds.Y[j] = ds.Y[j], ds.Y[i]
		ds.Keys[i], ds.Keys[j] = ds.Keys[j], ds.Keys[i]
	}
}

// Prepare turns a training frame into a shuffled, imputed and standardized
// dataset. Columns named in drop are not used as features.
func Prepare(f *features.Frame, drop ...string) (*Dataset, *Transformer, error) {
	if f.Len() == 0 {
		return nil, nil, ErrEmpty
	}
	dropped := dropSet(drop)
	tr := &Transformer{Categorical: make(map[string][]string)}
	for _, c := range f.Numeric {
		if !dropped[c] {
			tr.Numeric = append(tr.Numeric, c)
		}
	}
	for j, c := range f.Categorical {
		if dropped[c] {
			continue
		}
		seen := make(map[string]bool)
		for _, labels := range f.Labels {
			if l := labels[j]; l != "" && !seen[l] {
				seen[l] = true
				tr.Categorical[c] = append(tr.Categorical[c], l)
			}
		}
		sort.Strings(tr.Categorical[c])
	}
	X, err := tr.encode(f)
	if err != nil {
		return nil, nil, err
	}
	width := len(tr.Names())
	tr.Medians = make([]float64, width)
	tr.Means = make([]float64, width)
	tr.SDs = make([]float64, width)
	column := make([]float64, 0, len(X))
	for j := 0; j < width; j++ {
		column = column[:0]
		for _, row := range X {
			if !math.IsNaN(row[j]) {
				column = append(column, row[j])
			}
		}
		if len(column) > 0 {
			tr.Medians[j] = median(column)
		}
		for _, row := range X {
			if math.IsNaN(row[j]) {
				row[j] = tr.Medians[j]
			}
		}
		column = column[:0]
		for _, row := range X {
			column = append(column, row[j])
		}
		mean, variance := stat.PopMeanVariance(column, nil)
		tr.Means[j], tr.SDs[j] = mean, math.Sqrt(variance)
	}
	ds := &Dataset{Names: tr.Names(), Y: make([]float64, f.Len()), Keys: append([]features.Key(nil), f.Keys...)}
	for i, t := range f.Target {
		ds.Y[i] = float64(t)
	}
	ds.X = X
	tr.scale(ds.X)
	shuffle(ds)
	return ds, tr, nil
}

func (tr *Transformer) scale(X [][]float64) {
	for _, row := range X {
		for j := range row {
			if math.IsNaN(row[j]) {
				row[j] = tr.Medians[j]
			}
			row[j] -= tr.Means[j]
			if tr.SDs[j] > 0 {
				row[j] /= tr.SDs[j]
			}
		}
	}
}

// Transform applies the training imputation and scaling to another frame,
// such as a test set. Rows keep their order.
func (tr *Transformer) Transform(f *features.Frame) (*Dataset, error) {
	X, err := tr.encode(f)
	if err != nil {
		return nil, err
	}
	tr.scale(X)
	ds := &Dataset{X: X, Y: make([]float64, f.Len()), Names: tr.Names(), Keys: append([]features.Key(nil), f.Keys...)}
	for i, t := range f.Target {
		ds.Y[i] = float64(t)
	}
	return ds, nil
}
