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

package model

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/exascience/pargo/parallel"
	"gonum.org/v1/gonum/stat"

	"icucohort/blob"
)

// Fold holds the row positions of one cross-validation split.
type Fold struct {
	Train []int
	Valid []int
}

// KFold splits n rows into k contiguous validation folds, in order. The
// first n%k folds are one row larger.
func KFold(n, k int) ([]Fold, error) {
	if k < 2 || k > n {
		return nil, fmt.Errorf("cannot split %v rows into %v folds", n, k)
	}
	folds := make([]Fold, k)
	start := 0
	for f := range folds {
		size := n / k
		if f < n%k {
			size++
		}
		for i := 0; i < n; i++ {
			if i >= start && i < start+size {
				folds[f].Valid = append(folds[f].Valid, i)
			} else {
				folds[f].Train = append(folds[f].Train, i)
			}
		}
		start += size
	}
	return folds, nil
}

// FoldScore is the training and validation AUC of one fold.
type FoldScore struct {
	Train float64
	Valid float64
	// Single is set when the validation fold holds one class only; Valid
	// is then 0.
	Single bool
}

// CVResult summarizes a cross-validation.
type CVResult struct {
	Folds []FoldScore
	// Train is the mean training AUC of the folds, Valid the AUC of all
	// out-of-fold predictions together.
	Train float64
	Valid float64
}

// CrossValidate trains a fresh model per fold, running the folds on up to
// threads goroutines (0 for GOMAXPROCS).
func CrossValidate(newModel func() Classifier, ds *Dataset, k, threads int) (*CVResult, error) {
	folds, err := KFold(ds.Len(), k)
	if err != nil {
		return nil, err
	}
	result := &CVResult{Folds: make([]FoldScore, k)}
	outOfFold := make([]float64, ds.Len())
	errs := make([]error, k)
	parallel.Range(0, k, threads, func(low, high int) {
		for f := low; f < high; f++ {
			train, valid := ds.Subset(folds[f].Train), ds.Subset(folds[f].Valid)
			m := newModel()
			if err := m.Fit(train.X, train.Y); err != nil {
				errs[f] = fmt.Errorf("fold %v: %w", f, err)
				continue
			}
			trainAUC, err := AUC(m.PredictProba(train.X), train.Y)
			if err != nil {
				errs[f] = fmt.Errorf("fold %v training: %w", f, err)
				continue
			}
			predictions := m.PredictProba(valid.X)
			for i, r := range folds[f].Valid {
				outOfFold[r] = predictions[i]
			}
			validAUC, err := AUC(predictions, valid.Y)
			result.Folds[f] = FoldScore{Train: trainAUC, Valid: validAUC, Single: err != nil}
		}
	})
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	train := make([]float64, k)
	for f, s := range result.Folds {
		train[f] = s.Train
	}
	result.Train = stat.Mean(train, nil)
	if result.Valid, err = AUC(outOfFold, ds.Y); err != nil {
		return nil, err
	}
	return result, nil
}

// Space is the range of hyperparameters sampled by RandomSearch.
type Space struct {
	LearningRate [2]float64 //sampled log-uniformly
	L2           [2]float64 //sampled log-uniformly
	Epochs       [2]int     //sampled uniformly, bounds included
}

// DefaultSpace covers the usual ranges for standardized features.
var DefaultSpace = Space{LearningRate: [2]float64{0.005, 0.5}, L2: [2]float64{1e-4, 1}, Epochs: [2]int{50, 400}}

func logUniform(rng *rand.Rand, bounds [2]float64) float64 {
	lo, hi := math.Log(bounds[0]), math.Log(bounds[1])
	return math.Exp(lo + rng.Float64()*(hi-lo))
}

// Sample draws one parameter set.
func (s Space) Sample(rng *rand.Rand) Params {
	return Params{
		LearningRate: logUniform(rng, s.LearningRate),
		L2:           logUniform(rng, s.L2),
		Epochs:       s.Epochs[0] + rng.Intn(s.Epochs[1]-s.Epochs[0]+1),
	}
}

// SearchResult is one iteration of a random search.
type SearchResult struct {
	Run    int
	Params Params
	CV     *CVResult
}

// RandomSearch cross-validates iterations parameter sets drawn from space
// with a generator seeded with seed. Results are in run order.
func RandomSearch(ds *Dataset, space Space, iterations, k, threads int, seed int64) ([]SearchResult, error) {
	rng := rand.New(rand.NewSource(seed))
	results := make([]SearchResult, 0, iterations)
	for run := 0; run < iterations; run++ {
		p := space.Sample(rng)
		cv, err := CrossValidate(func() Classifier { return NewLogistic(p) }, ds, k, threads)
		if err != nil {
			return nil, fmt.Errorf("run %v: %w", run, err)
		}
		results = append(results, SearchResult{Run: run, Params: p, CV: cv})
	}
	return results, nil
}

// Best returns the result with the highest validation AUC.
func Best(results []SearchResult) (SearchResult, bool) {
	best, found := SearchResult{}, false
	for _, r := range results {
		if !found || r.CV.Valid > best.CV.Valid {
			best, found = r, true
		}
	}
	return best, found
}

// Stored is the persisted form of a trained model.
type Stored struct {
	Name        string
	Features    []string
	Model       *Logistic
	Transformer *Transformer
	CV          *CVResult
}

// ModelKey is the key models are stored under.
func ModelKey(prefix, name string) string {
	return blob.Join(prefix, "models", name)
}

// FinalRun fits a model with the best parameters on all rows and stores it.
func FinalRun(ctx context.Context, store blob.Store, key string, ds *Dataset, tr *Transformer, best SearchResult) (*Stored, error) {
	m := NewLogistic(best.Params)
	if err := m.Fit(ds.X, ds.Y); err != nil {
		return nil, err
	}
	stored := &Stored{Name: key, Features: ds.Names, Model: m, Transformer: tr, CV: best.CV}
	if err := blob.PutModel(ctx, store, key, stored); err != nil {
		return nil, fmt.Errorf("storing model %v: %w", key, err)
	}
	return stored, nil
}
