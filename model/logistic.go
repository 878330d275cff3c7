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
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Classifier is a binary classifier producing probabilities of the positive class.
type Classifier interface {
	Fit(X [][]float64, y []float64) error
	PredictProba(X [][]float64) []float64
}

// Params are the hyperparameters of a Logistic model.
type Params struct {
	LearningRate float64
	L2           float64
	Epochs       int
}

// DefaultParams is a reasonable starting point for standardized features.
var DefaultParams = Params{LearningRate: 0.1, L2: 0.01, Epochs: 200}

// Logistic is an L2-regularized logistic regression trained with full
// batch gradient descent.
type Logistic struct {
	Params  Params
	Weights []float64
	Bias    float64
}

// NewLogistic returns an untrained model.
func NewLogistic(p Params) *Logistic {
	return &Logistic{Params: p}
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// Fit trains the model on X and y, with y in {0, 1}.
func (m *Logistic) Fit(X [][]float64, y []float64) error {
	if len(X) == 0 {
		return ErrEmpty
	}
	if len(X) != len(y) {
		return fmt.Errorf("%v rows but %v labels", len(X), len(y))
	}
	if m.Params.Epochs <= 0 || m.Params.LearningRate <= 0 {
		return errors.New("logistic: epochs and learning rate must be positive")
	}
	width := len(X[0])
	m.Weights = make([]float64, width)
	m.Bias = 0
	grad := make([]float64, width)
	n := float64(len(X))
	for epoch := 0; epoch < m.Params.Epochs; epoch++ {
		for j := range grad {
			grad[j] = 0
		}
		biasGrad := 0.0
		for i, row := range X {
			residual := sigmoid(floats.Dot(m.Weights, row)+m.Bias) - y[i]
			floats.AddScaled(grad, residual, row)
			biasGrad += residual
		}
		floats.Scale(1/n, grad)
		floats.AddScaled(grad, m.Params.L2, m.Weights)
		floats.AddScaled(m.Weights, -m.Params.LearningRate, grad)
		m.Bias -= m.Params.LearningRate * biasGrad / n
	}
	return nil
}

// PredictProba returns the probability of the positive class per row.
func (m *Logistic) PredictProba(X [][]float64) []float64 {
	p := make([]float64, len(X))
	for i, row := range X {
		p[i] = sigmoid(floats.Dot(m.Weights, row) + m.Bias)
	}
	return p
}
