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
	"sort"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// ErrSingleClass is returned when the area under the curve is undefined
// because all labels are equal.
var ErrSingleClass = errors.New("only one class present")

// AUC computes the area under the ROC curve of scores for labels in {0, 1}.
func AUC(scores, labels []float64) (float64, error) {
	if len(scores) != len(labels) {
		return 0, fmt.Errorf("%v scores but %v labels", len(scores), len(labels))
	}
	order := make([]int, len(scores))
	positives := 0
	for i := range order {
		order[i] = i
		if labels[i] == 1 {
			positives++
		}
	}
	if positives == 0 || positives == len(labels) {
		return 0, ErrSingleClass
	}
	sort.Slice(order, func(i, j int) bool { return scores[order[i]] < scores[order[j]] })
	y := make([]float64, len(order))
	classes := make([]bool, len(order))
	for i, k := range order {
		y[i] = scores[k]
		classes[i] = labels[k] == 1
	}
	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr), nil
}
