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

package utils_test

import (
	"errors"
	"math"
	"testing"

	"icucohort/utils"
)

func TestFloorDiv(t *testing.T) {
	tests := []struct{ a, b, want int64 }{
		{7, 2, 3},
		{-7, 2, -4},
		{-6, 2, -3},
		{0, 365, 0},
		{-1, 365, -1},
	}
	for _, tt := range tests {
		if got := utils.FloorDiv(tt.a, tt.b); got != tt.want {
			t.Errorf("FloorDiv(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestBinomialTail(t *testing.T) {
	tests := []struct {
		p    float64
		n, k int
		want float64
	}{
		{0.5, 2, 1, 0.75},
		{0.5, 2, 2, 0.25},
		{0.3, 10, 0, 1},
		{0.3, 10, 11, 0},
		{0.5, 10, 5, 0.623046875},
	}
	for _, tt := range tests {
		got, err := utils.BinomialTail(tt.p, tt.n, tt.k)
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(got-tt.want) > 1e-10 {
			t.Errorf("BinomialTail(%v, %v, %v) = %v, want %v", tt.p, tt.n, tt.k, got, tt.want)
		}
	}
	// P(X = n) = p^n keeps its precision far below 1-CDF cancellation.
	if got, err := utils.BinomialTail(0.01, 50, 50); err != nil || math.Abs(got-1e-100)/1e-100 > 1e-9 {
		t.Errorf("BinomialTail(0.01, 50, 50) = %v, %v, want 1e-100", got, err)
	}
	for _, p := range []float64{1.5, -0.1, math.NaN()} {
		if _, err := utils.BinomialTail(p, 3, 1); !errors.Is(err, utils.ErrDomain) {
			t.Errorf("BinomialTail(%v, 3, 1): expected ErrDomain, got %v", p, err)
		}
	}
}
