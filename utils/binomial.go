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

package utils

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mathext"
)

// ErrDomain is returned for arguments outside the domain of a function.
var ErrDomain = errors.New("argument out of domain")

// BinomialTail returns P(X >= k) for X ~ Binomial(n, p), computed as the
// regularized incomplete beta function I_p(k, n-k+1).
func BinomialTail(p float64, n, k int) (float64, error) {
	switch {
	case n < 0 || k < 0 || !(p >= 0 && p <= 1):
		return 0, fmt.Errorf("BinomialTail(p=%v, n=%v, k=%v): %w", p, n, k, ErrDomain)
	case k == 0:
		return 1, nil
	case k > n:
		return 0, nil
	}
	return mathext.RegIncBeta(float64(k), float64(n-k+1), p), nil
}
