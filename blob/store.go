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

// Package blob stores pipeline artifacts (tables, arrays and models) under
// string keys in a bucket or a local directory.
package blob

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned by Get for keys that were never stored.
	ErrNotFound = errors.New("blob not found")
	// ErrDecode is returned when a stored object cannot be decoded.
	ErrDecode = errors.New("cannot decode blob")
)

// Store is a key-value store of opaque objects.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
}

// Kind is the codec implied by a key.
type Kind int

const (
	KindModel Kind = iota
	KindTable
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindTable:
		return "table"
	case KindArray:
		return "array"
	default:
		return "model"
	}
}

// KindOf infers the codec from the suffix of a key.
func KindOf(key string) Kind {
	switch {
	case strings.HasSuffix(key, ".csv"):
		return KindTable
	case strings.HasSuffix(key, ".npy"), strings.HasSuffix(key, ".bin.sz"):
		return KindArray
	default:
		return KindModel
	}
}

// Join builds a key from a prefix and path elements.
func Join(prefix string, elems ...string) string {
	parts := make([]string, 0, len(elems)+1)
	if p := strings.Trim(prefix, "/"); p != "" {
		parts = append(parts, p)
	}
	for _, e := range elems {
		if e = strings.Trim(e, "/"); e != "" {
			parts = append(parts, e)
		}
	}
	return strings.Join(parts, "/")
}
