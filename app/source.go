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

package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	"icucohort/table"
)

// ErrUnsupportedQuery is returned by sources that cannot evaluate a query.
var ErrUnsupportedQuery = errors.New("unsupported query")

// Query selects distinct rows of a table.
type Query struct {
	Schema  string
	Table   string
	Columns []string
	// In restricts rows to those whose column value is one of the listed
	// values. Every source evaluates it.
	In map[string][]string
	// Where is a raw SQL predicate. Only SQL sources evaluate it.
	Where string
}

// Source reads MIMIC tables. Results hold distinct rows with lower-case
// column names.
type Source interface {
	Table(ctx context.Context, q Query) (*table.Table, error)
	Close() error
}

func (q Query) inColumns() []string {
	columns := make([]string, 0, len(q.In))
	for c := range q.In {
		columns = append(columns, c)
	}
	sort.Strings(columns)
	return columns
}

func (q Query) String() string {
	name := q.Table
	if q.Schema != "" {
		name = q.Schema + "." + q.Table
	}
	return fmt.Sprintf("%v(%v)", name, strings.Join(q.Columns, ", "))
}

// SQL renders the query for PostgreSQL. Identifiers are quoted, In values
// are passed as text array arguments.
func (q Query) SQL() (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT DISTINCT ")
	for i, c := range q.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgx.Identifier{c}.Sanitize())
	}
	b.WriteString(" FROM ")
	if q.Schema != "" {
		b.WriteString(pgx.Identifier{q.Schema, q.Table}.Sanitize())
	} else {
		b.WriteString(pgx.Identifier{q.Table}.Sanitize())
	}
	var (
		predicates []string
		args       []any
	)
	for _, c := range q.inColumns() {
		args = append(args, q.In[c])
		predicates = append(predicates, fmt.Sprintf("%v::text = ANY($%d)", pgx.Identifier{c}.Sanitize(), len(args)))
	}
	if q.Where != "" {
		predicates = append(predicates, "("+q.Where+")")
	}
	if len(predicates) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(predicates, " AND "))
	}
	return b.String(), args
}

// matcher compiles the In predicate of a query for local evaluation.
func (q Query) matcher() func(t *table.Table, row table.Row) bool {
	sets := make(map[string]map[string]struct{}, len(q.In))
	for c, values := range q.In {
		set := make(map[string]struct{}, len(values))
		for _, v := range values {
			set[v] = struct{}{}
		}
		sets[c] = set
	}
	return func(t *table.Table, row table.Row) bool {
		for c, set := range sets {
			cell := t.Get(row, c)
			if !cell.Valid {
				return false
			}
			if _, ok := set[cell.String]; !ok {
				return false
			}
		}
		return true
	}
}
