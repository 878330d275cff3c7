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
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"icucohort/cohort"
	"icucohort/features"
	"icucohort/table"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresSource reads tables from a PostgreSQL database with a connection pool.
type PostgresSource struct {
	db   queryable
	pool *pgxpool.Pool
}

// NewPostgresSource connects to the database at dsn.
func NewPostgresSource(ctx context.Context, dsn string) (*PostgresSource, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	return &PostgresSource{db: pool, pool: pool}, nil
}

// Close releases the connection pool.
func (s *PostgresSource) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Table runs a SELECT DISTINCT for the query.
func (s *PostgresSource) Table(ctx context.Context, q Query) (*table.Table, error) {
	sql, args := q.SQL()
	t, err := s.Raw(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %v: %w", q, err)
	}
	return t.Distinct(), nil
}

// Raw runs an arbitrary query and returns its rows with lower-case column names.
func (s *PostgresSource) Raw(ctx context.Context, sql string, args ...any) (*table.Table, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return rowsTable(rows)
}

func rowsTable(rows pgx.Rows) (*table.Table, error) {
	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}
	t := table.New(columns...)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(table.Row, len(values))
		for i, v := range values {
			row[i] = cellOf(v)
		}
		t.Rows = append(t.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return t.LowerColumns(), nil
}

// cellOf formats a decoded column value the way the file mirrors store it.
func cellOf(v any) table.Cell {
	switch v := v.(type) {
	case nil:
		return table.Null()
	case string:
		return table.Str(v)
	case time.Time:
		return table.Str(v.UTC().Format(cohort.TimeLayout))
	case int16:
		return table.Str(strconv.FormatInt(int64(v), 10))
	case int32:
		return table.Str(strconv.FormatInt(int64(v), 10))
	case int64:
		return table.Str(strconv.FormatInt(v, 10))
	case float32:
		return table.Str(strconv.FormatFloat(float64(v), 'g', -1, 32))
	case float64:
		return table.Str(strconv.FormatFloat(v, 'g', -1, 64))
	case bool:
		return table.Str(strconv.FormatBool(v))
	case pgtype.Numeric:
		f, err := v.Float64Value()
		if err != nil || !f.Valid {
			return table.Null()
		}
		return table.Str(strconv.FormatFloat(f.Float64, 'g', -1, 64))
	default:
		return table.Str(fmt.Sprint(v))
	}
}

// The first or last reading per admission and item is computed in the
// database: the extreme charttime per group, joined back to its values.
const readingSQL = `SELECT a.subject_id, a.hadm_id, a.itemid, b.charttime, b.valuenum, d.label, %[5]s AS dbsource
FROM (SELECT subject_id, hadm_id, itemid, %[1]s(charttime) AS reading_time
      FROM %[2]s %[4]s
      GROUP BY 1, 2, 3) a
JOIN (SELECT hadm_id, itemid, charttime, valuenum FROM %[2]s) b
  ON a.hadm_id = b.hadm_id AND a.itemid = b.itemid AND a.reading_time = b.charttime
LEFT JOIN %[3]s d ON d.itemid = a.itemid
WHERE b.valuenum IS NOT NULL`

func readingQuery(schema, events, items, source string, mode features.Mode, filtered bool) string {
	agg := "MIN"
	if mode == features.Last {
		agg = "MAX"
	}
	where := ""
	if filtered {
		where = "WHERE hadm_id::text = ANY($1)"
	}
	return fmt.Sprintf(readingSQL, agg, pgx.Identifier{schema, events}.Sanitize(), pgx.Identifier{schema, items}.Sanitize(), where, source)
}

// ReadingEvents returns the chart and lab events recorded at the first or
// last charttime of every (admission, item), restricted to hadms unless
// hadms is empty.
func (s *PostgresSource) ReadingEvents(ctx context.Context, schema string, mode features.Mode, hadms []string) ([]features.Event, error) {
	var args []any
	if len(hadms) > 0 {
		args = append(args, hadms)
	}
	var events []features.Event
	for _, q := range []string{
		readingQuery(schema, "chartevents", "d_items", "d.dbsource", mode, len(hadms) > 0),
		readingQuery(schema, "labevents", "d_labitems", "'lab'", mode, len(hadms) > 0),
	} {
		t, err := s.Raw(ctx, q, args...)
		if err != nil {
			return nil, fmt.Errorf("querying %v readings: %w", mode, err)
		}
		decoded, err := DecodeEvents(t.Distinct())
		if err != nil {
			return nil, err
		}
		events = append(events, decoded...)
	}
	return events, nil
}
