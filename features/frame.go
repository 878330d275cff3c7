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

package features

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"icucohort/cohort"
	"icucohort/table"
)

// ErrDuplicateColumn is returned when a column would be added twice.
var ErrDuplicateColumn = errors.New("duplicate column")

// Frame is the modeling dataset: labeled admissions with categorical and
// numeric features.
type Frame struct {
	Keys        []Key
	Target      []int
	Source      []string
	Categorical []string   //names of the categorical features
	Labels      [][]string //Labels[row][j], empty when missing
	Numeric     []string   //names of the numeric features
	Values      [][]float64
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.Keys)
}

func (f *Frame) has(name string) bool {
	for _, c := range f.Categorical {
		if c == name {
			return true
		}
	}
	for _, c := range f.Numeric {
		if c == name {
			return true
		}
	}
	return false
}

// CategoricalColumn returns a copy of a categorical feature.
func (f *Frame) CategoricalColumn(name string) ([]string, bool) {
	for j, c := range f.Categorical {
		if c == name {
			column := make([]string, f.Len())
			for i := range column {
				column[i] = f.Labels[i][j]
			}
			return column, true
		}
	}
	return nil, false
}

// NumericColumn returns a copy of a numeric feature.
func (f *Frame) NumericColumn(name string) ([]float64, bool) {
	for j, c := range f.Numeric {
		if c == name {
			column := make([]float64, f.Len())
			for i := range column {
				column[i] = f.Values[i][j]
			}
			return column, true
		}
	}
	return nil, false
}

var (
	profileCategorical = []string{"gender", "expire_flag", "age_adm_bucket", "admission_type", "ethnicity_simple", "hospital_expire_flag"}
	profileNumeric     = []string{"total_admissions", "admission_number", "age_on_admission"}
)

func label(c table.Cell) string {
	if !c.Valid {
		return ""
	}
	return c.String
}

func number(c table.Cell) float64 {
	if !c.Valid {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(c.String, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// Merge left joins the readings onto the labeled rows. Rows without
// readings get NaN for every reading column.
func Merge(rows []*cohort.ModelRow, m *Matrix) *Frame {
	f := &Frame{
		Categorical: append([]string(nil), profileCategorical...),
		Numeric:     append(append([]string(nil), profileNumeric...), m.Columns...),
	}
	position := make(map[Key]int, len(m.Keys))
	for i, k := range m.Keys {
		position[k] = i
	}
	for _, r := range rows {
		k := Key{r.SubjectID, r.HadmID}
		f.Keys = append(f.Keys, k)
		f.Target = append(f.Target, r.Target)
		f.Labels = append(f.Labels, []string{
			label(r.Gender.Cell()),
			label(r.ExpireFlag.Cell()),
			label(r.AgeBucket.Cell()),
			label(r.AdmissionType.Cell()),
			label(r.EthnicitySimple.Cell()),
			label(r.HospitalExpireFlag.Cell()),
		})
		values := []float64{
			number(r.TotalAdmissions.Cell()),
			number(r.AdmissionNumber.Cell()),
			number(r.AgeOnAdmission.Cell()),
		}
		source := ""
		if i, ok := position[k]; ok {
			values = append(values, m.Values[i]...)
			source = m.Source[i]
		} else {
			for range m.Columns {
				values = append(values, math.NaN())
			}
		}
		f.Values = append(f.Values, values)
		f.Source = append(f.Source, source)
	}
	return f
}

// AddProfile left joins extra cohort columns onto the frame. Continuous
// columns become numeric features, categorical and text columns
// categorical ones.
func AddProfile(f *Frame, records []*cohort.Record, columns ...string) error {
	first := make(map[Key]*cohort.Record)
	for _, r := range records {
		if !r.SubjectID.Valid || !r.HadmID.Valid {
			continue
		}
		k := Key{r.SubjectID.Int, r.HadmID.Int}
		if _, ok := first[k]; !ok {
			first[k] = r
		}
	}
	for _, name := range columns {
		if f.has(name) {
			return fmt.Errorf("%w %q", ErrDuplicateColumn, name)
		}
		if _, ok := (&cohort.Record{}).Cell(name); !ok {
			return fmt.Errorf("%w: no cohort column %q", cohort.ErrSchemaMismatch, name)
		}
		role := cohort.RoleOf(name)
		cells := make([]table.Cell, f.Len())
		for i, k := range f.Keys {
			r, ok := first[k]
			if !ok {
				continue
			}
			cells[i], _ = r.Cell(name)
		}
		switch role {
		case cohort.RoleContinuous:
			f.Numeric = append(f.Numeric, name)
			for i, c := range cells {
				f.Values[i] = append(f.Values[i], number(c))
			}
		case cohort.RoleCategorical, cohort.RoleText:
			f.Categorical = append(f.Categorical, name)
			for i, c := range cells {
				f.Labels[i] = append(f.Labels[i], label(c))
			}
		default:
			return fmt.Errorf("cannot use %v column %q as a feature", role, name)
		}
	}
	return nil
}

type group struct {
	target int
	source string
}

// PopulatedColumns returns the numeric features populated in every target
// group. A feature is populated in a target group when, in at least one of
// its dbsource groups, fewer than (1-frac) of the values are missing. Rows
// without a dbsource belong to no group.
func PopulatedColumns(f *Frame, frac float64) []string {
	sizes := make(map[group]int)
	missing := make(map[group][]int)
	for i := range f.Keys {
		if f.Source[i] == "" {
			continue
		}
		g := group{f.Target[i], f.Source[i]}
		sizes[g]++
		counts := missing[g]
		if counts == nil {
			counts = make([]int, len(f.Numeric))
			missing[g] = counts
		}
		for j, v := range f.Values[i] {
			if math.IsNaN(v) {
				counts[j]++
			}
		}
	}
	populated := make(map[int][]bool)
	for _, target := range f.Target {
		if populated[target] == nil {
			populated[target] = make([]bool, len(f.Numeric))
		}
	}
	for g, n := range sizes {
		for j, m := range missing[g] {
			if float64(m) < (1-frac)*float64(n) {
				populated[g.target][j] = true
			}
		}
	}
	var result []string
	for j, name := range f.Numeric {
		keep := true
		for _, p := range populated {
			if !p[j] {
				keep = false
				break
			}
		}
		if keep {
			result = append(result, name)
		}
	}
	return result
}

// SelectNumeric returns a frame restricted to the named numeric features.
func (f *Frame) SelectNumeric(names []string) *Frame {
	index := make(map[string]int, len(f.Numeric))
	for j, c := range f.Numeric {
		index[c] = j
	}
	var keep []int
	result := &Frame{Keys: f.Keys, Target: f.Target, Source: f.Source, Categorical: f.Categorical, Labels: f.Labels}
	for _, name := range names {
		if j, ok := index[name]; ok {
			keep = append(keep, j)
			result.Numeric = append(result.Numeric, name)
		}
	}
	result.Values = make([][]float64, f.Len())
	for i, values := range f.Values {
		row := make([]float64, len(keep))
		for k, j := range keep {
			row[k] = values[j]
		}
		result.Values[i] = row
	}
	return result
}

var frameKeys = []string{"subject_id", "hadm_id", "target", "dbsource"}

// Table converts the frame for storage.
func (f *Frame) Table() *table.Table {
	columns := append(append(append([]string(nil), frameKeys...), f.Categorical...), f.Numeric...)
	t := table.New(columns...)
	for i, k := range f.Keys {
		row := make(table.Row, 0, len(columns))
		row = append(row,
			table.Str(strconv.FormatInt(k.SubjectID, 10)),
			table.Str(strconv.FormatInt(k.HadmID, 10)),
			table.Str(strconv.Itoa(f.Target[i])),
			table.Cell{String: f.Source[i], Valid: f.Source[i] != ""})
		for _, l := range f.Labels[i] {
			row = append(row, table.Cell{String: l, Valid: l != ""})
		}
		for _, v := range f.Values[i] {
			if math.IsNaN(v) {
				row = append(row, table.Null())
			} else {
				row = append(row, table.Str(strconv.FormatFloat(v, 'g', -1, 64)))
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// FromTable reads a frame written by Table. Columns are split into
// categorical and numeric features by their cohort role; unknown columns
// are numeric.
func FromTable(t *table.Table) (*Frame, error) {
	pos, err := t.Require("subject_id", "hadm_id", "target")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cohort.ErrSchemaMismatch, err)
	}
	source := t.Index("dbsource")
	f := &Frame{}
	var categorical, numeric []int
	for j, name := range t.Columns {
		if j == pos[0] || j == pos[1] || j == pos[2] || j == source {
			continue
		}
		switch cohort.RoleOf(name) {
		case cohort.RoleCategorical, cohort.RoleText:
			categorical = append(categorical, j)
			f.Categorical = append(f.Categorical, name)
		default:
			numeric = append(numeric, j)
			f.Numeric = append(f.Numeric, name)
		}
	}
	for line, row := range t.Rows {
		subject, err := cohort.ParseID(row[pos[0]])
		if err != nil {
			return nil, fmt.Errorf("row %v: %w", line, err)
		}
		hadm, err := cohort.ParseID(row[pos[1]])
		if err != nil {
			return nil, fmt.Errorf("row %v: %w", line, err)
		}
		target, err := cohort.ParseID(row[pos[2]])
		if err != nil {
			return nil, fmt.Errorf("row %v: %w", line, err)
		}
		if !subject.Valid || !hadm.Valid || !target.Valid {
			return nil, fmt.Errorf("row %v: null key or target", line)
		}
		f.Keys = append(f.Keys, Key{subject.Int, hadm.Int})
		f.Target = append(f.Target, int(target.Int))
		if source >= 0 {
			f.Source = append(f.Source, label(row[source]))
		} else {
			f.Source = append(f.Source, "")
		}
		labels := make([]string, len(categorical))
		for k, j := range categorical {
			labels[k] = label(row[j])
		}
		values := make([]float64, len(numeric))
		for k, j := range numeric {
			values[k] = number(row[j])
		}
		f.Labels = append(f.Labels, labels)
		f.Values = append(f.Values, values)
	}
	return f, nil
}
