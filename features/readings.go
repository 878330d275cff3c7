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

// Package features turns chart and lab events into per-admission readings
// and merges them with the labeled cohort.
package features

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"
)

// Event is a single chart or lab measurement. A missing value is NaN.
type Event struct {
	SubjectID int64
	HadmID    int64
	ItemID    int64
	ChartTime time.Time
	Value     float64
	Label     string //item label, may be empty
	Source    string //dbsource of the item: carevue, metavision or lab
}

// Reading is the selected value of one item for one admission.
type Reading struct {
	SubjectID int64
	HadmID    int64
	ItemID    int64
	ChartTime time.Time
	Value     float64 //mean of the values recorded at ChartTime
	Label     string
	Source    string
}

// Mode selects which event of an admission becomes its reading.
type Mode int

const (
	First Mode = iota
	Last
)

func (m Mode) String() string {
	if m == Last {
		return "last"
	}
	return "first"
}

// ParseMode parses "first" or "last".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "first", "":
		return First, nil
	case "last":
		return Last, nil
	}
	return First, fmt.Errorf("unknown reading mode %q, expected first or last", s)
}

// Key identifies an admission.
type Key struct {
	SubjectID, HadmID int64
}

type itemKey struct {
	Key
	ItemID int64
}

type selected struct {
	Reading
	n int
}

// SelectReadings keeps, per admission and item, the value recorded first or
// last. Several values recorded at that same instant are averaged. Events
// without a value are ignored. The result is ordered by admission and item.
func SelectReadings(events []Event, mode Mode) []Reading {
	picked := make(map[itemKey]*selected)
	for _, e := range events {
		if math.IsNaN(e.Value) {
			continue
		}
		k := itemKey{Key{e.SubjectID, e.HadmID}, e.ItemID}
		s, ok := picked[k]
		if ok && s.ChartTime.Equal(e.ChartTime) {
			s.Value += e.Value
			s.n++
			continue
		}
		if ok {
			better := e.ChartTime.Before(s.ChartTime)
			if mode == Last {
				better = e.ChartTime.After(s.ChartTime)
			}
			if !better {
				continue
			}
		}
		picked[k] = &selected{Reading: Reading{
			SubjectID: e.SubjectID,
			HadmID:    e.HadmID,
			ItemID:    e.ItemID,
			ChartTime: e.ChartTime,
			Value:     e.Value,
			Label:     e.Label,
			Source:    e.Source,
		}, n: 1}
	}
	readings := make([]Reading, 0, len(picked))
	for _, s := range picked {
		r := s.Reading
		r.Value /= float64(s.n)
		readings = append(readings, r)
	}
	sort.Slice(readings, func(i, j int) bool {
		a, b := readings[i], readings[j]
		if a.SubjectID != b.SubjectID {
			return a.SubjectID < b.SubjectID
		}
		if a.HadmID != b.HadmID {
			return a.HadmID < b.HadmID
		}
		return a.ItemID < b.ItemID
	})
	return readings
}

// Matrix holds one row per admission and one column per item.
type Matrix struct {
	Keys    []Key
	Columns []string
	Values  [][]float64 //Values[row][column], NaN when not measured
	Source  []string    //the dbsource most readings of the admission come from
}

// columnNames names items by label. Unlabeled items, and items sharing a
// label with another item, are named by id.
func columnNames(readings []Reading) map[int64]string {
	labels := make(map[int64]string)
	itemsPerLabel := make(map[string]map[int64]struct{})
	for _, r := range readings {
		if _, ok := labels[r.ItemID]; ok && labels[r.ItemID] != "" {
			continue
		}
		labels[r.ItemID] = r.Label
		if r.Label == "" {
			continue
		}
		items := itemsPerLabel[r.Label]
		if items == nil {
			items = make(map[int64]struct{})
			itemsPerLabel[r.Label] = items
		}
		items[r.ItemID] = struct{}{}
	}
	names := make(map[int64]string, len(labels))
	for item, label := range labels {
		switch {
		case label == "":
			names[item] = itemName(item)
		case len(itemsPerLabel[label]) > 1:
			names[item] = label + "_" + strconv.FormatInt(item, 10)
		default:
			names[item] = label
		}
	}
	// A label can still equal the name derived for another item. Every item
	// sharing a name falls back to item_<id>, which is unique; repeat until
	// no fallback meets another label.
	for {
		users := make(map[string][]int64, len(names))
		for item, name := range names {
			users[name] = append(users[name], item)
		}
		renamed := false
		for _, items := range users {
			if len(items) < 2 {
				continue
			}
			for _, item := range items {
				if names[item] != itemName(item) {
					names[item] = itemName(item)
					renamed = true
				}
			}
		}
		if !renamed {
			return names
		}
	}
}

func itemName(item int64) string {
	return "item_" + strconv.FormatInt(item, 10)
}

// Pivot arranges readings as a matrix. Rows follow the order of the
// readings, columns are sorted by name.
func Pivot(readings []Reading) *Matrix {
	names := columnNames(readings)
	columnSet := make(map[string]struct{})
	for _, name := range names {
		columnSet[name] = struct{}{}
	}
	m := &Matrix{}
	for name := range columnSet {
		m.Columns = append(m.Columns, name)
	}
	sort.Strings(m.Columns)
	column := make(map[string]int, len(m.Columns))
	for i, name := range m.Columns {
		column[name] = i
	}

	row := make(map[Key]int)
	var sources []map[string]int
	for _, r := range readings {
		k := Key{r.SubjectID, r.HadmID}
		i, ok := row[k]
		if !ok {
			i = len(m.Keys)
			row[k] = i
			m.Keys = append(m.Keys, k)
			values := make([]float64, len(m.Columns))
			for j := range values {
				values[j] = math.NaN()
			}
			m.Values = append(m.Values, values)
			sources = append(sources, make(map[string]int))
		}
		m.Values[i][column[names[r.ItemID]]] = r.Value
		if r.Source != "" {
			sources[i][r.Source]++
		}
	}
	m.Source = make([]string, len(m.Keys))
	for i, counts := range sources {
		best := ""
		for source, n := range counts {
			if best == "" || n > counts[best] || (n == counts[best] && source < best) {
				best = source
			}
		}
		m.Source[i] = best
	}
	return m
}
