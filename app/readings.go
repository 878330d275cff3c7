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

	"icucohort/cohort"
	"icucohort/features"
	"icucohort/table"
)

// eventSource is implemented by sources that select first or last
// readings themselves.
type eventSource interface {
	ReadingEvents(ctx context.Context, schema string, mode features.Mode, hadms []string) ([]features.Event, error)
}

type itemInfo struct {
	label, source string
}

// readingTables pairs an events table with its item dictionary.
var readingTables = []struct {
	events, items string
	source        string //dbsource when the dictionary has none
}{
	{"chartevents", "d_items", ""},
	{"labevents", "d_labitems", "lab"},
}

func loadItems(ctx context.Context, src Source, schema, name, source string) (map[int64]itemInfo, error) {
	columns := []string{"itemid", "label"}
	if source == "" {
		columns = append(columns, "dbsource")
	}
	t, err := src.Table(ctx, Query{Schema: schema, Table: name, Columns: columns})
	if err != nil {
		return nil, err
	}
	items := make(map[int64]itemInfo, t.Len())
	for line, row := range t.Rows {
		id, err := cohort.ParseID(row[0])
		if err != nil {
			return nil, fmt.Errorf("decoding %v row %v: %w", name, line, err)
		}
		if !id.Valid {
			continue
		}
		info := itemInfo{label: row[1].String, source: source}
		if source == "" {
			info.source = row[2].String
		}
		items[id.Int] = info
	}
	return items, nil
}

func loadEvents(ctx context.Context, src Source, schema string, hadms []string) ([]features.Event, error) {
	var events []features.Event
	for _, rt := range readingTables {
		items, err := loadItems(ctx, src, schema, rt.items, rt.source)
		if err != nil {
			return nil, err
		}
		q := Query{Schema: schema, Table: rt.events, Columns: EventColumns}
		if len(hadms) > 0 {
			q.In = map[string][]string{"hadm_id": hadms}
		}
		var t *table.Table
		if t, err = src.Table(ctx, q); err != nil {
			return nil, err
		}
		decoded, err := DecodeEvents(t)
		if err != nil {
			return nil, err
		}
		for i := range decoded {
			info := items[decoded[i].ItemID]
			decoded[i].Label = info.label
			decoded[i].Source = info.source
			if decoded[i].Source == "" {
				decoded[i].Source = rt.source
			}
		}
		events = append(events, decoded...)
	}
	return events, nil
}

// LoadReadings returns the first or last chart and lab reading of every
// admission in hadms, or of every admission when hadms is empty.
func LoadReadings(ctx context.Context, src Source, schema string, mode features.Mode, hadms []string) ([]features.Reading, error) {
	var (
		events []features.Event
		err    error
	)
	if es, ok := src.(eventSource); ok {
		events, err = es.ReadingEvents(ctx, schema, mode, hadms)
	} else {
		events, err = loadEvents(ctx, src, schema, hadms)
	}
	if err != nil {
		return nil, err
	}
	return features.SelectReadings(events, mode), nil
}
