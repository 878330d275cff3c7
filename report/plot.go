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

package report

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"icucohort/cohort"
	"icucohort/features"
	"icucohort/model"
)

const (
	chartWidth  = 8 * vg.Inch
	chartHeight = 5 * vg.Inch
	histBins    = 20
)

// FileName maps a feature name to the name of its chart file.
func FileName(feature string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, feature) + ".png"
}

// Compare renders one chart per feature into dir and returns the files
// written. Categorical features get grouped percentage bars, all other
// features per-group density histograms.
func Compare(f *features.Frame, names []string, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	var files []string
	for _, name := range names {
		var (
			p   *plot.Plot
			err error
		)
		if cohort.RoleOf(name) == cohort.RoleCategorical {
			p, err = barChart(f, name)
		} else {
			p, err = histogram(f, name)
		}
		if err != nil {
			return files, fmt.Errorf("feature %v: %w", name, err)
		}
		file := filepath.Join(dir, FileName(name))
		if err := p.Save(chartWidth, chartHeight, file); err != nil {
			return files, fmt.Errorf("feature %v: %w", name, err)
		}
		files = append(files, file)
	}
	return files, nil
}

func barChart(f *features.Frame, feature string) (*plot.Plot, error) {
	shares, err := Proportions(f, feature)
	if err != nil {
		return nil, err
	}
	var categories []string
	position := make(map[string]int)
	for _, s := range shares {
		if _, ok := position[s.Category]; !ok {
			position[s.Category] = len(categories)
			categories = append(categories, s.Category)
		}
	}
	p := plot.New()
	p.Title.Text = feature
	p.Y.Label.Text = "% of patients"
	width := vg.Points(16)
	for g, group := range Groups {
		values := make(plotter.Values, len(categories))
		for _, s := range shares {
			if s.Group == group {
				values[position[s.Category]] = 100 * s.Share
			}
		}
		bars, err := plotter.NewBarChart(values, width)
		if err != nil {
			return nil, err
		}
		bars.LineStyle.Width = 0
		bars.Color = plotutil.Color(g)
		bars.Offset = vg.Length(2*g-1) * width / 2
		p.Add(bars)
		p.Legend.Add(group, bars)
	}
	p.Legend.Top = true
	p.NominalX(categories...)
	return p, nil
}

func histogram(f *features.Frame, feature string) (*plot.Plot, error) {
	values, ok := f.NumericColumn(feature)
	if !ok {
		return nil, fmt.Errorf("no numeric feature %q", feature)
	}
	byGroup := make(map[string]plotter.Values)
	for i, v := range values {
		if !math.IsNaN(v) {
			g := groupOf(f.Target[i])
			byGroup[g] = append(byGroup[g], v)
		}
	}
	p := plot.New()
	p.Title.Text = feature
	p.Y.Label.Text = "density"
	for g, group := range Groups {
		if len(byGroup[group]) == 0 {
			continue
		}
		h, err := plotter.NewHist(byGroup[group], histBins)
		if err != nil {
			return nil, err
		}
		h.Normalize(1)
		h.FillColor = nil
		h.LineStyle.Color = plotutil.Color(g)
		p.Add(h)
		p.Legend.Add(group, h)
	}
	p.Legend.Top = true
	return p, nil
}

// BestScoreByRun plots the best validation AUC seen after each run of a
// random search.
func BestScoreByRun(results []model.SearchResult, path string) error {
	if len(results) == 0 {
		return model.ErrEmpty
	}
	points := make(plotter.XYs, len(results))
	best := math.Inf(-1)
	for i, r := range results {
		if r.CV.Valid > best {
			best = r.CV.Valid
		}
		points[i].X = float64(r.Run)
		points[i].Y = best
	}
	p := plot.New()
	p.Title.Text = "best validation AUC"
	p.X.Label.Text = "run"
	p.Y.Label.Text = "AUC"
	line, err := plotter.NewLine(points)
	if err != nil {
		return err
	}
	line.Color = plotutil.Color(0)
	p.Add(line)
	return p.Save(chartWidth, chartHeight, path)
}
