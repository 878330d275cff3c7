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
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"icucohort/blob"
	"icucohort/cohort"
	"icucohort/config"
	"icucohort/features"
	"icucohort/model"
	"icucohort/report"
	"icucohort/table"
)

// CompareFeatures are the features charted by Compare.
var CompareFeatures = []string{"age_on_admission", "age_adm_bucket", "gender", "ethnicity_simple", "hospital_expire_flag"}

// OpenSource opens the table source named by the configuration.
func OpenSource(ctx context.Context, cfg *config.Config) (Source, error) {
	switch cfg.Source.Kind {
	case "postgres":
		return NewPostgresSource(ctx, cfg.Source.DSN)
	case "file":
		return NewFileSource(cfg.Path(cfg.Source.Dir))
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
	}
}

// OpenStore opens the blob store named by the configuration.
func OpenStore(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	switch cfg.Blob.Kind {
	case "s3":
		return blob.NewS3Store(ctx, cfg.Blob.Bucket, cfg.Blob.Region)
	case "dir":
		return blob.NewDirStore(cfg.Path(cfg.Blob.Dir))
	default:
		return nil, fmt.Errorf("unknown blob store kind %q", cfg.Blob.Kind)
	}
}

// Pipeline runs the stages of the analysis against one source and store.
type Pipeline struct {
	Config *config.Config
	Source Source
	Store  blob.Store
	Log    *zap.Logger
	RunID  string
}

// Open opens the source and store of cfg. The caller closes the pipeline.
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Pipeline, error) {
	src, err := OpenSource(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		src.Close()
		return nil, err
	}
	return NewPipeline(cfg, src, store, log), nil
}

// NewPipeline assembles a pipeline from an open source and store.
func NewPipeline(cfg *config.Config, src Source, store blob.Store, log *zap.Logger) *Pipeline {
	id := uuid.NewString()
	return &Pipeline{Config: cfg, Source: src, Store: store, Log: log.With(zap.String("run", id)), RunID: id}
}

// Close releases the source.
func (p *Pipeline) Close() error {
	return p.Source.Close()
}

// CohortKey is the key of the cohort table.
func CohortKey(prefix string) string {
	return blob.Join(prefix, "data", "admission_diagnosis_table.csv")
}

// DatasetKey is the key of the modeling table of a diagnosis.
func DatasetKey(prefix, code string, exclusions []cohort.Exclusion) string {
	name := []string{code}
	for _, e := range exclusions {
		name = append(name, e.String())
	}
	return blob.Join(prefix, "data", strings.Join(name, "_")+".csv")
}

func (p *Pipeline) query(name string, columns []string) Query {
	return Query{Schema: p.Config.Source.Schema, Table: name, Columns: columns}
}

// BuildCohort reads the MIMIC tables, builds the cohort table and stores it.
func (p *Pipeline) BuildCohort(ctx context.Context) ([]*cohort.Record, error) {
	load := func(name string, columns []string) (*table.Table, error) {
		t, err := p.Source.Table(ctx, p.query(name, columns))
		if err != nil {
			return nil, fmt.Errorf("loading %v: %w", name, err)
		}
		p.Log.Debug("loaded table", zap.String("table", name), zap.Int("rows", t.Len()))
		return t, nil
	}
	var tables [4]*table.Table
	for i, q := range []struct {
		name    string
		columns []string
	}{
		{"patients", PatientColumns},
		{"admissions", AdmissionColumns},
		{"diagnoses_icd", DiagnosisColumns},
		{"d_icd_diagnoses", CatalogColumns},
	} {
		t, err := load(q.name, q.columns)
		if err != nil {
			return nil, err
		}
		tables[i] = t
	}
	patients, err := DecodePatients(tables[0])
	if err != nil {
		return nil, err
	}
	admissions, err := DecodeAdmissions(tables[1])
	if err != nil {
		return nil, err
	}
	diagnoses, err := DecodeDiagnoses(tables[2])
	if err != nil {
		return nil, err
	}
	catalog, err := DecodeCatalog(tables[3])
	if err != nil {
		return nil, err
	}
	p.Log.Info("parsed tables",
		zap.Int("patients", len(patients)),
		zap.Int("admissions", len(admissions)),
		zap.Int("diagnoses", len(diagnoses)),
		zap.Int("catalog", len(catalog)))
	records := cohort.Build(patients, admissions, diagnoses, catalog)
	key := CohortKey(p.Config.Blob.Prefix)
	if err := blob.PutTable(ctx, p.Store, key, cohort.Table(records)); err != nil {
		return nil, fmt.Errorf("storing cohort: %w", err)
	}
	p.Log.Info("built cohort", zap.Int("rows", len(records)), zap.String("key", key))
	return records, nil
}

// LoadCohort reads the stored cohort table.
func (p *Pipeline) LoadCohort(ctx context.Context) ([]*cohort.Record, error) {
	key := CohortKey(p.Config.Blob.Prefix)
	t, err := blob.GetTable(ctx, p.Store, key)
	if err != nil {
		return nil, fmt.Errorf("loading cohort: %w", err)
	}
	records, err := cohort.FromTable(t)
	if err != nil {
		return nil, fmt.Errorf("loading cohort %v: %w", key, err)
	}
	return records, nil
}

// SelectDataset selects the groups of a diagnosis, merges their readings
// and profile columns and stores the modeling table under the returned key.
func (p *Pipeline) SelectDataset(ctx context.Context, code string, exclusions []cohort.Exclusion) (string, *features.Frame, error) {
	records, err := p.LoadCohort(ctx)
	if err != nil {
		return "", nil, err
	}
	sel := cohort.SelectTestGroups(records, code, cohort.SelectOptions{
		Exclusions: exclusions,
		Match:      p.Config.Selection.Match,
		Seed:       p.Config.Selection.Seed,
	})
	fields := []zap.Field{
		zap.String("diagnosis", code),
		zap.Int("subject", len(sel.Subject)),
		zap.Int("base", len(sel.Base)),
		zap.Int("control", len(sel.Control)),
	}
	if sel.Match != nil {
		fields = append(fields, zap.Int("matchTotal", sel.Match.Total))
	}
	p.Log.Info("selected groups", fields...)
	if len(sel.Subject) == 0 {
		return "", nil, fmt.Errorf("diagnosis %v: %w", code, ErrNoSubjects)
	}
	mode, err := features.ParseMode(p.Config.Features.Reading)
	if err != nil {
		return "", nil, err
	}
	hadms := make([]string, len(sel.Rows))
	for i, r := range sel.Rows {
		hadms[i] = strconv.FormatInt(r.HadmID, 10)
	}
	readings, err := LoadReadings(ctx, p.Source, p.Config.Source.Schema, mode, hadms)
	if err != nil {
		return "", nil, err
	}
	f := features.Merge(sel.Rows, features.Pivot(readings))
	if err := features.AddProfile(f, records, p.Config.Features.Profile...); err != nil {
		return "", nil, err
	}
	f = f.SelectNumeric(features.PopulatedColumns(f, p.Config.Features.Populated))
	key := DatasetKey(p.Config.Blob.Prefix, code, exclusions)
	if err := blob.PutTable(ctx, p.Store, key, f.Table()); err != nil {
		return "", nil, fmt.Errorf("storing dataset: %w", err)
	}
	p.Log.Info("stored dataset",
		zap.String("key", key),
		zap.Int("rows", f.Len()),
		zap.Int("readings", len(readings)),
		zap.Strings("numeric", f.Numeric))
	return key, f, nil
}

// LoadDataset reads a stored modeling table.
func (p *Pipeline) LoadDataset(ctx context.Context, key string) (*features.Frame, error) {
	t, err := blob.GetTable(ctx, p.Store, key)
	if err != nil {
		return nil, fmt.Errorf("loading dataset: %w", err)
	}
	f, err := features.FromTable(t)
	if err != nil {
		return nil, fmt.Errorf("loading dataset %v: %w", key, err)
	}
	return f, nil
}

// Train runs a random search over a stored dataset, fits the best
// parameters on all rows and stores the model. The prepared arrays are
// stored under arrays/<run id>, the search results under runs/<run id>.
func (p *Pipeline) Train(ctx context.Context, key string) (*model.Stored, []model.SearchResult, error) {
	f, err := p.LoadDataset(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	ds, tr, err := model.Prepare(f, p.Config.Model.Drop...)
	if err != nil {
		return nil, nil, err
	}
	if err := p.putArrays(ctx, ds); err != nil {
		return nil, nil, err
	}
	cfg := p.Config.Model
	results, err := model.RandomSearch(ds, model.DefaultSpace, cfg.Iterations, cfg.Folds, cfg.Threads, cfg.Seed)
	if err != nil {
		return nil, nil, err
	}
	for _, r := range results {
		p.Log.Debug("search run", zap.Int("iteration", r.Run), zap.Float64("train", r.CV.Train), zap.Float64("valid", r.CV.Valid))
	}
	best, ok := model.Best(results)
	if !ok {
		return nil, nil, model.ErrEmpty
	}
	searchKey := blob.Join(p.Config.Blob.Prefix, "runs", p.RunID, "search.json")
	if err := blob.PutModel(ctx, p.Store, searchKey, results); err != nil {
		return nil, nil, fmt.Errorf("storing search results: %w", err)
	}
	stored, err := model.FinalRun(ctx, p.Store, model.ModelKey(p.Config.Blob.Prefix, cfg.Name), ds, tr, best)
	if err != nil {
		return nil, nil, err
	}
	p.Log.Info("trained model",
		zap.String("model", stored.Name),
		zap.Int("rows", ds.Len()),
		zap.Int("features", len(ds.Names)),
		zap.Float64("train", best.CV.Train),
		zap.Float64("valid", best.CV.Valid))
	return stored, results, nil
}

// ArrayKeys are the keys the prepared feature matrix and labels of a run
// are stored under.
func ArrayKeys(prefix, runID string) (x, y string) {
	return blob.Join(prefix, "arrays", runID, "X.npy"), blob.Join(prefix, "arrays", runID, "y.bin.sz")
}

func (p *Pipeline) putArrays(ctx context.Context, ds *model.Dataset) error {
	xKey, yKey := ArrayKeys(p.Config.Blob.Prefix, p.RunID)
	if err := blob.PutArray(ctx, p.Store, xKey, ds.X); err != nil {
		return fmt.Errorf("storing features: %w", err)
	}
	y := make([][]float64, len(ds.Y))
	for i, v := range ds.Y {
		y[i] = []float64{v}
	}
	if err := blob.PutArray(ctx, p.Store, yKey, y); err != nil {
		return fmt.Errorf("storing labels: %w", err)
	}
	p.Log.Debug("stored arrays", zap.String("x", xKey), zap.String("y", yKey))
	return nil
}

// Compare charts the subject and base groups of a stored dataset into dir
// and logs the categories over-represented among subjects.
func (p *Pipeline) Compare(ctx context.Context, key, dir string) ([]string, error) {
	f, err := p.LoadDataset(ctx, key)
	if err != nil {
		return nil, err
	}
	var names, categorical []string
	for _, name := range CompareFeatures {
		if _, ok := f.CategoricalColumn(name); ok {
			categorical = append(categorical, name)
			names = append(names, name)
		} else if _, ok := f.NumericColumn(name); ok {
			names = append(names, name)
		}
	}
	files, err := report.Compare(f, names, p.Config.Path(dir))
	if err != nil {
		return files, err
	}
	for _, name := range categorical {
		tests, err := report.ExcessTests(f, name)
		if err != nil {
			return files, err
		}
		for _, e := range tests {
			p.Log.Info("excess test",
				zap.String("feature", name),
				zap.String("category", e.Category),
				zap.Int("subjects", e.SubjectCount),
				zap.Float64("baseShare", e.BaseShare),
				zap.Float64("p", e.PValue))
		}
	}
	p.Log.Info("wrote charts", zap.Strings("files", files))
	return files, nil
}

// SearchChart plots the running best score of a search into dir.
func (p *Pipeline) SearchChart(results []model.SearchResult, dir string) (string, error) {
	dir = p.Config.Path(dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, p.Config.Model.Name+"_search.png")
	return path, report.BestScoreByRun(results, path)
}

// ErrNoSubjects is returned when no admission carries the diagnosis.
var ErrNoSubjects = errors.New("no subject admissions")

// ErrPanic wraps a panic recovered by Run.
var ErrPanic = errors.New("panic")

// Run calls f, turning a panic into an error.
func Run(f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return f()
}
