// Package pipeline runs the stages in order: load, describe, fit (or reuse
// the cached model), summarize, diagnose, export figures and build the report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ttc-bus-delays/busdelay/internal/analysis"
	"github.com/ttc-bus-delays/busdelay/internal/config"
	"github.com/ttc-bus-delays/busdelay/internal/dataset"
	"github.com/ttc-bus-delays/busdelay/internal/db"
	"github.com/ttc-bus-delays/busdelay/internal/diagnostics"
	"github.com/ttc-bus-delays/busdelay/internal/figures"
	"github.com/ttc-bus-delays/busdelay/internal/logging"
	"github.com/ttc-bus-delays/busdelay/internal/model"
	"github.com/ttc-bus-delays/busdelay/internal/report"
	"github.com/ttc-bus-delays/busdelay/internal/summary"
)

// LoadData reads the CSV and draws the configured subsample
func LoadData(cfg *config.Config) (*dataset.Dataset, error) {
	ds, err := dataset.Load(cfg.DataPath)
	if err != nil {
		return nil, err
	}
	if cfg.Subsample > 0 && ds.Len() > cfg.Subsample {
		full := ds.Len()
		ds = ds.Subsample(cfg.Subsample, cfg.SubsampleSeed)
		logging.L().Infof("Pipeline: using a subsample of %d of %d records (seed %d)", ds.Len(), full, cfg.SubsampleSeed)
	}
	return ds, nil
}

// FitAndStore fits the model, saves it and prunes old artifacts
func FitAndStore(ctx context.Context, cfg *config.Config, store db.ArtifactStore, ds *dataset.Dataset) (*model.FittedModel, error) {
	fm, err := model.Fit(ctx, ds, cfg.Priors, cfg.Sampler)
	if err != nil {
		return nil, err
	}
	if err := store.SaveModel(ctx, fm); err != nil {
		return nil, fmt.Errorf("failed to cache model: %w", err)
	}
	if _, err := store.Prune(ctx, cfg.KeepModels); err != nil {
		logging.L().Warnf("Pipeline: %v", err)
	}
	return fm, nil
}

// Mismatch lists how a cached model differs from the model the current
// configuration and data would fit. With a nil ds only the data path is
// compared on the data side.
func Mismatch(fm *model.FittedModel, cfg *config.Config, ds *dataset.Dataset) []string {
	var out []string
	source := cfg.DataPath
	if ds != nil {
		source = ds.Source()
	}
	if fm.DataSource() != source {
		out = append(out, fmt.Sprintf("data %q, now %q", fm.DataSource(), source))
	}
	if ds != nil {
		if fm.Observations() != ds.Len() {
			out = append(out, fmt.Sprintf("%d records, now %d", fm.Observations(), ds.Len()))
		} else if fm.DataFingerprint() != ds.Fingerprint() {
			out = append(out, "records changed")
		}
	}
	if fm.Priors() != cfg.Priors {
		out = append(out, "priors changed")
	}
	if fm.Sampler() != cfg.Sampler {
		s := fm.Sampler()
		out = append(out, fmt.Sprintf("sampler %d chains x %d (warm-up %d, seed %d), now %d x %d (warm-up %d, seed %d)",
			s.Chains, s.Iterations, s.Warmup, s.Seed,
			cfg.Sampler.Chains, cfg.Sampler.Iterations, cfg.Sampler.Warmup, cfg.Sampler.Seed))
	}
	return out
}

// EnsureModel returns the cached model, fitting a new one when none is
// stored, refit is set or the cached model was fitted on other data or
// settings
func EnsureModel(ctx context.Context, cfg *config.Config, store db.ArtifactStore, ds *dataset.Dataset, refit bool) (fm *model.FittedModel, fitted bool, err error) {
	if !refit {
		fm, err = store.LatestModel(ctx)
		switch {
		case err == nil:
			diff := Mismatch(fm, cfg, ds)
			if len(diff) == 0 {
				logging.L().Infof("Pipeline: using cached model %s from %s", fm.ID(), fm.CreatedAt().Format(time.RFC3339))
				return fm, false, nil
			}
			logging.L().Infof("Pipeline: cached model %s is out of date (%s), refitting", fm.ID(), strings.Join(diff, "; "))
		case errors.Is(err, db.ErrModelArtifactMissing):
			logging.L().Infof("Pipeline: no cached model, fitting")
		default:
			return nil, false, err
		}
	}

	fm, err = FitAndStore(ctx, cfg, store, ds)
	if err != nil {
		return nil, false, err
	}
	return fm, true, nil
}

// Result holds every output of a report run
type Result struct {
	Model          *model.FittedModel
	Refitted       bool
	Descriptives   analysis.Descriptives
	Summary        *summary.PosteriorSummary
	Diagnostics    *diagnostics.Report
	PriorPosterior []diagnostics.PriorPosterior
	Manifest       *figures.Manifest
	Markdown       string
}

// Report runs the full pipeline
func Report(ctx context.Context, cfg *config.Config, store db.ArtifactStore, ds *dataset.Dataset, refit bool) (*Result, error) {
	res := &Result{Descriptives: analysis.Describe(ds, cfg.Histogram)}

	fm, fitted, err := EnsureModel(ctx, cfg, store, ds, refit)
	if err != nil {
		return nil, err
	}
	res.Model, res.Refitted = fm, fitted

	res.Summary = summary.Summarize(fm)
	res.Diagnostics = diagnostics.Run(fm, ds, cfg.Diagnostics)
	res.PriorPosterior, err = diagnostics.ComparePriors(fm, cfg.Diagnostics.PriorDraws, cfg.Diagnostics.Seed)
	if err != nil {
		return nil, err
	}

	traces := make(map[string][][]float64, len(fm.Params()))
	for _, p := range fm.Params() {
		traces[p], _ = diagnostics.Trace(fm, p)
	}

	res.Manifest, err = figures.Export(cfg.FiguresDir, figures.Bundle{
		ModelID:        fm.ID(),
		DataSource:     ds.Source(),
		Descriptives:   &res.Descriptives,
		Summary:        res.Summary,
		Diagnostics:    res.Diagnostics,
		PriorPosterior: res.PriorPosterior,
		Traces:         traces,
	})
	if err != nil {
		return nil, err
	}

	refInc, refDay := fm.ReferenceLevels()
	res.Markdown, err = report.Markdown(report.Input{
		DataSource:        ds.Source(),
		Observations:      ds.Len(),
		ModelID:           fm.ID(),
		FittedAt:          fm.CreatedAt(),
		ReferenceIncident: refInc,
		ReferenceDay:      refDay,
		Summary:           res.Summary,
		Diagnostics:       res.Diagnostics,
		Descriptives:      &res.Descriptives,
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
