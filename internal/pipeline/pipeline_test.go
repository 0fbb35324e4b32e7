package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ttc-bus-delays/busdelay/internal/config"
	"github.com/ttc-bus-delays/busdelay/internal/dataset"
	"github.com/ttc-bus-delays/busdelay/internal/dataset/datasettest"
	"github.com/ttc-bus-delays/busdelay/internal/db"
	"github.com/ttc-bus-delays/busdelay/internal/figures"
	"github.com/ttc-bus-delays/busdelay/internal/model"
)

func testConfig(t *testing.T, n int) *config.Config {
	t.Helper()
	dir := t.TempDir()

	var b strings.Builder
	b.WriteString("incident,day,min_gap,min_delay\n")
	for _, r := range datasettest.Synthetic(n, 3).Records() {
		fmt.Fprintf(&b, "%s,%s,%g,%g\n", r.Incident, r.Day, r.MinGap, r.MinDelay)
	}
	data := filepath.Join(dir, "delays.csv")
	require.NoError(t, os.WriteFile(data, []byte(b.String()), 0644))

	cfg := config.Defaults()
	cfg.DataPath = data
	cfg.DatabaseDSN = filepath.Join(dir, "busdelay.db")
	cfg.FiguresDir = filepath.Join(dir, "figures")
	cfg.Subsample = 150
	cfg.Sampler = model.SamplerConfig{Chains: 2, Iterations: 200, Warmup: 100, Seed: 987}
	cfg.Diagnostics.PPCDraws = 20
	cfg.Diagnostics.PriorDraws = 50
	cfg.KeepModels = 2
	require.NoError(t, cfg.Validate())
	return cfg
}

func openStore(t *testing.T, cfg *config.Config) db.ArtifactStore {
	t.Helper()
	store, err := db.Open(context.Background(), cfg.DatabaseDSN)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestLoadData_Subsamples(t *testing.T) {
	cfg := testConfig(t, 400)

	ds, err := LoadData(cfg)
	require.NoError(t, err)
	assert.Equal(t, 150, ds.Len())

	again, err := LoadData(cfg)
	require.NoError(t, err)
	assert.Equal(t, ds.Records(), again.Records())

	cfg.Subsample = 0
	all, err := LoadData(cfg)
	require.NoError(t, err)
	assert.Equal(t, 400, all.Len())
}

func TestLoadData_MissingFile(t *testing.T) {
	cfg := testConfig(t, 10)
	cfg.DataPath = filepath.Join(t.TempDir(), "absent.csv")

	_, err := LoadData(cfg)
	var le *dataset.LoadError
	assert.True(t, errors.As(err, &le))
}

func TestReport_FitsOnceThenReusesCache(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, 300)
	store := openStore(t, cfg)
	ds, err := LoadData(cfg)
	require.NoError(t, err)

	_, err = store.LatestModel(ctx)
	require.ErrorIs(t, err, db.ErrModelArtifactMissing)

	first, err := Report(ctx, cfg, store, ds, false)
	require.NoError(t, err)
	assert.True(t, first.Refitted)
	assert.Equal(t, 150, first.Descriptives.Records)
	assert.Len(t, first.Summary.Rows, len(first.Model.Params()))
	assert.Contains(t, first.Markdown, "## Model results")
	assert.Contains(t, first.Markdown, "## Convergence")
	assert.False(t, figures.IsStale(cfg.FiguresDir, 0))
	assert.Len(t, first.Manifest.Files, 9)

	second, err := Report(ctx, cfg, store, ds, false)
	require.NoError(t, err)
	assert.False(t, second.Refitted)
	assert.Equal(t, first.Model.ID(), second.Model.ID())
	assert.Equal(t, first.Summary, second.Summary)

	third, err := Report(ctx, cfg, store, ds, true)
	require.NoError(t, err)
	assert.True(t, third.Refitted)
	assert.NotEqual(t, first.Model.ID(), third.Model.ID())
	// same data and seed give the same posterior
	assert.Equal(t, first.Summary.Rows, third.Summary.Rows)
}

func TestReport_RefitsWhenRunChanges(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, 300)
	store := openStore(t, cfg)
	ds, err := LoadData(cfg)
	require.NoError(t, err)

	first, err := Report(ctx, cfg, store, ds, false)
	require.NoError(t, err)
	require.True(t, first.Refitted)
	assert.Empty(t, Mismatch(first.Model, cfg, ds))

	cfg.Sampler.Chains = 3
	res, err := Report(ctx, cfg, store, ds, false)
	require.NoError(t, err)
	assert.True(t, res.Refitted, "chain count changed")
	assert.Equal(t, 3, res.Model.Chains())

	// other records, same count
	cfg.SubsampleSeed = 11
	other, err := LoadData(cfg)
	require.NoError(t, err)
	require.Equal(t, ds.Len(), other.Len())
	assert.Equal(t, []string{"records changed"}, Mismatch(res.Model, cfg, other))
	res, err = Report(ctx, cfg, store, other, false)
	require.NoError(t, err)
	assert.True(t, res.Refitted)
	assert.Equal(t, other.Fingerprint(), res.Model.DataFingerprint())

	shifted := other.Records()[:5]
	for i := range shifted {
		shifted[i].MinDelay += 100
	}
	small := dataset.New(shifted)
	res, err = Report(ctx, cfg, store, small, false)
	require.NoError(t, err)
	assert.True(t, res.Refitted)
	assert.Equal(t, 5, res.Model.Observations())
	assert.Equal(t, small.Len(), res.Descriptives.Records)
	assert.Greater(t, res.Diagnostics.Predictive.ObservedMean, 50.0)

	cfg.Priors.Sigma.Rate = 2
	assert.Contains(t, Mismatch(res.Model, cfg, small), "priors changed")

	again, err := Report(ctx, cfg, store, small, false)
	require.NoError(t, err)
	assert.True(t, again.Refitted)
	cached, err := Report(ctx, cfg, store, small, false)
	require.NoError(t, err)
	assert.False(t, cached.Refitted)
	assert.Equal(t, again.Model.ID(), cached.Model.ID())
}

func TestFitAndStore_PrunesOldModels(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, 100)
	cfg.KeepModels = 1
	cfg.Sampler = model.SamplerConfig{Chains: 1, Iterations: 20, Warmup: 10, Seed: 1}
	store := openStore(t, cfg)
	ds, err := LoadData(cfg)
	require.NoError(t, err)

	var last *model.FittedModel
	for i := 0; i < 3; i++ {
		last, err = FitAndStore(ctx, cfg, store, ds)
		require.NoError(t, err)
	}

	n, err := store.Prune(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, n, "older models were already pruned")

	got, err := store.LatestModel(ctx)
	require.NoError(t, err)
	assert.Equal(t, last.ID(), got.ID())
}

func TestFitAndStore_ConfigError(t *testing.T) {
	cfg := testConfig(t, 20)
	cfg.Sampler.Chains = 0
	store := openStore(t, cfg)
	ds, err := LoadData(cfg)
	require.NoError(t, err)

	_, err = FitAndStore(context.Background(), cfg, store, ds)
	var ce *model.SamplerConfigError
	assert.True(t, errors.As(err, &ce))

	_, err = store.LatestModel(context.Background())
	assert.ErrorIs(t, err, db.ErrModelArtifactMissing)
}
