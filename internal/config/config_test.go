package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ttc-bus-delays/busdelay/internal/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, Defaults(), cfg)
	assert.Equal(t, model.DefaultSamplerConfig(), cfg.Sampler)
	assert.Equal(t, 2000, cfg.Subsample)
	assert.Equal(t, 1.1, cfg.Diagnostics.RHatThreshold)
	assert.Equal(t, 100, cfg.Diagnostics.PPCDraws)
	assert.Equal(t, 5.0, cfg.Histogram.BinWidth)
}

func TestLoad_YAMLOverlaysDefaults(t *testing.T) {
	path := writeFile(t, "busdelay.yml", `
data: input/delays.csv
sampler:
  chains: 2
  iterations: 500
  warmup: 250
priors:
  coefficients:
    scale: 5
histogram:
  bin_width: 10
`)
	cfg, err := Load(path, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "input/delays.csv", cfg.DataPath)
	assert.Equal(t, model.SamplerConfig{Chains: 2, Iterations: 500, Warmup: 250, Seed: 987}, cfg.Sampler)
	assert.Equal(t, 5.0, cfg.Priors.Coefficients.Scale)
	assert.Equal(t, 2.5, cfg.Priors.Intercept.Scale)
	assert.True(t, cfg.Priors.Autoscale)
	assert.Equal(t, 10.0, cfg.Histogram.BinWidth)
	assert.Equal(t, 100.0, cfg.Histogram.Max)
	assert.Equal(t, "data/busdelay.db", cfg.DatabaseDSN)
}

func TestLoad_Precedence(t *testing.T) {
	path := writeFile(t, "busdelay.yml", "data: from-yaml.csv\nport: 9000\nsampler:\n  chains: 3\n")
	envFile := writeFile(t, ".env", "BUSDELAY_DATA=from-dotenv.csv\nBUSDELAY_CHAINS=6\n")

	t.Setenv("BUSDELAY_DATA", "from-env.csv")
	// godotenv sets variables for the process; register cleanup for the one it adds
	t.Setenv("BUSDELAY_CHAINS", "")
	t.Setenv("BUSDELAY_LOG_LEVEL", "DEBUG")
	t.Setenv("BUSDELAY_ALLOWED_ORIGINS", "http://a,http://b")
	os.Unsetenv("BUSDELAY_CHAINS")

	cfg, err := Load(path, envFile)
	require.NoError(t, err)

	assert.Equal(t, "from-env.csv", cfg.DataPath, "environment beats .env and YAML")
	assert.Equal(t, 6, cfg.Sampler.Chains, ".env beats YAML")
	assert.Equal(t, 9000, cfg.Port, "YAML beats defaults")
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.AllowedOrigins)
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	t.Setenv("BUSDELAY_ITERATIONS", "lots")
	t.Setenv("BUSDELAY_RHAT_THRESHOLD", "1.05")

	cfg, err := Load("", filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, 2000, cfg.Sampler.Iterations)
	assert.Equal(t, 1.05, cfg.Diagnostics.RHatThreshold)
}

func TestLoad_Errors(t *testing.T) {
	noEnv := filepath.Join(t.TempDir(), "missing.env")

	t.Run("missing explicit file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yml"), noEnv)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := Load(writeFile(t, "bad.yml", "invalid: yaml: content: [[["), noEnv)
		assert.ErrorContains(t, err, "failed to parse config file")
	})

	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{"warmup not below iterations", "sampler:\n  iterations: 100\n  warmup: 100\n", "Warmup"},
		{"zero chains", "sampler:\n  chains: 0\n", "Chains"},
		{"non-positive prior scale", "priors:\n  intercept:\n    scale: -1\n", "Scale"},
		{"zero sigma rate", "priors:\n  sigma:\n    rate: 0\n", "Rate"},
		{"inverted histogram range", "histogram:\n  min: 50\n  max: 10\n", "Max"},
		{"unknown log level", "log_level: loud\n", "LogLevel"},
		{"rhat threshold at one", "diagnostics:\n  rhat_threshold: 1\n", "RHatThreshold"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "busdelay.yml", tt.yaml), noEnv)
			require.Error(t, err)

			var verrs validator.ValidationErrors
			require.True(t, errors.As(err, &verrs), "want validation errors, got %v", err)
			require.Len(t, verrs, 1)
			assert.Equal(t, tt.field, verrs[0].Field())
		})
	}
}
