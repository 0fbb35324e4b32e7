package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ttc-bus-delays/busdelay/internal/analysis"
	"github.com/ttc-bus-delays/busdelay/internal/diagnostics"
	"github.com/ttc-bus-delays/busdelay/internal/model"
)

// DefaultFile is read when no config file is given and it exists
const DefaultFile = "busdelay.yml"

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "BUSDELAY_"

// Config holds all configuration for the pipeline
type Config struct {
	// Input and outputs
	DataPath    string `yaml:"data" validate:"required"`
	DatabaseDSN string `yaml:"database" validate:"required"`
	FiguresDir  string `yaml:"figures_dir" validate:"required"`

	// Fixed-size random subsample drawn once after loading; 0 keeps every record
	Subsample     int    `yaml:"subsample" validate:"gte=0"`
	SubsampleSeed uint64 `yaml:"subsample_seed"`

	Priors      model.PriorConfig        `yaml:"priors"`
	Sampler     model.SamplerConfig      `yaml:"sampler"`
	Histogram   analysis.HistogramConfig `yaml:"histogram"`
	Diagnostics diagnostics.Config       `yaml:"diagnostics"`

	// Artifact retention and figure refresh
	KeepModels        int `yaml:"keep_models" validate:"gte=1"`
	FiguresMaxAgeDays int `yaml:"figures_max_age_days" validate:"gte=0"`

	// Read API
	Port           int      `yaml:"port" validate:"gt=0,lte=65535"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`
}

// Defaults returns the configuration used when nothing is overridden
func Defaults() *Config {
	return &Config{
		DataPath:          "data/ttc_bus_delays.csv",
		DatabaseDSN:       "data/busdelay.db",
		FiguresDir:        "out/figures",
		Subsample:         2000,
		SubsampleSeed:     987,
		Priors:            model.DefaultPriors(),
		Sampler:           model.DefaultSamplerConfig(),
		Histogram:         analysis.DefaultHistogramConfig(),
		Diagnostics:       diagnostics.DefaultConfig(),
		KeepModels:        5,
		FiguresMaxAgeDays: 7,
		Port:              8081,
		LogLevel:          "info",
	}
}

// Load builds the configuration from, in increasing precedence, defaults,
// the YAML file, .env files and the environment. path may be empty, in
// which case DefaultFile is used if present. envFiles default to ".env";
// values already in the environment win over .env entries.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Defaults()

	file, required := path, true
	if file == "" {
		file, required = DefaultFile, false
	}
	if err := cfg.readFile(file, required); err != nil {
		return nil, err
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// a missing .env is normal
		_ = godotenv.Load(f)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !required {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.DataPath = getEnv("DATA", c.DataPath)
	c.DatabaseDSN = getEnv("DATABASE", c.DatabaseDSN)
	c.FiguresDir = getEnv("FIGURES_DIR", c.FiguresDir)
	c.Subsample = getEnvInt("SUBSAMPLE", c.Subsample)

	c.Sampler.Chains = getEnvInt("CHAINS", c.Sampler.Chains)
	c.Sampler.Iterations = getEnvInt("ITERATIONS", c.Sampler.Iterations)
	c.Sampler.Warmup = getEnvInt("WARMUP", c.Sampler.Warmup)
	c.Sampler.Seed = getEnvUint("SEED", c.Sampler.Seed)

	c.Diagnostics.RHatThreshold = getEnvFloat("RHAT_THRESHOLD", c.Diagnostics.RHatThreshold)
	c.Diagnostics.PPCDraws = getEnvInt("PPC_DRAWS", c.Diagnostics.PPCDraws)

	c.KeepModels = getEnvInt("KEEP_MODELS", c.KeepModels)
	c.Port = getEnvInt("PORT", c.Port)
	if origins := getEnv("ALLOWED_ORIGINS", ""); origins != "" {
		c.AllowedOrigins = strings.Split(origins, ",")
	}
	c.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", c.LogLevel))
}

// Validate checks every field constraint, including the nested prior,
// sampler, histogram and diagnostics settings
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvUint(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if v, err := strconv.ParseUint(value, 10, 64); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			return v
		}
	}
	return defaultValue
}
