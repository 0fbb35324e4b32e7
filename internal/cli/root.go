package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ttc-bus-delays/busdelay/internal/config"
	"github.com/ttc-bus-delays/busdelay/internal/db"
	"github.com/ttc-bus-delays/busdelay/internal/logging"
	"github.com/ttc-bus-delays/busdelay/internal/version"
)

// app carries the resolved configuration to every subcommand
type app struct {
	configPath string
	cfg        *config.Config

	// flag values, applied over the loaded config when set
	dataPath   string
	database   string
	figuresDir string
	logLevel   string
	subsample  int
	chains     int
	iterations int
	warmup     int
	seed       uint64
}

// NewRootCmd builds the busdelay command tree
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:     "busdelay",
		Short:   "TTC bus delay analysis: descriptives, Bayesian regression and diagnostics",
		Version: version.String(),
		Long: `busdelay fits min_delay ~ min_gap + incident + day to the cleaned TTC bus
delay records and produces the tables, figure data and report of the study.

Configuration is read from busdelay.yml, .env, BUSDELAY_* environment
variables and flags, in increasing order of precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logging.Sync()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "config file (default busdelay.yml if present)")
	pf.StringVar(&a.dataPath, "data", "", "cleaned delay CSV")
	pf.StringVar(&a.database, "db", "", "artifact store: SQLite path or postgres:// URL")
	pf.StringVar(&a.figuresDir, "figures", "", "figure data output directory")
	pf.StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error")
	pf.IntVar(&a.subsample, "subsample", 0, "records to subsample after loading (0 keeps all)")
	pf.IntVar(&a.chains, "chains", 0, "Markov chains (must be positive, checked with the rest of the configuration)")
	pf.IntVar(&a.iterations, "iter", 0, "iterations per chain, including warm-up")
	pf.IntVar(&a.warmup, "warmup", 0, "warm-up iterations per chain")
	pf.Uint64Var(&a.seed, "seed", 0, "sampler seed")

	root.AddCommand(describeCmd(a))
	root.AddCommand(fitCmd(a))
	root.AddCommand(summarizeCmd(a))
	root.AddCommand(diagnoseCmd(a))
	root.AddCommand(reportCmd(a))
	root.AddCommand(serveCmd(a))
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("data") {
		cfg.DataPath = a.dataPath
	}
	if flags.Changed("db") {
		cfg.DatabaseDSN = a.database
	}
	if flags.Changed("figures") {
		cfg.FiguresDir = a.figuresDir
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = a.logLevel
	}
	if flags.Changed("subsample") {
		cfg.Subsample = a.subsample
	}
	if flags.Changed("chains") {
		cfg.Sampler.Chains = a.chains
	}
	if flags.Changed("iter") {
		cfg.Sampler.Iterations = a.iterations
	}
	if flags.Changed("warmup") {
		cfg.Sampler.Warmup = a.warmup
	}
	if flags.Changed("seed") {
		cfg.Sampler.Seed = a.seed
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logging.Init(cfg.LogLevel); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.cfg = cfg
	return nil
}

func (a *app) openStore(ctx context.Context) (db.ArtifactStore, error) {
	store, err := db.Open(ctx, a.cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact store: %w", err)
	}
	return store, nil
}
