package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ttc-bus-delays/busdelay/internal/analysis"
	"github.com/ttc-bus-delays/busdelay/internal/db"
	"github.com/ttc-bus-delays/busdelay/internal/diagnostics"
	"github.com/ttc-bus-delays/busdelay/internal/figures"
	"github.com/ttc-bus-delays/busdelay/internal/model"
	"github.com/ttc-bus-delays/busdelay/internal/pipeline"
	"github.com/ttc-bus-delays/busdelay/internal/report"
	"github.com/ttc-bus-delays/busdelay/internal/summary"
)

func describeCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "describe",
		Short: "Print descriptive statistics of the delay records",
		Long: `Loads the delay CSV and prints mean delay by day, incident frequencies,
the gap/delay OLS line and the delay histogram summary. No model is fitted.

Examples:
  busdelay describe
  busdelay describe --json > descriptives.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := pipeline.LoadData(a.cfg)
			if err != nil {
				return err
			}
			d := analysis.Describe(ds, a.cfg.Histogram)
			if asJSON {
				return printJSON(cmd.OutOrStdout(), d)
			}
			printDescriptives(cmd.OutOrStdout(), d)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of tables")
	return cmd
}

func fitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "fit",
		Short: "Fit the regression and cache the posterior draws",
		Long: `Fits min_delay ~ min_gap + incident + day with the configured priors and
sampler, stores the draws in the artifact store and prints the summary.
Older cached models beyond keep_models are removed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ds, err := pipeline.LoadData(a.cfg)
			if err != nil {
				return err
			}
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			start := time.Now()
			fm, err := pipeline.FitAndStore(ctx, a.cfg, store, ds)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s fitted model %s on %d records in %v\n",
				okMark, fm.ID(), fm.Observations(), time.Since(start).Round(time.Millisecond))
			printSummary(out, summary.Summarize(fm))
			return nil
		},
	}
}

func summarizeCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Print the posterior median/MAD table of the cached model",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			fm, err := store.LatestModel(ctx)
			if err != nil {
				return err
			}
			warnMismatch(cmd, fm, pipeline.Mismatch(fm, a.cfg, nil))
			s := summary.Summarize(fm)
			if asJSON {
				return printJSON(cmd.OutOrStdout(), s)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Model %s (%s)\n", fm.ID(), fm.CreatedAt().Format(time.RFC3339))
			printSummary(cmd.OutOrStdout(), s)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func diagnoseCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Check convergence and posterior predictive fit of the cached model",
		Long: `Computes split R-hat and effective sample size for every parameter and
replicates the data from the posterior. Parameters above the R-hat threshold
are flagged; this never fails the command.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ds, err := pipeline.LoadData(a.cfg)
			if err != nil {
				return err
			}
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			fm, err := store.LatestModel(ctx)
			if err != nil {
				return err
			}
			warnMismatch(cmd, fm, pipeline.Mismatch(fm, a.cfg, ds))
			r := diagnostics.Run(fm, ds, a.cfg.Diagnostics)
			if asJSON {
				return printJSON(cmd.OutOrStdout(), r)
			}
			printDiagnostics(cmd.OutOrStdout(), r)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func reportCmd(a *app) *cobra.Command {
	var (
		refit   bool
		ifStale bool
		raw     bool
		output  string
		width   int
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Run the whole pipeline and render the results report",
		Long: `Loads the data, reuses the cached model (fitting one when none exists or
--refit is given), summarizes, diagnoses, exports figure data and renders the
Markdown report.

Examples:
  busdelay report
  busdelay report --refit --out results.md
  busdelay report --raw | pandoc -o results.pdf
  busdelay report --if-stale     # skip when figures already match the cached model`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if ifStale && !refit && figuresFresh(ctx, a, store) {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s figures in %s are fresh, skipping\n", okMark, a.cfg.FiguresDir)
				return nil
			}

			ds, err := pipeline.LoadData(a.cfg)
			if err != nil {
				return err
			}

			res, err := pipeline.Report(ctx, a.cfg, store, ds, refit)
			if err != nil {
				return err
			}

			if output != "" {
				if err := os.WriteFile(output, []byte(res.Markdown), 0644); err != nil {
					return fmt.Errorf("failed to write report: %w", err)
				}
			}

			out := cmd.OutOrStdout()
			if raw {
				fmt.Fprint(out, res.Markdown)
			} else {
				rendered, err := report.Render(res.Markdown, width)
				if err != nil {
					return err
				}
				fmt.Fprint(out, rendered)
			}

			status := "cached"
			if res.Refitted {
				status = "new"
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %s model %s, %d figure files in %s\n",
				okMark, status, res.Model.ID(), len(res.Manifest.Files), a.cfg.FiguresDir)
			if output != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s report written to %s\n", okMark, output)
			}
			if !res.Diagnostics.Converged {
				color.New(color.FgYellow).Fprintf(cmd.ErrOrStderr(), "%s R-hat above %.2f for: %v\n",
					warnMark, res.Diagnostics.RHatThreshold, res.Diagnostics.Flagged)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&refit, "refit", false, "fit a new model even when one is cached")
	cmd.Flags().BoolVar(&ifStale, "if-stale", false, "do nothing when the figure export is fresh and matches the cached model")
	cmd.Flags().BoolVar(&raw, "raw", false, "print Markdown without terminal styling")
	cmd.Flags().StringVarP(&output, "out", "o", "", "also write the Markdown report to this file")
	cmd.Flags().IntVar(&width, "width", 100, "terminal word wrap width")
	return cmd
}

// figuresFresh reports whether the last export was made from the cached
// model within figures_max_age_days
func figuresFresh(ctx context.Context, a *app, store db.ArtifactStore) bool {
	maxAge := time.Duration(a.cfg.FiguresMaxAgeDays) * 24 * time.Hour
	if figures.IsStale(a.cfg.FiguresDir, maxAge) {
		return false
	}
	m, err := figures.ReadManifest(a.cfg.FiguresDir)
	if err != nil {
		return false
	}
	fm, err := store.LatestModel(ctx)
	if err != nil {
		return false
	}
	return m.ModelID == fm.ID() && len(pipeline.Mismatch(fm, a.cfg, nil)) == 0
}

// warnMismatch notes on stderr that the cached model was fitted on other
// data or settings; run fit or report to refresh it
func warnMismatch(cmd *cobra.Command, fm *model.FittedModel, diff []string) {
	if len(diff) == 0 {
		return
	}
	color.New(color.FgYellow).Fprintf(cmd.ErrOrStderr(), "%s cached model %s differs from the current run: %s\n",
		warnMark, fm.ID(), strings.Join(diff, "; "))
}
