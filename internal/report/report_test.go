package report

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ttc-bus-delays/busdelay/internal/analysis"
	"github.com/ttc-bus-delays/busdelay/internal/dataset"
	"github.com/ttc-bus-delays/busdelay/internal/diagnostics"
	"github.com/ttc-bus-delays/busdelay/internal/metrics"
	"github.com/ttc-bus-delays/busdelay/internal/summary"
)

func input(flagged bool) Input {
	ds := dataset.New([]dataset.DelayRecord{
		{Incident: dataset.IncidentMechanical, Day: dataset.Monday, MinGap: 10, MinDelay: 10},
		{Incident: dataset.IncidentDiversion, Day: dataset.Saturday, MinGap: 20, MinDelay: 5},
		{Incident: dataset.IncidentDiversion, Day: dataset.Sunday, MinGap: 30, MinDelay: 1},
	})
	desc := analysis.Describe(ds, analysis.DefaultHistogramConfig())

	diag := &diagnostics.Report{
		ModelID:       "abc",
		Chains:        4,
		DrawsPerChain: 1000,
		RHatThreshold: 1.1,
		Params: []diagnostics.ParamDiagnostics{
			{Param: "min_gap", Label: "Inter-Bus Gap", RHat: metrics.Float(1.002), ESS: metrics.Float(3850)},
			{Param: "sigma", Label: "Residual SD (σ)", RHat: metrics.Float(math.NaN()), ESS: metrics.Float(math.NaN())},
		},
		Flagged:   []string{},
		Converged: true,
		Predictive: &diagnostics.PosteriorPredictive{
			Draws: 100, ObservedMean: 5.33, MeanOfMeans: 5.4, ObservedVariance: 20.3, MeanOfVariances: 21,
			PValueMean: 0.55, PValueVariance: 0.48,
		},
	}
	if flagged {
		diag.Params[1].Flagged = true
		diag.Flagged = []string{"sigma"}
		diag.Converged = false
	}

	return Input{
		DataSource:        "data/ttc_bus_delays.csv",
		Observations:      3,
		ModelID:           "abc",
		FittedAt:          time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC),
		ReferenceIncident: dataset.IncidentDiversion,
		ReferenceDay:      "Monday",
		Summary: &summary.PosteriorSummary{ModelID: "abc", Rows: []summary.Row{
			{Param: "(Intercept)", Label: "Intercept", Median: 8.01, MAD: 0.2, Lower95: 7.6, Upper95: 8.4},
			{Param: "min_gap", Label: "Inter-Bus Gap", Median: 0.5, MAD: 0.01, Lower95: 0.48, Upper95: 0.52},
		}},
		Diagnostics:  diag,
		Descriptives: &desc,
	}
}

func TestMarkdown_Sections(t *testing.T) {
	md, err := Markdown(input(false))
	require.NoError(t, err)

	assert.Contains(t, md, "# TTC Bus Delays")
	assert.Contains(t, md, "fitted 2024-05-01 09:30 UTC")
	assert.Contains(t, md, "Reference levels: incident Diversion, day Monday.")
	assert.Contains(t, md, "| Inter-Bus Gap | 0.50 | 0.01 | [0.48, 0.52] |")
	assert.Contains(t, md, "All parameters have R-hat at or below 1.10.")
	assert.Contains(t, md, "| Inter-Bus Gap | 1.002 | 3850 |  |")
	assert.Contains(t, md, "| Residual SD (σ) | NA | NA |  |")
	assert.Contains(t, md, "| Mean delay | 5.33 | 5.40 | 0.55 |")
	assert.Contains(t, md, "| Tuesday | 0 | NA |")
	assert.Contains(t, md, "| Monday | 1 | 10.00 |")
	assert.NotContains(t, md, "Warning")
}

func TestMarkdown_FlaggedParameters(t *testing.T) {
	md, err := Markdown(input(true))
	require.NoError(t, err)

	assert.Contains(t, md, "**Warning:** 1 parameter(s) exceed R-hat 1.10: sigma.")
	assert.Contains(t, md, "| Residual SD (σ) | NA | NA | **flagged** |")
	assert.NotContains(t, md, "All parameters have R-hat")
}

func TestMarkdown_OptionalSections(t *testing.T) {
	md, err := Markdown(Input{Title: "Summary only", Observations: 10})
	require.NoError(t, err)

	assert.Contains(t, md, "# Summary only")
	assert.Contains(t, md, "in-memory dataset, 10 observations.")
	assert.NotContains(t, md, "## Model results")
	assert.NotContains(t, md, "## Convergence")
	assert.NotContains(t, md, "## Data")
}

func TestMarkdown_EscapesPipes(t *testing.T) {
	in := input(false)
	in.Summary.Rows[0].Label = "a|b"

	md, err := Markdown(in)
	require.NoError(t, err)
	assert.Contains(t, md, `| a\|b |`)
}

func TestRender(t *testing.T) {
	md, err := Markdown(input(true))
	require.NoError(t, err)

	out, err := Render(md, 100)
	require.NoError(t, err)
	assert.Contains(t, out, "Model results")
	assert.Contains(t, out, "Warning")
}
