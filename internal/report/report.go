// Package report assembles the Markdown results report: the posterior
// summary table, convergence diagnostics, the posterior predictive check and
// the descriptive tables.
package report

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"text/template"
	"time"

	"github.com/charmbracelet/glamour"

	"github.com/ttc-bus-delays/busdelay/internal/analysis"
	"github.com/ttc-bus-delays/busdelay/internal/diagnostics"
	"github.com/ttc-bus-delays/busdelay/internal/summary"
)

// Input is what the report is built from. Descriptives and Diagnostics are
// optional sections.
type Input struct {
	Title             string
	DataSource        string
	Observations      int
	ModelID           string
	FittedAt          time.Time
	ReferenceIncident string
	ReferenceDay      string
	Summary           *summary.PosteriorSummary
	Diagnostics       *diagnostics.Report
	Descriptives      *analysis.Descriptives
}

var funcs = template.FuncMap{
	"num": func(v float64) string {
		if math.IsNaN(v) {
			return "NA"
		}
		if math.IsInf(v, 0) {
			return "Inf"
		}
		return fmt.Sprintf("%.2f", v)
	},
	"num3": func(v float64) string {
		if math.IsNaN(v) {
			return "NA"
		}
		return fmt.Sprintf("%.3f", v)
	},
	"int": func(v float64) string {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "NA"
		}
		return fmt.Sprintf("%.0f", v)
	},
	"cell": func(s string) string { return strings.ReplaceAll(s, "|", `\|`) },
	"date": func(t time.Time) string {
		if t.IsZero() {
			return "unknown"
		}
		return t.UTC().Format("2006-01-02 15:04 UTC")
	},
	"join": strings.Join,
}

var tmpl = template.Must(template.New("report").Funcs(funcs).Parse(reportTemplate))

const reportTemplate = `# {{ .Title }}

Data: {{ if .DataSource }}` + "`{{ .DataSource }}`" + `{{ else }}in-memory dataset{{ end }}, {{ .Observations }} observations.
{{- if .ModelID }}
Model ` + "`{{ .ModelID }}`" + `, fitted {{ date .FittedAt }}.
{{- end }}
{{- if .Summary }}

## Model results

Posterior median and median absolute deviation (MAD) for
` + "`min_delay ~ min_gap + incident + day`" + `.
{{- if or .ReferenceIncident .ReferenceDay }} Reference levels: incident {{ .ReferenceIncident }}, day {{ .ReferenceDay }}.{{ end }}

| Parameter | Median | MAD | 95% interval |
|---|---:|---:|---|
{{- range .Summary.Rows }}
| {{ cell .Label }} | {{ num .Median }} | {{ num .MAD }} | [{{ num .Lower95 }}, {{ num .Upper95 }}] |
{{- end }}
{{- end }}
{{- with .Diagnostics }}

## Convergence

{{ .Chains }} chains, {{ .DrawsPerChain }} draws each after warm-up.
{{- if .Converged }}
All parameters have R-hat at or below {{ num .RHatThreshold }}.
{{- else }}

> **Warning:** {{ len .Flagged }} parameter(s) exceed R-hat {{ num .RHatThreshold }}: {{ join .Flagged ", " }}.
> The chains may not have converged; treat these estimates with caution.
{{- end }}

| Parameter | R-hat | ESS | |
|---|---:|---:|---|
{{- range .Params }}
| {{ cell .Label }} | {{ num3 .RHat.Value }} | {{ int .ESS.Value }} | {{ if .Flagged }}**flagged**{{ end }} |
{{- end }}
{{- with .Predictive }}

## Posterior predictive check

{{ .Draws }} replicated datasets drawn from the posterior.

| Statistic | Observed | Replicated (mean) | P(rep >= obs) |
|---|---:|---:|---:|
| Mean delay | {{ num .ObservedMean }} | {{ num .MeanOfMeans }} | {{ num .PValueMean }} |
| Delay variance | {{ num .ObservedVariance }} | {{ num .MeanOfVariances }} | {{ num .PValueVariance }} |
{{- end }}
{{- end }}
{{- with .Descriptives }}

## Data

### Mean delay by day

| Day | Records | Mean delay (min) |
|---|---:|---:|
{{- range .DayMeans }}
| {{ .Day }} | {{ .Count }} | {{ num .Mean.Value }} |
{{- end }}

### Incidents

| Incident | Records |
|---|---:|
{{- range .IncidentCounts }}
| {{ cell .Incident }} | {{ .Count }} |
{{- end }}

Inter-bus gap vs delay (OLS): slope {{ num .GapScatter.Slope.Value }}, intercept {{ num .GapScatter.Intercept.Value }}.
{{ .DelayHistogram.Excluded }} records fall outside the delay histogram range.
{{- end }}
`

// Markdown renders the report as Markdown
func Markdown(in Input) (string, error) {
	if in.Title == "" {
		in.Title = "TTC Bus Delays"
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, in); err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}
	return buf.String(), nil
}

// Render pretty-prints Markdown for a terminal of the given width
func Render(markdown string, width int) (string, error) {
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create renderer: %w", err)
	}
	out, err := r.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return out, nil
}
