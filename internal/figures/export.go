// Package figures writes the data behind every report figure as JSON files
// with a manifest, for the external document renderer to plot.
package figures

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ttc-bus-delays/busdelay/internal/analysis"
	"github.com/ttc-bus-delays/busdelay/internal/diagnostics"
	"github.com/ttc-bus-delays/busdelay/internal/logging"
	"github.com/ttc-bus-delays/busdelay/internal/summary"
)

// GeneratorVersion is bumped whenever a figure file changes shape; older
// exports are then considered stale
const GeneratorVersion = "1"

// ManifestName is the manifest file written next to the figures
const ManifestName = "manifest.json"

// MaxReplicateLines caps the replicated datasets written for the
// posterior predictive overlay
const MaxReplicateLines = 50

// Figure file names
const (
	DelayHistogram      = "delay_histogram.json"
	DelayByDay          = "delay_by_day.json"
	GapScatter          = "gap_scatter.json"
	IncidentFrequency   = "incident_frequency.json"
	PosteriorSummary    = "posterior_summary.json"
	PosteriorPredictive = "posterior_predictive.json"
	PriorPosterior      = "prior_posterior.json"
	Trace               = "trace.json"
	RHat                = "rhat.json"
)

// Bundle is everything a report run produced. Nil parts are skipped.
type Bundle struct {
	ModelID        string
	DataSource     string
	Descriptives   *analysis.Descriptives
	Summary        *summary.PosteriorSummary
	Diagnostics    *diagnostics.Report
	PriorPosterior []diagnostics.PriorPosterior
	Traces         map[string][][]float64 // param -> chain -> draws
}

// ManifestFile describes one exported figure
type ManifestFile struct {
	Name   string `json:"name"`
	Bytes  int    `json:"bytes"`
	SHA256 string `json:"sha256"`
}

// Manifest represents the manifest.json structure
type Manifest struct {
	GeneratedAt      string         `json:"generated_at"`
	GeneratorVersion string         `json:"generator_version"`
	ModelID          string         `json:"model_id,omitempty"`
	DataSource       string         `json:"data_source,omitempty"`
	Files            []ManifestFile `json:"files"`
}

type predictiveFigure struct {
	*diagnostics.PosteriorPredictive
	Replicates [][]float64 `json:"replicates"`
}

type traceFigure struct {
	Param  string      `json:"param"`
	Label  string      `json:"label"`
	Chains [][]float64 `json:"chains"`
}

// Export writes each available figure into dir and the manifest last, so a
// manifest only exists for a complete export
func Export(dir string, b Bundle) (*Manifest, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create figures directory: %w", err)
	}

	m := &Manifest{
		GeneratedAt:      time.Now().UTC().Format(time.RFC3339),
		GeneratorVersion: GeneratorVersion,
		ModelID:          b.ModelID,
		DataSource:       b.DataSource,
	}
	add := func(name string, v interface{}) error {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
		m.Files = append(m.Files, ManifestFile{Name: name, Bytes: len(data), SHA256: sha256Sum(data)})
		return nil
	}

	type figure struct {
		name string
		v    interface{}
	}
	var figs []figure
	push := func(name string, v interface{}) {
		figs = append(figs, figure{name, v})
	}

	if d := b.Descriptives; d != nil {
		push(DelayHistogram, d.DelayHistogram)
		push(DelayByDay, d.DayMeans)
		push(GapScatter, d.GapScatter)
		push(IncidentFrequency, d.IncidentCounts)
	}
	if b.Summary != nil {
		push(PosteriorSummary, b.Summary)
	}
	if r := b.Diagnostics; r != nil {
		push(RHat, r.Params)
		if r.Predictive != nil {
			reps := r.Predictive.Replicates
			if len(reps) > MaxReplicateLines {
				reps = reps[:MaxReplicateLines]
			}
			push(PosteriorPredictive, predictiveFigure{PosteriorPredictive: r.Predictive, Replicates: reps})
		}
	}
	if b.PriorPosterior != nil {
		push(PriorPosterior, b.PriorPosterior)
	}
	if len(b.Traces) > 0 {
		push(Trace, traces(b.Traces))
	}

	for _, f := range figs {
		if err := add(f.name, f.v); err != nil {
			return nil, err
		}
	}

	if err := writeJSON(filepath.Join(dir, ManifestName), m); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}
	logging.L().Infof("Figures: wrote %d files to %s", len(m.Files), dir)
	return m, nil
}

// traces orders trace figures by parameter name for stable output
func traces(in map[string][][]float64) []traceFigure {
	out := make([]traceFigure, 0, len(in))
	for p, chains := range in {
		out = append(out, traceFigure{Param: p, Label: summary.Label(p), Chains: chains})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Param < out[j].Param })
	return out
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func sha256Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
