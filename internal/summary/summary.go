// Package summary turns posterior draws into the report's results table.
package summary

import (
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/ttc-bus-delays/busdelay/internal/model"
)

// MADScale makes the median absolute deviation consistent with the
// standard deviation of a normal distribution.
const MADScale = 1.4826

var labels = map[string]string{
	model.ParamIntercept: "Intercept",
	model.ParamGap:       "Inter-Bus Gap",
	model.ParamSigma:     "Residual SD (σ)",
}

// Label maps a raw parameter name to its display label. Incident and day
// dummies are labelled by level; anything else keeps its raw name.
func Label(param string) string {
	if l, ok := labels[param]; ok {
		return l
	}
	if level, ok := strings.CutPrefix(param, "incident"); ok && level != "" {
		return "Incident: " + level
	}
	if level, ok := strings.CutPrefix(param, "day"); ok && level != "" {
		return "Day: " + level
	}
	return param
}

// Row is the summary of one parameter
type Row struct {
	Param    string  `json:"param"`
	Label    string  `json:"label"`
	Median   float64 `json:"median"`
	MAD      float64 `json:"mad"` // scaled by MADScale
	Lower95  float64 `json:"lower95"`
	Upper95  float64 `json:"upper95"`
	NumDraws int     `json:"numDraws"`
}

// PosteriorSummary is the results table, rows in model parameter order
type PosteriorSummary struct {
	ModelID string `json:"modelId"`
	Rows    []Row  `json:"rows"`
}

// Get returns the row of a parameter
func (s *PosteriorSummary) Get(param string) (Row, bool) {
	for _, r := range s.Rows {
		if r.Param == param {
			return r, true
		}
	}
	return Row{}, false
}

// Summarize computes median, scaled MAD and a central 95% interval for every parameter
func Summarize(fm *model.FittedModel) *PosteriorSummary {
	params := fm.Params()
	out := &PosteriorSummary{ModelID: fm.ID(), Rows: make([]Row, 0, len(params))}

	for _, p := range params {
		draws, _ := fm.PooledDraws(p)
		sort.Float64s(draws)
		med := Median(draws)

		out.Rows = append(out.Rows, Row{
			Param:    p,
			Label:    Label(p),
			Median:   med,
			MAD:      MADScale * medianAbsDev(draws, med),
			Lower95:  stat.Quantile(0.025, stat.LinInterp, draws, nil),
			Upper95:  stat.Quantile(0.975, stat.LinInterp, draws, nil),
			NumDraws: len(draws),
		})
	}
	return out
}

// Median of sorted values; the mean of the two middle values for even n.
func Median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func medianAbsDev(sorted []float64, med float64) float64 {
	dev := make([]float64, len(sorted))
	for i, v := range sorted {
		dev[i] = math.Abs(v - med)
	}
	sort.Float64s(dev)
	return Median(dev)
}
