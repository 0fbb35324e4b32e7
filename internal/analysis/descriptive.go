// Package analysis derives the exploratory views of the delay data that
// back the report's descriptive figures.
package analysis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/ttc-bus-delays/busdelay/internal/dataset"
	"github.com/ttc-bus-delays/busdelay/internal/metrics"
)

// HistogramConfig controls the clipped delay histogram
type HistogramConfig struct {
	BinWidth float64 `yaml:"bin_width" validate:"gt=0"`  // minutes per bin
	Min      float64 `yaml:"min"`                        // lower edge of the displayed range
	Max      float64 `yaml:"max" validate:"gtfield=Min"` // upper edge of the displayed range
}

// DefaultHistogramConfig is 5-minute bins over [0, 100]
func DefaultHistogramConfig() HistogramConfig {
	return HistogramConfig{BinWidth: 5, Min: 0, Max: 100}
}

// Bin is one histogram bucket [Lower, Upper)
type Bin struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Count int     `json:"count"`
}

// Histogram is the clipped distribution of min_delay
type Histogram struct {
	Bins     []Bin `json:"bins"`
	Excluded int   `json:"excluded"` // records outside [Min, Max]
}

// DayMean is the mean delay for one day of the week
type DayMean struct {
	Day   string        `json:"day"`
	Count int           `json:"count"`
	Mean  metrics.Float `json:"mean"` // NaN when Count is 0
}

// Point is one (min_gap, min_delay) observation
type Point struct {
	Gap   float64 `json:"gap"`
	Delay float64 `json:"delay"`
}

// Scatter holds the gap/delay pairs and their least-squares line
type Scatter struct {
	Points    []Point       `json:"points"`
	Slope     metrics.Float `json:"slope"`
	Intercept metrics.Float `json:"intercept"`
}

// IncidentCount is the number of records for one incident category
type IncidentCount struct {
	Incident string `json:"incident"`
	Count    int    `json:"count"`
}

// Descriptives bundles every exploratory view of a dataset
type Descriptives struct {
	Records        int             `json:"records"`
	DelayHistogram Histogram       `json:"delayHistogram"`
	DayMeans       []DayMean       `json:"dayMeans"`
	GapScatter     Scatter         `json:"gapScatter"`
	IncidentCounts []IncidentCount `json:"incidentCounts"`
}

// Describe computes all descriptive summaries. The dataset is not modified.
func Describe(ds *dataset.Dataset, hc HistogramConfig) Descriptives {
	return Descriptives{
		Records:        ds.Len(),
		DelayHistogram: DelayHistogram(ds, hc),
		DayMeans:       MeanDelayByDay(ds),
		GapScatter:     GapScatter(ds),
		IncidentCounts: CountByIncident(ds),
	}
}

// DelayHistogram buckets min_delay into fixed-width bins over [Min, Max].
// Bins are half-open except the last, which also holds values equal to Max.
// An invalid config (non-positive width or empty range) yields no bins.
func DelayHistogram(ds *dataset.Dataset, hc HistogramConfig) Histogram {
	if hc.BinWidth <= 0 || hc.Max <= hc.Min {
		return Histogram{Excluded: ds.Len()}
	}

	nBins := int(math.Ceil((hc.Max - hc.Min) / hc.BinWidth))
	bins := make([]Bin, nBins)
	for i := range bins {
		bins[i].Lower = hc.Min + float64(i)*hc.BinWidth
		bins[i].Upper = math.Min(bins[i].Lower+hc.BinWidth, hc.Max)
	}

	h := Histogram{Bins: bins}
	for i := 0; i < ds.Len(); i++ {
		v := ds.At(i).MinDelay
		if v < hc.Min || v > hc.Max {
			h.Excluded++
			continue
		}
		idx := int((v - hc.Min) / hc.BinWidth)
		if idx >= nBins {
			idx = nBins - 1
		}
		h.Bins[idx].Count++
	}
	return h
}

// MeanDelayByDay returns one entry per weekday, Monday first.
// Days without records get a zero count and a NaN mean.
func MeanDelayByDay(ds *dataset.Dataset) []DayMean {
	var acc [7]metrics.WelfordState
	for i := 0; i < ds.Len(); i++ {
		r := ds.At(i)
		acc[r.Day].Update(r.MinDelay)
	}

	out := make([]DayMean, 0, 7)
	for _, day := range dataset.AllDays() {
		out = append(out, DayMean{
			Day:   day.String(),
			Count: acc[day].GetCount(),
			Mean:  metrics.Float(acc[day].GetMean()),
		})
	}
	return out
}

// GapScatter returns the raw (gap, delay) pairs with an ordinary
// least-squares fit of delay on gap. Slope and intercept are NaN when
// the gaps have no spread.
func GapScatter(ds *dataset.Dataset) Scatter {
	gaps := ds.Gaps()
	delays := ds.Delays()

	points := make([]Point, len(gaps))
	for i := range gaps {
		points[i] = Point{Gap: gaps[i], Delay: delays[i]}
	}

	s := Scatter{Points: points, Slope: metrics.Float(math.NaN()), Intercept: metrics.Float(math.NaN())}
	if len(gaps) < 2 || stat.Variance(gaps, nil) == 0 {
		return s
	}
	alpha, beta := stat.LinearRegression(gaps, delays, nil, false)
	s.Intercept, s.Slope = metrics.Float(alpha), metrics.Float(beta)
	return s
}

// CountByIncident counts records per incident category. Every category
// present appears once; known categories with no records are kept with a
// zero count so the axis stays complete. Sorted by count, then name.
func CountByIncident(ds *dataset.Dataset) []IncidentCount {
	counts := make(map[string]int)
	for _, inc := range dataset.KnownIncidents {
		counts[inc] = 0
	}
	for i := 0; i < ds.Len(); i++ {
		counts[ds.At(i).Incident]++
	}

	out := make([]IncidentCount, 0, len(counts))
	for inc, n := range counts {
		out = append(out, IncidentCount{Incident: inc, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Incident < out[j].Incident
	})
	return out
}
