// Package datasettest generates delay data from a known linear model for tests.
package datasettest

import (
	"math/rand/v2"

	"github.com/ttc-bus-delays/busdelay/internal/dataset"
)

// Truth is the generating model used by Synthetic
var Truth = struct {
	Intercept float64
	Gap       float64
	Incident  map[string]float64
	Day       map[dataset.Day]float64
	Sigma     float64
}{
	Intercept: 8,
	Gap:       0.5,
	Incident: map[string]float64{
		dataset.IncidentDiversion:  0,
		dataset.IncidentMechanical: 3,
		dataset.IncidentSecurity:   -2,
	},
	Day: map[dataset.Day]float64{
		dataset.Monday:   0,
		dataset.Saturday: 1.5,
		dataset.Sunday:   -1,
	},
	Sigma: 4,
}

var (
	incidents = []string{dataset.IncidentDiversion, dataset.IncidentMechanical, dataset.IncidentSecurity}
	days      = []dataset.Day{dataset.Monday, dataset.Saturday, dataset.Sunday}
)

// Synthetic returns n records drawn from Truth. Gaps are uniform on [2, 30].
func Synthetic(n int, seed uint64) *dataset.Dataset {
	rng := rand.New(rand.NewPCG(seed, 11))
	records := make([]dataset.DelayRecord, n)
	for i := range records {
		inc := incidents[rng.IntN(len(incidents))]
		day := days[rng.IntN(len(days))]
		gap := 2 + 28*rng.Float64()
		mu := Truth.Intercept + Truth.Gap*gap + Truth.Incident[inc] + Truth.Day[day]
		records[i] = dataset.DelayRecord{
			Incident: inc,
			Day:      day,
			MinGap:   gap,
			MinDelay: mu + Truth.Sigma*rng.NormFloat64(),
		}
	}
	return dataset.New(records)
}
