package model

import (
	"gonum.org/v1/gonum/mat"

	"github.com/ttc-bus-delays/busdelay/internal/dataset"
)

// Raw parameter names, matching the conventional regression output
const (
	ParamIntercept = "(Intercept)"
	ParamGap       = "min_gap"
	ParamSigma     = "sigma"

	incidentPrefix = "incident"
	dayPrefix      = "day"
)

// IncidentParam is the coefficient name for a non-reference incident
func IncidentParam(incident string) string {
	return incidentPrefix + incident
}

// DayParam is the coefficient name for a non-reference day
func DayParam(day dataset.Day) string {
	return dayPrefix + day.String()
}

// Design is the reference-level dummy encoding of a dataset:
// columns are intercept, min_gap, one per non-reference incident,
// one per non-reference day.
type Design struct {
	X                 *mat.Dense
	Y                 []float64
	Columns           []string
	ReferenceIncident string
	ReferenceDay      dataset.Day
	Incidents         []string      // non-reference incident levels, in column order
	Days              []dataset.Day // non-reference day levels, in column order
}

// Encode builds the design matrix. Only levels present in the data get a
// column. The reference incident is the alphabetically first one present;
// the reference day is the earliest weekday present (Monday when present).
// ds must not be empty.
func Encode(ds *dataset.Dataset) *Design {
	incidents := ds.Incidents()
	days := ds.Days()

	d := &Design{
		Columns: []string{ParamIntercept, ParamGap},
		Y:       ds.Delays(),
	}
	if len(incidents) > 0 {
		d.ReferenceIncident = incidents[0]
		d.Incidents = incidents[1:]
	}
	if len(days) > 0 {
		d.ReferenceDay = days[0]
		d.Days = days[1:]
	}

	incCol := make(map[string]int, len(d.Incidents))
	for _, inc := range d.Incidents {
		incCol[inc] = len(d.Columns)
		d.Columns = append(d.Columns, IncidentParam(inc))
	}
	dayCol := make(map[dataset.Day]int, len(d.Days))
	for _, day := range d.Days {
		dayCol[day] = len(d.Columns)
		d.Columns = append(d.Columns, DayParam(day))
	}

	n, k := ds.Len(), len(d.Columns)
	d.X = mat.NewDense(n, k, nil)
	for i := 0; i < n; i++ {
		r := ds.At(i)
		d.X.Set(i, 0, 1)
		d.X.Set(i, 1, r.MinGap)
		if j, ok := incCol[r.Incident]; ok {
			d.X.Set(i, j, 1)
		}
		if j, ok := dayCol[r.Day]; ok {
			d.X.Set(i, j, 1)
		}
	}
	return d
}
