package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// NormalPrior is a Normal(Location, Scale) prior
type NormalPrior struct {
	Location float64 `json:"location" yaml:"location"`
	Scale    float64 `json:"scale" yaml:"scale" validate:"gt=0"`
}

func (p NormalPrior) String() string {
	return fmt.Sprintf("Normal(%g, %g)", p.Location, p.Scale)
}

// ExponentialPrior is an Exponential(Rate) prior
type ExponentialPrior struct {
	Rate float64 `json:"rate" yaml:"rate" validate:"gt=0"`
}

func (p ExponentialPrior) String() string {
	return fmt.Sprintf("Exponential(%g)", p.Rate)
}

// PriorConfig holds the weakly informative priors of the regression.
// With Autoscale the scales are expressed in units of the data: the
// intercept scale is multiplied by sd(y), each coefficient scale by
// sd(y)/sd(x_j) and the sigma rate divided by sd(y).
type PriorConfig struct {
	Intercept    NormalPrior      `json:"intercept" yaml:"intercept"`
	Coefficients NormalPrior      `json:"coefficients" yaml:"coefficients"`
	Sigma        ExponentialPrior `json:"sigma" yaml:"sigma"`
	Autoscale    bool             `json:"autoscale" yaml:"autoscale"`
}

// DefaultPriors returns Normal(0, 2.5) on the intercept and every
// coefficient and Exponential(1) on sigma, autoscaled.
func DefaultPriors() PriorConfig {
	return PriorConfig{
		Intercept:    NormalPrior{Location: 0, Scale: 2.5},
		Coefficients: NormalPrior{Location: 0, Scale: 2.5},
		Sigma:        ExponentialPrior{Rate: 1},
		Autoscale:    true,
	}
}

func (pc PriorConfig) validate() []string {
	var problems []string
	check := func(name string, v float64) {
		if !(v > 0) || math.IsInf(v, 0) {
			problems = append(problems, fmt.Sprintf("%s must be positive and finite, got %v", name, v))
		}
	}
	check("intercept prior scale", pc.Intercept.Scale)
	check("coefficient prior scale", pc.Coefficients.Scale)
	check("sigma prior rate", pc.Sigma.Rate)
	if math.IsNaN(pc.Intercept.Location) || math.IsInf(pc.Intercept.Location, 0) {
		problems = append(problems, "intercept prior location must be finite")
	}
	if math.IsNaN(pc.Coefficients.Location) || math.IsInf(pc.Coefficients.Location, 0) {
		problems = append(problems, "coefficient prior location must be finite")
	}
	return problems
}

// AdjustedPriors are the priors actually handed to the sampler, one per
// parameter in model order, sigma last.
type AdjustedPriors struct {
	Coefficients []NormalPrior   `json:"coefficients"`
	Sigma        ExponentialPrior `json:"sigma"`
}

// adjust resolves the configured priors against the design. Columns with
// no spread keep the unscaled coefficient prior.
func (pc PriorConfig) adjust(d *Design) AdjustedPriors {
	_, k := d.X.Dims()
	out := AdjustedPriors{
		Coefficients: make([]NormalPrior, k),
		Sigma:        pc.Sigma,
	}

	ySD := 1.0
	if pc.Autoscale {
		if sd := stat.StdDev(d.Y, nil); sd > 0 {
			ySD = sd
		}
	}

	col := make([]float64, len(d.Y))
	for j := 0; j < k; j++ {
		if j == 0 {
			out.Coefficients[j] = NormalPrior{
				Location: pc.Intercept.Location,
				Scale:    pc.Intercept.Scale * ySD,
			}
			continue
		}

		scale := pc.Coefficients.Scale
		if pc.Autoscale {
			for i := range col {
				col[i] = d.X.At(i, j)
			}
			if xSD := stat.StdDev(col, nil); xSD > 0 {
				scale *= ySD / xSD
			}
		}
		out.Coefficients[j] = NormalPrior{Location: pc.Coefficients.Location, Scale: scale}
	}

	if pc.Autoscale {
		out.Sigma.Rate = pc.Sigma.Rate / ySD
	}
	return out
}
