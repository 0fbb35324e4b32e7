// Package diagnostics checks a fitted model: chain convergence (split R-hat,
// effective sample size), trace data for mixing plots, posterior predictive
// replicates and prior/posterior comparisons.
//
// Everything here is advisory. A poorly converged fit is reported, never
// turned into an error.
package diagnostics

import (
	"fmt"

	"github.com/ttc-bus-delays/busdelay/internal/dataset"
	"github.com/ttc-bus-delays/busdelay/internal/logging"
	"github.com/ttc-bus-delays/busdelay/internal/metrics"
	"github.com/ttc-bus-delays/busdelay/internal/model"
	"github.com/ttc-bus-delays/busdelay/internal/sampler"
	"github.com/ttc-bus-delays/busdelay/internal/summary"
)

// Config controls the diagnostics run
type Config struct {
	RHatThreshold float64 `yaml:"rhat_threshold" validate:"gt=1"` // R-hat above this is flagged
	PPCDraws      int     `yaml:"ppc_draws" validate:"gt=0"`      // posterior draws used for replicated datasets
	PriorDraws    int     `yaml:"prior_draws" validate:"gt=0"`    // draws per parameter for the prior comparison
	Seed          uint64  `yaml:"seed"`
}

// DefaultConfig flags R-hat above 1.1 and replicates 100 datasets
func DefaultConfig() Config {
	return Config{RHatThreshold: 1.1, PPCDraws: 100, PriorDraws: 1000, Seed: 987}
}

// ParamDiagnostics are the convergence indicators of one parameter
type ParamDiagnostics struct {
	Param   string        `json:"param"`
	Label   string        `json:"label"`
	RHat    metrics.Float `json:"rhat"`
	ESS     metrics.Float `json:"ess"`
	Flagged bool          `json:"flagged"`
}

// Report is the full diagnostics output
type Report struct {
	ModelID       string               `json:"modelId"`
	Chains        int                  `json:"chains"`
	DrawsPerChain int                  `json:"drawsPerChain"`
	RHatThreshold float64              `json:"rhatThreshold"`
	Params        []ParamDiagnostics   `json:"params"`
	Flagged       []string             `json:"flagged"`
	Converged     bool                 `json:"converged"`
	Predictive    *PosteriorPredictive `json:"posteriorPredictive"`
	Sampler       []sampler.ChainStats `json:"sampler"`
}

// Run computes convergence diagnostics and the posterior predictive check.
// Flagged parameters are logged as warnings and listed in the report.
func Run(fm *model.FittedModel, ds *dataset.Dataset, cfg Config) *Report {
	r := &Report{
		ModelID:       fm.ID(),
		Chains:        fm.Chains(),
		DrawsPerChain: fm.DrawsPerChain(),
		RHatThreshold: cfg.RHatThreshold,
		Flagged:       []string{},
		Sampler:       fm.Stats(),
	}

	for _, p := range fm.Params() {
		chains, _ := fm.ChainDraws(p)
		rhat := RHat(chains)
		pd := ParamDiagnostics{
			Param: p,
			Label: summary.Label(p),
			RHat:  metrics.Float(rhat),
			ESS:   metrics.Float(ESS(chains)),
		}
		// NaN (chains too short) is treated as not converged
		if !(rhat <= cfg.RHatThreshold) {
			pd.Flagged = true
			r.Flagged = append(r.Flagged, p)
			logging.L().Warnf("Diagnostics: %s R-hat %.3f exceeds %.2f", p, rhat, cfg.RHatThreshold)
		}
		r.Params = append(r.Params, pd)
	}
	r.Converged = len(r.Flagged) == 0

	r.Predictive = Replicate(fm, ds, cfg.PPCDraws, cfg.Seed)
	logging.L().Infof("Diagnostics: %d replicated datasets, mean %.2f vs observed %.2f",
		r.Predictive.Draws, r.Predictive.MeanOfMeans, r.Predictive.ObservedMean)
	return r
}

// Get returns the diagnostics of one parameter
func (r *Report) Get(param string) (ParamDiagnostics, bool) {
	for _, p := range r.Params {
		if p.Param == param {
			return p, true
		}
	}
	return ParamDiagnostics{}, false
}

// Trace returns the per-chain draw sequence of a parameter for mixing plots
func Trace(fm *model.FittedModel, param string) ([][]float64, error) {
	chains, ok := fm.ChainDraws(param)
	if !ok {
		return nil, fmt.Errorf("unknown parameter %q", param)
	}
	return chains, nil
}
