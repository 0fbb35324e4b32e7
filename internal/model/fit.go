package model

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ttc-bus-delays/busdelay/internal/dataset"
	"github.com/ttc-bus-delays/busdelay/internal/logging"
	"github.com/ttc-bus-delays/busdelay/internal/sampler"
)

func (sc SamplerConfig) validate() []string {
	var problems []string
	if sc.Chains <= 0 {
		problems = append(problems, fmt.Sprintf("chain count must be positive, got %d", sc.Chains))
	}
	if sc.Iterations <= 0 {
		problems = append(problems, fmt.Sprintf("iteration count must be positive, got %d", sc.Iterations))
	}
	if sc.Warmup < 0 {
		problems = append(problems, fmt.Sprintf("warm-up must not be negative, got %d", sc.Warmup))
	} else if sc.Iterations > 0 && sc.Warmup >= sc.Iterations {
		problems = append(problems, fmt.Sprintf("warm-up (%d) must be less than iterations (%d)", sc.Warmup, sc.Iterations))
	}
	return problems
}

// Fit fits min_delay ~ min_gap + incident + day with Gaussian likelihood.
// Configuration problems yield *SamplerConfigError; a chain leaving the
// valid state yields *SamplerDivergenceError. Convergence quality is not
// judged here: a poorly mixed fit is still returned.
func Fit(ctx context.Context, ds *dataset.Dataset, priors PriorConfig, sc SamplerConfig) (*FittedModel, error) {
	problems := append(priors.validate(), sc.validate()...)
	if ds == nil || ds.Len() == 0 {
		problems = append(problems, "dataset has no records")
	}
	if len(problems) > 0 {
		return nil, &SamplerConfigError{Problems: problems}
	}

	design := Encode(ds)
	adjusted := priors.adjust(design)

	problem := &sampler.Problem{
		X:          design.X,
		Y:          design.Y,
		PriorMean:  make([]float64, len(adjusted.Coefficients)),
		PriorScale: make([]float64, len(adjusted.Coefficients)),
		SigmaRate:  adjusted.Sigma.Rate,
	}
	for j, p := range adjusted.Coefficients {
		problem.PriorMean[j] = p.Location
		problem.PriorScale[j] = p.Scale
	}

	logging.L().Infof("Fitter: %d records, %d coefficients, reference levels incident=%q day=%s",
		ds.Len(), len(design.Columns), design.ReferenceIncident, design.ReferenceDay)
	logging.L().Infof("Fitter: running %d chains x %d iterations (%d warm-up), seed %d",
		sc.Chains, sc.Iterations, sc.Warmup, sc.Seed)

	start := time.Now()
	res, err := sampler.Sample(ctx, problem, sampler.Config{
		Chains:     sc.Chains,
		Iterations: sc.Iterations,
		Warmup:     sc.Warmup,
		Seed:       sc.Seed,
	})
	if err != nil {
		var se *sampler.StateError
		if errors.As(err, &se) {
			return nil, &SamplerDivergenceError{Chain: se.Chain, Iteration: se.Iteration, Detail: se.Detail, Err: err}
		}
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, &SamplerConfigError{Problems: []string{err.Error()}}
	}
	logging.L().Infof("Fitter: sampling finished in %v", time.Since(start).Round(time.Millisecond))

	params := append(append([]string(nil), design.Columns...), ParamSigma)
	fm, err := FromSnapshot(Snapshot{
		ID:                uuid.New().String(),
		CreatedAt:         time.Now().UTC(),
		DataSource:        ds.Source(),
		DataFingerprint:   ds.Fingerprint(),
		Observations:      ds.Len(),
		Params:            params,
		ReferenceIncident: design.ReferenceIncident,
		ReferenceDay:      design.ReferenceDay.String(),
		Priors:            priors,
		Adjusted:          adjusted,
		Sampler:           sc,
		Stats:             res.Stats,
		Draws:             res.Draws,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to assemble fitted model: %w", err)
	}
	return fm, nil
}
