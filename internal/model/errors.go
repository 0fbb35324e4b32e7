package model

import (
	"fmt"
	"strings"
)

// SamplerConfigError reports priors or sampler settings that cannot produce
// a posterior sample. Fatal to the fit.
type SamplerConfigError struct {
	Problems []string
}

func (e *SamplerConfigError) Error() string {
	return "invalid sampler configuration: " + strings.Join(e.Problems, "; ")
}

// SamplerDivergenceError reports a chain that failed to stay in a valid
// state. The sampler's diagnostic detail is carried through unchanged.
type SamplerDivergenceError struct {
	Chain     int
	Iteration int
	Detail    string
	Err       error
}

func (e *SamplerDivergenceError) Error() string {
	return fmt.Sprintf("sampler diverged in chain %d at iteration %d: %s", e.Chain, e.Iteration, e.Detail)
}

func (e *SamplerDivergenceError) Unwrap() error {
	return e.Err
}
