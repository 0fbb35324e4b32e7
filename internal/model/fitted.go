package model

import (
	"fmt"
	"time"

	"github.com/ttc-bus-delays/busdelay/internal/dataset"
	"github.com/ttc-bus-delays/busdelay/internal/sampler"
)

// SamplerConfig controls the Markov chains
type SamplerConfig struct {
	Chains     int    `json:"chains" yaml:"chains" validate:"gt=0"`
	Iterations int    `json:"iterations" yaml:"iterations" validate:"gt=0"`
	Warmup     int    `json:"warmup" yaml:"warmup" validate:"gte=0,ltfield=Iterations"`
	Seed       uint64 `json:"seed" yaml:"seed"`
}

// DefaultSamplerConfig is 4 chains of 2000 iterations, half warm-up, seed 987
func DefaultSamplerConfig() SamplerConfig {
	return SamplerConfig{Chains: 4, Iterations: 2000, Warmup: 1000, Seed: 987}
}

// Snapshot is the serializable form of a fitted model. Draws are indexed
// [chain][iteration][parameter] in the order of Params.
type Snapshot struct {
	ID                string               `json:"id"`
	CreatedAt         time.Time            `json:"createdAt"`
	DataSource        string               `json:"dataSource"`
	DataFingerprint   string               `json:"dataFingerprint,omitempty"`
	Observations      int                  `json:"observations"`
	Params            []string             `json:"params"`
	ReferenceIncident string               `json:"referenceIncident"`
	ReferenceDay      string               `json:"referenceDay"`
	Priors            PriorConfig          `json:"priors"`
	Adjusted          AdjustedPriors       `json:"adjusted"`
	Sampler           SamplerConfig        `json:"sampler"`
	Stats             []sampler.ChainStats `json:"stats"`
	Draws             [][][]float64        `json:"-"`
}

// FittedModel is an immutable posterior sample. Accessors return copies.
type FittedModel struct {
	snap  Snapshot
	index map[string]int
}

// FromSnapshot rebuilds a fitted model, e.g. after reading it back from
// the artifact store. The snapshot is deep-copied.
func FromSnapshot(s Snapshot) (*FittedModel, error) {
	if len(s.Params) == 0 {
		return nil, fmt.Errorf("snapshot %s has no parameters", s.ID)
	}
	if len(s.Draws) == 0 {
		return nil, fmt.Errorf("snapshot %s has no draws", s.ID)
	}
	per := len(s.Draws[0])
	for c, ch := range s.Draws {
		if len(ch) != per {
			return nil, fmt.Errorf("snapshot %s: chain %d has %d draws, chain 0 has %d", s.ID, c, len(ch), per)
		}
		for i, d := range ch {
			if len(d) != len(s.Params) {
				return nil, fmt.Errorf("snapshot %s: draw %d of chain %d has %d values for %d parameters", s.ID, i, c, len(d), len(s.Params))
			}
		}
	}

	fm := &FittedModel{snap: s, index: make(map[string]int, len(s.Params))}
	fm.snap.Params = append([]string(nil), s.Params...)
	fm.snap.Stats = append([]sampler.ChainStats(nil), s.Stats...)
	fm.snap.Adjusted.Coefficients = append([]NormalPrior(nil), s.Adjusted.Coefficients...)
	fm.snap.Draws = copyDraws(s.Draws)
	for i, p := range fm.snap.Params {
		fm.index[p] = i
	}
	return fm, nil
}

// Snapshot returns a deep copy of the model state for serialization
func (m *FittedModel) Snapshot() Snapshot {
	s := m.snap
	s.Params = m.Params()
	s.Stats = append([]sampler.ChainStats(nil), m.snap.Stats...)
	s.Adjusted.Coefficients = append([]NormalPrior(nil), m.snap.Adjusted.Coefficients...)
	s.Draws = copyDraws(m.snap.Draws)
	return s
}

// ID is the unique run identifier
func (m *FittedModel) ID() string { return m.snap.ID }

// DataSource is the path of the data the model was fitted on
func (m *FittedModel) DataSource() string { return m.snap.DataSource }

// DataFingerprint identifies the fitted records, see Dataset.Fingerprint
func (m *FittedModel) DataFingerprint() string { return m.snap.DataFingerprint }

// CreatedAt is when the fit finished
func (m *FittedModel) CreatedAt() time.Time { return m.snap.CreatedAt }

// Observations is the number of records the model was fitted on
func (m *FittedModel) Observations() int { return m.snap.Observations }

// Sampler returns the chain configuration used
func (m *FittedModel) Sampler() SamplerConfig { return m.snap.Sampler }

// Priors returns the configured priors
func (m *FittedModel) Priors() PriorConfig { return m.snap.Priors }

// ReferenceLevels returns the baseline incident and day absorbed into the intercept
func (m *FittedModel) ReferenceLevels() (incident, day string) {
	return m.snap.ReferenceIncident, m.snap.ReferenceDay
}

// Params returns parameter names in draw order, sigma last
func (m *FittedModel) Params() []string {
	return append([]string(nil), m.snap.Params...)
}

// Chains is the number of chains
func (m *FittedModel) Chains() int { return len(m.snap.Draws) }

// DrawsPerChain is the number of post-warm-up draws in each chain
func (m *FittedModel) DrawsPerChain() int { return len(m.snap.Draws[0]) }

// Stats returns per-chain sampler statistics
func (m *FittedModel) Stats() []sampler.ChainStats {
	return append([]sampler.ChainStats(nil), m.snap.Stats...)
}

// PriorFor returns the adjusted prior of a coefficient. ok is false for
// sigma and for unknown names.
func (m *FittedModel) PriorFor(param string) (NormalPrior, bool) {
	i, ok := m.index[param]
	if !ok || i >= len(m.snap.Adjusted.Coefficients) {
		return NormalPrior{}, false
	}
	return m.snap.Adjusted.Coefficients[i], true
}

// SigmaPrior returns the adjusted prior of sigma
func (m *FittedModel) SigmaPrior() ExponentialPrior { return m.snap.Adjusted.Sigma }

// ChainDraws returns the draws of one parameter per chain
func (m *FittedModel) ChainDraws(param string) ([][]float64, bool) {
	j, ok := m.index[param]
	if !ok {
		return nil, false
	}
	out := make([][]float64, len(m.snap.Draws))
	for c, ch := range m.snap.Draws {
		out[c] = make([]float64, len(ch))
		for i, d := range ch {
			out[c][i] = d[j]
		}
	}
	return out, true
}

// PooledDraws returns all draws of one parameter, chains concatenated
func (m *FittedModel) PooledDraws(param string) ([]float64, bool) {
	j, ok := m.index[param]
	if !ok {
		return nil, false
	}
	out := make([]float64, 0, m.Chains()*m.DrawsPerChain())
	for _, ch := range m.snap.Draws {
		for _, d := range ch {
			out = append(out, d[j])
		}
	}
	return out, true
}

// Draw returns a copy of one parameter vector
func (m *FittedModel) Draw(chain, iter int) []float64 {
	return append([]float64(nil), m.snap.Draws[chain][iter]...)
}

// Mean is the linear predictor for a record under one parameter vector.
// Levels without a coefficient (reference or unseen) contribute nothing.
func (m *FittedModel) Mean(r dataset.DelayRecord, draw []float64) float64 {
	mu := draw[m.index[ParamIntercept]] + draw[m.index[ParamGap]]*r.MinGap
	if j, ok := m.index[IncidentParam(r.Incident)]; ok {
		mu += draw[j]
	}
	if j, ok := m.index[DayParam(r.Day)]; ok {
		mu += draw[j]
	}
	return mu
}

// Sigma returns the residual scale of a parameter vector
func (m *FittedModel) Sigma(draw []float64) float64 {
	return draw[m.index[ParamSigma]]
}

func copyDraws(src [][][]float64) [][][]float64 {
	out := make([][][]float64, len(src))
	for c, ch := range src {
		out[c] = make([][]float64, len(ch))
		for i, d := range ch {
			out[c][i] = append([]float64(nil), d...)
		}
	}
	return out
}
