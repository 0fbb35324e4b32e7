package diagnostics

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/ttc-bus-delays/busdelay/internal/dataset"
	"github.com/ttc-bus-delays/busdelay/internal/metrics"
	"github.com/ttc-bus-delays/busdelay/internal/model"
)

// PosteriorPredictive compares replicated delays against the observed ones
type PosteriorPredictive struct {
	Draws            int         `json:"draws"`
	ObservedMean     float64     `json:"observedMean"`
	ObservedVariance float64     `json:"observedVariance"`
	ReplicateMeans   []float64   `json:"replicateMeans"`
	ReplicateVars    []float64   `json:"replicateVariances"`
	MeanOfMeans      float64     `json:"meanOfMeans"`
	MeanOfVariances  float64     `json:"meanOfVariances"`
	PooledVariance   float64     `json:"pooledVariance"` // variance of all replicated values together
	PValueMean       float64     `json:"pValueMean"`     // share of replicates with mean >= observed
	PValueVariance   float64     `json:"pValueVariance"` // share of replicates with variance >= observed
	Replicates       [][]float64 `json:"-"`
}

// drawIndices picks up to n evenly spaced (chain, iteration) pairs
func drawIndices(chains, perChain, n int) [][2]int {
	total := chains * perChain
	if n <= 0 || n > total {
		n = total
	}
	out := make([][2]int, n)
	for k := 0; k < n; k++ {
		flat := k * total / n
		out[k] = [2]int{flat / perChain, flat % perChain}
	}
	return out
}

// Replicate simulates one synthetic min_delay per observation for up to
// nDraws posterior draws (all draws when nDraws <= 0), using the Gaussian
// likelihood with each draw's parameters.
func Replicate(fm *model.FittedModel, ds *dataset.Dataset, nDraws int, seed uint64) *PosteriorPredictive {
	src := rand.NewPCG(seed, 0x5eed)
	noise := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	records := ds.Records()

	observed := metrics.Summarize(ds.Delays())
	idx := drawIndices(fm.Chains(), fm.DrawsPerChain(), nDraws)

	ppc := &PosteriorPredictive{
		Draws:            len(idx),
		ObservedMean:     observed.GetMean(),
		ObservedVariance: observed.GetVariance(),
		ReplicateMeans:   make([]float64, len(idx)),
		ReplicateVars:    make([]float64, len(idx)),
		Replicates:       make([][]float64, len(idx)),
	}

	var means, vars, pooled metrics.WelfordState
	meanHits, varHits := 0, 0
	for k, ci := range idx {
		draw := fm.Draw(ci[0], ci[1])
		sigma := fm.Sigma(draw)

		rep := make([]float64, len(records))
		var acc metrics.WelfordState
		for i, r := range records {
			rep[i] = fm.Mean(r, draw) + sigma*noise.Rand()
			acc.Update(rep[i])
		}

		ppc.Replicates[k] = rep
		ppc.ReplicateMeans[k] = acc.GetMean()
		ppc.ReplicateVars[k] = acc.GetVariance()
		means.Update(acc.GetMean())
		vars.Update(acc.GetVariance())
		pooled.Merge(acc)
		if acc.GetMean() >= ppc.ObservedMean {
			meanHits++
		}
		if acc.GetVariance() >= ppc.ObservedVariance {
			varHits++
		}
	}

	if len(idx) > 0 {
		ppc.MeanOfMeans = means.GetMean()
		ppc.MeanOfVariances = vars.GetMean()
		ppc.PooledVariance = pooled.GetVariance()
		ppc.PValueMean = float64(meanHits) / float64(len(idx))
		ppc.PValueVariance = float64(varHits) / float64(len(idx))
	}
	return ppc
}
