package diagnostics

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/ttc-bus-delays/busdelay/internal/model"
)

// PriorPosterior holds matched prior and posterior draws of one parameter
type PriorPosterior struct {
	Param     string    `json:"param"`
	Prior     string    `json:"prior"`
	PriorDraw []float64 `json:"priorDraws"`
	Posterior []float64 `json:"posteriorDraws"`
}

// ComparePriors draws n values from each parameter's (autoscaled) prior and
// takes n evenly spaced posterior draws, for the prior-vs-posterior figure.
func ComparePriors(fm *model.FittedModel, n int, seed uint64) ([]PriorPosterior, error) {
	if n <= 0 {
		return nil, fmt.Errorf("prior draw count must be positive, got %d", n)
	}
	src := rand.NewPCG(seed, 0x9a1)
	idx := drawIndices(fm.Chains(), fm.DrawsPerChain(), n)

	var out []PriorPosterior
	for j, p := range fm.Params() {
		var dist interface{ Rand() float64 }
		var desc string
		if p == model.ParamSigma {
			sp := fm.SigmaPrior()
			dist = distuv.Exponential{Rate: sp.Rate, Src: src}
			desc = sp.String()
		} else {
			np, ok := fm.PriorFor(p)
			if !ok {
				return nil, fmt.Errorf("no prior recorded for %s", p)
			}
			dist = distuv.Normal{Mu: np.Location, Sigma: np.Scale, Src: src}
			desc = np.String()
		}

		pp := PriorPosterior{
			Param:     p,
			Prior:     desc,
			PriorDraw: make([]float64, n),
			Posterior: make([]float64, len(idx)),
		}
		for i := range pp.PriorDraw {
			pp.PriorDraw[i] = dist.Rand()
		}
		for i, ci := range idx {
			pp.Posterior[i] = fm.Draw(ci[0], ci[1])[j]
		}
		out = append(out, pp)
	}
	return out, nil
}
