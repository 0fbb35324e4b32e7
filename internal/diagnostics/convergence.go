package diagnostics

import (
	"math"

	"github.com/ttc-bus-delays/busdelay/internal/metrics"
)

// splitChains cuts every chain in half so that within-chain drift shows up
// as between-chain disagreement. An odd middle draw is dropped.
func splitChains(chains [][]float64) [][]float64 {
	out := make([][]float64, 0, 2*len(chains))
	for _, ch := range chains {
		half := len(ch) / 2
		out = append(out, ch[:half], ch[len(ch)-half:])
	}
	return out
}

// varianceParts returns the mean within-chain variance W, the between-chain
// variance B (already divided by n, i.e. the variance of the chain means)
// and the pooled variance estimate var+.
func varianceParts(chains [][]float64) (w, bOverN, varPlus float64, n int) {
	m := len(chains)
	n = len(chains[0])

	var means metrics.WelfordState
	var within metrics.WelfordState
	for _, ch := range chains {
		s := metrics.Summarize(ch)
		means.Update(s.GetMean())
		within.Update(s.GetVariance())
	}
	w = within.GetMean()
	bOverN = 0
	if m > 1 {
		bOverN = means.GetVariance()
	}
	varPlus = float64(n-1)/float64(n)*w + bOverN
	return w, bOverN, varPlus, n
}

// RHat is the split potential scale reduction factor of one parameter.
// Values near 1 indicate the chains agree. Returns NaN when chains are too
// short to split (fewer than 4 draws each).
func RHat(chains [][]float64) float64 {
	if len(chains) == 0 || len(chains[0]) < 4 {
		return math.NaN()
	}
	split := splitChains(chains)
	w, bOverN, varPlus, _ := varianceParts(split)
	if w == 0 {
		if bOverN == 0 {
			return 1
		}
		return math.Inf(1)
	}
	return math.Sqrt(varPlus / w)
}

// ESS is the bulk effective sample size using split chains and Geyer's
// initial monotone positive sequence estimator of the autocorrelation time.
func ESS(chains [][]float64) float64 {
	if len(chains) == 0 || len(chains[0]) < 4 {
		return math.NaN()
	}
	split := splitChains(chains)
	m := len(split)
	w, _, varPlus, n := varianceParts(split)
	total := float64(m * n)
	if w == 0 || varPlus == 0 {
		return total
	}

	means := make([]float64, m)
	for j, ch := range split {
		s := metrics.Summarize(ch)
		means[j] = s.GetMean()
	}
	// rho(t) combines the chains' autocovariance at lag t
	rho := func(t int) float64 {
		var acov float64
		for j, ch := range split {
			var sum float64
			for i := 0; i+t < n; i++ {
				sum += (ch[i] - means[j]) * (ch[i+t] - means[j])
			}
			acov += sum / float64(n)
		}
		acov /= float64(m)
		return 1 - (w-acov)/varPlus
	}

	// Sum positive, non-increasing pairs rho(2k)+rho(2k+1)
	tau := -1.0
	prev := math.Inf(1)
	for t := 0; t+1 < n; t += 2 {
		pair := rho(t) + rho(t+1)
		if t == 0 {
			pair = 1 + rho(1)
		}
		if pair <= 0 {
			break
		}
		if pair > prev {
			pair = prev
		}
		tau += 2 * pair
		prev = pair
	}

	limit := total * math.Log10(total)
	if tau <= 0 {
		return limit
	}
	return math.Min(total/tau, limit)
}
