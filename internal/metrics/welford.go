package metrics

import "math"

// WelfordState holds running statistics using Welford's online algorithm.
// Mean and variance are updated in O(1) per observation without storing
// the observations.
type WelfordState struct {
	Count int     // n - number of observations
	Mean  float64 // running mean
	M2    float64 // sum of squared differences from mean
}

// Update adds a new observation.
// Reference: https://en.wikipedia.org/wiki/Algorithms_for_calculating_variance#Welford's_online_algorithm
func (w *WelfordState) Update(newValue float64) {
	w.Count++
	delta := newValue - w.Mean
	w.Mean += delta / float64(w.Count)
	delta2 := newValue - w.Mean
	w.M2 += delta * delta2
}

// Merge folds other into w (Chan et al. parallel combination)
func (w *WelfordState) Merge(other WelfordState) {
	if other.Count == 0 {
		return
	}
	if w.Count == 0 {
		*w = other
		return
	}
	n := w.Count + other.Count
	delta := other.Mean - w.Mean
	w.M2 += other.M2 + delta*delta*float64(w.Count)*float64(other.Count)/float64(n)
	w.Mean += delta * float64(other.Count) / float64(n)
	w.Count = n
}

// GetMean returns the current mean, NaN when no observations were added.
func (w *WelfordState) GetMean() float64 {
	if w.Count == 0 {
		return math.NaN()
	}
	return w.Mean
}

// GetVariance returns the sample variance (n-1 denominator).
// Returns 0 if fewer than 2 observations.
func (w *WelfordState) GetVariance() float64 {
	if w.Count < 2 {
		return 0
	}
	return w.M2 / float64(w.Count-1)
}

// GetStdDev returns the population standard deviation.
// Returns 0 if fewer than 2 observations.
func (w *WelfordState) GetStdDev() float64 {
	if w.Count < 2 {
		return 0
	}
	return math.Sqrt(w.M2 / float64(w.Count))
}

// GetCount returns the number of observations.
func (w *WelfordState) GetCount() int {
	return w.Count
}

// Summarize runs the values through a fresh WelfordState
func Summarize(values []float64) WelfordState {
	var w WelfordState
	for _, v := range values {
		w.Update(v)
	}
	return w
}
