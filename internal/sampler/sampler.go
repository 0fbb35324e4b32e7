// Package sampler draws from the posterior of a Gaussian linear regression
// with independent Normal priors on the coefficients and an Exponential
// prior on the residual scale.
//
// Each iteration is one sweep of a blocked Gibbs sampler:
//
//   - the coefficient vector is drawn exactly from its multivariate normal
//     full conditional given sigma;
//   - log(sigma) is updated with a stepping-out slice sampler, whose initial
//     width is tuned during warm-up and frozen afterwards.
//
// Chains run concurrently. Each chain owns a PCG source derived from the
// seed and its index, so a fixed seed reproduces the draws exactly.
package sampler

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/ttc-bus-delays/busdelay/internal/metrics"
)

const (
	initialSliceWidth = 1.0
	minSliceWidth     = 1e-3
	maxStepOut        = 50
	maxShrink         = 200
	ctxCheckInterval  = 100
)

// Problem is a linear regression posterior: y ~ Normal(X·beta, sigma),
// beta_j ~ Normal(PriorMean[j], PriorScale[j]), sigma ~ Exponential(SigmaRate).
type Problem struct {
	X          *mat.Dense
	Y          []float64
	PriorMean  []float64
	PriorScale []float64
	SigmaRate  float64
}

// Config controls the Markov chains
type Config struct {
	Chains     int
	Iterations int // total per chain, warm-up included
	Warmup     int
	Seed       uint64
}

// ChainStats records how a chain behaved
type ChainStats struct {
	Chain        int     `json:"chain"`
	SliceWidth   float64 `json:"sliceWidth"`   // width used after warm-up
	LogDensEvals int     `json:"logDensEvals"` // sigma log-density evaluations
	MeanShrinks  float64 `json:"meanShrinks"`  // shrink steps per sigma update
}

// Result holds the post-warm-up draws, indexed [chain][iteration][parameter].
// The last parameter is sigma; the others follow the columns of X.
type Result struct {
	Draws [][][]float64
	Stats []ChainStats
}

// StateError reports a chain that left the valid parameter space
type StateError struct {
	Chain     int
	Iteration int
	Detail    string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("chain %d, iteration %d: %s", e.Chain, e.Iteration, e.Detail)
}

// Validate checks problem dimensions and prior parameters
func (p *Problem) Validate() error {
	if p.X == nil {
		return fmt.Errorf("design matrix is nil")
	}
	n, k := p.X.Dims()
	if n == 0 || k == 0 {
		return fmt.Errorf("design matrix is empty (%dx%d)", n, k)
	}
	if len(p.Y) != n {
		return fmt.Errorf("response has %d values, design matrix has %d rows", len(p.Y), n)
	}
	if len(p.PriorMean) != k || len(p.PriorScale) != k {
		return fmt.Errorf("need %d prior means and scales, got %d and %d", k, len(p.PriorMean), len(p.PriorScale))
	}
	for j, s := range p.PriorScale {
		if !(s > 0) || math.IsInf(s, 0) {
			return fmt.Errorf("prior scale %d must be positive and finite, got %v", j, s)
		}
	}
	if !(p.SigmaRate > 0) || math.IsInf(p.SigmaRate, 0) {
		return fmt.Errorf("sigma prior rate must be positive and finite, got %v", p.SigmaRate)
	}
	return nil
}

// Validate checks the chain configuration
func (c Config) Validate() error {
	if c.Chains <= 0 {
		return fmt.Errorf("chain count must be positive, got %d", c.Chains)
	}
	if c.Iterations <= 0 {
		return fmt.Errorf("iteration count must be positive, got %d", c.Iterations)
	}
	if c.Warmup < 0 || c.Warmup >= c.Iterations {
		return fmt.Errorf("warm-up must be in [0, %d), got %d", c.Iterations, c.Warmup)
	}
	return nil
}

// Sample runs all chains and blocks until every chain has finished.
func Sample(ctx context.Context, p *Problem, cfg Config) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	post := newPosterior(p)
	res := &Result{
		Draws: make([][][]float64, cfg.Chains),
		Stats: make([]ChainStats, cfg.Chains),
	}

	g, gctx := errgroup.WithContext(ctx)
	for c := 0; c < cfg.Chains; c++ {
		g.Go(func() error {
			ch := newChain(c, post, cfg)
			draws, stats, err := ch.run(gctx)
			if err != nil {
				return err
			}
			res.Draws[c] = draws
			res.Stats[c] = stats
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

// posterior holds the sufficient statistics shared read-only by all chains
type posterior struct {
	x         *mat.Dense
	y         *mat.VecDense
	n, k      int
	xtx       *mat.SymDense
	xty       *mat.VecDense
	priorPrec []float64 // 1/scale^2
	priorTerm []float64 // mean/scale^2
	sigmaRate float64
	ySD       float64
}

func newPosterior(p *Problem) *posterior {
	n, k := p.X.Dims()

	xtx := mat.NewSymDense(k, nil)
	xtx.SymOuterK(1, p.X.T())

	y := mat.NewVecDense(n, append([]float64(nil), p.Y...))
	xty := mat.NewVecDense(k, nil)
	xty.MulVec(p.X.T(), y)

	prec := make([]float64, k)
	term := make([]float64, k)
	for j := 0; j < k; j++ {
		prec[j] = 1 / (p.PriorScale[j] * p.PriorScale[j])
		term[j] = p.PriorMean[j] * prec[j]
	}

	ySD := stat.StdDev(p.Y, nil)
	if !(ySD > 0) {
		ySD = 1
	}

	return &posterior{
		x:         p.X,
		y:         y,
		n:         n,
		k:         k,
		xtx:       xtx,
		xty:       xty,
		priorPrec: prec,
		priorTerm: term,
		sigmaRate: p.SigmaRate,
		ySD:       ySD,
	}
}

type chain struct {
	id   int
	post *posterior
	cfg  Config
	rng  *rand.Rand
	norm distuv.Normal
	expo distuv.Exponential

	// scratch space reused every iteration
	prec  *mat.SymDense
	rhs   *mat.VecDense
	mu    *mat.VecDense
	z     *mat.VecDense
	noise *mat.VecDense
	fit   *mat.VecDense
	chol  mat.Cholesky
	upper mat.TriDense

	width  float64
	jumps  metrics.WelfordState
	evals  int
	shrink metrics.WelfordState
}

func newChain(id int, post *posterior, cfg Config) *chain {
	src := rand.NewPCG(cfg.Seed, uint64(id)+1)
	k := post.k
	return &chain{
		id:    id,
		post:  post,
		cfg:   cfg,
		rng:   rand.New(src),
		norm:  distuv.Normal{Mu: 0, Sigma: 1, Src: src},
		expo:  distuv.Exponential{Rate: 1, Src: src},
		prec:  mat.NewSymDense(k, nil),
		rhs:   mat.NewVecDense(k, nil),
		mu:    mat.NewVecDense(k, nil),
		z:     mat.NewVecDense(k, nil),
		noise: mat.NewVecDense(k, nil),
		fit:   mat.NewVecDense(post.n, nil),
		width: initialSliceWidth,
	}
}

func (c *chain) run(ctx context.Context) ([][]float64, ChainStats, error) {
	k := c.post.k
	kept := c.cfg.Iterations - c.cfg.Warmup
	draws := make([][]float64, 0, kept)

	// Overdispersed start: sigma within a factor of ~e of sd(y)
	logSigma := math.Log(c.post.ySD) + c.norm.Rand()
	beta := mat.NewVecDense(k, nil)

	for it := 0; it < c.cfg.Iterations; it++ {
		if it%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, ChainStats{}, err
			}
		}

		if err := c.drawBeta(beta, math.Exp(logSigma)); err != nil {
			return nil, ChainStats{}, &StateError{Chain: c.id, Iteration: it, Detail: err.Error()}
		}

		next, err := c.drawLogSigma(logSigma, c.ssr(beta))
		if err != nil {
			return nil, ChainStats{}, &StateError{Chain: c.id, Iteration: it, Detail: err.Error()}
		}

		if it < c.cfg.Warmup {
			c.jumps.Update(math.Abs(next - logSigma))
			if it > 0 && it%50 == 0 {
				c.width = math.Max(2*c.jumps.GetMean(), minSliceWidth)
			}
		}
		logSigma = next

		if it >= c.cfg.Warmup {
			draw := make([]float64, k+1)
			for j := 0; j < k; j++ {
				draw[j] = beta.AtVec(j)
			}
			draw[k] = math.Exp(logSigma)
			if err := checkFinite(draw); err != nil {
				return nil, ChainStats{}, &StateError{Chain: c.id, Iteration: it, Detail: err.Error()}
			}
			draws = append(draws, draw)
		}
	}

	return draws, ChainStats{
		Chain:        c.id,
		SliceWidth:   c.width,
		LogDensEvals: c.evals,
		MeanShrinks:  c.shrink.GetMean(),
	}, nil
}

// drawBeta samples beta | sigma, y from N(P⁻¹b, P⁻¹) with
// P = XᵀX/σ² + diag(prior precision) and b = Xᵀy/σ² + prior term.
func (c *chain) drawBeta(dst *mat.VecDense, sigma float64) error {
	p := c.post
	inv := 1 / (sigma * sigma)

	c.prec.ScaleSym(inv, p.xtx)
	for j := 0; j < p.k; j++ {
		c.prec.SetSym(j, j, c.prec.At(j, j)+p.priorPrec[j])
		c.rhs.SetVec(j, p.xty.AtVec(j)*inv+p.priorTerm[j])
	}

	if ok := c.chol.Factorize(c.prec); !ok {
		return fmt.Errorf("posterior precision is not positive definite (sigma=%g)", sigma)
	}
	if err := c.chol.SolveVecTo(c.mu, c.rhs); err != nil {
		return fmt.Errorf("solve posterior mean: %w", err)
	}

	// P = UᵀU, so U⁻¹z has covariance P⁻¹
	c.chol.UTo(&c.upper)
	for j := 0; j < p.k; j++ {
		c.z.SetVec(j, c.norm.Rand())
	}
	if err := c.noise.SolveVec(&c.upper, c.z); err != nil {
		return fmt.Errorf("solve posterior noise: %w", err)
	}

	dst.AddVec(c.mu, c.noise)
	return nil
}

// ssr is the residual sum of squares at beta
func (c *chain) ssr(beta *mat.VecDense) float64 {
	c.fit.MulVec(c.post.x, beta)
	var sum float64
	for i := 0; i < c.post.n; i++ {
		r := c.post.y.AtVec(i) - c.fit.AtVec(i)
		sum += r * r
	}
	return sum
}

// logDensity is the log full conditional of eta = log(sigma), Jacobian included.
func (c *chain) logDensity(eta, ssr float64) float64 {
	c.evals++
	n := float64(c.post.n)
	return -n*eta - ssr*math.Exp(-2*eta)/2 - c.post.sigmaRate*math.Exp(eta) + eta
}

// drawLogSigma performs one stepping-out slice sampling update (Neal 2003).
func (c *chain) drawLogSigma(x0, ssr float64) (float64, error) {
	f0 := c.logDensity(x0, ssr)
	if math.IsNaN(f0) || math.IsInf(f0, 0) {
		return 0, fmt.Errorf("log density of sigma is not finite at log(sigma)=%g", x0)
	}
	level := f0 - c.expo.Rand()

	left := x0 - c.width*c.rng.Float64()
	right := left + c.width
	j := c.rng.IntN(maxStepOut)
	k := maxStepOut - 1 - j
	for ; j > 0 && c.logDensity(left, ssr) > level; j-- {
		left -= c.width
	}
	for ; k > 0 && c.logDensity(right, ssr) > level; k-- {
		right += c.width
	}

	for s := 1; s <= maxShrink; s++ {
		x1 := left + c.rng.Float64()*(right-left)
		if c.logDensity(x1, ssr) > level {
			c.shrink.Update(float64(s - 1))
			return x1, nil
		}
		if x1 < x0 {
			left = x1
		} else {
			right = x1
		}
	}
	return 0, fmt.Errorf("slice sampler for sigma did not find a point after %d shrinks", maxShrink)
}

func checkFinite(draw []float64) error {
	for j, v := range draw {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("parameter %d is not finite (%v)", j, v)
		}
	}
	return nil
}
