// Package random generates candidate weight vectors for the stochastic
// portfolio search. Sequences are finite, restartable and deterministic for
// a fixed seed, so a backtest can be replayed candidate-for-candidate.
package random

import (
	"math"
	"math/rand"

	"github.com/aristath/folio/internal/portfolio"
)

// Strategy selects how candidate weight vectors are produced.
type Strategy string

const (
	// StrategySimplex samples uniformly from the scaled probability simplex,
	// so the weight-sum budget holds by construction. Candidates violating
	// box bounds are resampled.
	StrategySimplex Strategy = "simplex"
	// StrategySample draws each weight independently inside its box range
	// and renormalizes to the budget. Renormalization can push individual
	// weights back outside their bounds, so feasibility is re-checked
	// downstream.
	StrategySample Strategy = "sample"
	// StrategyGrid enumerates a fixed-resolution lattice inside the box
	// bounds, filtered by the budget. Deterministic and exhaustive up to the
	// lattice resolution.
	StrategyGrid Strategy = "grid"
)

// Default generation parameters.
const (
	DefaultPermutations   = 2000
	DefaultGridResolution = 0.10
	// simplexMaxTries bounds resampling of box-violating simplex draws per
	// candidate before the draw is emitted anyway and left to downstream
	// feasibility filtering.
	simplexMaxTries = 100
)

// Config parameterizes a generator.
type Config struct {
	Strategy       Strategy
	Permutations   int
	Seed           int64
	GridResolution float64
}

// Generator produces a finite sequence of candidate weight vectors for one
// spec. It is not safe for concurrent use; the stochastic solver drains it
// sequentially and parallelizes evaluation instead.
type Generator struct {
	cfg      Config
	boxMin   []float64
	boxMax   []float64
	sumMin   float64
	sumMax   float64
	rng      *rand.Rand
	produced int

	grid    [][]float64
	gridPos int
}

// New creates a generator for the given spec. The spec supplies box bounds
// (default [0,1]) and the weight-sum budget (default full investment).
func New(spec *portfolio.Spec, cfg Config) (*Generator, error) {
	if cfg.Permutations <= 0 {
		cfg.Permutations = DefaultPermutations
	}
	switch cfg.Strategy {
	case StrategySimplex, StrategySample:
	case StrategyGrid:
		if cfg.GridResolution <= 0 {
			cfg.GridResolution = DefaultGridResolution
		}
		if cfg.GridResolution > 1 {
			return nil, portfolio.NewConfigError("grid resolution %.4f too coarse", cfg.GridResolution)
		}
	case "":
		cfg.Strategy = StrategySimplex
	default:
		return nil, portfolio.NewConfigError("unknown sampling strategy %q", cfg.Strategy)
	}

	boxMin, boxMax := spec.BoxBounds()
	sumMin, sumMax := spec.WeightSumBounds()

	g := &Generator{
		cfg:    cfg,
		boxMin: boxMin,
		boxMax: boxMax,
		sumMin: sumMin,
		sumMax: sumMax,
	}
	g.Reset()
	return g, nil
}

// Reset rewinds the sequence to its first candidate. The same seed replays
// the identical sequence.
func (g *Generator) Reset() {
	g.rng = rand.New(rand.NewSource(g.cfg.Seed))
	g.produced = 0
	if g.cfg.Strategy == StrategyGrid {
		if g.grid == nil {
			g.grid = g.enumerateGrid()
		}
		g.gridPos = 0
	}
}

// Remaining returns how many candidates the sequence can still produce.
func (g *Generator) Remaining() int {
	if g.cfg.Strategy == StrategyGrid {
		n := len(g.grid) - g.gridPos
		if n < 0 {
			return 0
		}
		return n
	}
	return g.cfg.Permutations - g.produced
}

// Next returns the next candidate weight vector, or false when the sequence
// is exhausted.
func (g *Generator) Next() ([]float64, bool) {
	switch g.cfg.Strategy {
	case StrategyGrid:
		if g.gridPos >= len(g.grid) {
			return nil, false
		}
		w := g.grid[g.gridPos]
		g.gridPos++
		return append([]float64(nil), w...), true
	case StrategySample:
		if g.produced >= g.cfg.Permutations {
			return nil, false
		}
		g.produced++
		return g.drawSample(), true
	default:
		if g.produced >= g.cfg.Permutations {
			return nil, false
		}
		g.produced++
		return g.drawSimplex(), true
	}
}

// All drains the sequence from its current position into a slice.
func (g *Generator) All() [][]float64 {
	out := make([][]float64, 0, g.Remaining())
	for {
		w, ok := g.Next()
		if !ok {
			return out
		}
		out = append(out, w)
	}
}

// drawSimplex samples a point on the scaled simplex: n exponential variates
// normalized to the target sum. The budget holds by construction; box
// violations trigger a bounded number of resamples.
func (g *Generator) drawSimplex() []float64 {
	n := len(g.boxMin)
	for try := 0; ; try++ {
		target := g.drawTargetSum()
		w := make([]float64, n)
		total := 0.0
		for i := range w {
			w[i] = g.rng.ExpFloat64()
			total += w[i]
		}
		for i := range w {
			w[i] = w[i] / total * target
		}
		if try >= simplexMaxTries || g.inBox(w) {
			return w
		}
	}
}

// drawSample draws each weight uniformly inside its box range, then rescales
// the whole vector onto the budget. Per-asset bounds may no longer hold
// after rescaling.
func (g *Generator) drawSample() []float64 {
	n := len(g.boxMin)
	target := g.drawTargetSum()
	w := make([]float64, n)
	total := 0.0
	for i := range w {
		w[i] = g.boxMin[i] + g.rng.Float64()*(g.boxMax[i]-g.boxMin[i])
		total += w[i]
	}
	if math.Abs(total) < 1e-12 {
		return w
	}
	scale := target / total
	for i := range w {
		w[i] *= scale
	}
	return w
}

// drawTargetSum picks the budget for one candidate: the exact budget when
// min equals max, otherwise uniform inside the allowed range.
func (g *Generator) drawTargetSum() float64 {
	if g.sumMax <= g.sumMin {
		return g.sumMin
	}
	return g.sumMin + g.rng.Float64()*(g.sumMax-g.sumMin)
}

func (g *Generator) inBox(w []float64) bool {
	for i := range w {
		if w[i] < g.boxMin[i]-portfolio.FeasibilityTol || w[i] > g.boxMax[i]+portfolio.FeasibilityTol {
			return false
		}
	}
	return true
}

// enumerateGrid builds the lattice of weight vectors with step GridResolution
// inside the box bounds whose sums fall inside the budget. Enumeration stops
// at Permutations candidates.
func (g *Generator) enumerateGrid() [][]float64 {
	n := len(g.boxMin)
	step := g.cfg.GridResolution
	var out [][]float64
	current := make([]float64, n)

	var walk func(idx int, sum float64)
	walk = func(idx int, sum float64) {
		if len(out) >= g.cfg.Permutations {
			return
		}
		// Prune branches that can no longer reach the budget.
		remainingMax := 0.0
		for i := idx; i < n; i++ {
			remainingMax += g.boxMax[i]
		}
		if sum > g.sumMax+portfolio.FeasibilityTol || sum+remainingMax < g.sumMin-portfolio.FeasibilityTol {
			return
		}
		if idx == n {
			if sum >= g.sumMin-portfolio.FeasibilityTol {
				out = append(out, append([]float64(nil), current...))
			}
			return
		}
		for v := g.boxMin[idx]; v <= g.boxMax[idx]+portfolio.FeasibilityTol; v += step {
			current[idx] = math.Min(v, g.boxMax[idx])
			walk(idx+1, sum+current[idx])
			if len(out) >= g.cfg.Permutations {
				return
			}
		}
	}
	walk(0, 0)
	return out
}
