package solver

import (
	"context"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/folio/internal/portfolio"
	"github.com/aristath/folio/internal/random"
)

// Method selects the solve strategy. The choice is explicit: a spec that is
// not QP-representable fails exact mode with a ConfigError instead of
// silently falling back to the stochastic search.
type Method string

const (
	// MethodExact solves the quadratic program directly.
	MethodExact Method = "exact"
	// MethodStochastic searches randomly generated feasible portfolios.
	MethodStochastic Method = "stochastic"
)

// exactFeasTol is the post-solve feasibility tolerance for the exact mode.
// The penalty backend satisfies constraints approximately; residuals beyond
// this are reported as infeasibility.
const exactFeasTol = 1e-6

// Options configures a single solve.
type Options struct {
	Method         Method
	Permutations   int
	Seed           int64
	Strategy       random.Strategy
	GridResolution float64
	Workers        int
}

// Result is the outcome of one optimization: the chosen weights, each
// objective's realized measure, and solver metadata.
type Result struct {
	Assets    []string           `json:"assets"`
	Weights   []float64          `json:"weights"`
	Score     float64            `json:"score"`
	Measures  map[string]float64 `json:"measures"`
	Method    Method             `json:"method"`
	Evaluated int                `json:"evaluated"`
}

// WeightFor returns the weight of the named asset, or zero when absent.
func (r *Result) WeightFor(asset string) float64 {
	for i, a := range r.Assets {
		if a == asset {
			return r.Weights[i]
		}
	}
	return 0
}

// Dispatcher routes a solve to the exact QP path or the stochastic search.
type Dispatcher struct {
	qp  QPSolver
	log zerolog.Logger
}

// NewDispatcher creates a dispatcher. A nil qp installs the default penalty
// backend.
func NewDispatcher(qp QPSolver, log zerolog.Logger) *Dispatcher {
	if qp == nil {
		qp = NewPenaltyQPSolver()
	}
	return &Dispatcher{
		qp:  qp,
		log: log.With().Str("component", "solver").Logger(),
	}
}

// Solve optimizes the spec over the returns window with the selected method.
func (d *Dispatcher) Solve(ctx context.Context, spec *portfolio.Spec, returns *portfolio.ReturnsMatrix, opts Options) (*Result, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if err := returns.MatchesAssets(spec.Assets); err != nil {
		return nil, err
	}

	switch opts.Method {
	case MethodExact:
		return d.solveExact(spec, returns)
	case MethodStochastic, "":
		return d.solveStochastic(ctx, spec, returns, opts)
	default:
		return nil, portfolio.NewConfigError("unknown solve method %q", opts.Method)
	}
}

// solveExact reduces the spec to minimize w'Qw + c'w over linear constraints
// and delegates to the QP backend.
func (d *Dispatcher) solveExact(spec *portfolio.Spec, returns *portfolio.ReturnsMatrix) (*Result, error) {
	p, err := buildQP(spec, returns)
	if err != nil {
		return nil, err
	}
	if err := checkLinearFeasibility(p); err != nil {
		return nil, err
	}

	weights, iterations, err := d.qp.Solve(*p)
	if err != nil {
		return nil, err
	}

	weights = snapToBudget(weights, p)
	if err := verifyLinear(weights, p); err != nil {
		return nil, err
	}

	score := spec.Score(weights, returns)
	d.log.Debug().
		Int("iterations", iterations).
		Float64("score", score).
		Msg("Exact solve converged")

	return &Result{
		Assets:    spec.Assets,
		Weights:   weights,
		Score:     score,
		Measures:  spec.Measures(weights, returns),
		Method:    MethodExact,
		Evaluated: iterations,
	}, nil
}

// buildQP assembles the canonical QP from a spec. Only linear constraints
// and quadratic objectives are representable; anything else is a caller
// error, not a fallback.
func buildQP(spec *portfolio.Spec, returns *portfolio.ReturnsMatrix) (*QPProblem, error) {
	n := spec.NumAssets()
	boxMin, boxMax := spec.BoxBounds()

	p := &QPProblem{Min: boxMin, Max: boxMax}

	for _, c := range spec.Constraints {
		switch c := c.(type) {
		case *portfolio.BoxConstraint:
			// Folded into p.Min/p.Max via BoxBounds.
		case *portfolio.WeightSumConstraint:
			ones := portfolio.UniformBounds(n, 1)
			if c.Min == c.Max {
				p.AEq = append(p.AEq, ones)
				p.BEq = append(p.BEq, c.Min)
			} else {
				p.AIneq = append(p.AIneq, ones)
				p.BIneq = append(p.BIneq, c.Max)
				p.AIneq = append(p.AIneq, negate(ones))
				p.BIneq = append(p.BIneq, -c.Min)
			}
		case *portfolio.GroupConstraint:
			for _, g := range c.Groups {
				row := make([]float64, n)
				for _, idx := range g.Indices {
					row[idx] = 1
				}
				if g.Min == g.Max {
					p.AEq = append(p.AEq, row)
					p.BEq = append(p.BEq, g.Min)
				} else {
					p.AIneq = append(p.AIneq, row)
					p.BIneq = append(p.BIneq, g.Max)
					p.AIneq = append(p.AIneq, negate(row))
					p.BIneq = append(p.BIneq, -g.Min)
				}
			}
		case *portfolio.LeverageConstraint:
			// Gross exposure equals net exposure only without shorts.
			for i := 0; i < n; i++ {
				if boxMin[i] < 0 {
					return nil, portfolio.NewConfigError(
						"leverage constraint with short positions is not QP-representable; use the stochastic method")
				}
			}
			p.AIneq = append(p.AIneq, portfolio.UniformBounds(n, 1))
			p.BIneq = append(p.BIneq, c.Max)
		default:
			return nil, portfolio.NewConfigError(
				"constraint %q is not QP-representable; use the stochastic method", c.Name())
		}
	}

	// Scalarize objectives into minimize quad*w'Sw - lin*mu'w.
	var quadCoeff, linCoeff float64
	for _, o := range spec.Objectives {
		switch o := o.(type) {
		case *portfolio.ReturnObjective:
			linCoeff += o.Weight
		case *portfolio.RiskObjective:
			if o.Metric != portfolio.RiskVar {
				return nil, portfolio.NewConfigError(
					"risk metric %q is not QP-representable; use variance or the stochastic method", o.Metric)
			}
			quadCoeff += o.Weight
		case *portfolio.QuadraticUtilityObjective:
			linCoeff++
			quadCoeff += o.RiskAversion
		default:
			return nil, portfolio.NewConfigError(
				"objective %q is not QP-representable; use the stochastic method", o.Name())
		}
	}

	cov := returns.Covariance()
	q := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			q.SetSym(i, j, quadCoeff*cov.At(i, j))
		}
	}
	mu := returns.MeanVector()
	c := make([]float64, n)
	for i := range c {
		c[i] = -linCoeff * mu[i]
	}
	p.Q = q
	p.C = c

	return p, nil
}

// checkLinearFeasibility rejects obviously empty feasible regions by interval
// arithmetic over the box bounds before any numeric work.
func checkLinearFeasibility(p *QPProblem) error {
	check := func(row []float64, lo, hi float64) error {
		rowMin, rowMax := 0.0, 0.0
		for i, a := range row {
			if a >= 0 {
				rowMin += a * p.Min[i]
				rowMax += a * p.Max[i]
			} else {
				rowMin += a * p.Max[i]
				rowMax += a * p.Min[i]
			}
		}
		if rowMin > hi+portfolio.FeasibilityTol {
			return portfolio.NewInfeasibleError(
				"constraint lower reach %.6f exceeds bound %.6f given box bounds", rowMin, hi)
		}
		if rowMax < lo-portfolio.FeasibilityTol {
			return portfolio.NewInfeasibleError(
				"constraint upper reach %.6f cannot attain bound %.6f given box bounds", rowMax, lo)
		}
		return nil
	}

	for r := range p.AEq {
		if err := check(p.AEq[r], p.BEq[r], p.BEq[r]); err != nil {
			return err
		}
	}
	for r := range p.AIneq {
		if err := check(p.AIneq[r], math.Inf(-1), p.BIneq[r]); err != nil {
			return err
		}
	}
	return nil
}

// snapToBudget rescales a near-feasible solution onto the exact-budget
// hyperplane when one is present, then re-projects into the box.
func snapToBudget(w []float64, p *QPProblem) []float64 {
	for r := range p.AEq {
		allOnes := true
		for _, a := range p.AEq[r] {
			if a != 1 {
				allOnes = false
				break
			}
		}
		if !allOnes {
			continue
		}
		sum := 0.0
		for _, v := range w {
			sum += v
		}
		if math.Abs(sum) < 1e-12 {
			continue
		}
		scale := p.BEq[r] / sum
		for i := range w {
			w[i] = math.Max(p.Min[i], math.Min(p.Max[i], w[i]*scale))
		}
	}
	return w
}

// verifyLinear confirms the solution satisfies the assembled constraint set
// within the exact-mode tolerance. Residuals beyond it mean the penalty
// backend was pushed against an (effectively) empty region.
func verifyLinear(w []float64, p *QPProblem) error {
	for r := range p.AEq {
		if d := math.Abs(dot(p.AEq[r], w) - p.BEq[r]); d > exactFeasTol {
			return portfolio.NewInfeasibleError("equality constraint residual %.2e after solve", d)
		}
	}
	for r := range p.AIneq {
		if d := dot(p.AIneq[r], w) - p.BIneq[r]; d > exactFeasTol {
			return portfolio.NewInfeasibleError("inequality constraint violated by %.2e after solve", d)
		}
	}
	return nil
}

func negate(row []float64) []float64 {
	out := make([]float64, len(row))
	for i, v := range row {
		out[i] = -v
	}
	return out
}
