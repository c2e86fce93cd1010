// Package solver hosts the two solve strategies for a portfolio spec: an
// exact quadratic solve for QP-representable specs and a stochastic search
// over randomly generated candidate portfolios, behind a common dispatcher.
package solver

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/aristath/folio/internal/portfolio"
)

// QPProblem is the canonical quadratic program handed to a QPSolver:
//
//	minimize  w'Qw + c'w
//	subject to AEq w  = BEq
//	           AIneq w <= BIneq
//	           Min <= w <= Max
type QPProblem struct {
	Q     *mat.SymDense
	C     []float64
	AEq   [][]float64
	BEq   []float64
	AIneq [][]float64
	BIneq []float64
	Min   []float64
	Max   []float64
}

// QPSolver solves a quadratic program. Implementations signal an empty
// feasible region with portfolio.InfeasibleError and numeric failure with
// portfolio.SolverError. The solve routine is an injected dependency so a
// different QP backend can be swapped in without touching the dispatcher.
type QPSolver interface {
	Solve(p QPProblem) (weights []float64, iterations int, err error)
}

// Penalty weight for equality and inequality violations in the default
// solver.
const qpPenaltyWeight = 1000.0

// PenaltyQPSolver minimizes the quadratic objective with constraint
// violations folded in as quadratic penalties, box bounds enforced by
// projection. BFGS first, Nelder-Mead as fallback for ill-behaved gradients.
type PenaltyQPSolver struct{}

// NewPenaltyQPSolver creates the default QP backend.
func NewPenaltyQPSolver() *PenaltyQPSolver { return &PenaltyQPSolver{} }

// Solve runs the penalized minimization. The returned weights are projected
// into the box bounds; constraint satisfaction beyond that is the caller's
// responsibility to verify.
func (s *PenaltyQPSolver) Solve(p QPProblem) ([]float64, int, error) {
	n := len(p.C)

	project := func(x []float64) []float64 {
		proj := make([]float64, n)
		for i := range x {
			proj[i] = math.Max(p.Min[i], math.Min(p.Max[i], x[i]))
		}
		return proj
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			w := project(x)
			obj := quadValue(p.Q, p.C, w)
			for r := range p.AEq {
				d := dot(p.AEq[r], w) - p.BEq[r]
				obj += qpPenaltyWeight * d * d
			}
			for r := range p.AIneq {
				if d := dot(p.AIneq[r], w) - p.BIneq[r]; d > 0 {
					obj += qpPenaltyWeight * d * d
				}
			}
			return obj
		},
		Grad: func(grad, x []float64) {
			w := project(x)
			for i := 0; i < n; i++ {
				grad[i] = p.C[i]
				for j := 0; j < n; j++ {
					grad[i] += 2 * p.Q.At(i, j) * w[j]
				}
			}
			for r := range p.AEq {
				d := dot(p.AEq[r], w) - p.BEq[r]
				for i := 0; i < n; i++ {
					grad[i] += 2 * qpPenaltyWeight * d * p.AEq[r][i]
				}
			}
			for r := range p.AIneq {
				if d := dot(p.AIneq[r], w) - p.BIneq[r]; d > 0 {
					for i := 0; i < n; i++ {
						grad[i] += 2 * qpPenaltyWeight * d * p.AIneq[r][i]
					}
				}
			}
		},
	}

	initial := make([]float64, n)
	for i := range initial {
		initial[i] = (p.Min[i] + p.Max[i]) / 2
	}

	result, err := optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.BFGS{})
	if err != nil || !converged(result.Status) {
		result, err = optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.NelderMead{})
		if err != nil {
			return nil, 0, &portfolio.SolverError{Reason: "minimization failed", Err: err}
		}
		if !converged(result.Status) {
			return nil, result.Stats.MajorIterations, &portfolio.SolverError{
				Reason: "minimization did not converge: status=" + result.Status.String(),
			}
		}
	}

	return project(result.X), result.Stats.MajorIterations, nil
}

func converged(status optimize.Status) bool {
	switch status {
	case optimize.Success, optimize.GradientThreshold, optimize.FunctionConvergence, optimize.FunctionThreshold:
		return true
	}
	return false
}

func quadValue(q *mat.SymDense, c, w []float64) float64 {
	v := 0.0
	for i := range w {
		v += c[i] * w[i]
		for j := range w {
			v += q.At(i, j) * w[i] * w[j]
		}
	}
	return v
}

func dot(a, b []float64) float64 {
	v := 0.0
	for i := range a {
		v += a[i] * b[i]
	}
	return v
}
