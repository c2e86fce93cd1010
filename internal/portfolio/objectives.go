package portfolio

import (
	"gonum.org/v1/gonum/stat"
)

// RiskMetric selects the dispersion measure of a risk objective.
type RiskMetric string

const (
	// RiskStdDev measures sample standard deviation of portfolio returns.
	RiskStdDev RiskMetric = "stddev"
	// RiskVar measures sample variance of portfolio returns.
	RiskVar RiskMetric = "var"
)

// RiskBudgetPenalty scales the soft penalty applied to risk-budget
// violations. Large but finite, so the aggregate score stays usable by the
// stochastic search instead of hard-rejecting candidates.
const RiskBudgetPenalty = 1000.0

// Objective is one scalarized term of the optimization target.
//
// Measure returns the raw realized value of the term (mean return, standard
// deviation, Herfindahl index, ...) for display. Contribution returns the
// signed, weighted value added to the aggregate score; the aggregate is
// maximized, so return-like terms contribute positively and risk-like terms
// negatively.
type Objective interface {
	Name() string
	Measure(weights []float64, returns *ReturnsMatrix) float64
	Contribution(weights []float64, returns *ReturnsMatrix) float64
	validate() error
}

// ReturnObjective rewards mean periodic portfolio return.
type ReturnObjective struct {
	Weight float64
}

// NewReturn creates a return objective with the given multiplier.
func NewReturn(weight float64) *ReturnObjective {
	return &ReturnObjective{Weight: weight}
}

func (o *ReturnObjective) Name() string { return "return" }

func (o *ReturnObjective) Measure(weights []float64, returns *ReturnsMatrix) float64 {
	return stat.Mean(returns.PortfolioReturns(weights), nil)
}

func (o *ReturnObjective) Contribution(weights []float64, returns *ReturnsMatrix) float64 {
	return o.Weight * o.Measure(weights, returns)
}

func (o *ReturnObjective) validate() error {
	if o.Weight < 0 {
		return NewConfigError("return objective weight must be non-negative, got %.4f", o.Weight)
	}
	return nil
}

// RiskObjective penalizes dispersion of the portfolio return series.
type RiskObjective struct {
	Metric RiskMetric
	Weight float64
}

// NewRisk creates a risk objective for the given metric.
func NewRisk(metric RiskMetric, weight float64) *RiskObjective {
	return &RiskObjective{Metric: metric, Weight: weight}
}

func (o *RiskObjective) Name() string { return "risk_" + string(o.Metric) }

func (o *RiskObjective) Measure(weights []float64, returns *ReturnsMatrix) float64 {
	series := returns.PortfolioReturns(weights)
	if o.Metric == RiskVar {
		return stat.Variance(series, nil)
	}
	return stat.StdDev(series, nil)
}

func (o *RiskObjective) Contribution(weights []float64, returns *ReturnsMatrix) float64 {
	return -o.Weight * o.Measure(weights, returns)
}

func (o *RiskObjective) validate() error {
	switch o.Metric {
	case RiskStdDev, RiskVar:
	default:
		return NewConfigError("unknown risk metric %q", o.Metric)
	}
	if o.Weight < 0 {
		return NewConfigError("risk objective weight must be non-negative, got %.4f", o.Weight)
	}
	return nil
}

// RiskBudgetObjective keeps each asset's share of total portfolio variance
// inside [MinPct, MaxPct]. Contributions outside the band incur a large
// finite penalty rather than hard rejection.
type RiskBudgetObjective struct {
	MinPct float64
	MaxPct float64
	Weight float64
}

// NewRiskBudget creates a risk-budget objective.
func NewRiskBudget(minPct, maxPct, weight float64) *RiskBudgetObjective {
	return &RiskBudgetObjective{MinPct: minPct, MaxPct: maxPct, Weight: weight}
}

func (o *RiskBudgetObjective) Name() string { return "risk_budget" }

// Contributions returns each asset's fractional contribution to portfolio
// variance: w_i * (S w)_i / (w' S w).
func (o *RiskBudgetObjective) Contributions(weights []float64, returns *ReturnsMatrix) []float64 {
	cov := returns.Covariance()
	n := len(weights)
	marginal := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			marginal[i] += cov.At(i, j) * weights[j]
		}
	}
	total := 0.0
	for i := 0; i < n; i++ {
		marginal[i] *= weights[i]
		total += marginal[i]
	}
	pcts := make([]float64, n)
	if total <= 0 {
		return pcts
	}
	for i := 0; i < n; i++ {
		pcts[i] = marginal[i] / total
	}
	return pcts
}

// Measure returns the summed squared violation of the risk-budget band.
func (o *RiskBudgetObjective) Measure(weights []float64, returns *ReturnsMatrix) float64 {
	violation := 0.0
	for _, pct := range o.Contributions(weights, returns) {
		if pct < o.MinPct {
			d := o.MinPct - pct
			violation += d * d
		} else if pct > o.MaxPct {
			d := pct - o.MaxPct
			violation += d * d
		}
	}
	return violation
}

func (o *RiskBudgetObjective) Contribution(weights []float64, returns *ReturnsMatrix) float64 {
	return -o.Weight * RiskBudgetPenalty * o.Measure(weights, returns)
}

func (o *RiskBudgetObjective) validate() error {
	if o.MinPct < 0 || o.MaxPct > 1 || o.MinPct > o.MaxPct {
		return NewConfigError("risk budget band [%.4f, %.4f] invalid", o.MinPct, o.MaxPct)
	}
	if o.Weight < 0 {
		return NewConfigError("risk budget weight must be non-negative, got %.4f", o.Weight)
	}
	return nil
}

// QuadraticUtilityObjective maximizes mean return minus risk-aversion-scaled
// variance.
type QuadraticUtilityObjective struct {
	RiskAversion float64
}

// NewQuadraticUtility creates a quadratic utility objective. Risk aversion
// must be strictly positive.
func NewQuadraticUtility(riskAversion float64) (*QuadraticUtilityObjective, error) {
	o := &QuadraticUtilityObjective{RiskAversion: riskAversion}
	if err := o.validate(); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *QuadraticUtilityObjective) Name() string { return "quadratic_utility" }

func (o *QuadraticUtilityObjective) Measure(weights []float64, returns *ReturnsMatrix) float64 {
	series := returns.PortfolioReturns(weights)
	return stat.Mean(series, nil) - o.RiskAversion*stat.Variance(series, nil)
}

func (o *QuadraticUtilityObjective) Contribution(weights []float64, returns *ReturnsMatrix) float64 {
	return o.Measure(weights, returns)
}

func (o *QuadraticUtilityObjective) validate() error {
	if o.RiskAversion <= 0 {
		return NewConfigError("risk aversion must be positive, got %.4f", o.RiskAversion)
	}
	return nil
}

// ConcentrationObjective penalizes the Herfindahl index of the weights,
// steering the search away from near-single-asset allocations.
type ConcentrationObjective struct {
	Weight float64
}

// NewConcentration creates a concentration objective.
func NewConcentration(weight float64) *ConcentrationObjective {
	return &ConcentrationObjective{Weight: weight}
}

func (o *ConcentrationObjective) Name() string { return "concentration" }

func (o *ConcentrationObjective) Measure(weights []float64, _ *ReturnsMatrix) float64 {
	return Herfindahl(weights)
}

func (o *ConcentrationObjective) Contribution(weights []float64, returns *ReturnsMatrix) float64 {
	return -o.Weight * o.Measure(weights, returns)
}

func (o *ConcentrationObjective) validate() error {
	if o.Weight < 0 {
		return NewConfigError("concentration weight must be non-negative, got %.4f", o.Weight)
	}
	return nil
}
