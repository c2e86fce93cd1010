// Package portfolio defines the portfolio specification model: assets,
// feasible-region constraints and scalarized objectives. A Spec is assembled
// once per optimization run and treated as immutable by the solvers.
package portfolio

import (
	"math"
)

// FeasibilityTol is the floating-point tolerance used by all feasibility
// checks. A weight sum of 1.0000000001 against WeightSum(1,1) is feasible.
const FeasibilityTol = 1e-9

// Constraint restricts the feasible region of weight vectors. Check reports
// feasibility of a candidate; validate runs construction-time checks against
// the spec's asset count.
type Constraint interface {
	Name() string
	Check(weights []float64) bool
	validate(numAssets int) error
}

// WeightSumConstraint keeps the sum of weights inside [Min, Max]. Equal
// bounds enforce an exact budget.
type WeightSumConstraint struct {
	Min float64
	Max float64
}

// NewWeightSum creates a weight-sum constraint.
func NewWeightSum(min, max float64) *WeightSumConstraint {
	return &WeightSumConstraint{Min: min, Max: max}
}

// NewFullInvestment creates the exact-budget constraint sum(w) = 1. It is
// sugar over WeightSum(1,1), not a separate code path.
func NewFullInvestment() *WeightSumConstraint {
	return NewWeightSum(1, 1)
}

func (c *WeightSumConstraint) Name() string { return "weight_sum" }

func (c *WeightSumConstraint) Check(weights []float64) bool {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	return sum >= c.Min-FeasibilityTol && sum <= c.Max+FeasibilityTol
}

func (c *WeightSumConstraint) validate(int) error {
	if c.Min > c.Max {
		return NewConfigError("weight_sum bounds inverted: min %.4f > max %.4f", c.Min, c.Max)
	}
	return nil
}

// BoxConstraint bounds each weight inside [Min[i], Max[i]].
type BoxConstraint struct {
	Min []float64
	Max []float64
}

// NewBox creates per-asset box bounds. Bounds default to [0,1] for any asset
// without an explicit entry; callers that want scalar bounds use UniformBounds.
func NewBox(min, max []float64) *BoxConstraint {
	return &BoxConstraint{Min: min, Max: max}
}

// NewLongOnly creates the long-only constraint for n assets. It is sugar over
// Box(0,1); there is no separate long-only code path.
func NewLongOnly(n int) *BoxConstraint {
	return NewBox(UniformBounds(n, 0), UniformBounds(n, 1))
}

// UniformBounds returns a length-n slice filled with v.
func UniformBounds(n int, v float64) []float64 {
	b := make([]float64, n)
	for i := range b {
		b[i] = v
	}
	return b
}

func (c *BoxConstraint) Name() string { return "box" }

func (c *BoxConstraint) Check(weights []float64) bool {
	for i, w := range weights {
		if w < c.Min[i]-FeasibilityTol || w > c.Max[i]+FeasibilityTol {
			return false
		}
	}
	return true
}

func (c *BoxConstraint) validate(numAssets int) error {
	if len(c.Min) != numAssets || len(c.Max) != numAssets {
		return NewConfigError("box bounds have %d/%d entries, expected %d", len(c.Min), len(c.Max), numAssets)
	}
	for i := range c.Min {
		if c.Min[i] > c.Max[i] {
			return NewConfigError("box bounds inverted for asset %d: %.4f > %.4f", i, c.Min[i], c.Max[i])
		}
	}
	return nil
}

// Group names a set of asset indices with a bound on their combined weight.
type Group struct {
	Name    string
	Indices []int
	Min     float64
	Max     float64
}

// GroupConstraint bounds the weight sum of each group independently. The
// groups must partition the asset index set: every asset in exactly one
// group.
type GroupConstraint struct {
	Groups []Group
}

// NewGroups creates a group constraint from the given groups.
func NewGroups(groups ...Group) *GroupConstraint {
	return &GroupConstraint{Groups: groups}
}

func (c *GroupConstraint) Name() string { return "group" }

func (c *GroupConstraint) Check(weights []float64) bool {
	for _, g := range c.Groups {
		sum := 0.0
		for _, idx := range g.Indices {
			sum += weights[idx]
		}
		if sum < g.Min-FeasibilityTol || sum > g.Max+FeasibilityTol {
			return false
		}
	}
	return true
}

func (c *GroupConstraint) validate(numAssets int) error {
	seen := make(map[int]string, numAssets)
	for _, g := range c.Groups {
		if g.Min > g.Max {
			return NewConfigError("group %q bounds inverted: %.4f > %.4f", g.Name, g.Min, g.Max)
		}
		for _, idx := range g.Indices {
			if idx < 0 || idx >= numAssets {
				return NewConfigError("group %q references asset index %d outside [0,%d)", g.Name, idx, numAssets)
			}
			if prev, ok := seen[idx]; ok {
				return NewConfigError("asset index %d appears in groups %q and %q", idx, prev, g.Name)
			}
			seen[idx] = g.Name
		}
	}
	if len(seen) != numAssets {
		return NewConfigError("groups cover %d of %d assets; membership must be a partition", len(seen), numAssets)
	}
	return nil
}

// TurnoverConstraint caps the total absolute weight change against a base
// weight vector. Base is supplied by the caller (the prior period's weights
// during a backtest). With no base set, the constraint is only valid when
// AllowMissingBase is explicitly enabled, in which case it checks nothing -
// the first rebalancing period of a backtest uses this.
type TurnoverConstraint struct {
	Max              float64
	Base             []float64
	AllowMissingBase bool
}

// NewTurnover creates a turnover constraint against the given base weights.
func NewTurnover(max float64, base []float64) *TurnoverConstraint {
	return &TurnoverConstraint{Max: max, Base: base}
}

func (c *TurnoverConstraint) Name() string { return "turnover" }

func (c *TurnoverConstraint) Check(weights []float64) bool {
	if c.Base == nil {
		return true
	}
	turnover := 0.0
	for i, w := range weights {
		turnover += math.Abs(w - c.Base[i])
	}
	return turnover <= c.Max+FeasibilityTol
}

func (c *TurnoverConstraint) validate(numAssets int) error {
	if c.Max < 0 {
		return NewConfigError("turnover limit must be non-negative, got %.4f", c.Max)
	}
	if c.Base == nil {
		if !c.AllowMissingBase {
			return NewConfigError("turnover constraint requires base weights")
		}
		return nil
	}
	if len(c.Base) != numAssets {
		return NewConfigError("turnover base has %d weights, expected %d", len(c.Base), numAssets)
	}
	return nil
}

// WithBase returns a copy of the constraint bound to the given base weights.
// The backtest engine uses this to thread each period's solution into the
// next period's constraint set.
func (c *TurnoverConstraint) WithBase(base []float64) *TurnoverConstraint {
	return &TurnoverConstraint{Max: c.Max, Base: base, AllowMissingBase: c.AllowMissingBase}
}

// DiversificationConstraint requires the diversification measure 1 - sum(w^2)
// to reach at least Target.
type DiversificationConstraint struct {
	Target float64
}

// NewDiversification creates a diversification constraint.
func NewDiversification(target float64) *DiversificationConstraint {
	return &DiversificationConstraint{Target: target}
}

func (c *DiversificationConstraint) Name() string { return "diversification" }

func (c *DiversificationConstraint) Check(weights []float64) bool {
	return 1-Herfindahl(weights) >= c.Target-FeasibilityTol
}

func (c *DiversificationConstraint) validate(int) error {
	if c.Target < 0 || c.Target >= 1 {
		return NewConfigError("diversification target must be in [0,1), got %.4f", c.Target)
	}
	return nil
}

// PositionLimitConstraint caps the number of non-zero long and short
// positions. A weight counts as a position when its magnitude exceeds the
// feasibility tolerance.
type PositionLimitConstraint struct {
	MaxLong  int
	MaxShort int
}

// NewPositionLimit creates a position-count constraint.
func NewPositionLimit(maxLong, maxShort int) *PositionLimitConstraint {
	return &PositionLimitConstraint{MaxLong: maxLong, MaxShort: maxShort}
}

func (c *PositionLimitConstraint) Name() string { return "position_limit" }

func (c *PositionLimitConstraint) Check(weights []float64) bool {
	longs, shorts := 0, 0
	for _, w := range weights {
		switch {
		case w > FeasibilityTol:
			longs++
		case w < -FeasibilityTol:
			shorts++
		}
	}
	return longs <= c.MaxLong && shorts <= c.MaxShort
}

func (c *PositionLimitConstraint) validate(int) error {
	if c.MaxLong < 0 || c.MaxShort < 0 {
		return NewConfigError("position limits must be non-negative")
	}
	return nil
}

// FactorExposureConstraint bounds the portfolio's exposure to each factor:
// Min[k] <= sum_i Loadings[i][k] * w_i <= Max[k]. Loadings has one row per
// asset and one column per factor.
type FactorExposureConstraint struct {
	Loadings [][]float64
	Min      []float64
	Max      []float64
}

// NewFactorExposure creates a factor-exposure constraint.
func NewFactorExposure(loadings [][]float64, min, max []float64) *FactorExposureConstraint {
	return &FactorExposureConstraint{Loadings: loadings, Min: min, Max: max}
}

func (c *FactorExposureConstraint) Name() string { return "factor_exposure" }

func (c *FactorExposureConstraint) Check(weights []float64) bool {
	numFactors := len(c.Min)
	for k := 0; k < numFactors; k++ {
		exposure := 0.0
		for i, w := range weights {
			exposure += c.Loadings[i][k] * w
		}
		if exposure < c.Min[k]-FeasibilityTol || exposure > c.Max[k]+FeasibilityTol {
			return false
		}
	}
	return true
}

func (c *FactorExposureConstraint) validate(numAssets int) error {
	if len(c.Loadings) != numAssets {
		return NewConfigError("factor loadings have %d rows, expected %d", len(c.Loadings), numAssets)
	}
	numFactors := len(c.Min)
	if len(c.Max) != numFactors {
		return NewConfigError("factor bounds have %d/%d entries", len(c.Min), len(c.Max))
	}
	for i, row := range c.Loadings {
		if len(row) != numFactors {
			return NewConfigError("factor loadings row %d has %d entries, expected %d", i, len(row), numFactors)
		}
	}
	for k := range c.Min {
		if c.Min[k] > c.Max[k] {
			return NewConfigError("factor %d bounds inverted: %.4f > %.4f", k, c.Min[k], c.Max[k])
		}
	}
	return nil
}

// LeverageConstraint caps gross exposure sum(|w|) at Max.
type LeverageConstraint struct {
	Max float64
}

// NewLeverage creates a gross-exposure constraint.
func NewLeverage(max float64) *LeverageConstraint {
	return &LeverageConstraint{Max: max}
}

func (c *LeverageConstraint) Name() string { return "leverage" }

func (c *LeverageConstraint) Check(weights []float64) bool {
	gross := 0.0
	for _, w := range weights {
		gross += math.Abs(w)
	}
	return gross <= c.Max+FeasibilityTol
}

func (c *LeverageConstraint) validate(int) error {
	if c.Max <= 0 {
		return NewConfigError("leverage limit must be positive, got %.4f", c.Max)
	}
	return nil
}

// Herfindahl computes the concentration index sum of squared weights.
func Herfindahl(weights []float64) float64 {
	hhi := 0.0
	for _, w := range weights {
		hhi += w * w
	}
	return hhi
}
