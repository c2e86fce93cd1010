package portfolio

// Spec aggregates assets, constraints and objectives into one configuration
// for a single optimization run. Add methods return extended copies so a
// spec handed to a solver is never mutated underneath it; concurrent solves
// each hold their own reference.
type Spec struct {
	Assets      []string
	Constraints []Constraint
	Objectives  []Objective
}

// NewSpec creates a specification over the given ordered asset universe.
// Asset identifiers must be unique.
func NewSpec(assets []string) (*Spec, error) {
	if len(assets) == 0 {
		return nil, NewConfigError("spec requires at least one asset")
	}
	seen := make(map[string]struct{}, len(assets))
	for _, a := range assets {
		if a == "" {
			return nil, NewConfigError("empty asset identifier")
		}
		if _, ok := seen[a]; ok {
			return nil, NewConfigError("duplicate asset %q", a)
		}
		seen[a] = struct{}{}
	}
	return &Spec{Assets: append([]string(nil), assets...)}, nil
}

// NumAssets returns the size of the asset universe.
func (s *Spec) NumAssets() int { return len(s.Assets) }

// Clone returns a deep-enough copy: the constraint and objective slices are
// fresh, the (immutable) entries are shared.
func (s *Spec) Clone() *Spec {
	return &Spec{
		Assets:      append([]string(nil), s.Assets...),
		Constraints: append([]Constraint(nil), s.Constraints...),
		Objectives:  append([]Objective(nil), s.Objectives...),
	}
}

// AddConstraint returns a copy of the spec extended with the constraint.
func (s *Spec) AddConstraint(c Constraint) *Spec {
	out := s.Clone()
	out.Constraints = append(out.Constraints, c)
	return out
}

// AddObjective returns a copy of the spec extended with the objective.
func (s *Spec) AddObjective(o Objective) *Spec {
	out := s.Clone()
	out.Objectives = append(out.Objectives, o)
	return out
}

// Validate runs construction-time checks on every constraint and objective.
func (s *Spec) Validate() error {
	n := len(s.Assets)
	for _, c := range s.Constraints {
		if err := c.validate(n); err != nil {
			return err
		}
	}
	if len(s.Objectives) == 0 {
		return NewConfigError("spec has no objectives")
	}
	for _, o := range s.Objectives {
		if err := o.validate(); err != nil {
			return err
		}
	}
	return nil
}

// Feasible reports whether the weight vector satisfies every constraint.
func (s *Spec) Feasible(weights []float64) bool {
	for _, c := range s.Constraints {
		if !c.Check(weights) {
			return false
		}
	}
	return true
}

// Score computes the aggregate objective value: the signed sum of every
// objective's contribution. Higher is better.
func (s *Spec) Score(weights []float64, returns *ReturnsMatrix) float64 {
	score := 0.0
	for _, o := range s.Objectives {
		score += o.Contribution(weights, returns)
	}
	return score
}

// Measures returns each objective's raw realized value keyed by objective
// name, for display alongside a solution.
func (s *Spec) Measures(weights []float64, returns *ReturnsMatrix) map[string]float64 {
	out := make(map[string]float64, len(s.Objectives))
	for _, o := range s.Objectives {
		out[o.Name()] = o.Measure(weights, returns)
	}
	return out
}

// BoxBounds returns the effective per-asset bounds: the intersection of the
// spec's box constraints. The long-only default [0,1] applies only when the
// spec carries no box constraint at all; an explicit box wider than [0,1]
// (shorting, per-asset leverage) passes through unclamped.
func (s *Spec) BoxBounds() (min, max []float64) {
	n := len(s.Assets)
	for _, c := range s.Constraints {
		box, ok := c.(*BoxConstraint)
		if !ok {
			continue
		}
		if min == nil {
			min = append([]float64(nil), box.Min...)
			max = append([]float64(nil), box.Max...)
			continue
		}
		for i := 0; i < n; i++ {
			if box.Min[i] > min[i] {
				min[i] = box.Min[i]
			}
			if box.Max[i] < max[i] {
				max[i] = box.Max[i]
			}
		}
	}
	if min == nil {
		return UniformBounds(n, 0), UniformBounds(n, 1)
	}
	return min, max
}

// WeightSumBounds returns the effective budget range: the intersection of all
// weight-sum constraints, defaulting to the full-investment budget [1,1]
// where none apply.
func (s *Spec) WeightSumBounds() (min, max float64) {
	min, max = 1, 1
	first := true
	for _, c := range s.Constraints {
		ws, ok := c.(*WeightSumConstraint)
		if !ok {
			continue
		}
		if first {
			min, max = ws.Min, ws.Max
			first = false
			continue
		}
		if ws.Min > min {
			min = ws.Min
		}
		if ws.Max < max {
			max = ws.Max
		}
	}
	return min, max
}

// WithTurnoverBase returns a copy of the spec with every turnover constraint
// rebound to the given base weights. A nil base marks the first rebalancing
// period; the rebound constraints then check nothing, which is only legal
// when they allow a missing base.
func (s *Spec) WithTurnoverBase(base []float64) *Spec {
	out := s.Clone()
	for i, c := range out.Constraints {
		if tc, ok := c.(*TurnoverConstraint); ok {
			out.Constraints[i] = tc.WithBase(base)
		}
	}
	return out
}

// TurnoverBase returns the base weights of the first bound turnover
// constraint, or nil when none carries one. The backtest engine uses this to
// seed the first period's prior weights from a caller-supplied base.
func (s *Spec) TurnoverBase() []float64 {
	for _, c := range s.Constraints {
		if tc, ok := c.(*TurnoverConstraint); ok && tc.Base != nil {
			return tc.Base
		}
	}
	return nil
}

// HasTurnover reports whether the spec carries a turnover constraint.
func (s *Spec) HasTurnover() bool {
	for _, c := range s.Constraints {
		if _, ok := c.(*TurnoverConstraint); ok {
			return true
		}
	}
	return false
}
