package server

import (
	"encoding/json"
	"time"

	"github.com/aristath/folio/internal/portfolio"
)

// optimizeRequest is the wire form of a single-period optimization call.
type optimizeRequest struct {
	Assets      []string        `json:"assets"`
	Dates       []string        `json:"dates"`
	Returns     [][]float64     `json:"returns"`
	Constraints []constraintDTO `json:"constraints"`
	Objectives  []objectiveDTO  `json:"objectives"`

	Method         string  `json:"method"`
	Permutations   int     `json:"permutations"`
	Seed           *int64  `json:"seed"`
	Strategy       string  `json:"strategy"`
	GridResolution float64 `json:"grid_resolution"`
	Save           bool    `json:"save"`
}

// backtestRequest extends the optimize request with schedule parameters.
type backtestRequest struct {
	optimizeRequest
	TrainingPeriod int    `json:"training_period"`
	RollingWindow  int    `json:"rolling_window"`
	RebalanceOn    string `json:"rebalance_on"`
	Workers        int    `json:"workers"`
}

// constraintDTO is the tagged wire form of a constraint. Box bounds accept
// either a scalar (applied to every asset) or a per-asset array.
type constraintDTO struct {
	Type string `json:"type"`

	Min json.RawMessage `json:"min,omitempty"`
	Max json.RawMessage `json:"max,omitempty"`

	Groups []groupDTO `json:"groups,omitempty"`

	Base             []float64 `json:"base,omitempty"`
	AllowMissingBase bool      `json:"allow_missing_base,omitempty"`

	Target   float64 `json:"target,omitempty"`
	MaxLong  int     `json:"max_long,omitempty"`
	MaxShort int     `json:"max_short,omitempty"`

	Loadings  [][]float64 `json:"loadings,omitempty"`
	FactorMin []float64   `json:"factor_min,omitempty"`
	FactorMax []float64   `json:"factor_max,omitempty"`
}

// groupDTO names group members by asset identifier.
type groupDTO struct {
	Name   string   `json:"name"`
	Assets []string `json:"assets"`
	Min    float64  `json:"min"`
	Max    float64  `json:"max"`
}

// objectiveDTO is the tagged wire form of an objective. Weight is a pointer
// so an explicit zero (a disabled term) stays distinct from an absent field.
type objectiveDTO struct {
	Type         string   `json:"type"`
	Weight       *float64 `json:"weight,omitempty"`
	Metric       string   `json:"metric,omitempty"`
	MinPct       float64  `json:"min_pct,omitempty"`
	MaxPct       float64  `json:"max_pct,omitempty"`
	RiskAversion float64  `json:"risk_aversion,omitempty"`
}

// buildReturns decodes the date index and returns matrix.
func buildReturns(req *optimizeRequest) (*portfolio.ReturnsMatrix, error) {
	dates := make([]time.Time, len(req.Dates))
	for i, d := range req.Dates {
		t, err := time.Parse("2006-01-02", d)
		if err != nil {
			return nil, portfolio.NewConfigError("bad date %q at row %d: expected YYYY-MM-DD", d, i)
		}
		dates[i] = t
	}
	return portfolio.NewReturnsMatrix(dates, req.Assets, req.Returns)
}

// buildSpec assembles the domain spec from the wire request.
func buildSpec(req *optimizeRequest) (*portfolio.Spec, error) {
	spec, err := portfolio.NewSpec(req.Assets)
	if err != nil {
		return nil, err
	}
	n := spec.NumAssets()

	for _, dto := range req.Constraints {
		c, err := decodeConstraint(dto, spec.Assets, n)
		if err != nil {
			return nil, err
		}
		spec = spec.AddConstraint(c)
	}
	for _, dto := range req.Objectives {
		o, err := decodeObjective(dto)
		if err != nil {
			return nil, err
		}
		spec = spec.AddObjective(o)
	}
	return spec, nil
}

func decodeConstraint(dto constraintDTO, assets []string, n int) (portfolio.Constraint, error) {
	switch dto.Type {
	case "full_investment":
		return portfolio.NewFullInvestment(), nil
	case "weight_sum":
		min, err := scalarBound(dto.Min, "min")
		if err != nil {
			return nil, err
		}
		max, err := scalarBound(dto.Max, "max")
		if err != nil {
			return nil, err
		}
		return portfolio.NewWeightSum(min, max), nil
	case "long_only":
		return portfolio.NewLongOnly(n), nil
	case "box":
		min, err := boundsSlice(dto.Min, n, 0)
		if err != nil {
			return nil, err
		}
		max, err := boundsSlice(dto.Max, n, 1)
		if err != nil {
			return nil, err
		}
		return portfolio.NewBox(min, max), nil
	case "group":
		index := make(map[string]int, len(assets))
		for i, a := range assets {
			index[a] = i
		}
		groups := make([]portfolio.Group, 0, len(dto.Groups))
		for _, g := range dto.Groups {
			indices := make([]int, 0, len(g.Assets))
			for _, a := range g.Assets {
				idx, ok := index[a]
				if !ok {
					return nil, portfolio.NewConfigError("group %q references unknown asset %q", g.Name, a)
				}
				indices = append(indices, idx)
			}
			groups = append(groups, portfolio.Group{Name: g.Name, Indices: indices, Min: g.Min, Max: g.Max})
		}
		return portfolio.NewGroups(groups...), nil
	case "turnover":
		max, err := scalarBound(dto.Max, "max")
		if err != nil {
			return nil, err
		}
		c := portfolio.NewTurnover(max, dto.Base)
		c.AllowMissingBase = dto.AllowMissingBase
		return c, nil
	case "diversification":
		return portfolio.NewDiversification(dto.Target), nil
	case "position_limit":
		return portfolio.NewPositionLimit(dto.MaxLong, dto.MaxShort), nil
	case "factor_exposure":
		return portfolio.NewFactorExposure(dto.Loadings, dto.FactorMin, dto.FactorMax), nil
	case "leverage":
		max, err := scalarBound(dto.Max, "max")
		if err != nil {
			return nil, err
		}
		return portfolio.NewLeverage(max), nil
	default:
		return nil, portfolio.NewConfigError("unknown constraint type %q", dto.Type)
	}
}

func decodeObjective(dto objectiveDTO) (portfolio.Objective, error) {
	weight := 1.0
	if dto.Weight != nil {
		weight = *dto.Weight
	}
	switch dto.Type {
	case "return":
		return portfolio.NewReturn(weight), nil
	case "risk":
		metric := portfolio.RiskMetric(dto.Metric)
		if dto.Metric == "" {
			metric = portfolio.RiskStdDev
		}
		return portfolio.NewRisk(metric, weight), nil
	case "risk_budget":
		return portfolio.NewRiskBudget(dto.MinPct, dto.MaxPct, weight), nil
	case "quadratic_utility":
		return portfolio.NewQuadraticUtility(dto.RiskAversion)
	case "concentration":
		return portfolio.NewConcentration(weight), nil
	default:
		return nil, portfolio.NewConfigError("unknown objective type %q", dto.Type)
	}
}

// scalarBound decodes a required scalar bound.
func scalarBound(raw json.RawMessage, field string) (float64, error) {
	if len(raw) == 0 {
		return 0, portfolio.NewConfigError("missing %q bound", field)
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, portfolio.NewConfigError("bound %q must be a number", field)
	}
	return v, nil
}

// boundsSlice decodes a bound that is either a scalar broadcast to all
// assets or a per-asset array; absent bounds use the default.
func boundsSlice(raw json.RawMessage, n int, def float64) ([]float64, error) {
	if len(raw) == 0 {
		return portfolio.UniformBounds(n, def), nil
	}
	var scalar float64
	if err := json.Unmarshal(raw, &scalar); err == nil {
		return portfolio.UniformBounds(n, scalar), nil
	}
	var slice []float64
	if err := json.Unmarshal(raw, &slice); err != nil {
		return nil, portfolio.NewConfigError("box bound must be a number or an array of numbers")
	}
	return slice, nil
}
