package backtest

import (
	"context"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/folio/internal/portfolio"
	"github.com/aristath/folio/internal/solver"
)

func newTestEngine() *Engine {
	return New(solver.NewDispatcher(nil, zerolog.Nop()), zerolog.Nop())
}

func baseSpec(t *testing.T) *portfolio.Spec {
	t.Helper()
	spec, err := portfolio.NewSpec([]string{"A", "B"})
	require.NoError(t, err)
	return spec.
		AddConstraint(portfolio.NewFullInvestment()).
		AddConstraint(portfolio.NewLongOnly(2)).
		AddObjective(portfolio.NewRisk(portfolio.RiskStdDev, 1))
}

func stochasticOpts() solver.Options {
	return solver.Options{Method: solver.MethodStochastic, Permutations: 200, Seed: 5}
}

func TestBacktestMonthlyRolling(t *testing.T) {
	returns := monthlyReturns(t, 60)

	result, err := newTestEngine().Run(context.Background(), baseSpec(t), returns, Config{
		Schedule: ScheduleConfig{RollingWindow: 12, RebalanceOn: RebalanceMonths},
		Solve:    stochasticOpts(),
	})
	require.NoError(t, err)

	require.Len(t, result.Entries, 48)
	assert.Equal(t, 0, result.Gaps())
	for i, e := range result.Entries {
		require.NotNil(t, e.Result, "entry %d", i)
		if i > 0 {
			assert.True(t, e.Date.After(result.Entries[i-1].Date), "entries must be date-ascending")
		}
		sum := 0.0
		for _, w := range e.Result.Weights {
			sum += w
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
	}
	assert.NotNil(t, result.LastWeights())
}

func TestBacktestParallelMatchesSequential(t *testing.T) {
	returns := monthlyReturns(t, 36)
	spec := baseSpec(t)
	cfg := Config{
		Schedule: ScheduleConfig{RollingWindow: 12, RebalanceOn: RebalanceMonths},
		Solve:    stochasticOpts(),
	}

	sequential, err := newTestEngine().Run(context.Background(), spec, returns, cfg)
	require.NoError(t, err)

	cfg.Workers = 4
	parallel, err := newTestEngine().Run(context.Background(), spec, returns, cfg)
	require.NoError(t, err)

	require.Len(t, parallel.Entries, len(sequential.Entries))
	for i := range sequential.Entries {
		assert.Equal(t, sequential.Entries[i].Date, parallel.Entries[i].Date)
		assert.Equal(t, sequential.Entries[i].Result.Weights, parallel.Entries[i].Result.Weights,
			"per-date solves are seed-deterministic, so order of execution must not matter")
	}
}

func TestBacktestInfeasibleDatesBecomeGaps(t *testing.T) {
	returns := monthlyReturns(t, 24)
	// Per-asset cap 0.4 cannot reach the budget, so every date is a gap.
	spec := baseSpec(t).
		AddConstraint(portfolio.NewBox(portfolio.UniformBounds(2, 0), portfolio.UniformBounds(2, 0.4)))

	result, err := newTestEngine().Run(context.Background(), spec, returns, Config{
		Schedule: ScheduleConfig{RollingWindow: 6, RebalanceOn: RebalanceMonths},
		Solve:    stochasticOpts(),
	})
	require.NoError(t, err, "infeasible dates must not abort the run")

	assert.Equal(t, len(result.Entries), result.Gaps())
	for _, e := range result.Entries {
		assert.True(t, e.Infeasible)
		assert.Nil(t, e.Result)
		assert.NotEmpty(t, e.Reason)
	}
	assert.Nil(t, result.LastWeights())
}

func TestBacktestTurnoverChainsPriorWeights(t *testing.T) {
	returns := monthlyReturns(t, 36)
	turnover := portfolio.NewTurnover(2, nil)
	turnover.AllowMissingBase = true
	spec := baseSpec(t).AddConstraint(turnover)

	cfg := Config{
		Schedule: ScheduleConfig{RollingWindow: 12, RebalanceOn: RebalanceMonths},
		Solve:    stochasticOpts(),
		// Turnover forces sequential execution regardless of Workers.
		Workers: 8,
	}
	result, err := newTestEngine().Run(context.Background(), spec, returns, cfg)
	require.NoError(t, err)

	assert.Equal(t, 0, result.Gaps())
	for i := 1; i < len(result.Entries); i++ {
		prev := result.Entries[i-1].Result.Weights
		cur := result.Entries[i].Result.Weights
		l1 := 0.0
		for j := range cur {
			l1 += math.Abs(cur[j] - prev[j])
		}
		assert.LessOrEqual(t, l1, 2+portfolio.FeasibilityTol)
	}
}

func TestBacktestTurnoverUsesSuppliedBaseForFirstPeriod(t *testing.T) {
	returns := monthlyReturns(t, 24)
	base := []float64{0.5, 0.5}
	spec := baseSpec(t).AddConstraint(portfolio.NewTurnover(0.5, base))

	result, err := newTestEngine().Run(context.Background(), spec, returns, Config{
		Schedule: ScheduleConfig{RollingWindow: 6, RebalanceOn: RebalanceMonths},
		Solve:    stochasticOpts(),
	})
	require.NoError(t, err, "a spec that carries base weights needs no missing-base opt-in")

	require.NotEmpty(t, result.Entries)
	first := result.Entries[0]
	require.NotNil(t, first.Result, "first period must solve against the supplied base")
	l1 := 0.0
	for j, w := range first.Result.Weights {
		l1 += math.Abs(w - base[j])
	}
	assert.LessOrEqual(t, l1, 0.5+portfolio.FeasibilityTol,
		"first period turnover is measured against the caller's base")
}

func TestBacktestTurnoverWithoutBaseNeedsExplicitOptIn(t *testing.T) {
	returns := monthlyReturns(t, 36)
	spec := baseSpec(t).AddConstraint(portfolio.NewTurnover(0.5, nil))

	_, err := newTestEngine().Run(context.Background(), spec, returns, Config{
		Schedule: ScheduleConfig{RollingWindow: 12, RebalanceOn: RebalanceMonths},
		Solve:    stochasticOpts(),
	})
	require.Error(t, err)
	assert.True(t, portfolio.IsConfigError(err), "the unbounded first period must be opted into, not implied")
}

func TestBacktestPropagatesScheduleErrors(t *testing.T) {
	returns := monthlyReturns(t, 12)
	_, err := newTestEngine().Run(context.Background(), baseSpec(t), returns, Config{
		Schedule: ScheduleConfig{RollingWindow: 24, RebalanceOn: RebalanceMonths},
		Solve:    stochasticOpts(),
	})
	assert.True(t, portfolio.IsConfigError(err))
}

func TestBacktestCancellation(t *testing.T) {
	returns := monthlyReturns(t, 60)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestEngine().Run(ctx, baseSpec(t), returns, Config{
		Schedule: ScheduleConfig{RollingWindow: 12, RebalanceOn: RebalanceMonths},
		Solve:    stochasticOpts(),
	})
	assert.ErrorIs(t, err, context.Canceled)
}
