package backtest

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/folio/internal/portfolio"
	"github.com/aristath/folio/internal/solver"
)

// Config parameterizes a backtest run.
type Config struct {
	Schedule ScheduleConfig
	Solve    solver.Options
	// Workers bounds parallel per-date solves. Zero or one runs
	// sequentially. Specs with a turnover constraint always run
	// sequentially: each period's constraint is rebound to the previous
	// period's solution.
	Workers int
}

// Entry is one rebalancing date's outcome. An infeasible date is recorded as
// a gap (nil Result) instead of aborting the backtest.
type Entry struct {
	Date       time.Time      `json:"date"`
	Result     *solver.Result `json:"result,omitempty"`
	Infeasible bool           `json:"infeasible,omitempty"`
	Reason     string         `json:"reason,omitempty"`
}

// Result is the assembled weight time series: one entry per rebalancing
// date, date-ascending, immutable once returned.
type Result struct {
	Entries []Entry `json:"entries"`
}

// Gaps returns how many rebalancing dates had no feasible solution.
func (r *Result) Gaps() int {
	n := 0
	for _, e := range r.Entries {
		if e.Infeasible {
			n++
		}
	}
	return n
}

// LastWeights returns the most recent solved weight vector, or nil when
// every date was a gap.
func (r *Result) LastWeights() []float64 {
	for i := len(r.Entries) - 1; i >= 0; i-- {
		if r.Entries[i].Result != nil {
			return r.Entries[i].Result.Weights
		}
	}
	return nil
}

// Engine slides a training window across the returns history and re-invokes
// the solver at every scheduled rebalancing date.
type Engine struct {
	dispatcher *solver.Dispatcher
	log        zerolog.Logger
}

// New creates a backtest engine on top of the given dispatcher.
func New(dispatcher *solver.Dispatcher, log zerolog.Logger) *Engine {
	return &Engine{
		dispatcher: dispatcher,
		log:        log.With().Str("component", "backtest").Logger(),
	}
}

// Run executes the walk-forward backtest. An InfeasibleError at a single
// date becomes a gap entry and the run continues; any other error aborts
// immediately. Entries come back date-ascending regardless of solve order.
func (e *Engine) Run(ctx context.Context, spec *portfolio.Spec, returns *portfolio.ReturnsMatrix, cfg Config) (*Result, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if err := returns.MatchesAssets(spec.Assets); err != nil {
		return nil, err
	}

	schedule, err := Schedule(returns, cfg.Schedule)
	if err != nil {
		return nil, err
	}

	e.log.Info().
		Int("rebalance_dates", len(schedule)).
		Int("rolling_window", cfg.Schedule.RollingWindow).
		Str("method", string(cfg.Solve.Method)).
		Msg("Starting backtest")

	entries := make([]Entry, len(schedule))
	if spec.HasTurnover() || cfg.Workers <= 1 {
		err = e.runSequential(ctx, spec, returns, cfg, schedule, entries)
	} else {
		err = e.runParallel(ctx, spec, returns, cfg, schedule, entries)
	}
	if err != nil {
		return nil, err
	}

	result := &Result{Entries: entries}
	e.log.Info().
		Int("entries", len(entries)).
		Int("gaps", result.Gaps()).
		Msg("Backtest finished")
	return result, nil
}

// runSequential solves dates in order. Turnover constraints are rebound to
// the previous date's solution; the first date constrains against a
// caller-supplied base when one is set, otherwise it runs with no base,
// which the constraint must explicitly allow.
func (e *Engine) runSequential(ctx context.Context, spec *portfolio.Spec, returns *portfolio.ReturnsMatrix, cfg Config, schedule []int, entries []Entry) error {
	prior := spec.TurnoverBase()
	hasTurnover := spec.HasTurnover()

	for i, t := range schedule {
		if err := ctx.Err(); err != nil {
			return err
		}
		periodSpec := spec
		if hasTurnover {
			periodSpec = spec.WithTurnoverBase(prior)
		}
		entry, err := e.solveDate(ctx, periodSpec, returns, cfg, t)
		if err != nil {
			return err
		}
		entries[i] = entry
		if entry.Result != nil {
			prior = entry.Result.Weights
		}
	}
	return nil
}

// runParallel fans per-date solves out over a bounded worker group. Each
// solve reads only its own training-window slice; entries are written to
// their schedule position, keeping the result date-ascending.
func (e *Engine) runParallel(ctx context.Context, spec *portfolio.Spec, returns *portfolio.ReturnsMatrix, cfg Config, schedule []int, entries []Entry) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)

	for i, t := range schedule {
		i, t := i, t
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			entry, err := e.solveDate(ctx, spec, returns, cfg, t)
			if err != nil {
				return err
			}
			entries[i] = entry
			return nil
		})
	}
	return g.Wait()
}

// solveDate optimizes one rebalancing date over its training window,
// downgrading InfeasibleError to a gap entry.
func (e *Engine) solveDate(ctx context.Context, spec *portfolio.Spec, returns *portfolio.ReturnsMatrix, cfg Config, t int) (Entry, error) {
	date := returns.Date(t)
	window := returns.Window(windowStart(t, cfg.Schedule), t)

	result, err := e.dispatcher.Solve(ctx, spec, window, cfg.Solve)
	if err != nil {
		if portfolio.IsInfeasible(err) {
			e.log.Warn().
				Time("date", date).
				Err(err).
				Msg("No feasible solution for rebalancing date, recording gap")
			return Entry{Date: date, Infeasible: true, Reason: err.Error()}, nil
		}
		return Entry{}, err
	}
	return Entry{Date: date, Result: result}, nil
}
