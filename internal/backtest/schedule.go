// Package backtest re-optimizes a portfolio spec over a rolling training
// window at every rebalancing date and stitches the results into a weight
// time series.
package backtest

import (
	"time"

	"github.com/aristath/folio/internal/portfolio"
)

// Frequency selects which period boundaries trigger a rebalance.
type Frequency string

const (
	RebalanceDays     Frequency = "days"
	RebalanceWeeks    Frequency = "weeks"
	RebalanceMonths   Frequency = "months"
	RebalanceQuarters Frequency = "quarters"
	RebalanceYears    Frequency = "years"
)

// ScheduleConfig derives rebalancing dates from the returns date index.
//
// TrainingPeriod is the minimum number of periods that must precede the
// first rebalance. RollingWindow is the training slice length; zero means an
// expanding window from the start of history. An unset TrainingPeriod
// defaults to the rolling window.
type ScheduleConfig struct {
	TrainingPeriod int
	RollingWindow  int
	RebalanceOn    Frequency
}

// Schedule computes the ordered rebalancing period indices for the returns
// history. At index t the training window is [t-RollingWindow, t), so t
// itself is out of sample.
func Schedule(returns *portfolio.ReturnsMatrix, cfg ScheduleConfig) ([]int, error) {
	if cfg.TrainingPeriod <= 0 {
		cfg.TrainingPeriod = cfg.RollingWindow
	}
	if cfg.TrainingPeriod <= 0 {
		return nil, portfolio.NewConfigError("schedule requires a training period or rolling window")
	}
	if cfg.RollingWindow < 0 {
		return nil, portfolio.NewConfigError("rolling window must be non-negative, got %d", cfg.RollingWindow)
	}
	if cfg.TrainingPeriod >= returns.Len() {
		return nil, portfolio.NewConfigError(
			"training period %d exceeds available history of %d periods", cfg.TrainingPeriod, returns.Len())
	}
	switch cfg.RebalanceOn {
	case RebalanceDays, RebalanceWeeks, RebalanceMonths, RebalanceQuarters, RebalanceYears, "":
	default:
		return nil, portfolio.NewConfigError("unknown rebalance frequency %q", cfg.RebalanceOn)
	}

	start := cfg.TrainingPeriod
	if cfg.RollingWindow > start {
		start = cfg.RollingWindow
	}

	dates := returns.Dates()
	var schedule []int
	for t := start; t < len(dates); t++ {
		if isBoundary(dates, t, cfg.RebalanceOn) {
			schedule = append(schedule, t)
		}
	}
	if len(schedule) == 0 {
		return nil, portfolio.NewConfigError("schedule is empty: no %s boundaries after period %d", cfg.RebalanceOn, start)
	}
	return schedule, nil
}

// isBoundary reports whether period t closes a bucket of the given
// frequency: its date falls in a different bucket than the next period's, or
// it is the last period of the history.
func isBoundary(dates []time.Time, t int, freq Frequency) bool {
	switch freq {
	case RebalanceDays, "":
		return true
	case RebalanceWeeks:
		if t == len(dates)-1 {
			return true
		}
		y1, w1 := dates[t].ISOWeek()
		y2, w2 := dates[t+1].ISOWeek()
		return y1 != y2 || w1 != w2
	case RebalanceMonths:
		if t == len(dates)-1 {
			return true
		}
		return dates[t].Year() != dates[t+1].Year() || dates[t].Month() != dates[t+1].Month()
	case RebalanceQuarters:
		if t == len(dates)-1 {
			return true
		}
		return dates[t].Year() != dates[t+1].Year() || quarter(dates[t]) != quarter(dates[t+1])
	case RebalanceYears:
		return t == len(dates)-1 || dates[t].Year() != dates[t+1].Year()
	default:
		return true
	}
}

func quarter(t time.Time) int {
	return (int(t.Month()) - 1) / 3
}

// windowStart returns the first period of the training slice for the
// rebalance at index t.
func windowStart(t int, cfg ScheduleConfig) int {
	if cfg.RollingWindow <= 0 {
		return 0
	}
	return t - cfg.RollingWindow
}
