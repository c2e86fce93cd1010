package portfolio

import (
	"errors"
	"fmt"
)

// ConfigError reports a malformed portfolio specification: bad bounds,
// unpartitioned groups, missing base weights for a turnover constraint,
// asset/column mismatches, and similar construction-time problems.
// It is never retried.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "invalid portfolio configuration: " + e.Reason
}

// NewConfigError creates a ConfigError with a formatted reason.
func NewConfigError(format string, args ...any) *ConfigError {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

// InfeasibleError reports that no weight vector satisfies the active
// constraint set: an empty QP feasible region, or zero feasible candidates
// after a stochastic search.
type InfeasibleError struct {
	Reason string
}

func (e *InfeasibleError) Error() string {
	return "infeasible portfolio: " + e.Reason
}

// NewInfeasibleError creates an InfeasibleError with a formatted reason.
func NewInfeasibleError(format string, args ...any) *InfeasibleError {
	return &InfeasibleError{Reason: fmt.Sprintf(format, args...)}
}

// SolverError reports a numeric solve that failed for reasons other than
// infeasibility, such as ill-conditioning or an exhausted iteration budget.
// Exact mode only; the stochastic search never raises it.
type SolverError struct {
	Reason string
	Err    error
}

func (e *SolverError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("solver failed: %s: %v", e.Reason, e.Err)
	}
	return "solver failed: " + e.Reason
}

func (e *SolverError) Unwrap() error { return e.Err }

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsInfeasible reports whether err is (or wraps) an InfeasibleError.
func IsInfeasible(err error) bool {
	var ie *InfeasibleError
	return errors.As(err, &ie)
}

// IsSolverError reports whether err is (or wraps) a SolverError.
func IsSolverError(err error) bool {
	var se *SolverError
	return errors.As(err, &se)
}
