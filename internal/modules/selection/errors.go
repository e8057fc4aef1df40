package selection

import (
	"errors"
	"fmt"
)

var (
	// ErrOptimizationFailure is matched by every error returned when an allocation could not be produced.
	ErrOptimizationFailure = errors.New("optimization failure")

	// ErrDomain marks inputs for which the log-growth objective is undefined
	// (empty, zero, negative or non-finite relative returns).
	ErrDomain = errors.New("relative returns outside objective domain")

	// ErrNotConfigured is returned when a strategy is asked to optimize before Configure.
	ErrNotConfigured = errors.New("strategy asset count not configured")

	// ErrUnknownSolver is returned for an unrecognized SolverKind.
	ErrUnknownSolver = errors.New("unknown solver")

	// ErrUnknownStrategy is returned by NewStrategy for an unrecognized name.
	ErrUnknownStrategy = errors.New("unknown strategy")
)

// OptimizationError describes a failed solve. It matches ErrOptimizationFailure
// and, through Unwrap, the underlying cause (ErrDomain, context errors, ...).
type OptimizationError struct {
	Solver SolverKind
	Status string
	Err    error
}

func (e *OptimizationError) Error() string {
	msg := "optimization failure"
	if e.Solver != "" {
		msg += fmt.Sprintf(" (solver=%s", e.Solver)
		if e.Status != "" {
			msg += fmt.Sprintf(", status=%s", e.Status)
		}
		msg += ")"
	} else if e.Status != "" {
		msg += fmt.Sprintf(" (status=%s)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports ErrOptimizationFailure as a match.
func (e *OptimizationError) Is(target error) bool {
	return target == ErrOptimizationFailure
}

func (e *OptimizationError) Unwrap() error {
	return e.Err
}

func failure(solver SolverKind, status string, err error) error {
	return &OptimizationError{Solver: solver, Status: status, Err: err}
}

func domainFailure(format string, args ...interface{}) error {
	return &OptimizationError{
		Status: "invalid_input",
		Err:    fmt.Errorf("%w: %s", ErrDomain, fmt.Sprintf(format, args...)),
	}
}
