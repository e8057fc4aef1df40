package selection

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// SolverKind identifies a numeric solver backend.
type SolverKind string

const (
	SolverProjectedGradient SolverKind = "projected_gradient"
	SolverLBFGS             SolverKind = "lbfgs"
	SolverBFGS              SolverKind = "bfgs"
	SolverNelderMead        SolverKind = "nelder_mead"

	// DefaultSolver is used when no solver is requested.
	DefaultSolver = SolverProjectedGradient
)

// SolverKinds lists every supported backend.
func SolverKinds() []SolverKind {
	return []SolverKind{SolverProjectedGradient, SolverLBFGS, SolverBFGS, SolverNelderMead}
}

// ParseSolverKind normalizes a user-supplied solver name. Empty selects DefaultSolver.
func ParseSolverKind(name string) (SolverKind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return DefaultSolver, nil
	}
	name = strings.ReplaceAll(name, "-", "_")
	for _, k := range SolverKinds() {
		if string(k) == name {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSolver, name)
}

// SolverSettings bounds a solve.
type SolverSettings struct {
	MaxIterations   int
	Tolerance       float64 // convergence threshold on the iterate change
	AcceptTolerance float64 // simplex violation repaired by Sanitize
}

// DefaultSolverSettings returns the settings used when none are configured.
func DefaultSolverSettings() SolverSettings {
	return SolverSettings{
		MaxIterations:   5000,
		Tolerance:       1e-10,
		AcceptTolerance: DefaultAcceptTolerance,
	}
}

func (s SolverSettings) withDefaults() SolverSettings {
	d := DefaultSolverSettings()
	if s.MaxIterations <= 0 {
		s.MaxIterations = d.MaxIterations
	}
	if s.Tolerance <= 0 {
		s.Tolerance = d.Tolerance
	}
	if s.AcceptTolerance <= 0 {
		s.AcceptTolerance = d.AcceptTolerance
	}
	return s
}

// Solution is a solver's answer to a Program.
type Solution struct {
	Weights    []float64
	Objective  float64
	Status     string
	Iterations int
}

// Solver maximizes a Program over the probability simplex.
// warm, when non-nil and of matching length, seeds the iteration.
type Solver interface {
	Kind() SolverKind
	Solve(ctx context.Context, p Program, warm []float64) (*Solution, error)
}

// SolveObserver receives one notification per solve attempt.
type SolveObserver interface {
	ObserveSolve(solver SolverKind, status string, elapsed time.Duration)
}

// NewSolver constructs the backend for kind.
func NewSolver(kind SolverKind, settings SolverSettings) (Solver, error) {
	settings = settings.withDefaults()
	switch kind {
	case "", SolverProjectedGradient:
		return &ProjectedGradient{settings: settings}, nil
	case SolverLBFGS, SolverBFGS, SolverNelderMead:
		return &GonumSolver{kind: kind, settings: settings}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSolver, kind)
	}
}

func startingPoint(n int, warm []float64) []float64 {
	if len(warm) == n {
		w := make([]float64, n)
		copy(w, warm)
		return ProjectToSimplex(w, w)
	}
	return Uniform(n)
}
