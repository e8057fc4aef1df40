package selection

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	pgMinStep       = 1e-18
	pgMaxStep       = 1e6
	pgStepGrowth    = 1.5
	pgStallPatience = 25
)

// ProjectedGradient maximizes a Program by gradient ascent with Euclidean
// projection onto the simplex and a backtracking (sufficient ascent) line search.
// Iterates are feasible by construction.
type ProjectedGradient struct {
	settings SolverSettings
}

// Kind identifies the backend.
func (s *ProjectedGradient) Kind() SolverKind {
	return SolverProjectedGradient
}

// Solve runs the ascent from warm (or the uniform portfolio).
func (s *ProjectedGradient) Solve(ctx context.Context, p Program, warm []float64) (*Solution, error) {
	n := p.Dim()
	if n == 0 {
		return nil, failure(s.Kind(), "invalid_input", fmt.Errorf("program has no variables"))
	}

	w := startingPoint(n, warm)
	f := p.Value(w)
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return nil, failure(s.Kind(), "infeasible_start", fmt.Errorf("%w: objective undefined at starting point", ErrDomain))
	}

	grad := make([]float64, n)
	trial := make([]float64, n)
	cand := make([]float64, n)
	delta := make([]float64, n)
	step := 1.0
	stalled := 0

	for it := 1; it <= s.settings.MaxIterations; it++ {
		if err := ctx.Err(); err != nil {
			return nil, failure(s.Kind(), "cancelled", err)
		}

		p.Gradient(grad, w)

		var fc float64
		for {
			floats.AddScaledTo(trial, w, step, grad)
			ProjectToSimplex(cand, trial)
			floats.SubTo(delta, cand, w)

			if floats.Norm(delta, math.Inf(1)) < s.settings.Tolerance {
				return &Solution{Weights: w, Objective: f, Status: "converged", Iterations: it}, nil
			}

			fc = p.Value(cand)
			if !math.IsInf(fc, 0) && !math.IsNaN(fc) &&
				fc >= f+floats.Dot(grad, delta)-floats.Dot(delta, delta)/(2*step) {
				break
			}

			step /= 2
			if step < pgMinStep {
				return nil, failure(s.Kind(), "line_search_failed", fmt.Errorf("no ascent step found at iteration %d", it))
			}
		}

		improvement := fc - f
		copy(w, cand)
		f = fc

		if improvement <= s.settings.Tolerance*(1+math.Abs(f)) {
			stalled++
			if stalled >= pgStallPatience {
				return &Solution{Weights: w, Objective: f, Status: "function_convergence", Iterations: it}, nil
			}
		} else {
			stalled = 0
		}

		step = math.Min(step*pgStepGrowth, pgMaxStep)
	}

	return nil, failure(s.Kind(), "iteration_limit", fmt.Errorf("no convergence within %d iterations", s.settings.MaxIterations))
}
