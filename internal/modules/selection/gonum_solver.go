package selection

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

const (
	// minLogit keeps warm-start logits finite for zero weights.
	minLogit = 1e-12
	// gradientThreshold accepts a stationary point, including the start.
	gradientThreshold = 1e-9
)

// GonumSolver runs a gonum/optimize method on a softmax reparameterization of
// the simplex: w = softmax(z₁ … zₙ₋₁, 0). The last logit is pinned to remove
// the shift invariance of softmax.
type GonumSolver struct {
	kind     SolverKind
	settings SolverSettings
}

// Kind identifies the backend.
func (s *GonumSolver) Kind() SolverKind {
	return s.kind
}

func (s *GonumSolver) method() optimize.Method {
	switch s.kind {
	case SolverBFGS:
		return &optimize.BFGS{}
	case SolverNelderMead:
		return &optimize.NelderMead{}
	default:
		return &optimize.LBFGS{}
	}
}

var convergedStatuses = map[optimize.Status]bool{
	optimize.Success:             true,
	optimize.GradientThreshold:   true,
	optimize.FunctionConvergence: true,
	optimize.StepConvergence:     true,
	optimize.MethodConverge:      true,
}

// Solve minimizes -f(softmax(z)). The gradient methods fall back to
// Nelder-Mead from their best point when the line search gives up, which
// happens on flat or already optimal starts.
func (s *GonumSolver) Solve(ctx context.Context, p Program, warm []float64) (*Solution, error) {
	n := p.Dim()
	if n == 0 {
		return nil, failure(s.kind, "invalid_input", fmt.Errorf("program has no variables"))
	}
	if n == 1 {
		w := []float64{1}
		return &Solution{Weights: w, Objective: p.Value(w), Status: "trivial"}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, failure(s.kind, "cancelled", err)
	}

	start := startingPoint(n, warm)
	if v := p.Value(start); math.IsInf(v, 0) || math.IsNaN(v) {
		return nil, failure(s.kind, "infeasible_start", fmt.Errorf("%w: objective undefined at starting point", ErrDomain))
	}
	z0 := make([]float64, n-1)
	last := math.Log(math.Max(start[n-1], minLogit))
	for i := range z0 {
		z0[i] = math.Log(math.Max(start[i], minLogit)) - last
	}

	w := make([]float64, n)
	g := make([]float64, n)
	problem := optimize.Problem{
		Func: func(z []float64) float64 {
			softmaxPinned(w, z)
			return -p.Value(w)
		},
		Grad: func(grad, z []float64) {
			softmaxPinned(w, z)
			p.Gradient(g, w)
			gw := floats.Dot(g, w)
			for i := range grad {
				grad[i] = -w[i] * (g[i] - gw)
			}
		},
	}

	settings := &optimize.Settings{
		MajorIterations:   s.settings.MaxIterations,
		GradientThreshold: gradientThreshold,
		Converger: &optimize.FunctionConverge{
			Absolute:   s.settings.Tolerance,
			Iterations: 20,
		},
	}
	if deadline, ok := ctx.Deadline(); ok {
		settings.Runtime = time.Until(deadline)
	}

	result, err := optimize.Minimize(problem, z0, settings, s.method())
	if s.kind != SolverNelderMead && (err != nil || result == nil || !convergedStatuses[result.Status]) {
		from := z0
		if result != nil && len(result.X) == len(z0) && result.F < problem.Func(z0) {
			from = result.X
		}
		result, err = optimize.Minimize(problem, from, settings, &optimize.NelderMead{})
	}
	if err != nil {
		status := "error"
		if result != nil {
			status = result.Status.String()
		}
		return nil, failure(s.kind, status, err)
	}
	if result == nil {
		return nil, failure(s.kind, "no_result", fmt.Errorf("solver returned no solution"))
	}
	if !convergedStatuses[result.Status] {
		return nil, failure(s.kind, result.Status.String(), fmt.Errorf("solver did not converge"))
	}
	if err := ctx.Err(); err != nil {
		return nil, failure(s.kind, "cancelled", err)
	}

	weights := make([]float64, n)
	softmaxPinned(weights, result.X)
	return &Solution{
		Weights:    weights,
		Objective:  p.Value(weights),
		Status:     result.Status.String(),
		Iterations: result.MajorIterations,
	}, nil
}

// softmaxPinned writes softmax(z, 0) into w (len(w) == len(z)+1).
func softmaxPinned(w, z []float64) {
	n := len(w)
	maxZ := 0.0
	for _, v := range z {
		if v > maxZ {
			maxZ = v
		}
	}
	var sum float64
	for i := 0; i < n-1; i++ {
		w[i] = math.Exp(z[i] - maxZ)
		sum += w[i]
	}
	w[n-1] = math.Exp(-maxZ)
	sum += w[n-1]
	floats.Scale(1/sum, w)
}
