package selection

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

// DefaultBeta is the regularization coefficient used when none is configured.
const DefaultBeta = 0.1

// RegularizedLeaderConfig configures a RegularizedLeader.
type RegularizedLeaderConfig struct {
	Beta     float64
	Solver   SolverKind // default backend, DefaultSolver when empty
	Settings SolverSettings
	Observer SolveObserver
}

// RegularizedLeader is the Follow-the-Regularized-Leader allocator. Each call
// solves
//
//	maximize Σₜ log(⟨rₜ, w⟩) − (β/2)·‖w‖₂  s.t.  Σw = 1, w ≥ 0
//
// Larger β pulls the allocation toward the uniform portfolio.
type RegularizedLeader struct {
	name     string
	beta     float64
	solver   SolverKind
	settings SolverSettings
	observer SolveObserver
	log      zerolog.Logger

	mu     sync.Mutex
	assets int
	warm   []float64
}

// NewRegularizedLeader validates cfg and creates the allocator.
func NewRegularizedLeader(cfg RegularizedLeaderConfig, log zerolog.Logger) (*RegularizedLeader, error) {
	if cfg.Beta < 0 || math.IsNaN(cfg.Beta) || math.IsInf(cfg.Beta, 0) {
		return nil, fmt.Errorf("beta must be a non-negative finite number, got %v", cfg.Beta)
	}
	kind := cfg.Solver
	if kind == "" {
		kind = DefaultSolver
	}
	if _, err := NewSolver(kind, cfg.Settings); err != nil {
		return nil, err
	}
	return &RegularizedLeader{
		name:     "ftrl",
		beta:     cfg.Beta,
		solver:   kind,
		settings: cfg.Settings.withDefaults(),
		observer: cfg.Observer,
		log:      log.With().Str("strategy", "ftrl").Float64("beta", cfg.Beta).Logger(),
	}, nil
}

// NewFollowTheLeader tracks the best constant rebalanced portfolio of the
// history seen so far, i.e. the regularized leader with β = 0.
func NewFollowTheLeader(solver SolverKind, settings SolverSettings, observer SolveObserver, log zerolog.Logger) (*RegularizedLeader, error) {
	r, err := NewRegularizedLeader(RegularizedLeaderConfig{
		Solver:   solver,
		Settings: settings,
		Observer: observer,
	}, log)
	if err != nil {
		return nil, err
	}
	r.name = "ftl"
	r.log = log.With().Str("strategy", "ftl").Logger()
	return r, nil
}

// Name implements Strategy.
func (r *RegularizedLeader) Name() string {
	return r.name
}

// Beta returns the regularization coefficient.
func (r *RegularizedLeader) Beta() float64 {
	return r.beta
}

// Solver returns the default solver backend.
func (r *RegularizedLeader) Solver() SolverKind {
	return r.solver
}

// Configure fixes the asset count. Changing it drops the warm-start state.
func (r *RegularizedLeader) Configure(assets int) error {
	if assets <= 0 {
		return fmt.Errorf("asset count must be positive, got %d", assets)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if assets != r.assets {
		r.warm = nil
	}
	r.assets = assets
	return nil
}

// Assets returns the configured asset count (0 before Configure).
func (r *RegularizedLeader) Assets() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.assets
}

// OptimizePeriod computes the allocation for a single relative-return vector.
// An empty solver selects the configured default.
func (r *RegularizedLeader) OptimizePeriod(ctx context.Context, returns []float64, solver SolverKind) ([]float64, error) {
	return r.solve(ctx, [][]float64{returns}, solver)
}

// Optimize implements Strategy over a window of relative-return rows using the default solver.
func (r *RegularizedLeader) Optimize(ctx context.Context, window [][]float64) ([]float64, error) {
	return r.solve(ctx, window, "")
}

// OptimizeWith is Optimize with an explicit solver backend.
func (r *RegularizedLeader) OptimizeWith(ctx context.Context, window [][]float64, solver SolverKind) ([]float64, error) {
	return r.solve(ctx, window, solver)
}

func (r *RegularizedLeader) solve(ctx context.Context, window [][]float64, kind SolverKind) ([]float64, error) {
	r.mu.Lock()
	assets := r.assets
	warm := r.warm
	r.mu.Unlock()

	if kind == "" {
		kind = r.solver
	}
	if assets == 0 {
		r.observe(kind, "not_configured", 0)
		return nil, &OptimizationError{Solver: kind, Status: "not_configured", Err: ErrNotConfigured}
	}
	returns, err := windowMatrix(window, assets)
	if err != nil {
		r.observe(kind, statusOf(err), 0)
		return nil, err
	}
	if assets == 1 {
		return []float64{1}, nil
	}

	solver, err := NewSolver(kind, r.settings)
	if err != nil {
		r.observe(kind, "invalid_solver", 0)
		return nil, failure(kind, "invalid_solver", err)
	}

	start := time.Now()
	solution, err := solver.Solve(ctx, NewLogGrowthProgram(returns, r.beta), warm)
	elapsed := time.Since(start)
	if err != nil {
		r.observe(kind, statusOf(err), elapsed)
		r.log.Debug().Err(err).Str("solver", string(kind)).Msg("Solve failed")
		return nil, err
	}

	weights, err := Sanitize(solution.Weights, r.settings.AcceptTolerance)
	if err != nil {
		r.observe(kind, "invalid_solution", elapsed)
		return nil, failure(kind, "invalid_solution", err)
	}
	r.observe(kind, solution.Status, elapsed)

	r.log.Debug().
		Str("solver", string(kind)).
		Str("status", solution.Status).
		Int("iterations", solution.Iterations).
		Float64("objective", solution.Objective).
		Dur("elapsed", elapsed).
		Msg("Solved allocation")

	r.mu.Lock()
	if r.assets == assets {
		r.warm = append(r.warm[:0:0], weights...)
	}
	r.mu.Unlock()

	out := make([]float64, len(weights))
	copy(out, weights)
	return out, nil
}

func (r *RegularizedLeader) observe(kind SolverKind, status string, elapsed time.Duration) {
	if r.observer != nil {
		r.observer.ObserveSolve(kind, status, elapsed)
	}
}

func statusOf(err error) string {
	var oe *OptimizationError
	if errors.As(err, &oe) && oe.Status != "" {
		return oe.Status
	}
	return "error"
}

// windowMatrix validates the window against the asset count and the
// objective's domain, and copies it into a dense matrix.
func windowMatrix(window [][]float64, assets int) (*mat.Dense, error) {
	if len(window) == 0 {
		return nil, domainFailure("no relative returns supplied")
	}
	data := make([]float64, 0, len(window)*assets)
	for t, row := range window {
		if len(row) != assets {
			return nil, domainFailure("row %d has %d returns, expected %d assets", t, len(row), assets)
		}
		for i, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, domainFailure("return [%d][%d] is not finite", t, i)
			}
			if v <= 0 {
				return nil, domainFailure("return [%d][%d] = %g is not positive", t, i, v)
			}
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(window), assets, data), nil
}
