package selection

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// ConstantRebalanced holds the same weights every period. Nil weights mean
// the uniform portfolio over the configured assets.
type ConstantRebalanced struct {
	target  []float64
	weights []float64
}

// NewConstantRebalanced creates a constant rebalanced portfolio. target, when
// given, must already lie on the simplex (within DefaultAcceptTolerance).
func NewConstantRebalanced(target []float64) (*ConstantRebalanced, error) {
	if target == nil {
		return &ConstantRebalanced{}, nil
	}
	w, err := Sanitize(target, DefaultAcceptTolerance)
	if err != nil {
		return nil, fmt.Errorf("invalid constant weights: %w", err)
	}
	return &ConstantRebalanced{target: w}, nil
}

// Name implements Strategy.
func (c *ConstantRebalanced) Name() string {
	return "crp"
}

// Configure implements Strategy.
func (c *ConstantRebalanced) Configure(assets int) error {
	if assets <= 0 {
		return fmt.Errorf("asset count must be positive, got %d", assets)
	}
	if c.target == nil {
		c.weights = Uniform(assets)
		return nil
	}
	if len(c.target) != assets {
		return fmt.Errorf("constant weights cover %d assets, expected %d", len(c.target), assets)
	}
	c.weights = c.target
	return nil
}

// Optimize implements Strategy; the window is ignored.
func (c *ConstantRebalanced) Optimize(_ context.Context, _ [][]float64) ([]float64, error) {
	if c.weights == nil {
		return nil, &OptimizationError{Status: "not_configured", Err: ErrNotConfigured}
	}
	out := make([]float64, len(c.weights))
	copy(out, c.weights)
	return out, nil
}

// StrategyParams are the knobs NewStrategy understands.
type StrategyParams struct {
	Beta     float64
	Solver   SolverKind
	Settings SolverSettings
	Weights  []float64 // crp only
	Observer SolveObserver
}

// StrategyNames lists the names NewStrategy accepts.
func StrategyNames() []string {
	return []string{"ftrl", "ftl", "crp"}
}

// NewStrategy builds a strategy by name.
func NewStrategy(name string, params StrategyParams, log zerolog.Logger) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "ftrl":
		return NewRegularizedLeader(RegularizedLeaderConfig{
			Beta:     params.Beta,
			Solver:   params.Solver,
			Settings: params.Settings,
			Observer: params.Observer,
		}, log)
	case "ftl":
		return NewFollowTheLeader(params.Solver, params.Settings, params.Observer, log)
	case "crp":
		return NewConstantRebalanced(params.Weights)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}
