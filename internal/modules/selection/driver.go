package selection

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aristath/olps/pkg/formulas"
	"github.com/aristath/olps/pkg/logger"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// FallbackPolicy decides what the driver does when a strategy cannot produce
// weights for a period.
type FallbackPolicy string

const (
	FallbackAbort    FallbackPolicy = "abort"
	FallbackUniform  FallbackPolicy = "uniform"
	FallbackPrevious FallbackPolicy = "previous"
)

// ParseFallbackPolicy normalizes a policy name. Empty selects FallbackAbort.
func ParseFallbackPolicy(name string) (FallbackPolicy, error) {
	switch FallbackPolicy(strings.ToLower(strings.TrimSpace(name))) {
	case "", FallbackAbort:
		return FallbackAbort, nil
	case FallbackUniform:
		return FallbackUniform, nil
	case FallbackPrevious:
		return FallbackPrevious, nil
	default:
		return "", fmt.Errorf("unknown fallback policy %q", name)
	}
}

// DriverConfig configures the period loop.
type DriverConfig struct {
	Fallback       FallbackPolicy
	Lookback       int // rows of history handed to the strategy, 0 = all
	PeriodsPerYear float64
}

// Driver runs any Strategy over a relative-return history, one period at a time.
type Driver struct {
	cfg DriverConfig
	log zerolog.Logger
}

// NewDriver creates a driver.
func NewDriver(cfg DriverConfig, log zerolog.Logger) *Driver {
	if cfg.Fallback == "" {
		cfg.Fallback = FallbackAbort
	}
	if cfg.PeriodsPerYear <= 0 {
		cfg.PeriodsPerYear = formulas.TradingPeriodsPerYear
	}
	return &Driver{
		cfg: cfg,
		log: logger.Component(log, "driver"),
	}
}

// Summary holds the performance statistics of a run.
type Summary struct {
	FinalWealth  float64 `json:"final_wealth"`
	LogGrowth    float64 `json:"log_growth"`
	AnnualReturn float64 `json:"annual_return"`
	Volatility   float64 `json:"volatility"`
	Sharpe       float64 `json:"sharpe"`
	MaxDrawdown  float64 `json:"max_drawdown"`
}

// Result is the outcome of a driver run.
type Result struct {
	Strategy      string      `json:"strategy"`
	Weights       [][]float64 `json:"weights"`        // weights held during each period
	PeriodReturns []float64   `json:"period_returns"` // ⟨rₜ, wₜ⟩
	Wealth        []float64   `json:"wealth"`
	Next          []float64   `json:"next_weights"` // allocation for the period after the history
	Failures      int         `json:"failures"`
	Summary       Summary     `json:"summary"`
}

// Run drives strategy over relatives (rows = periods, first row conventionally
// all ones). Period 0 holds initial (uniform when nil); period t holds the
// strategy's answer for rows before t.
func (d *Driver) Run(ctx context.Context, strategy Strategy, relatives *mat.Dense, initial []float64) (*Result, error) {
	periods, assets := relatives.Dims()
	if periods == 0 || assets == 0 {
		return nil, fmt.Errorf("empty relative-return history")
	}
	if err := strategy.Configure(assets); err != nil {
		return nil, fmt.Errorf("failed to configure %s: %w", strategy.Name(), err)
	}

	current := Uniform(assets)
	if initial != nil {
		w, err := Sanitize(initial, DefaultAcceptTolerance)
		if err != nil {
			return nil, fmt.Errorf("invalid initial weights: %w", err)
		}
		if len(w) != assets {
			return nil, fmt.Errorf("initial weights cover %d assets, expected %d", len(w), assets)
		}
		current = w
	}

	rows := make([][]float64, periods)
	for t := range rows {
		rows[t] = relatives.RawRowView(t)
	}

	result := &Result{
		Strategy:      strategy.Name(),
		Weights:       make([][]float64, 0, periods),
		PeriodReturns: make([]float64, 0, periods),
	}

	for t := 0; t < periods; t++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if t > 0 {
			next, failed, err := d.step(ctx, strategy, rows, t, current)
			if err != nil {
				return nil, err
			}
			if failed {
				result.Failures++
			}
			current = next
		}
		held := append([]float64(nil), current...)
		result.Weights = append(result.Weights, held)
		result.PeriodReturns = append(result.PeriodReturns, floats.Dot(rows[t], held))
	}

	next, failed, err := d.step(ctx, strategy, rows, periods, current)
	if err != nil {
		return nil, err
	}
	if failed {
		result.Failures++
	}
	result.Next = append([]float64(nil), next...)

	result.Wealth = formulas.CumulativeWealth(result.PeriodReturns)
	result.Summary = Summary{
		FinalWealth:  result.Wealth[len(result.Wealth)-1],
		LogGrowth:    formulas.LogGrowth(result.PeriodReturns),
		AnnualReturn: formulas.AnnualReturn(result.PeriodReturns, d.cfg.PeriodsPerYear),
		Volatility:   formulas.AnnualizedVolatility(result.PeriodReturns, d.cfg.PeriodsPerYear),
		Sharpe:       formulas.SharpeRatio(result.PeriodReturns, d.cfg.PeriodsPerYear),
		MaxDrawdown:  formulas.MaxDrawdown(result.Wealth),
	}

	d.log.Info().
		Str("strategy", strategy.Name()).
		Int("periods", periods).
		Int("assets", assets).
		Int("failures", result.Failures).
		Float64("final_wealth", result.Summary.FinalWealth).
		Msg("Strategy run complete")

	return result, nil
}

// step asks the strategy for the weights of period t using rows before t.
// On an OptimizationFailure the fallback policy picks the weights and failed is set.
func (d *Driver) step(ctx context.Context, strategy Strategy, rows [][]float64, t int, current []float64) ([]float64, bool, error) {
	start := 0
	if d.cfg.Lookback > 0 && t > d.cfg.Lookback {
		start = t - d.cfg.Lookback
	}
	weights, err := strategy.Optimize(ctx, rows[start:t])
	if err == nil {
		return weights, false, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, true, ctxErr
	}
	if !errors.Is(err, ErrOptimizationFailure) || d.cfg.Fallback == FallbackAbort {
		return nil, true, fmt.Errorf("period %d: %s: %w", t, strategy.Name(), err)
	}

	d.log.Warn().
		Err(err).
		Int("period", t).
		Str("strategy", strategy.Name()).
		Str("fallback", string(d.cfg.Fallback)).
		Msg("Allocation failed, applying fallback")

	if d.cfg.Fallback == FallbackUniform {
		return Uniform(len(current)), true, nil
	}
	return current, true, nil
}
