package selection

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"
)

// ErrInvalidRequest marks caller mistakes (as opposed to solver failures).
var ErrInvalidRequest = errors.New("invalid request")

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// ServiceConfig holds the defaults applied when a request leaves a knob unset.
type ServiceConfig struct {
	Beta     float64
	Solver   SolverKind
	Settings SolverSettings
	Fallback FallbackPolicy
	Lookback int
}

// Service exposes allocation, backtesting and rebalancing over stored prices.
type Service struct {
	prices   *PriceRepository
	runs     *RunRepository
	cfg      ServiceConfig
	observer SolveObserver
	log      zerolog.Logger
}

// NewService creates the selection service. Repositories may be nil for
// stateless use (Allocate, unsaved Backtest).
func NewService(prices *PriceRepository, runs *RunRepository, cfg ServiceConfig, observer SolveObserver, log zerolog.Logger) *Service {
	if cfg.Solver == "" {
		cfg.Solver = DefaultSolver
	}
	if cfg.Fallback == "" {
		cfg.Fallback = FallbackAbort
	}
	return &Service{
		prices:   prices,
		runs:     runs,
		cfg:      cfg,
		observer: observer,
		log:      log.With().Str("service", "selection").Logger(),
	}
}

// AllocateRequest asks for one allocation. Exactly one of Returns (a single
// period) or Window (several periods) must be set.
type AllocateRequest struct {
	Returns []float64   `json:"returns,omitempty"`
	Window  [][]float64 `json:"window,omitempty"`
	Beta    *float64    `json:"beta,omitempty"`
	Solver  string      `json:"solver,omitempty"`
}

// Allocation is the answer to an AllocateRequest.
type Allocation struct {
	Weights   []float64  `json:"weights"`
	Beta      float64    `json:"beta"`
	Solver    SolverKind `json:"solver"`
	Objective float64    `json:"objective"`
}

// Allocate runs the regularized leader once.
func (s *Service) Allocate(ctx context.Context, req AllocateRequest) (*Allocation, error) {
	window := req.Window
	switch {
	case len(req.Returns) > 0 && len(req.Window) > 0:
		return nil, invalid("set either returns or window, not both")
	case len(req.Returns) > 0:
		window = [][]float64{req.Returns}
	case len(req.Window) == 0:
		return nil, invalid("returns are required")
	}

	beta := s.cfg.Beta
	if req.Beta != nil {
		beta = *req.Beta
	}
	kind := s.cfg.Solver
	if req.Solver != "" {
		k, err := ParseSolverKind(req.Solver)
		if err != nil {
			return nil, invalid("%v", err)
		}
		kind = k
	}

	leader, err := NewRegularizedLeader(RegularizedLeaderConfig{
		Beta:     beta,
		Solver:   kind,
		Settings: s.cfg.Settings,
		Observer: s.observer,
	}, s.log)
	if err != nil {
		return nil, invalid("%v", err)
	}
	if err := leader.Configure(len(window[0])); err != nil {
		return nil, invalid("%v", err)
	}

	weights, err := leader.OptimizeWith(ctx, window, kind)
	if err != nil {
		return nil, err
	}

	returns, err := windowMatrix(window, len(weights))
	if err != nil {
		return nil, err
	}
	return &Allocation{
		Weights:   weights,
		Beta:      beta,
		Solver:    kind,
		Objective: NewLogGrowthProgram(returns, beta).Value(weights),
	}, nil
}

// BacktestRequest runs a strategy over a price history.
type BacktestRequest struct {
	Assets   []string    `json:"assets"`
	Prices   [][]float64 `json:"prices"`
	Strategy string      `json:"strategy,omitempty"`
	Beta     *float64    `json:"beta,omitempty"`
	Solver   string      `json:"solver,omitempty"`
	Fallback string      `json:"fallback,omitempty"`
	Lookback *int        `json:"lookback,omitempty"`
	Weights  []float64   `json:"weights,omitempty"` // crp target
	Initial  []float64   `json:"initial,omitempty"`
	Resample int         `json:"resample,omitempty"`
	Save     bool        `json:"save,omitempty"`
}

// Backtest runs the requested strategy over the supplied prices.
func (s *Service) Backtest(ctx context.Context, req BacktestRequest) (*Run, error) {
	table := &PriceTable{Assets: req.Assets, Prices: req.Prices}
	if err := table.Validate(); err != nil {
		return nil, invalid("%v", err)
	}
	return s.runTable(ctx, Resample(table, req.Resample), req)
}

// Rebalance runs the configured regularized leader over the stored prices
// of assets and persists the run. Result.Next holds the allocation to trade.
func (s *Service) Rebalance(ctx context.Context, assets []string) (*Run, error) {
	if s.prices == nil {
		return nil, fmt.Errorf("price store not configured")
	}
	if len(assets) == 0 {
		stored, err := s.prices.Assets(ctx)
		if err != nil {
			return nil, err
		}
		assets = stored
	}
	if len(assets) == 0 {
		return nil, invalid("no assets to rebalance")
	}

	table, err := s.prices.LoadTable(ctx, assets)
	if err != nil {
		return nil, invalid("%v", err)
	}
	run, err := s.runTable(ctx, table, BacktestRequest{Strategy: "ftrl", Save: true})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("run_id", run.ID).
		Strs("assets", run.Assets).
		Floats64("next_weights", run.Result.Next).
		Msg("Rebalance computed")
	return run, nil
}

func (s *Service) runTable(ctx context.Context, table *PriceTable, req BacktestRequest) (*Run, error) {
	beta := s.cfg.Beta
	if req.Beta != nil {
		beta = *req.Beta
	}
	kind := s.cfg.Solver
	if req.Solver != "" {
		k, err := ParseSolverKind(req.Solver)
		if err != nil {
			return nil, invalid("%v", err)
		}
		kind = k
	}
	fallback := s.cfg.Fallback
	if req.Fallback != "" {
		f, err := ParseFallbackPolicy(req.Fallback)
		if err != nil {
			return nil, invalid("%v", err)
		}
		fallback = f
	}
	lookback := s.cfg.Lookback
	if req.Lookback != nil {
		if *req.Lookback < 0 {
			return nil, invalid("lookback must be non-negative")
		}
		lookback = *req.Lookback
	}

	strategy, err := NewStrategy(req.Strategy, StrategyParams{
		Beta:     beta,
		Solver:   kind,
		Settings: s.cfg.Settings,
		Weights:  req.Weights,
		Observer: s.observer,
	}, s.log)
	if err != nil {
		return nil, invalid("%v", err)
	}

	relatives, err := RelativeReturns(table.Prices)
	if err != nil {
		return nil, invalid("%v", err)
	}

	driver := NewDriver(DriverConfig{Fallback: fallback, Lookback: lookback}, s.log)
	result, err := driver.Run(ctx, strategy, relatives, req.Initial)
	if err != nil {
		return nil, err
	}

	run := &Run{
		Strategy: strategy.Name(),
		Fallback: fallback,
		Lookback: lookback,
		Assets:   append([]string(nil), table.Assets...),
		Result:   result,
	}
	if leader, ok := strategy.(*RegularizedLeader); ok {
		run.Beta = leader.Beta()
		run.Solver = leader.Solver()
	}

	if req.Save {
		if s.runs == nil {
			return nil, fmt.Errorf("run store not configured")
		}
		if err := s.runs.Save(ctx, run); err != nil {
			return nil, err
		}
	}
	return run, nil
}

// GetRun loads a persisted run.
func (s *Service) GetRun(ctx context.Context, id string) (*Run, error) {
	if s.runs == nil {
		return nil, fmt.Errorf("run store not configured")
	}
	return s.runs.Get(ctx, id)
}

// ListRuns lists persisted runs, newest first.
func (s *Service) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if s.runs == nil {
		return nil, fmt.Errorf("run store not configured")
	}
	return s.runs.List(ctx, limit)
}

// SavePrices stores closes for one asset.
func (s *Service) SavePrices(ctx context.Context, asset string, points []PricePoint) error {
	if s.prices == nil {
		return fmt.Errorf("price store not configured")
	}
	if asset == "" || len(points) == 0 {
		return invalid("asset and at least one price are required")
	}
	for _, p := range points {
		if p.Close <= 0 || math.IsNaN(p.Close) || math.IsInf(p.Close, 0) {
			return invalid("close for %s on %s must be positive", asset, p.Date.Format(DateLayout))
		}
	}
	return s.prices.SaveSeries(ctx, asset, points)
}

// ImportTable stores a dated price table.
func (s *Service) ImportTable(ctx context.Context, table *PriceTable) error {
	if s.prices == nil {
		return fmt.Errorf("price store not configured")
	}
	return s.prices.SaveTable(ctx, table)
}
