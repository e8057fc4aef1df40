package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/olps/internal/modules/selection"
	"github.com/rs/zerolog"
)

// RebalancerInterface defines the contract for computing a rebalance
// Used by scheduler to enable testing with mocks
type RebalancerInterface interface {
	Rebalance(ctx context.Context, assets []string) (*selection.Run, error)
}

// RebalanceJob recomputes the next allocation of the universe from stored prices
type RebalanceJob struct {
	log        zerolog.Logger
	rebalancer RebalancerInterface
	universe   []string
	timeout    time.Duration

	mu      sync.Mutex
	lastRun *selection.Run
}

// NewRebalanceJob creates a new RebalanceJob. An empty universe rebalances
// every asset with stored prices.
func NewRebalanceJob(rebalancer RebalancerInterface, universe []string, timeout time.Duration) *RebalanceJob {
	return &RebalanceJob{
		log:        zerolog.Nop(),
		rebalancer: rebalancer,
		universe:   append([]string(nil), universe...),
		timeout:    timeout,
	}
}

// SetLogger sets the logger for the job
func (j *RebalanceJob) SetLogger(log zerolog.Logger) {
	j.log = log
}

// Name returns the job name
func (j *RebalanceJob) Name() string {
	return "rebalance"
}

// Run executes the rebalance job
func (j *RebalanceJob) Run() error {
	if j.rebalancer == nil {
		return fmt.Errorf("rebalancer not available")
	}

	ctx := context.Background()
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	start := time.Now()
	run, err := j.rebalancer.Rebalance(ctx, j.universe)
	if err != nil {
		return fmt.Errorf("failed to rebalance: %w", err)
	}

	j.mu.Lock()
	j.lastRun = run
	j.mu.Unlock()

	j.log.Info().
		Str("run_id", run.ID).
		Int("assets", len(run.Assets)).
		Floats64("next_weights", run.Result.Next).
		Dur("elapsed", time.Since(start)).
		Msg("Rebalance job completed")

	return nil
}

// LastRun returns the run produced by the most recent successful execution
func (j *RebalanceJob) LastRun() *selection.Run {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastRun
}
