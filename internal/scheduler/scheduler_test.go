package scheduler

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aristath/olps/internal/modules/selection"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	runs atomic.Int32
	err  error
}

func (j *countingJob) Name() string { return "counting" }

func (j *countingJob) Run() error {
	j.runs.Add(1)
	return j.err
}

// MockRebalancer is a mock implementation of RebalancerInterface
type MockRebalancer struct {
	RebalanceFunc func(ctx context.Context, assets []string) (*selection.Run, error)
}

func (m *MockRebalancer) Rebalance(ctx context.Context, assets []string) (*selection.Run, error) {
	if m.RebalanceFunc != nil {
		return m.RebalanceFunc(ctx, assets)
	}
	return &selection.Run{Result: &selection.Result{}}, nil
}

func TestScheduler_LogsAsComponent(t *testing.T) {
	var buf bytes.Buffer
	s := New(zerolog.New(&buf))

	require.NoError(t, s.AddJob("@hourly", &countingJob{}))
	assert.Contains(t, buf.String(), `"component":"scheduler"`)
}

func TestValidateSchedule(t *testing.T) {
	for _, schedule := range []string{"@daily", "@every 30s", "0 30 16 * * MON-FRI", "30 16 * * *"} {
		assert.NoError(t, ValidateSchedule(schedule), schedule)
	}
	assert.Error(t, ValidateSchedule("every tuesday"))
	assert.Error(t, ValidateSchedule(""))
}

func TestScheduler_AddJob(t *testing.T) {
	s := New(zerolog.New(nil).Level(zerolog.Disabled))

	require.NoError(t, s.AddJob("@hourly", &countingJob{}))
	assert.Equal(t, 1, s.Jobs())

	assert.Error(t, s.AddJob("not a schedule", &countingJob{}))
	assert.Equal(t, 1, s.Jobs())
}

func TestScheduler_RunsJobs(t *testing.T) {
	s := New(zerolog.New(nil).Level(zerolog.Disabled))
	job := &countingJob{err: errors.New("failing jobs keep their schedule")}

	require.NoError(t, s.AddJob("@every 1s", job))
	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return job.runs.Load() >= 2 }, 5*time.Second, 50*time.Millisecond)
}

func TestScheduler_RunNow(t *testing.T) {
	s := New(zerolog.New(nil).Level(zerolog.Disabled))
	job := &countingJob{}

	require.NoError(t, s.RunNow(job))
	assert.Equal(t, int32(1), job.runs.Load())
}

func TestRebalanceJob_Run(t *testing.T) {
	var seen []string
	var hadDeadline bool
	rebalancer := &MockRebalancer{
		RebalanceFunc: func(ctx context.Context, assets []string) (*selection.Run, error) {
			seen = assets
			_, hadDeadline = ctx.Deadline()
			return &selection.Run{
				ID:     "run-1",
				Assets: assets,
				Result: &selection.Result{Next: []float64{0.4, 0.6}},
			}, nil
		},
	}

	job := NewRebalanceJob(rebalancer, []string{"AAA", "BBB"}, time.Minute)
	assert.Equal(t, "rebalance", job.Name())
	require.NoError(t, job.Run())

	assert.Equal(t, []string{"AAA", "BBB"}, seen)
	assert.True(t, hadDeadline)
	require.NotNil(t, job.LastRun())
	assert.Equal(t, "run-1", job.LastRun().ID)
}

func TestRebalanceJob_Errors(t *testing.T) {
	job := NewRebalanceJob(nil, nil, 0)
	assert.Error(t, job.Run())

	failing := &MockRebalancer{
		RebalanceFunc: func(ctx context.Context, assets []string) (*selection.Run, error) {
			return nil, selection.ErrOptimizationFailure
		},
	}
	job = NewRebalanceJob(failing, nil, 0)
	err := job.Run()
	assert.ErrorIs(t, err, selection.ErrOptimizationFailure)
	assert.Nil(t, job.LastRun())
}

func TestRebalanceJob_AgainstService(t *testing.T) {
	service := selection.NewService(nil, nil, selection.ServiceConfig{}, nil, zerolog.Nop())
	job := NewRebalanceJob(service, []string{"AAA"}, time.Second)

	// Without a price store the service refuses to rebalance
	assert.Error(t, job.Run())
}
