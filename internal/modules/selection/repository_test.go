package selection

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestPriceRepository_SaveAndLoadTable(t *testing.T) {
	db := newTestDB(t)
	repo := NewPriceRepository(db.Conn(), testLogger())
	ctx := context.Background()

	require.NoError(t, repo.SaveSeries(ctx, "AAA", []PricePoint{
		{Date: day(2), Close: 100},
		{Date: day(3), Close: 101},
		{Date: day(4), Close: 102},
	}))
	require.NoError(t, repo.SaveSeries(ctx, "BBB", []PricePoint{
		{Date: day(2), Close: 50},
		{Date: day(4), Close: 52},
	}))

	assets, err := repo.Assets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA", "BBB"}, assets)

	table, err := repo.LoadTable(ctx, []string{"BBB", "AAA"})
	require.NoError(t, err)
	assert.Equal(t, []string{"BBB", "AAA"}, table.Assets)
	assert.Equal(t, []time.Time{day(2), day(3), day(4)}, table.Dates)
	assert.Equal(t, []float64{50, 100}, table.Prices[0])
	assert.True(t, math.IsNaN(table.Prices[1][0]))
	assert.Equal(t, 101.0, table.Prices[1][1])
}

func TestPriceRepository_Upsert(t *testing.T) {
	db := newTestDB(t)
	repo := NewPriceRepository(db.Conn(), testLogger())
	ctx := context.Background()

	require.NoError(t, repo.SaveSeries(ctx, "AAA", []PricePoint{{Date: day(2), Close: 100}}))
	require.NoError(t, repo.SaveSeries(ctx, "AAA", []PricePoint{{Date: day(2), Close: 105}}))

	table, err := repo.LoadTable(ctx, []string{"AAA"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{105}}, table.Prices)
}

func TestPriceRepository_Errors(t *testing.T) {
	db := newTestDB(t)
	repo := NewPriceRepository(db.Conn(), testLogger())
	ctx := context.Background()

	assert.Error(t, repo.SaveSeries(ctx, "", []PricePoint{{Date: day(2), Close: 1}}))
	assert.Error(t, repo.SaveSeries(ctx, "AAA", []PricePoint{{Date: day(2), Close: 0}}))

	_, err := repo.LoadTable(ctx, nil)
	assert.Error(t, err)
	_, err = repo.LoadTable(ctx, []string{"MISSING"})
	assert.Error(t, err)

	require.NoError(t, repo.SaveSeries(ctx, "AAA", []PricePoint{{Date: day(2), Close: 100}}))
	_, err = repo.LoadTable(ctx, []string{"AAA", "AAA"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than once")
}

func TestPriceRepository_SaveTable(t *testing.T) {
	db := newTestDB(t)
	repo := NewPriceRepository(db.Conn(), testLogger())
	ctx := context.Background()

	table := &PriceTable{
		Assets: []string{"AAA", "BBB"},
		Dates:  []time.Time{day(2), day(3)},
		Prices: [][]float64{{100, math.NaN()}, {101, 51}},
	}
	require.NoError(t, repo.SaveTable(ctx, table))

	loaded, err := repo.LoadTable(ctx, []string{"AAA", "BBB"})
	require.NoError(t, err)
	assert.Equal(t, table.Dates, loaded.Dates)
	assert.True(t, math.IsNaN(loaded.Prices[0][1]))

	undated := &PriceTable{Assets: []string{"AAA"}, Prices: [][]float64{{1}}}
	assert.Error(t, repo.SaveTable(ctx, undated))
}

func TestRunRepository_SaveGetList(t *testing.T) {
	db := newTestDB(t)
	repo := NewRunRepository(db.Conn(), testLogger())
	ctx := context.Background()

	run := &Run{
		Strategy: "ftrl",
		Beta:     0.1,
		Solver:   SolverLBFGS,
		Fallback: FallbackUniform,
		Lookback: 20,
		Assets:   []string{"AAA", "BBB"},
		Result: &Result{
			Strategy:      "ftrl",
			Weights:       [][]float64{{0.5, 0.5}, {0.7, 0.3}},
			PeriodReturns: []float64{1, 1.02},
			Next:          []float64{0.6, 0.4},
			Failures:      1,
			Summary:       Summary{FinalWealth: 1.02, LogGrowth: math.Log(1.02)},
		},
	}
	require.NoError(t, repo.Save(ctx, run))
	require.NotEmpty(t, run.ID)
	require.False(t, run.CreatedAt.IsZero())

	got, err := repo.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, SolverLBFGS, got.Solver)
	assert.Equal(t, FallbackUniform, got.Fallback)
	assert.Equal(t, 20, got.Lookback)
	assert.Equal(t, run.Assets, got.Assets)
	assert.Equal(t, run.Result.Weights, got.Result.Weights)
	assert.Equal(t, run.Result.Next, got.Result.Next)
	assert.Equal(t, 1, got.Result.Failures)
	assert.InDeltaSlice(t, []float64{1, 1.02}, got.Result.Wealth, 1e-12)
	assert.Equal(t, run.CreatedAt.Unix(), got.CreatedAt.Unix())

	second := &Run{
		Strategy:  "crp",
		Assets:    []string{"AAA"},
		Result:    &Result{Weights: [][]float64{{1}}, PeriodReturns: []float64{1}, Next: []float64{1}},
		CreatedAt: run.CreatedAt.Add(time.Minute),
	}
	require.NoError(t, repo.Save(ctx, second))

	runs, err := repo.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)

	runs, err = repo.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRunRepository_NotFound(t *testing.T) {
	db := newTestDB(t)
	repo := NewRunRepository(db.Conn(), testLogger())

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	assert.Error(t, repo.Save(context.Background(), &Run{Strategy: "crp"}))
}
