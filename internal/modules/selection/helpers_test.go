package selection

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/aristath/olps/internal/database"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func nan() float64 { return math.NaN() }

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "selection.db"),
		Profile: database.ProfileCache,
		Name:    "selection",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())
	return db
}

func newLeader(t *testing.T, beta float64, kind SolverKind) *RegularizedLeader {
	t.Helper()
	leader, err := NewRegularizedLeader(RegularizedLeaderConfig{Beta: beta, Solver: kind}, testLogger())
	require.NoError(t, err)
	return leader
}

func requireFeasible(t *testing.T, w []float64) {
	t.Helper()
	for i, x := range w {
		require.GreaterOrEqualf(t, x, 0.0, "weight %d is negative", i)
	}
	require.InDelta(t, 1.0, floats.Sum(w), 1e-9)
}

// gridBest evaluates p on every point of the simplex whose coordinates are
// multiples of 1/steps and returns the best value.
func gridBest(p Program, steps int) float64 {
	n := p.Dim()
	best := math.Inf(-1)
	w := make([]float64, n)
	var walk func(i, left int)
	walk = func(i, left int) {
		if i == n-1 {
			w[i] = float64(left) / float64(steps)
			if v := p.Value(w); v > best {
				best = v
			}
			return
		}
		for k := 0; k <= left; k++ {
			w[i] = float64(k) / float64(steps)
			walk(i+1, left-k)
		}
	}
	walk(0, steps)
	return best
}

func distance(a, b []float64) float64 {
	return floats.Distance(a, b, 2)
}
