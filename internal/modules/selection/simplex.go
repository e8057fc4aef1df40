package selection

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// DefaultAcceptTolerance bounds how far a solver result may sit outside the
// simplex before it is rejected instead of repaired.
const DefaultAcceptTolerance = 1e-4

// Uniform returns the equal-weight portfolio over n assets.
func Uniform(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1.0 / float64(n)
	}
	return w
}

// ProjectToSimplex writes the Euclidean projection of v onto the probability
// simplex into dst and returns it. dst may alias v.
func ProjectToSimplex(dst, v []float64) []float64 {
	n := len(v)
	if dst == nil {
		dst = make([]float64, n)
	}
	sorted := make([]float64, n)
	copy(sorted, v)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))

	var cum, theta float64
	for i, u := range sorted {
		cum += u
		t := (cum - 1) / float64(i+1)
		if u-t > 0 {
			theta = t
		}
	}
	for i := range v {
		dst[i] = math.Max(v[i]-theta, 0)
	}
	return dst
}

// Sanitize repairs a solver result that is feasible within tol: negatives are
// clamped to zero and the vector is renormalized to sum to exactly 1.
// Results further than tol from the simplex, or containing NaN/Inf, are errors.
func Sanitize(w []float64, tol float64) ([]float64, error) {
	if len(w) == 0 {
		return nil, fmt.Errorf("empty weight vector")
	}
	for i, x := range w {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("weight %d is not finite: %v", i, x)
		}
		if x < -tol {
			return nil, fmt.Errorf("weight %d is negative beyond tolerance: %g", i, x)
		}
	}
	if sum := floats.Sum(w); math.Abs(sum-1) > tol {
		return nil, fmt.Errorf("weights sum to %g, outside tolerance %g", sum, tol)
	}

	out := make([]float64, len(w))
	for i, x := range w {
		out[i] = math.Max(x, 0)
	}
	sum := floats.Sum(out)
	if sum <= 0 {
		return nil, fmt.Errorf("weights collapse to zero after clamping")
	}
	floats.Scale(1/sum, out)
	return out, nil
}
