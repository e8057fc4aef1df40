package selection

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Program is a concave objective maximized over the probability simplex.
// Value returns -Inf where the objective is undefined.
type Program interface {
	Dim() int
	Value(w []float64) float64
	Gradient(grad, w []float64)
}

// LogGrowthProgram is the regularized log-growth objective
//
//	f(w) = Σₜ log(⟨rₜ, w⟩) − (β/2)·‖w‖₂
//
// over the rows rₜ of a relative-return window.
type LogGrowthProgram struct {
	returns *mat.Dense
	beta    float64
	growth  []float64 // scratch: per-row portfolio relatives
}

// NewLogGrowthProgram builds the program over the given window. The window is
// read, never modified.
func NewLogGrowthProgram(returns *mat.Dense, beta float64) *LogGrowthProgram {
	rows, _ := returns.Dims()
	return &LogGrowthProgram{
		returns: returns,
		beta:    beta,
		growth:  make([]float64, rows),
	}
}

// Dim is the number of assets.
func (p *LogGrowthProgram) Dim() int {
	_, cols := p.returns.Dims()
	return cols
}

// Beta is the regularization coefficient.
func (p *LogGrowthProgram) Beta() float64 {
	return p.beta
}

func (p *LogGrowthProgram) portfolioGrowth(w []float64) []float64 {
	g := mat.NewVecDense(len(p.growth), p.growth)
	g.MulVec(p.returns, mat.NewVecDense(len(w), w))
	return p.growth
}

// Value evaluates the objective at w.
func (p *LogGrowthProgram) Value(w []float64) float64 {
	var total float64
	for _, g := range p.portfolioGrowth(w) {
		if g <= 0 || math.IsNaN(g) {
			return math.Inf(-1)
		}
		total += math.Log(g)
	}
	return total - p.beta/2*floats.Norm(w, 2)
}

// Gradient writes ∇f(w) into grad. Rows with non-positive growth contribute
// nothing; Value already reports such points as -Inf.
func (p *LogGrowthProgram) Gradient(grad, w []float64) {
	for i := range grad {
		grad[i] = 0
	}
	rows, _ := p.returns.Dims()
	growth := p.portfolioGrowth(w)
	for t := 0; t < rows; t++ {
		if growth[t] <= 0 {
			continue
		}
		floats.AddScaled(grad, 1/growth[t], p.returns.RawRowView(t))
	}
	if p.beta == 0 {
		return
	}
	if norm := floats.Norm(w, 2); norm > 0 {
		floats.AddScaled(grad, -p.beta/(2*norm), w)
	}
}
