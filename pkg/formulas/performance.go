// Package formulas holds the performance statistics reported for a strategy run.
// All inputs are gross relative returns (1.02 = +2% over the period).
package formulas

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// TradingPeriodsPerYear is the annualization factor for daily data.
const TradingPeriodsPerYear = 252.0

// NetReturns converts gross relatives to simple returns (r - 1).
func NetReturns(relatives []float64) []float64 {
	out := make([]float64, len(relatives))
	for i, r := range relatives {
		out[i] = r - 1
	}
	return out
}

// CumulativeWealth returns the running product of the relatives, starting from 1.
func CumulativeWealth(relatives []float64) []float64 {
	wealth := make([]float64, len(relatives))
	if len(relatives) == 0 {
		return wealth
	}
	floats.CumProd(wealth, relatives)
	return wealth
}

// LogGrowth is the sum of log relatives, i.e. log of final wealth.
// Returns -Inf if any relative is non-positive.
func LogGrowth(relatives []float64) float64 {
	var sum float64
	for _, r := range relatives {
		if r <= 0 {
			return math.Inf(-1)
		}
		sum += math.Log(r)
	}
	return sum
}

// AnnualReturn annualizes the compound growth of the relatives.
//
// Formula: (Πr)^(periodsPerYear/N) - 1
//
// Fewer than 3 periods return the plain cumulative return to avoid
// extreme annualization.
func AnnualReturn(relatives []float64, periodsPerYear float64) float64 {
	if len(relatives) == 0 {
		return 0
	}
	n := float64(len(relatives))
	growth := LogGrowth(relatives)
	if math.IsInf(growth, -1) {
		return -1
	}
	if n < 3 {
		return math.Exp(growth) - 1
	}
	return math.Exp(growth*periodsPerYear/n) - 1
}

// AnnualizedVolatility is the standard deviation of net returns scaled by sqrt(periodsPerYear).
func AnnualizedVolatility(relatives []float64, periodsPerYear float64) float64 {
	if len(relatives) < 2 {
		return 0
	}
	return stat.StdDev(NetReturns(relatives), nil) * math.Sqrt(periodsPerYear)
}

// SharpeRatio is the annualized mean net return over annualized volatility (risk-free rate 0).
func SharpeRatio(relatives []float64, periodsPerYear float64) float64 {
	if len(relatives) < 2 {
		return 0
	}
	net := NetReturns(relatives)
	mean, std := stat.MeanStdDev(net, nil)
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return mean / std * math.Sqrt(periodsPerYear)
}

// MaxDrawdown returns the largest peak-to-trough loss of a wealth curve as a positive fraction.
func MaxDrawdown(wealth []float64) float64 {
	var peak, worst float64
	for _, w := range wealth {
		if w > peak {
			peak = w
		}
		if peak > 0 {
			if dd := (peak - w) / peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}
