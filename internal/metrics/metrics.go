// Package metrics exposes Prometheus instrumentation for the allocator.
package metrics

import (
	"net/http"
	"time"

	"github.com/aristath/olps/internal/modules/selection"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the olps collectors on a dedicated Prometheus registry.
type Registry struct {
	registry *prometheus.Registry

	SolveDuration *prometheus.HistogramVec
	Solves        *prometheus.CounterVec
}

// NewRegistry creates and registers all collectors.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		SolveDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "olps_solve_duration_seconds",
				Help:    "Duration of allocation solves in seconds",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"solver"},
		),
		Solves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "olps_solves_total",
				Help: "Total allocation solves by solver and final status",
			},
			[]string{"solver", "status"},
		),
	}
	r.registry.MustRegister(r.SolveDuration, r.Solves)
	return r
}

// ObserveSolve implements selection.SolveObserver.
func (r *Registry) ObserveSolve(solver selection.SolverKind, status string, elapsed time.Duration) {
	r.SolveDuration.WithLabelValues(string(solver)).Observe(elapsed.Seconds())
	r.Solves.WithLabelValues(string(solver), status).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry (used by tests).
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}
