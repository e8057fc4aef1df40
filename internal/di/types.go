package di

import (
	"github.com/aristath/olps/internal/database"
	"github.com/aristath/olps/internal/metrics"
	"github.com/aristath/olps/internal/modules/selection"
	"github.com/aristath/olps/internal/scheduler"
)

// Container holds all wired dependencies
type Container struct {
	// Database
	SelectionDB *database.DB

	// Repositories
	PriceRepo *selection.PriceRepository
	RunRepo   *selection.RunRepository

	// Services
	Metrics          *metrics.Registry
	SelectionService *selection.Service
	Scheduler        *scheduler.Scheduler

	// Jobs
	RebalanceJob *scheduler.RebalanceJob
}

// Close releases the database. Call after the scheduler and server have stopped.
func (c *Container) Close() error {
	if c.SelectionDB == nil {
		return nil
	}
	return c.SelectionDB.Close()
}
