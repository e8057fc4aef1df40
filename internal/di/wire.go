// Package di provides dependency injection wiring and initialization.
package di

import (
	"fmt"
	"time"

	"github.com/aristath/olps/internal/config"
	"github.com/aristath/olps/internal/database"
	"github.com/aristath/olps/internal/metrics"
	"github.com/aristath/olps/internal/modules/selection"
	"github.com/aristath/olps/internal/scheduler"
	"github.com/rs/zerolog"
)

// rebalanceTimeout bounds one scheduled rebalance
const rebalanceTimeout = 10 * time.Minute

// Wire initializes all dependencies and returns a fully configured container
// Order of operations:
// 1. Initialize the database and apply its schema
// 2. Initialize repositories and services
// 3. Register jobs
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	InitializeServices(container, cfg, log)

	if err := RegisterJobs(container, cfg, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to register jobs: %w", err)
	}

	log.Info().Msg("Dependency wiring complete")
	return container, nil
}

// InitializeDatabases opens selection.db and applies its schema
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	selectionDB, err := database.New(database.Config{
		Path:    cfg.DatabasePath(),
		Profile: database.ProfileStandard,
		Name:    "selection",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize selection database: %w", err)
	}

	if err := selectionDB.Migrate(); err != nil {
		selectionDB.Close()
		return nil, fmt.Errorf("failed to migrate selection database: %w", err)
	}

	log.Info().Str("path", selectionDB.Path()).Msg("Selection database ready")
	return &Container{SelectionDB: selectionDB}, nil
}

// InitializeServices builds repositories, metrics and the selection service
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) {
	conn := container.SelectionDB.Conn()
	container.PriceRepo = selection.NewPriceRepository(conn, log)
	container.RunRepo = selection.NewRunRepository(conn, log)

	container.Metrics = metrics.NewRegistry()
	container.SelectionService = selection.NewService(
		container.PriceRepo,
		container.RunRepo,
		cfg.ServiceConfig(),
		container.Metrics,
		log,
	)
}

// RegisterJobs creates the scheduler and, when a schedule is configured,
// registers the rebalance job on it. The job is always created so it can be
// triggered manually.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) error {
	container.Scheduler = scheduler.New(log)

	job := scheduler.NewRebalanceJob(container.SelectionService, cfg.Universe, rebalanceTimeout)
	job.SetLogger(log.With().Str("job", job.Name()).Logger())
	container.RebalanceJob = job

	if cfg.RebalanceSchedule == "" {
		log.Info().Msg("No rebalance schedule configured, rebalance runs on demand only")
		return nil
	}
	return container.Scheduler.AddJob(cfg.RebalanceSchedule, job)
}
