package selection

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/aristath/olps/internal/database"
	"github.com/aristath/olps/pkg/formulas"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrRunNotFound is returned by RunRepository.Get for an unknown ID.
var ErrRunNotFound = errors.New("run not found")

// PricePoint is one close for one asset.
type PricePoint struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// PriceRepository stores daily closes per asset.
type PriceRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPriceRepository creates a price repository over the selection database.
func NewPriceRepository(db *sql.DB, log zerolog.Logger) *PriceRepository {
	return &PriceRepository{
		db:  db,
		log: log.With().Str("repository", "prices").Logger(),
	}
}

// SaveSeries upserts closes for one asset.
func (r *PriceRepository) SaveSeries(ctx context.Context, asset string, points []PricePoint) error {
	if asset == "" {
		return fmt.Errorf("asset is required")
	}
	for _, p := range points {
		if p.Close <= 0 || math.IsNaN(p.Close) || math.IsInf(p.Close, 0) {
			return fmt.Errorf("close for %s on %s must be positive, got %v", asset, p.Date.Format(DateLayout), p.Close)
		}
	}

	now := time.Now().Unix()
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO prices (asset, date, close, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(asset, date) DO UPDATE SET
				close = excluded.close,
				updated_at = excluded.updated_at
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, p := range points {
			if _, err := stmt.ExecContext(ctx, asset, p.Date.Format(DateLayout), p.Close, now); err != nil {
				return fmt.Errorf("failed to store %s close for %s: %w", asset, p.Date.Format(DateLayout), err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.log.Debug().Str("asset", asset).Int("points", len(points)).Msg("Stored price series")
	return nil
}

// SaveTable stores every column of a dated price table. Missing prices are skipped.
func (r *PriceRepository) SaveTable(ctx context.Context, table *PriceTable) error {
	if err := table.Validate(); err != nil {
		return err
	}
	if len(table.Dates) != table.Periods() {
		return fmt.Errorf("price table needs a date per row to be stored")
	}
	for i, asset := range table.Assets {
		points := make([]PricePoint, 0, table.Periods())
		for t, row := range table.Prices {
			if math.IsNaN(row[i]) {
				continue
			}
			points = append(points, PricePoint{Date: table.Dates[t], Close: row[i]})
		}
		if err := r.SaveSeries(ctx, asset, points); err != nil {
			return err
		}
	}
	return nil
}

// Assets lists every asset with stored prices.
func (r *PriceRepository) Assets(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT DISTINCT asset FROM prices ORDER BY asset")
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	defer rows.Close()

	var assets []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// LoadTable loads the closes of the given assets aligned by date. Dates on
// which an asset has no close hold NaN for it.
func (r *PriceRepository) LoadTable(ctx context.Context, assets []string) (*PriceTable, error) {
	if len(assets) == 0 {
		return nil, fmt.Errorf("no assets requested")
	}
	index := make(map[string]int, len(assets))
	for i, a := range assets {
		if _, dup := index[a]; dup {
			return nil, fmt.Errorf("asset %s requested more than once", a)
		}
		index[a] = i
	}

	byDate := make(map[string][]float64)
	found := make([]bool, len(assets))
	for _, asset := range assets {
		rows, err := r.db.QueryContext(ctx, "SELECT date, close FROM prices WHERE asset = ?", asset)
		if err != nil {
			return nil, fmt.Errorf("failed to load prices for %s: %w", asset, err)
		}
		for rows.Next() {
			var date string
			var price float64
			if err := rows.Scan(&date, &price); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan price for %s: %w", asset, err)
			}
			row, ok := byDate[date]
			if !ok {
				row = make([]float64, len(assets))
				for i := range row {
					row[i] = math.NaN()
				}
				byDate[date] = row
			}
			row[index[asset]] = price
			found[index[asset]] = true
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read prices for %s: %w", asset, err)
		}
	}
	for i, ok := range found {
		if !ok {
			return nil, fmt.Errorf("no prices stored for %s", assets[i])
		}
	}

	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	table := &PriceTable{Assets: append([]string(nil), assets...)}
	for _, d := range dates {
		parsed, err := time.Parse(DateLayout, d)
		if err != nil {
			return nil, fmt.Errorf("corrupt price date %q: %w", d, err)
		}
		table.Dates = append(table.Dates, parsed)
		table.Prices = append(table.Prices, byDate[d])
	}
	return table, nil
}

// Run is a persisted strategy run.
type Run struct {
	ID        string         `json:"id"`
	Strategy  string         `json:"strategy"`
	Beta      float64        `json:"beta"`
	Solver    SolverKind     `json:"solver,omitempty"`
	Fallback  FallbackPolicy `json:"fallback"`
	Lookback  int            `json:"lookback"`
	Assets    []string       `json:"assets"`
	Result    *Result        `json:"result"`
	CreatedAt time.Time      `json:"created_at"`
}

// RunRepository stores strategy runs. Weight histories are msgpack-encoded.
type RunRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRunRepository creates a run repository over the selection database.
func NewRunRepository(db *sql.DB, log zerolog.Logger) *RunRepository {
	return &RunRepository{
		db:  db,
		log: log.With().Str("repository", "runs").Logger(),
	}
}

// Save inserts the run, assigning an ID and timestamp when missing.
func (r *RunRepository) Save(ctx context.Context, run *Run) error {
	if run.Result == nil {
		return fmt.Errorf("run has no result")
	}
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	assets, err := json.Marshal(run.Assets)
	if err != nil {
		return fmt.Errorf("failed to encode assets: %w", err)
	}
	summary, err := json.Marshal(run.Result.Summary)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	weights, err := msgpack.Marshal(run.Result.Weights)
	if err != nil {
		return fmt.Errorf("failed to encode weights: %w", err)
	}
	periodReturns, err := msgpack.Marshal(run.Result.PeriodReturns)
	if err != nil {
		return fmt.Errorf("failed to encode period returns: %w", err)
	}
	next, err := msgpack.Marshal(run.Result.Next)
	if err != nil {
		return fmt.Errorf("failed to encode next weights: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO runs (
			id, strategy, beta, solver, fallback, lookback, assets, periods, failures,
			final_wealth, summary, weights, period_returns, next_weights, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID, run.Strategy, run.Beta, string(run.Solver), string(run.Fallback), run.Lookback,
		string(assets), len(run.Result.Weights), run.Result.Failures,
		run.Result.Summary.FinalWealth, string(summary), weights, periodReturns, next,
		run.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}

	r.log.Info().Str("run_id", run.ID).Str("strategy", run.Strategy).Msg("Run saved")
	return nil
}

const runColumns = `id, strategy, beta, solver, fallback, lookback, assets, failures,
	summary, weights, period_returns, next_weights, created_at`

// Get loads a run by ID.
func (r *RunRepository) Get(ctx context.Context, id string) (*Run, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// List returns the most recent runs first. limit <= 0 means 50.
func (r *RunRepository) List(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+runColumns+" FROM runs ORDER BY created_at DESC, id LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run                               Run
		solver, fallback, assets, summary string
		weights, periodReturns, next      []byte
		createdAt                         int64
		result                            Result
	)
	err := row.Scan(&run.ID, &run.Strategy, &run.Beta, &solver, &fallback, &run.Lookback,
		&assets, &result.Failures, &summary, &weights, &periodReturns, &next, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	if err := json.Unmarshal([]byte(assets), &run.Assets); err != nil {
		return nil, fmt.Errorf("failed to decode assets of run %s: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(summary), &result.Summary); err != nil {
		return nil, fmt.Errorf("failed to decode summary of run %s: %w", run.ID, err)
	}
	if err := msgpack.Unmarshal(weights, &result.Weights); err != nil {
		return nil, fmt.Errorf("failed to decode weights of run %s: %w", run.ID, err)
	}
	if err := msgpack.Unmarshal(periodReturns, &result.PeriodReturns); err != nil {
		return nil, fmt.Errorf("failed to decode period returns of run %s: %w", run.ID, err)
	}
	if err := msgpack.Unmarshal(next, &result.Next); err != nil {
		return nil, fmt.Errorf("failed to decode next weights of run %s: %w", run.ID, err)
	}

	result.Strategy = run.Strategy
	result.Wealth = formulas.CumulativeWealth(result.PeriodReturns)
	run.Solver = SolverKind(solver)
	run.Fallback = FallbackPolicy(fallback)
	run.CreatedAt = time.Unix(createdAt, 0).UTC()
	run.Result = &result
	return &run, nil
}
