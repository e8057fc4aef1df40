package server

import (
	"encoding/json"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/olps/internal/database"
	"github.com/aristath/olps/internal/scheduler"
)

// SystemHandlers serves process and database diagnostics
type SystemHandlers struct {
	log          zerolog.Logger
	db           *database.DB
	rebalanceJob scheduler.Job
	startedAt    time.Time
}

// NewSystemHandlers creates system handlers. db and rebalanceJob may be nil.
func NewSystemHandlers(log zerolog.Logger, db *database.DB, rebalanceJob scheduler.Job) *SystemHandlers {
	return &SystemHandlers{
		log:          log.With().Str("handler", "system").Logger(),
		db:           db,
		rebalanceJob: rebalanceJob,
		startedAt:    time.Now(),
	}
}

// SystemStatusResponse represents system status
type SystemStatusResponse struct {
	Status        string  `json:"status"` // "healthy" or "degraded"
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	Goroutines    int     `json:"goroutines"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	DatabaseMB    float64 `json:"database_mb"`
	Timestamp     string  `json:"timestamp"`
}

// DatabaseStatsResponse represents database statistics
type DatabaseStatsResponse struct {
	Databases   []DBInfo `json:"databases"`
	TotalSizeMB float64  `json:"total_size_mb"`
	LastChecked string   `json:"last_checked"`
}

// DBInfo represents information about a single database
type DBInfo struct {
	Name     string  `json:"name"`
	Path     string  `json:"path"`
	SizeMB   float64 `json:"size_mb"`
	Healthy  bool    `json:"healthy"`
	Problems string  `json:"problems,omitempty"`
	Assets   int     `json:"assets"`
	Prices   int     `json:"prices"`
	Runs     int     `json:"runs"`
	LastRun  string  `json:"last_run,omitempty"`
}

// HandleSystemStatus returns CPU, memory and process statistics
// GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := h.getSystemStats()

	response := SystemStatusResponse{
		Status:        "healthy",
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		Goroutines:    runtime.NumGoroutine(),
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		Timestamp:     time.Now().Format(time.RFC3339),
	}
	if h.db != nil {
		response.DatabaseMB = fileSizeMB(h.db.Path())
		if err := h.db.HealthCheck(r.Context()); err != nil {
			h.log.Warn().Err(err).Msg("Database health check failed")
			response.Status = "degraded"
		}
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleDatabaseStats returns database statistics
// GET /api/system/database/stats
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting database stats")

	response := DatabaseStatsResponse{
		Databases:   []DBInfo{},
		LastChecked: time.Now().Format(time.RFC3339),
	}

	if h.db != nil {
		info := DBInfo{
			Name:    h.db.Name(),
			Path:    h.db.Path(),
			SizeMB:  fileSizeMB(h.db.Path()),
			Healthy: true,
		}
		if err := h.db.HealthCheck(r.Context()); err != nil {
			info.Healthy = false
			info.Problems = err.Error()
		}

		conn := h.db.Conn()
		if err := conn.QueryRowContext(r.Context(),
			"SELECT COUNT(*), COUNT(DISTINCT asset) FROM prices").Scan(&info.Prices, &info.Assets); err != nil {
			h.log.Warn().Err(err).Msg("Failed to count prices")
		}
		var lastRun int64
		if err := conn.QueryRowContext(r.Context(),
			"SELECT COUNT(*), COALESCE(MAX(created_at), 0) FROM runs").Scan(&info.Runs, &lastRun); err != nil {
			h.log.Warn().Err(err).Msg("Failed to count runs")
		} else if lastRun > 0 {
			info.LastRun = time.Unix(lastRun, 0).UTC().Format(time.RFC3339)
		}

		response.Databases = append(response.Databases, info)
		response.TotalSizeMB += info.SizeMB
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleTriggerRebalance runs the rebalance job immediately
// POST /api/system/jobs/rebalance
func (h *SystemHandlers) HandleTriggerRebalance(w http.ResponseWriter, r *http.Request) {
	if h.rebalanceJob == nil {
		h.log.Warn().Msg("Rebalance job not registered")
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "error",
			"message": "Rebalance job not registered",
		})
		return
	}

	h.log.Info().Msg("Manual rebalance triggered")

	if err := h.rebalanceJob.Run(); err != nil {
		h.log.Error().Err(err).Msg("Failed to run rebalance job")
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status":  "error",
			"message": err.Error(),
		})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Rebalance completed successfully",
	})
}

// getSystemStats calculates CPU and RAM usage percentages
// Uses a short interval (100ms) so the endpoint stays responsive
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

// fileSizeMB counts the WAL file too, it holds writes until the next checkpoint
func fileSizeMB(path string) float64 {
	var total int64
	for _, p := range []string{path, path + "-wal"} {
		if info, err := os.Stat(p); err == nil {
			total += info.Size()
		}
	}
	return float64(total) / 1024 / 1024
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
