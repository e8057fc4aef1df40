package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// handleHealth reports liveness plus the state of the selection database
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":         "healthy",
		"version":        "1.0.0",
		"service":        "olps",
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
	}

	status := http.StatusOK
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := s.db.HealthCheck(ctx); err != nil {
			s.log.Error().Err(err).Msg("Database health check failed")
			response["status"] = "unhealthy"
			response["database"] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			response["database"] = "ok"
		}
	}

	s.writeJSON(w, status, response)
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
