package handler

import (
	"net/http"
	"time"

	"github.com/caselink/voice-call-service/internal/repository"
)

// HealthHandler reports service liveness and database reachability.
type HealthHandler struct {
	repos   repository.RepositoryManager
	started time.Time
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(repos repository.RepositoryManager) *HealthHandler {
	return &HealthHandler{repos: repos, started: time.Now()}
}

// Health serves GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	dbStatus := "ok"
	httpStatus := http.StatusOK
	if h.repos != nil {
		if err := h.repos.Ping(r.Context()); err != nil {
			dbStatus = "unreachable"
			httpStatus = http.StatusServiceUnavailable
		}
	} else {
		dbStatus = "disabled"
	}

	writeJSON(w, httpStatus, map[string]interface{}{
		"status":         "up",
		"database":       dbStatus,
		"uptime_seconds": int(time.Since(h.started).Seconds()),
	})
}
