package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/agjmills/drive/internal/storage"
)

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check requests
type HealthHandler struct {
	db       Pinger
	provider storage.Provider
	version  string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db Pinger, provider storage.Provider, version string) *HealthHandler {
	return &HealthHandler{
		db:       db,
		provider: provider,
		version:  version,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status  string           `json:"status"`
	Version string           `json:"version"`
	Checks  map[string]Check `json:"checks"`
	Uptime  string           `json:"uptime,omitempty"`
}

// Check represents an individual health check
type Check struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

var startTime = time.Now()

// Health performs comprehensive health checks
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	checks := map[string]Check{
		"database": runCheck(r.Context(), "database ping failed", h.db.Ping),
		"storage":  runCheck(r.Context(), "storage health check failed", h.provider.HealthCheck),
	}

	overallStatus := "healthy"
	for _, c := range checks {
		if c.Status != "healthy" {
			overallStatus = "unhealthy"
		}
	}

	status := http.StatusOK
	if overallStatus != "healthy" {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, HealthResponse{
		Status:  overallStatus,
		Version: h.version,
		Checks:  checks,
		Uptime:  time.Since(startTime).Round(time.Second).String(),
	})
}

func runCheck(parent context.Context, failure string, check func(context.Context) error) Check {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, 2*time.Second)
	defer cancel()

	if err := check(ctx); err != nil {
		return Check{
			Status:  "unhealthy",
			Message: failure + ": " + err.Error(),
			Latency: time.Since(start).String(),
		}
	}

	return Check{
		Status:  "healthy",
		Latency: time.Since(start).String(),
	}
}
