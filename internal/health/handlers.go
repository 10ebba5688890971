// Package health exposes liveness and readiness probes.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/noah-isme/backend-payments/internal/common"
)

// Checker reports on the service's critical dependencies.
type Checker interface {
	PingDB(ctx context.Context) error
	PingRedis(ctx context.Context) error
}

// Handler serves the probe endpoints.
type Handler struct {
	Checker Checker
	Timeout time.Duration
}

// Live reports process liveness only.
func (h *Handler) Live(w http.ResponseWriter, _ *http.Request) {
	common.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready reports readiness: both the database and redis must answer.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	checks := map[string]string{"database": "ok", "redis": "ok"}
	healthy := true
	if err := h.Checker.PingDB(ctx); err != nil {
		checks["database"] = err.Error()
		healthy = false
	}
	if err := h.Checker.PingRedis(ctx); err != nil {
		checks["redis"] = err.Error()
		healthy = false
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	common.JSON(w, status, map[string]any{"status": statusWord(healthy), "checks": checks})
}

func statusWord(healthy bool) string {
	if healthy {
		return "ok"
	}
	return "degraded"
}
