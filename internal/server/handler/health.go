package handler

import (
	"context"
	"net/http"
	"time"
)

// Pinger checks the liveness of one backing store.
type Pinger func(ctx context.Context) error

// HealthHandler reports service health along with per-dependency status.
type HealthHandler struct {
	checks    map[string]Pinger
	startedAt time.Time
}

// NewHealthHandler creates a health handler. checks maps a dependency name
// (e.g. "postgres", "redis") to its liveness probe.
func NewHealthHandler(checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{
		checks:    checks,
		startedAt: time.Now().UTC(),
	}
}

// Health reports overall and per-dependency status.
// GET /api/health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ok"
	deps := make(map[string]string, len(h.checks))
	for name, ping := range h.checks {
		if err := ping(ctx); err != nil {
			deps[name] = err.Error()
			status = "degraded"
			continue
		}
		deps[name] = "ok"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":         status,
		"dependencies":   deps,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	})
}
