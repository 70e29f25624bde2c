package server

import (
	"context"
	"net/http"
	"time"
)

// DBPinger is satisfied by repository.Store.
type DBPinger interface {
	HealthCheck(ctx context.Context, timeout time.Duration) error
}

// Health handles GET /health: 200 when the registry answers, 503 otherwise.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.HealthCheck(r.Context(), 3*time.Second); err != nil {
			h.logger.Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
