package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/znz-systems/sesdash/internal/store"
)

type HealthHandler struct {
	db store.Pinger
}

func NewHealthHandler(db store.Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

// Healthz reports that the process is serving.
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, jsonResponse{OK: true})
}

// Readyz reports whether the database answers a ping.
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		slog.Warn("readiness check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, jsonResponse{Error: "database unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{OK: true})
}
