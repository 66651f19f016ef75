package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/render"
)

// HealthHandler serves liveness, readiness and version probes.
type HealthHandler struct {
	version string
	ready   func(context.Context) error
}

// NewHealthHandler creates the handler. ready reports whether the
// licence store is reachable; a nil func means always ready.
func NewHealthHandler(version string, ready func(context.Context) error) *HealthHandler {
	return &HealthHandler{version: version, ready: ready}
}

// Healthz handles GET /healthz. The process answering at all is the
// liveness signal.
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

// Readyz handles GET /readyz.
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.ready(ctx); err != nil {
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, map[string]string{"status": "unavailable", "msg": err.Error()})
			return
		}
	}
	render.JSON(w, r, map[string]string{"status": "ready"})
}

// Version handles GET /version.
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"version": h.version})
}
