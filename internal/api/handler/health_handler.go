package handler

import (
	"context"
	"net/http"
)

// Pinger is satisfied by service.QueueService.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the liveness probe endpoint.
type HealthHandler struct {
	store Pinger
}

func NewHealthHandler(store Pinger) *HealthHandler { return &HealthHandler{store: store} }

// Health handles GET /health
//
// @Summary  Liveness probe; reports 503 while the queue store is unreachable
// @Tags     system
// @Produce  json
// @Success  200  {object}  map[string]string
// @Failure  503  {object}  map[string]string
// @Router   /health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "store": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
