package handler

import (
	"io"
	"net/http"

	"go.uber.org/zap"

	apimw "github.com/notifyhub/delivery-queue/internal/api/middleware"
	"github.com/notifyhub/delivery-queue/internal/events"
)

// EventHandler is the HTTP ingress for domain events; brokers use the
// consumers in package events instead.
type EventHandler struct {
	adapter *events.Adapter
	logger  *zap.Logger
}

func NewEventHandler(adapter *events.Adapter, logger *zap.Logger) *EventHandler {
	return &EventHandler{adapter: adapter, logger: logger}
}

// Submit handles POST /api/v1/events
//
// @Summary  Translate a domain event into a notification
// @Tags     events
// @Accept   json
// @Produce  json
// @Param    body  body      events.Event       true  "Domain event"
// @Success  202   {object}  map[string]any
// @Failure  422   {object}  map[string]string
// @Router   /api/v1/events [post]
func (h *EventHandler) Submit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "could not read request body")
		return
	}
	ev, err := events.Decode(body)
	if err != nil {
		mapError(w, err)
		return
	}

	id, err := h.adapter.Handle(r.Context(), ev)
	if err != nil {
		h.logger.Warn("event rejected",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.String("kind", string(ev.Kind)),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]any{"id": id, "kind": ev.Kind})
}
