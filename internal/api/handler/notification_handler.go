package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	apimw "github.com/notifyhub/delivery-queue/internal/api/middleware"
	"github.com/notifyhub/delivery-queue/internal/domain"
	"github.com/notifyhub/delivery-queue/internal/service"
)

// NotificationHandler accepts notifications from internal callers.
type NotificationHandler struct {
	svc    *service.QueueService
	logger *zap.Logger
}

func NewNotificationHandler(svc *service.QueueService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{svc: svc, logger: logger}
}

// Create handles POST /api/v1/notifications
//
// @Summary     Queue a notification
// @Tags        notifications
// @Accept      json
// @Produce     json
// @Param       body  body      domain.NotificationMessage  true  "Notification payload"
// @Success     201   {object}  map[string]string           "Queued: id of the new item"
// @Success     200   {object}  map[string]bool             "Queue disabled: delivered inline"
// @Failure     422   {object}  map[string]string
// @Failure     502   {object}  map[string]string
// @Router      /api/v1/notifications [post]
func (h *NotificationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var msg domain.NotificationMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	id, err := h.svc.Enqueue(r.Context(), msg)
	if err != nil {
		h.logger.Warn("enqueue notification failed",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}

	if !h.svc.Enabled() {
		respondJSON(w, http.StatusOK, map[string]bool{"delivered": true})
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"id": id})
}
