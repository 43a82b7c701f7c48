package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/notifyhub/delivery-queue/internal/domain"
	"github.com/notifyhub/delivery-queue/internal/service"
)

// AdminHandler exposes queue inspection and recovery operations.
type AdminHandler struct {
	svc    *service.QueueService
	logger *zap.Logger
}

func NewAdminHandler(svc *service.QueueService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{svc: svc, logger: logger}
}

// Status handles GET /api/v1/admin/notifications/queue/status
//
// @Summary  Item counts per status
// @Tags     admin
// @Produce  json
// @Success  200  {object}  service.Statistics
// @Router   /api/v1/admin/notifications/queue/status [get]
func (h *AdminHandler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.GetStatistics(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

// ListQueued handles GET /api/v1/admin/notifications/queue
//
// @Summary  Items waiting for an attempt (QUEUED and RETRYING)
// @Tags     admin
// @Produce  json
// @Success  200  {object}  map[string]any
// @Router   /api/v1/admin/notifications/queue [get]
func (h *AdminHandler) ListQueued(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.GetQueuedItems(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	respondItems(w, items)
}

// ListFailed handles GET /api/v1/admin/notifications/failed
//
// @Summary  Items that exhausted their attempts
// @Tags     admin
// @Produce  json
// @Success  200  {object}  map[string]any
// @Router   /api/v1/admin/notifications/failed [get]
func (h *AdminHandler) ListFailed(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.GetFailedItems(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	respondItems(w, items)
}

// Get handles GET /api/v1/admin/notifications/queue/{id}
//
// @Summary  One queued item
// @Tags     admin
// @Produce  json
// @Param    id   path      string  true  "Item id"
// @Success  200  {object}  domain.QueuedItem
// @Failure  404  {object}  map[string]string
// @Router   /api/v1/admin/notifications/queue/{id} [get]
func (h *AdminHandler) Get(w http.ResponseWriter, r *http.Request) {
	it, err := h.svc.GetItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, it)
}

// Delete handles DELETE /api/v1/admin/notifications/queue/{id}
//
// @Summary  Remove an item from the queue
// @Tags     admin
// @Param    id   path  string  true  "Item id"
// @Success  204
// @Router   /api/v1/admin/notifications/queue/{id} [delete]
func (h *AdminHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.DeleteItem(r.Context(), id); err != nil {
		mapError(w, err)
		return
	}
	h.logger.Info("queued item deleted by admin", zap.String("item_id", id))
	w.WriteHeader(http.StatusNoContent)
}

// Retry handles POST /api/v1/admin/notifications/retry/{id}
//
// @Summary  Give a FAILED item a fresh attempt budget; no-op for any other item
// @Tags     admin
// @Produce  json
// @Param    id   path      string  true  "Item id"
// @Success  202  {object}  map[string]string
// @Router   /api/v1/admin/notifications/retry/{id} [post]
func (h *AdminHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.RetryItem(r.Context(), id); err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

// RetryAll handles POST /api/v1/admin/notifications/retry-all
//
// @Summary  Reset every FAILED item
// @Tags     admin
// @Produce  json
// @Success  202  {object}  map[string]int
// @Router   /api/v1/admin/notifications/retry-all [post]
func (h *AdminHandler) RetryAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.RetryFailed(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]int{"retried": n})
}

// Process handles POST /api/v1/admin/notifications/queue/process
//
// @Summary  Run one drain pass now
// @Tags     admin
// @Produce  json
// @Success  200  {object}  service.PassReport
// @Failure  409  {object}  map[string]string
// @Router   /api/v1/admin/notifications/queue/process [post]
func (h *AdminHandler) Process(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.ProcessQueue(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// Test handles POST /api/v1/admin/notifications/test
//
// @Summary  Send a message straight through the backend, bypassing the queue
// @Tags     admin
// @Accept   json
// @Produce  json
// @Param    body  body      domain.NotificationMessage  true  "Message"
// @Success  200   {object}  map[string]bool
// @Failure  422   {object}  map[string]string
// @Failure  502   {object}  map[string]string
// @Router   /api/v1/admin/notifications/test [post]
func (h *AdminHandler) Test(w http.ResponseWriter, r *http.Request) {
	var msg domain.NotificationMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.svc.SendDirect(r.Context(), msg.WithDefaults()); err != nil {
		h.logger.Warn("test send failed", zap.String("to", msg.To), zap.Error(err))
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"delivered": true})
}

func respondItems(w http.ResponseWriter, items []*domain.QueuedItem) {
	if items == nil {
		items = []*domain.QueuedItem{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": items, "total": len(items)})
}
