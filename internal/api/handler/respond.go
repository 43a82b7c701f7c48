package handler

import (
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"

	"github.com/notifyhub/delivery-queue/internal/domain"
	"github.com/notifyhub/delivery-queue/internal/events"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// mapError translates domain sentinel errors to HTTP status codes.
// All mapping lives here so individual handlers stay concise.
func mapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrPassInProgress):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrUnknownEvent),
		errors.Is(err, events.ErrMalformedEvent):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrDelivery):
		respondError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, domain.ErrStore):
		respondError(w, http.StatusServiceUnavailable, "queue store unavailable")
	default:
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}
