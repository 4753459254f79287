package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/aetos53t/ping/internal/delivery"
	"github.com/aetos53t/ping/internal/relay"
	"github.com/aetos53t/ping/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	svc    *relay.Service
	hub    *delivery.Hub
	db     store.DataStore
	replay *store.ReplayGuard
	logger zerolog.Logger
}

// NewHandler creates a new Handler. replay may be nil.
func NewHandler(svc *relay.Service, hub *delivery.Hub, db store.DataStore, replay *store.ReplayGuard, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, hub: hub, db: db, replay: replay, logger: logger}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// writeErr maps relay errors onto their HTTP status codes. The error kinds
// stay distinct so clients can branch on them; anything unclassified is a
// 500 without internals.
func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	var (
		validation   *relay.ValidationError
		notFound     *relay.NotFoundError
		conflict     *relay.ConflictError
		unauthorized *relay.UnauthorizedError
	)

	switch {
	case errors.As(err, &validation):
		h.Error(w, http.StatusBadRequest, validation.Error())
	case errors.As(err, &notFound):
		h.Error(w, http.StatusNotFound, notFound.Error())
	case errors.As(err, &conflict):
		if conflict.ExistingID != "" {
			h.JSON(w, http.StatusConflict, map[string]string{
				"error":      conflict.Error(),
				"existingId": conflict.ExistingID,
			})
			return
		}
		h.Error(w, http.StatusConflict, conflict.Error())
	case errors.As(err, &unauthorized):
		h.Error(w, http.StatusUnauthorized, unauthorized.Error())
	default:
		h.logger.Error().Err(err).Msg("request failed")
		h.Error(w, http.StatusInternalServerError, "internal error")
	}
}

// decode parses a JSON request body into dst.
func (h *Handler) decode(r *http.Request, dst interface{}) error {
	return json.NewDecoder(r.Body).Decode(dst)
}
