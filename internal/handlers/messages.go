package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aetos53t/ping/internal/models"
	"github.com/aetos53t/ping/internal/relay"
)

// SendMessageRequest represents the send request body. The signature covers
// the canonical form of {type, from, to, payload, replyTo, timestamp}.
type SendMessageRequest struct {
	Kind      string          `json:"type"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	Payload   json.RawMessage `json:"payload"`
	ReplyTo   string          `json:"replyTo"`
	Timestamp int64           `json:"timestamp"`
	Signature string          `json:"signature"`
}

// SendMessage handles message submission.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := h.decode(r, &req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	switch {
	case req.Kind == "":
		h.Error(w, http.StatusBadRequest, "type is required")
		return
	case req.From == "":
		h.Error(w, http.StatusBadRequest, "from is required")
		return
	case req.To == "":
		h.Error(w, http.StatusBadRequest, "to is required")
		return
	case req.Timestamp == 0:
		h.Error(w, http.StatusBadRequest, "timestamp is required")
		return
	case req.Signature == "":
		h.Error(w, http.StatusBadRequest, "signature is required")
		return
	}

	result, err := h.svc.SendMessage(r.Context(), relay.SendInput{
		Kind:      req.Kind,
		From:      req.From,
		To:        req.To,
		Payload:   req.Payload,
		ReplyTo:   req.ReplyTo,
		Timestamp: req.Timestamp,
		Signature: req.Signature,
	})
	if err != nil {
		h.writeErr(w, err)
		return
	}

	h.JSON(w, http.StatusCreated, result)
}

// Inbox handles inbox fetches. ?all=true includes acknowledged messages;
// fetching marks every returned message delivered.
func (h *Handler) Inbox(w http.ResponseWriter, r *http.Request) {
	includeAcknowledged := r.URL.Query().Get("all") == "true"

	msgs, err := h.svc.Inbox(r.Context(), chi.URLParam(r, "id"), includeAcknowledged)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	h.JSON(w, http.StatusOK, msgs)
}

// Conversation handles two-party history fetches, newest first.
func (h *Handler) Conversation(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	msgs, err := h.svc.Conversation(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "otherId"), limit)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	h.JSON(w, http.StatusOK, msgs)
}

// Acknowledge handles explicit receipt confirmation. Idempotent.
func (h *Handler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Acknowledge(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeErr(w, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]bool{"acknowledged": true})
}
