package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aetos53t/ping/internal/models"
	"github.com/aetos53t/ping/internal/relay"
)

// RegisterRequest represents the registration request body.
type RegisterRequest struct {
	PublicKey    string   `json:"publicKey"`
	Name         string   `json:"name"`
	Provider     string   `json:"provider"`
	Capabilities []string `json:"capabilities"`
	WebhookURL   string   `json:"webhookUrl"`
	IsPublic     bool     `json:"isPublic"`
}

// Register handles agent registration.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := h.decode(r, &req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.PublicKey == "" {
		h.Error(w, http.StatusBadRequest, "publicKey is required")
		return
	}
	if req.Name == "" {
		h.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	agent, err := h.svc.RegisterAgent(r.Context(), relay.RegisterInput{
		PublicKey:    req.PublicKey,
		Name:         req.Name,
		Provider:     req.Provider,
		Capabilities: req.Capabilities,
		WebhookURL:   req.WebhookURL,
		IsPublic:     req.IsPublic,
	})
	if err != nil {
		h.writeErr(w, err)
		return
	}

	h.JSON(w, http.StatusCreated, agent)
}

// GetAgent handles agent lookup by id.
func (h *Handler) GetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := h.svc.GetAgent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.JSON(w, http.StatusOK, agent)
}

// UpdateAgent handles partial updates of the mutable agent fields. Unknown
// and immutable fields in the body are ignored.
func (h *Handler) UpdateAgent(w http.ResponseWriter, r *http.Request) {
	var update models.AgentUpdate
	if err := h.decode(r, &update); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	agent, err := h.svc.UpdateAgent(r.Context(), chi.URLParam(r, "id"), update)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.JSON(w, http.StatusOK, agent)
}

// DeleteAgent handles agent deletion.
func (h *Handler) DeleteAgent(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteAgent(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeErr(w, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
