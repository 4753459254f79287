package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// AddContactRequest represents the add-contact request body.
type AddContactRequest struct {
	ContactID string `json:"contactId"`
	Alias     string `json:"alias"`
	Notes     string `json:"notes"`
}

// AddContact handles creation of an address-book entry.
func (h *Handler) AddContact(w http.ResponseWriter, r *http.Request) {
	var req AddContactRequest
	if err := h.decode(r, &req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ContactID == "" {
		h.Error(w, http.StatusBadRequest, "contactId is required")
		return
	}

	contact, err := h.svc.AddContact(r.Context(), chi.URLParam(r, "id"), req.ContactID, req.Alias, req.Notes)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.JSON(w, http.StatusCreated, contact)
}

// RemoveContact handles deletion of an address-book entry.
func (h *Handler) RemoveContact(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RemoveContact(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "contactId")); err != nil {
		h.writeErr(w, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]bool{"removed": true})
}

// ListContacts lists the agent's contacts enriched with each referenced
// agent's directory-safe fields.
func (h *Handler) ListContacts(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.ListContacts(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.JSON(w, http.StatusOK, views)
}
