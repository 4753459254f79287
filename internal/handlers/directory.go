package handlers

import (
	"net/http"
)

// Directory lists every discoverable agent's public-safe fields.
func (h *Handler) Directory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.Directory(r.Context())
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.JSON(w, http.StatusOK, entries)
}

// SearchDirectory filters discoverable agents by name substring, capability
// and provider. All filters are conjunctive.
func (h *Handler) SearchDirectory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	entries, err := h.svc.SearchDirectory(r.Context(), q.Get("q"), q.Get("capability"), q.Get("provider"))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.JSON(w, http.StatusOK, entries)
}
