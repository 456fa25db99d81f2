package handlers

import "net/http"

// ListAgents returns all known presence records, online and offline.
func (h *Handler) ListAgents(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, h.registry.AllAgents())
}
