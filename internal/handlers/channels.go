package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/blackboard-protocol/blackboard/internal/bus"
)

const maxHistoryLimit = 200

// ChannelHistory returns the most recent messages for a channel,
// oldest first.
func (h *Handler) ChannelHistory(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")
	if channelID == "" {
		h.Error(w, http.StatusBadRequest, "channelId is required")
		return
	}

	limit := bus.DefaultHistoryLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	messages, err := h.channels.History(channelID, limit)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to read channel history")
		return
	}

	h.JSON(w, http.StatusOK, messages)
}
