package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/blackboard-protocol/blackboard/internal/metrics"
	"github.com/blackboard-protocol/blackboard/internal/models"
	"github.com/blackboard-protocol/blackboard/internal/store"
)

// UpdateRecordRequest represents the record update request body.
type UpdateRecordRequest struct {
	Version *int64          `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// ConflictResponse carries the authoritative version after a rejected update.
type ConflictResponse struct {
	Error          string `json:"error"`
	Message        string `json:"message"`
	CurrentVersion int64  `json:"currentVersion"`
}

// GetRecord handles reading a versioned record. A record that has never
// been written reads as version 0 with empty data.
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !isValidRecordID(id) {
		h.Error(w, http.StatusBadRequest, "invalid record id")
		return
	}

	record, err := h.records.Get(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "storage error")
		return
	}
	if record == nil {
		h.JSON(w, http.StatusOK, models.Record{
			ID:      id,
			Version: 0,
			Data:    json.RawMessage(`{}`),
		})
		return
	}

	h.JSON(w, http.StatusOK, record)
}

// UpdateRecord handles an optimistic-concurrency record update.
func (h *Handler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !isValidRecordID(id) {
		h.Error(w, http.StatusBadRequest, "invalid record id")
		return
	}

	var req UpdateRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Version == nil || len(req.Data) == 0 || string(req.Data) == "null" {
		h.Error(w, http.StatusBadRequest, "version and data are required")
		return
	}

	record, err := h.records.Update(r.Context(), id, *req.Version, req.Data)
	if err != nil {
		var conflict *store.ConflictError
		if errors.As(err, &conflict) {
			metrics.RecordConflicts.Inc()
			h.JSON(w, http.StatusConflict, ConflictResponse{
				Error:          "Conflict detected",
				Message:        conflict.Error(),
				CurrentVersion: conflict.CurrentVersion,
			})
			return
		}
		h.Error(w, http.StatusInternalServerError, "storage error")
		return
	}

	metrics.RecordUpdates.Inc()
	h.JSON(w, http.StatusOK, record)
}
