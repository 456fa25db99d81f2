package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/blackboard-protocol/blackboard/internal/store"
)

// Project name validation: printable, 1-100 chars after sanitizing.
var projectNameRegex = regexp.MustCompile(`^[^\s].{0,99}$`)

// CreateProjectRequest represents the project creation request body.
type CreateProjectRequest struct {
	ProjectName string `json:"projectName"`
}

// CreateProjectResponse represents the project creation response.
type CreateProjectResponse struct {
	ProjectID       string `json:"projectId"`
	ChannelID       string `json:"channelId"`
	ChannelEndpoint string `json:"channelEndpoint"`
}

// CreateProject creates a project, its coordination channel, and the
// initial version of its blackboard record.
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.ProjectName = strings.TrimSpace(req.ProjectName)
	if req.ProjectName == "" {
		h.Error(w, http.StatusBadRequest, "projectName is required")
		return
	}
	if !projectNameRegex.MatchString(req.ProjectName) {
		h.Error(w, http.StatusBadRequest, "projectName must be 1-100 characters")
		return
	}

	project, err := h.projects.CreateProject(r.Context(), req.ProjectName)
	if err != nil {
		if errors.Is(err, store.ErrProjectExists) {
			h.Error(w, http.StatusConflict, "Project name already exists")
			return
		}
		h.Error(w, http.StatusInternalServerError, "failed to create project")
		return
	}

	// Initialize the project's blackboard record at version 1.
	initial, err := json.Marshal(map[string]any{
		"initialized": true,
		"projectName": project.Name,
		"channelId":   project.ChannelID,
	})
	if err == nil {
		_, err = h.records.Update(r.Context(), project.ID, 0, initial)
	}
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to initialize project record")
		return
	}

	h.JSON(w, http.StatusOK, CreateProjectResponse{
		ProjectID:       project.ID,
		ChannelID:       project.ChannelID,
		ChannelEndpoint: fmt.Sprintf("ws://%s/ws", r.Host),
	})
}

// ListProjects returns all projects.
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.projects.ListProjects(r.Context())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to list projects")
		return
	}
	h.JSON(w, http.StatusOK, projects)
}

// DeleteProject removes a project by id.
func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	if _, err := uuid.Parse(idStr); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid project ID format")
		return
	}

	deleted, err := h.projects.DeleteProject(r.Context(), idStr)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to delete project")
		return
	}
	if !deleted {
		h.Error(w, http.StatusNotFound, "project not found")
		return
	}

	h.JSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
