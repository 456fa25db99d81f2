package handlers

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"unicode"

	"github.com/blackboard-protocol/blackboard/internal/api/middleware"
	"github.com/blackboard-protocol/blackboard/internal/bus"
	"github.com/blackboard-protocol/blackboard/internal/presence"
	"github.com/blackboard-protocol/blackboard/internal/store"
)

// recordIDRegex keeps record ids filesystem-safe: no separators, no
// leading dot.
var recordIDRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,99}$`)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	records  *store.VersionedStore
	projects store.ProjectStore
	registry *presence.Registry
	channels *bus.Bus
	auth     *middleware.AuthMiddleware
}

// NewHandler creates a new Handler with the given services.
func NewHandler(records *store.VersionedStore, projects store.ProjectStore, registry *presence.Registry, channels *bus.Bus, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		records:  records,
		projects: projects,
		registry: registry,
		channels: channels,
		auth:     auth,
	}
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

// sanitizeName trims and limits name to 100 characters, removing control characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	// Remove control characters
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	// Limit to 100 characters
	if len(name) > 100 {
		name = name[:100]
	}

	return name
}

// isValidRecordID validates a versioned record id.
func isValidRecordID(id string) bool {
	return recordIDRegex.MatchString(id)
}
