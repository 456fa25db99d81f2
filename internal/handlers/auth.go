package handlers

import (
	"encoding/json"
	"net/http"
)

// LoginRequest represents the login request body.
type LoginRequest struct {
	Username string `json:"username"`
	Name     string `json:"name"`
}

// LoginResponse represents the login response.
type LoginResponse struct {
	Token string `json:"token"`
}

// RegisterRequest represents the agent registration request body.
type RegisterRequest struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Metadata map[string]any `json:"metadata"`
}

// RegisterResponse represents the registration response.
type RegisterResponse struct {
	Message string      `json:"message"`
	Token   string      `json:"token"`
	Agent   RegisterAgent `json:"agent"`
}

// RegisterAgent echoes the registered identity.
type RegisterAgent struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Login issues a token for ad-hoc identities. Intended for testing and
// local development; production deployments register agents instead.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	req := LoginRequest{Username: "anon"}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.Error(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	if req.Username == "" {
		req.Username = "anon"
	}

	name := req.Name
	if name == "" {
		name = req.Username
	}

	token, err := h.auth.Sign(req.Username, name, nil)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to sign token")
		return
	}

	h.JSON(w, http.StatusOK, LoginResponse{Token: token})
}

// Register handles agent registration and issues the agent's token.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Name = sanitizeName(req.Name)
	if req.ID == "" || req.Name == "" {
		h.Error(w, http.StatusBadRequest, "id and name are required")
		return
	}

	token, err := h.auth.Sign(req.ID, req.Name, req.Metadata)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to sign token")
		return
	}

	h.JSON(w, http.StatusOK, RegisterResponse{
		Message: "Agent registered successfully",
		Token:   token,
		Agent: RegisterAgent{
			ID:       req.ID,
			Name:     req.Name,
			Metadata: req.Metadata,
		},
	})
}
