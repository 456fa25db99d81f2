package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const identityContextKey contextKey = "identity"

// Identity is the authenticated peer identity carried in a bearer token.
// It is established before any frame processing and never re-derived
// from frame contents.
type Identity struct {
	ID       string
	Name     string
	Metadata map[string]any
}

// AuthMiddleware issues and verifies HS256 bearer tokens.
type AuthMiddleware struct {
	secret []byte
	ttl    time.Duration
}

// NewAuthMiddleware creates an auth middleware signing with the given secret.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	return &AuthMiddleware{
		secret: []byte(secret),
		ttl:    7 * 24 * time.Hour,
	}
}

// Sign issues a token for the given identity.
func (m *AuthMiddleware) Sign(id, name string, metadata map[string]any) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"id":  id,
		"iat": now.Unix(),
		"exp": now.Add(m.ttl).Unix(),
	}
	if name != "" {
		claims["name"] = name
	}
	if metadata != nil {
		claims["metadata"] = metadata
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Verify parses a token string and returns the identity it carries.
func (m *AuthMiddleware) Verify(tokenStr string) (*Identity, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid claims")
	}

	id, _ := claims["id"].(string)
	if id == "" {
		return nil, errors.New("token missing id claim")
	}

	identity := &Identity{ID: id}
	if name, ok := claims["name"].(string); ok {
		identity.Name = name
	}
	if metadata, ok := claims["metadata"].(map[string]any); ok {
		identity.Metadata = metadata
	}
	return identity, nil
}

// RequireAuth middleware verifies the bearer token and stores the
// identity in the request context. WebSocket clients may pass the token
// as a query parameter instead of a header.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := bearerToken(r)
		if tokenStr == "" {
			jsonError(w, http.StatusUnauthorized, "missing token")
			return
		}

		identity, err := m.Verify(tokenStr)
		if err != nil {
			jsonError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), identityContextKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken extracts the token from the Authorization header, falling
// back to the token query parameter for websocket upgrades.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// IdentityFromContext retrieves the authenticated identity from the
// request context, or nil when the request was not authenticated.
func IdentityFromContext(ctx context.Context) *Identity {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok {
		return nil
	}
	return identity
}
