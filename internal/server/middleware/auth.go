// Package middleware provides HTTP middleware for authentication, request IDs and access logging.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/blitz/internal/types"
)

// Token types carried in the "type" claim.
const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"
)

// ErrTokenRevoked is returned by validators for tokens invalidated by logout.
var ErrTokenRevoked = errors.New("token has been revoked")

// ContextKey is a typed key for context values to avoid collisions.
type ContextKey string

// identityKey is the context key for storing the authenticated identity.
const identityKey ContextKey = "identity"

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID    uuid.UUID
	Role      string
	TokenType string
	TokenID   string
	ExpiresAt time.Time
	// Token is the raw bearer token, kept so handlers can revoke it.
	Token string
}

// TokenValidator is an interface for validating JWT tokens.
// This allows the middleware to work with any JWT service implementation.
type TokenValidator interface {
	ValidateToken(ctx context.Context, tokenString string) (*Identity, error)
}

// Authenticate creates middleware that validates bearer tokens of tokenType and
// adds the caller's Identity to the request context.
func Authenticate(validator TokenValidator, tokenType string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := BearerToken(r)
			if !ok {
				unauthorized(w, "Authorization token required")
				return
			}

			identity, err := validator.ValidateToken(r.Context(), tokenString)
			if err != nil {
				if errors.Is(err, ErrTokenRevoked) {
					unauthorized(w, "Token has been revoked")
					return
				}
				unauthorized(w, "Invalid or expired token")
				return
			}
			if identity.TokenType != tokenType {
				unauthorized(w, "Invalid token type")
				return
			}
			identity.Token = tokenString

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
// The scheme is matched case-insensitively.
func BearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(types.Fail(message))
}

// WithIdentity returns a context carrying identity.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// GetIdentity returns the authenticated identity from the request context.
func GetIdentity(r *http.Request) (*Identity, bool) {
	identity, ok := r.Context().Value(identityKey).(*Identity)
	return identity, ok && identity != nil
}

// GetUserID extracts the authenticated user ID from the request context.
func GetUserID(r *http.Request) (uuid.UUID, error) {
	identity, ok := GetIdentity(r)
	if !ok {
		return uuid.Nil, fmt.Errorf("user ID not found in request context")
	}
	return identity.UserID, nil
}
