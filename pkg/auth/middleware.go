package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/metamcp/metamcp/pkg/logger"
)

type contextKey string

// keyIDContextKey carries the authenticated credential id.
const keyIDContextKey contextKey = "auth.key_id"

// KeyIDFromContext returns the credential id set by RequireBearer.
func KeyIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(keyIDContextKey).(uuid.UUID)
	return id, ok
}

// TokenValidator validates a bearer token and returns the credential id
// it was issued for.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (uuid.UUID, error)
}

// RequireBearer rejects requests without a valid bearer token. The
// credential id is stored on the request context for handlers.
func RequireBearer(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := extractBearer(r)
			if !ok {
				writeUnauthorized(w, "Missing or invalid Authorization header")
				return
			}

			keyID, err := validator.ValidateToken(r.Context(), token)
			if err != nil {
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), keyIDContextKey, keyID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractBearer(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return header[len(prefix):], true
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	body := map[string]string{
		"error":             "unauthorized",
		"error_description": description,
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Debugf("failed to encode unauthorized response: %v", err)
	}
}
