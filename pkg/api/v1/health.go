// Package v1 contains the admin REST handlers.
package v1

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/metamcp/metamcp/pkg/logger"
)

// Version is the gateway release version reported by health endpoints.
const Version = "1.0.0"

// HealthHandler reports liveness.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   Version,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Debugf("failed to encode response: %v", err)
	}
}
