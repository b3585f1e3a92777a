// Package api assembles the gateway's HTTP surface and runs the server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	v1 "github.com/metamcp/metamcp/pkg/api/v1"
	"github.com/metamcp/metamcp/pkg/auth"
	"github.com/metamcp/metamcp/pkg/config"
	"github.com/metamcp/metamcp/pkg/gateway"
	"github.com/metamcp/metamcp/pkg/logger"
	"github.com/metamcp/metamcp/pkg/security"
	"github.com/metamcp/metamcp/pkg/store"
	"github.com/metamcp/metamcp/pkg/streaming"
)

const shutdownTimeout = 10 * time.Second

// Deps carries everything the HTTP surface needs.
type Deps struct {
	Config  *config.Config
	Auth    *auth.Service
	Servers *store.ServerStore
	Engine  *gateway.Engine
	Events  *streaming.Manager
}

// NewRouter builds the full route tree.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(security.Headers)
	r.Use(corsHandler(deps.Config.CORSAllowedOrigins))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	requireAuth := auth.RequireBearer(deps.Auth)

	r.Get("/health", v1.HealthHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/auth", v1.AuthRoutes(deps.Auth))
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Mount("/mcp/servers", v1.ServerRoutes(deps.Servers, deps.Engine))
			r.Mount("/events", v1.EventRoutes(deps.Events))
		})
	})

	mcpHandler := gateway.NewHandler(deps.Engine)
	r.Get("/mcp/health", mcpHandler.HealthHandler)
	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Mount("/mcp", mcpHandler.Routes())
	})

	return r
}

func corsHandler(allowedOrigins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Accept", "Origin", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           3600,
	})
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := map[string]any{"error": message, "status": status}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Debugf("failed to encode error response: %v", err)
	}
}

// Serve runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully.
func Serve(ctx context.Context, deps Deps) error {
	srv := &http.Server{
		Addr:              deps.Config.Address(),
		Handler:           NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("forced HTTP server shutdown: %v", err)
		return srv.Close()
	}
	logger.Info("HTTP server stopped")
	return nil
}
