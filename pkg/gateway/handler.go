package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/metamcp/metamcp/pkg/logger"
	"github.com/metamcp/metamcp/pkg/rpc"
)

// keepAliveInterval is the cadence of SSE keep-alive comments.
const keepAliveInterval = 15 * time.Second

// Handler serves the public MCP endpoint.
type Handler struct {
	engine *Engine
}

// NewHandler creates the MCP HTTP handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// Routes returns the router for the /mcp mount point. The health route
// is unauthenticated; the caller wraps the rest with bearer auth.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handlePost)
	r.Get("/", h.handleSSE)
	return r
}

// HealthHandler answers the unauthenticated MCP health check.
func (h *Handler) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	setProtocolHeader(w)
	w.Header().Set("Content-Type", "application/json")
	body := map[string]string{"status": "ok", "version": ProtocolVersion}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Debugf("failed to encode health response: %v", err)
	}
}

func setProtocolHeader(w http.ResponseWriter) {
	w.Header().Set("mcp-protocol-version", ProtocolVersion)
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	setProtocolHeader(w)

	var msg rpc.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeMessage(w, rpc.NewErrorf(nil, rpc.CodeParseError, "Parse error"))
		return
	}
	if err := msg.Validate(); err != nil {
		writeMessage(w, rpc.NewErrorf(msg.ID, rpc.CodeInvalidRequest, "Invalid request: %v", err))
		return
	}

	resp := h.engine.Handle(r.Context(), &msg)
	if resp == nil {
		// Notification: acknowledge without a body.
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeMessage(w, resp)
}

func writeMessage(w http.ResponseWriter, msg *rpc.Message) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(msg); err != nil {
		logger.Debugf("failed to encode JSON-RPC response: %v", err)
	}
}

// handleSSE serves the long-lived stream: one endpoint event announcing
// the message endpoint, then periodic keep-alive comments.
func (h *Handler) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	setProtocolHeader(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "event: endpoint\ndata: %s\n\n", r.URL.Path)
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}
