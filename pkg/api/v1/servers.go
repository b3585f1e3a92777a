package v1

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/metamcp/metamcp/pkg/errors"
	"github.com/metamcp/metamcp/pkg/rpc"
	"github.com/metamcp/metamcp/pkg/security"
	"github.com/metamcp/metamcp/pkg/store"
)

// ServerRepository is the descriptor store surface the handlers need.
type ServerRepository interface {
	Create(ctx context.Context, srv *store.MCPServer) error
	FindByID(ctx context.Context, id uuid.UUID) (*store.MCPServer, error)
	List(ctx context.Context, includeInactive bool) ([]*store.MCPServer, error)
	Update(ctx context.Context, id uuid.UUID, patch *store.ServerUpdate) (*store.MCPServer, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ToolInvoker routes a JSON-RPC message through the aggregation engine.
type ToolInvoker interface {
	Handle(ctx context.Context, msg *rpc.Message) *rpc.Message
}

type serverRoutes struct {
	servers ServerRepository
	engine  ToolInvoker
}

// ServerRoutes returns the /mcp/servers subrouter.
func ServerRoutes(servers ServerRepository, engine ToolInvoker) chi.Router {
	routes := &serverRoutes{servers: servers, engine: engine}
	r := chi.NewRouter()
	r.Get("/", routes.list)
	r.Post("/", routes.create)
	r.Get("/{id}", routes.get)
	r.Put("/{id}", routes.update)
	r.Delete("/{id}", routes.delete)
	r.Post("/{id}/tools/{tool}/execute", routes.executeTool)
	return r
}

type createServerRequest struct {
	Name     string            `json:"name"`
	URL      *string           `json:"url,omitempty"`
	Protocol store.Protocol    `json:"protocol"`
	Command  *string           `json:"command,omitempty"`
	Args     []string          `json:"args,omitempty"`
	Env      map[string]string `json:"env,omitempty"`
}

func (s *serverRoutes) list(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("include_inactive") == "true"
	servers, err := s.servers.List(r.Context(), includeInactive)
	if err != nil {
		errors.WriteHTTP(w, errors.Wrap(errors.KindInternal, "failed to list servers", err))
		return
	}
	if servers == nil {
		servers = []*store.MCPServer{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"servers": servers})
}

func (s *serverRoutes) create(w http.ResponseWriter, r *http.Request) {
	var req createServerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteHTTP(w, errors.New(errors.KindBadRequest, "invalid request body"))
		return
	}
	if err := validateDescriptor(r.Context(), req.Protocol, req.URL, req.Command); err != nil {
		errors.WriteHTTP(w, err)
		return
	}

	srv := &store.MCPServer{
		Name:     req.Name,
		URL:      req.URL,
		Protocol: req.Protocol,
		Command:  req.Command,
		Args:     req.Args,
		Env:      req.Env,
		IsActive: true,
	}
	if err := s.servers.Create(r.Context(), srv); err != nil {
		errors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, srv)
}

func (s *serverRoutes) get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	srv, err := s.servers.FindByID(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, srv)
}

func (s *serverRoutes) update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var patch store.ServerUpdate
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		errors.WriteHTTP(w, errors.New(errors.KindBadRequest, "invalid request body"))
		return
	}
	if patch.URL != nil {
		if err := security.ValidateURL(r.Context(), *patch.URL); err != nil {
			errors.WriteHTTP(w, err)
			return
		}
	}

	srv, err := s.servers.Update(r.Context(), id, &patch)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, srv)
}

func (s *serverRoutes) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := s.servers.Delete(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type executeToolRequest struct {
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// executeTool invokes a single backend tool through the aggregation
// engine, so REST callers get identical routing and error semantics to
// the MCP endpoint.
func (s *serverRoutes) executeTool(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	tool := chi.URLParam(r, "tool")

	srv, err := s.servers.FindByID(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	var req executeToolRequest
	if r.Body != nil {
		// An empty body means no arguments.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	params := map[string]any{"name": srv.Name + "_" + tool}
	if len(req.Arguments) > 0 {
		params["arguments"] = json.RawMessage(req.Arguments)
	}
	call, err := rpc.NewRequest(1, "tools/call", params)
	if err != nil {
		errors.WriteHTTP(w, errors.Wrap(errors.KindInternal, "failed to build request", err))
		return
	}

	resp := s.engine.Handle(r.Context(), call)
	if resp.Error != nil {
		writeJSON(w, http.StatusOK, map[string]any{"error": resp.Error})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": resp.Result})
}

// validateDescriptor enforces per-protocol field requirements and the
// SSRF policy on outbound URLs.
func validateDescriptor(ctx context.Context, protocol store.Protocol, url, command *string) error {
	if !store.ValidProtocol(protocol) {
		return errors.Newf(errors.KindValidation, "unknown protocol %q", protocol)
	}
	switch protocol {
	case store.ProtocolHTTP, store.ProtocolSSE:
		if url == nil || *url == "" {
			return errors.Newf(errors.KindValidation, "url is required for %s servers", protocol)
		}
		return security.ValidateURL(ctx, *url)
	case store.ProtocolStdio:
		if command == nil || *command == "" {
			return errors.New(errors.KindValidation, "command is required for stdio servers")
		}
	}
	return nil
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		errors.WriteHTTP(w, errors.New(errors.KindBadRequest, "invalid server id"))
		return uuid.Nil, false
	}
	return id, true
}

func writeStoreError(w http.ResponseWriter, err error) {
	if err == store.ErrNotFound {
		errors.WriteHTTP(w, errors.New(errors.KindNotFound, "server not found"))
		return
	}
	errors.WriteHTTP(w, err)
}
