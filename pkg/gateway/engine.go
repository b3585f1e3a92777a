// Package gateway implements the MCP aggregation engine: a single MCP
// server endpoint that fans discovery out to every registered backend
// and routes invocations by name prefix.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/metamcp/metamcp/pkg/logger"
	"github.com/metamcp/metamcp/pkg/rpc"
	"github.com/metamcp/metamcp/pkg/store"
	"github.com/metamcp/metamcp/pkg/streaming"
)

// ProtocolVersion is the MCP protocol revision the gateway speaks.
const ProtocolVersion = "2025-03-26"

// Gateway identity advertised in the initialize response.
const (
	serverName    = "metamcp"
	serverVersion = "1.0.0"
)

// Prefix separators. Tools and prompts use an underscore; resources use
// a colon because URIs commonly contain underscores.
const (
	toolSeparator     = "_"
	resourceSeparator = ":"
)

// ServerLister provides the active backend descriptors.
type ServerLister interface {
	List(ctx context.Context, includeInactive bool) ([]*store.MCPServer, error)
}

// BackendClient forwards a JSON-RPC message to one backend.
type BackendClient interface {
	Forward(ctx context.Context, srv *store.MCPServer, msg *rpc.Message) (*rpc.Message, error)
}

// EventPublisher receives tool execution events. May be nil.
type EventPublisher interface {
	Publish(e streaming.Event)
}

// Engine aggregates every active backend behind one MCP surface.
type Engine struct {
	servers ServerLister
	client  BackendClient
	events  EventPublisher
}

// NewEngine creates the aggregation engine.
func NewEngine(servers ServerLister, client BackendClient, events EventPublisher) *Engine {
	return &Engine{servers: servers, client: client, events: events}
}

// Handle dispatches one inbound JSON-RPC message. Notifications return a
// nil response.
func (e *Engine) Handle(ctx context.Context, msg *rpc.Message) *rpc.Message {
	if msg.IsNotification() {
		logger.Debugw("ignoring notification", "method", msg.Method)
		return nil
	}

	switch msg.Method {
	case "initialize":
		return e.handleInitialize(msg)
	case "ping":
		return rpc.NewRawResult(msg.ID, json.RawMessage(`{}`))
	case "tools/list":
		return e.handleList(ctx, msg, "tools/list", "tools", rewriteTool)
	case "tools/call":
		return e.handleInvoke(ctx, msg, invokeSpec{
			method:      "tools/call",
			paramKey:    "name",
			separator:   toolSeparator,
			label:       "tool",
			failMessage: "Tool call failed",
		})
	case "resources/list":
		return e.handleList(ctx, msg, "resources/list", "resources", rewriteResource)
	case "resources/read":
		return e.handleInvoke(ctx, msg, invokeSpec{
			method:      "resources/read",
			paramKey:    "uri",
			separator:   resourceSeparator,
			label:       "resource",
			failMessage: "Resource read failed",
		})
	case "prompts/list":
		return e.handleList(ctx, msg, "prompts/list", "prompts", rewritePrompt)
	case "prompts/get":
		return e.handleInvoke(ctx, msg, invokeSpec{
			method:      "prompts/get",
			paramKey:    "name",
			separator:   toolSeparator,
			label:       "prompt",
			failMessage: "Prompt get failed",
		})
	default:
		return rpc.NewErrorf(msg.ID, rpc.CodeMethodNotFound, "Method not found: %s", msg.Method)
	}
}

func (e *Engine) handleInitialize(msg *rpc.Message) *rpc.Message {
	result := map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities": map[string]any{
			"tools":     map[string]any{"listChanged": false},
			"resources": map[string]any{"listChanged": false, "subscribe": false},
			"prompts":   map[string]any{"listChanged": false},
		},
		"serverInfo": map[string]any{
			"name":    serverName,
			"version": serverVersion,
		},
	}
	resp, err := rpc.NewResult(msg.ID, result)
	if err != nil {
		return rpc.NewErrorf(msg.ID, rpc.CodeInternalError, "failed to encode result")
	}
	return resp
}

// rewrite functions prefix an item's routing key and attach origin
// metadata.
func rewriteTool(item map[string]any, srv *store.MCPServer) {
	if name, ok := item["name"].(string); ok {
		item["_original_name"] = name
		item["_server_id"] = srv.ID.String()
		item["name"] = srv.Name + toolSeparator + name
	}
}

func rewriteResource(item map[string]any, srv *store.MCPServer) {
	if uri, ok := item["uri"].(string); ok {
		item["_original_uri"] = uri
		item["_server_id"] = srv.ID.String()
		item["uri"] = srv.Name + resourceSeparator + uri
	}
}

func rewritePrompt(item map[string]any, srv *store.MCPServer) {
	rewriteTool(item, srv)
}

// handleList fans a list request out to every active backend and merges
// the results. A failing backend is logged and skipped.
func (e *Engine) handleList(ctx context.Context, msg *rpc.Message, method, field string,
	rewrite func(map[string]any, *store.MCPServer)) *rpc.Message {

	servers, err := e.servers.List(ctx, false)
	if err != nil {
		logger.Errorw("failed to list backends", "error", err)
		return rpc.NewErrorf(msg.ID, rpc.CodeServerError, "Database error: %v", err)
	}

	perServer := make([][]map[string]any, len(servers))
	g, gctx := errgroup.WithContext(ctx)
	for i, srv := range servers {
		g.Go(func() error {
			items, err := e.listBackend(gctx, srv, method, field)
			if err != nil {
				logger.Warnw("backend failed during fan-out",
					"server", srv.Name, "method", method, "error", err)
				return nil
			}
			for _, item := range items {
				rewrite(item, srv)
			}
			perServer[i] = items
			return nil
		})
	}
	_ = g.Wait()

	merged := make([]map[string]any, 0)
	for _, items := range perServer {
		merged = append(merged, items...)
	}

	resp, err := rpc.NewResult(msg.ID, map[string]any{field: merged})
	if err != nil {
		return rpc.NewErrorf(msg.ID, rpc.CodeInternalError, "failed to encode result")
	}
	return resp
}

func (e *Engine) listBackend(ctx context.Context, srv *store.MCPServer, method, field string) ([]map[string]any, error) {
	req, err := rpc.NewRequest(newCallID(), method, map[string]any{})
	if err != nil {
		return nil, err
	}
	resp, err := e.client.Forward(ctx, srv, req)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error
	}

	var result map[string]json.RawMessage
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("malformed result: %w", err)
	}
	raw, ok := result[field]
	if !ok {
		return nil, nil
	}
	var items []map[string]any
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("malformed %q array: %w", field, err)
	}
	return items, nil
}

// invokeSpec describes a routed invocation method.
type invokeSpec struct {
	method      string
	paramKey    string
	separator   string
	label       string
	failMessage string
}

// handleInvoke routes a prefixed invocation to the owning backend and
// returns the backend response verbatim.
func (e *Engine) handleInvoke(ctx context.Context, msg *rpc.Message, spec invokeSpec) *rpc.Message {
	var params map[string]json.RawMessage
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return rpc.NewErrorf(msg.ID, rpc.CodeInvalidParams, "Missing params")
		}
	}
	var prefixed string
	if raw, ok := params[spec.paramKey]; ok {
		if err := json.Unmarshal(raw, &prefixed); err != nil {
			return rpc.NewErrorf(msg.ID, rpc.CodeInvalidParams, "Missing params")
		}
	}
	if prefixed == "" {
		return rpc.NewErrorf(msg.ID, rpc.CodeInvalidParams, "Missing params")
	}

	servers, err := e.servers.List(ctx, false)
	if err != nil {
		logger.Errorw("failed to list backends", "error", err)
		return rpc.NewErrorf(msg.ID, rpc.CodeServerError, "Database error: %v", err)
	}

	srv, original := routeByPrefix(servers, prefixed, spec.separator)
	if srv == nil {
		return rpc.NewErrorf(msg.ID, rpc.CodeInvalidParams,
			"Unknown %s: %s", spec.label, prefixed)
	}

	forward := make(map[string]json.RawMessage, len(params))
	for k, v := range params {
		forward[k] = v
	}
	originalJSON, _ := json.Marshal(original)
	forward[spec.paramKey] = originalJSON

	req, err := rpc.NewRequest(newCallID(), spec.method, forward)
	if err != nil {
		return rpc.NewErrorf(msg.ID, rpc.CodeInternalError, "failed to encode request")
	}

	start := time.Now()
	resp, err := e.client.Forward(ctx, srv, req)
	e.publishExecution(spec, srv, original, time.Since(start), err == nil && (resp == nil || resp.Error == nil))
	if err != nil {
		logger.Warnw("backend invocation failed",
			"server", srv.Name, "method", spec.method, "error", err)
		return rpc.NewErrorf(msg.ID, rpc.CodeServerError, "%s: %v", spec.failMessage, err)
	}
	if resp.Error != nil {
		return rpc.NewError(msg.ID, resp.Error.Code, resp.Error.Message, resp.Error.Data)
	}
	return rpc.NewRawResult(msg.ID, resp.Result)
}

func (e *Engine) publishExecution(spec invokeSpec, srv *store.MCPServer, name string, duration time.Duration, success bool) {
	if e.events == nil || spec.method != "tools/call" {
		return
	}
	e.events.Publish(streaming.NewToolExecuted(srv.ID, srv.Name, name, duration, success))
}

// routeByPrefix finds the backend owning a prefixed name: the active
// backend with the longest name such that name+separator prefixes the
// token. Returns the backend and the stripped original name.
func routeByPrefix(servers []*store.MCPServer, prefixed, separator string) (*store.MCPServer, string) {
	var (
		match    *store.MCPServer
		original string
	)
	for _, srv := range servers {
		prefix := srv.Name + separator
		if !strings.HasPrefix(prefixed, prefix) {
			continue
		}
		if match == nil || len(srv.Name) > len(match.Name) {
			match = srv
			original = strings.TrimPrefix(prefixed, prefix)
		}
	}
	return match, original
}

var callCounter atomic.Uint64

// newCallID returns a process-unique identifier for forwarded calls so a
// backend's out-of-order responses still correlate.
func newCallID() uint64 {
	return callCounter.Add(1)
}
