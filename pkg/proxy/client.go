// Package proxy forwards JSON-RPC messages to a single backend MCP
// server over its configured transport.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/metamcp/metamcp/pkg/errors"
	"github.com/metamcp/metamcp/pkg/rpc"
	"github.com/metamcp/metamcp/pkg/store"
)

// requestTimeout bounds a single backend round trip.
const requestTimeout = 30 * time.Second

// Client issues requests to backend MCP servers.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a backend client with the default timeout.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// Forward sends a JSON-RPC message to the backend described by srv and
// returns the response envelope.
func (c *Client) Forward(ctx context.Context, srv *store.MCPServer, msg *rpc.Message) (*rpc.Message, error) {
	switch srv.Protocol {
	case store.ProtocolHTTP:
		return c.forwardHTTP(ctx, srv, msg)
	case store.ProtocolSSE:
		return nil, errors.Newf(errors.KindTransport,
			"SSE transport not yet implemented for server %q", srv.Name)
	case store.ProtocolStdio:
		return nil, errors.Newf(errors.KindTransport,
			"stdio transport not yet implemented for server %q", srv.Name)
	default:
		return nil, errors.Newf(errors.KindTransport,
			"unknown protocol %q for server %q", srv.Protocol, srv.Name)
	}
}

func (c *Client) forwardHTTP(ctx context.Context, srv *store.MCPServer, msg *rpc.Message) (*rpc.Message, error) {
	if srv.URL == nil || *srv.URL == "" {
		return nil, errors.Newf(errors.KindTransport, "server %q has no URL", srv.Name)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, *srv.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.KindTransport,
			fmt.Sprintf("failed to reach server %q", srv.Name), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Newf(errors.KindTransport,
			"server %q returned HTTP %d", srv.Name, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(errors.KindTransport,
			fmt.Sprintf("failed to read response from server %q", srv.Name), err)
	}

	var response rpc.Message
	if err := json.Unmarshal(raw, &response); err != nil {
		return nil, errors.Wrap(errors.KindTransport,
			fmt.Sprintf("malformed response from server %q", srv.Name), err)
	}
	return &response, nil
}
