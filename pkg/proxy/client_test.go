package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metamcp/metamcp/pkg/errors"
	"github.com/metamcp/metamcp/pkg/rpc"
	"github.com/metamcp/metamcp/pkg/store"
)

func httpServer(url string) *store.MCPServer {
	return &store.MCPServer{
		ID:       uuid.New(),
		Name:     "backend",
		URL:      &url,
		Protocol: store.ProtocolHTTP,
		IsActive: true,
	}
}

func TestForwardHTTP(t *testing.T) {
	t.Parallel()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var msg rpc.Message
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		assert.Equal(t, "ping", msg.Method)

		resp, _ := rpc.NewResult(msg.ID, map[string]any{"pong": true})
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer backend.Close()

	client := NewClient()
	req, err := rpc.NewRequest(1, "ping", nil)
	require.NoError(t, err)

	resp, err := client.Forward(context.Background(), httpServer(backend.URL), req)
	require.NoError(t, err)
	require.Nil(t, resp.Error)
	assert.Contains(t, string(resp.Result), "pong")
}

func TestForwardNon2xxIsTransportError(t *testing.T) {
	t.Parallel()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer backend.Close()

	client := NewClient()
	req, err := rpc.NewRequest(1, "ping", nil)
	require.NoError(t, err)

	_, err = client.Forward(context.Background(), httpServer(backend.URL), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindTransport))
}

func TestForwardConnectionFailure(t *testing.T) {
	t.Parallel()

	// Closed server: connection refused.
	backend := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
	backend.Close()

	client := NewClient()
	req, err := rpc.NewRequest(1, "ping", nil)
	require.NoError(t, err)

	_, err = client.Forward(context.Background(), httpServer(backend.URL), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindTransport))
}

func TestForwardMalformedResponse(t *testing.T) {
	t.Parallel()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json at all"))
	}))
	defer backend.Close()

	client := NewClient()
	req, err := rpc.NewRequest(1, "ping", nil)
	require.NoError(t, err)

	_, err = client.Forward(context.Background(), httpServer(backend.URL), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindTransport))
}

func TestForwardUnimplementedTransports(t *testing.T) {
	t.Parallel()

	client := NewClient()
	req, err := rpc.NewRequest(1, "ping", nil)
	require.NoError(t, err)

	for _, protocol := range []store.Protocol{store.ProtocolSSE, store.ProtocolStdio} {
		srv := httpServer("http://example.com")
		srv.Protocol = protocol
		_, err := client.Forward(context.Background(), srv, req)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.KindTransport), "protocol %s", protocol)
	}
}

func TestForwardMissingURL(t *testing.T) {
	t.Parallel()

	client := NewClient()
	req, err := rpc.NewRequest(1, "ping", nil)
	require.NoError(t, err)

	srv := &store.MCPServer{ID: uuid.New(), Name: "broken", Protocol: store.ProtocolHTTP}
	_, err = client.Forward(context.Background(), srv, req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindTransport))
}

func TestForwardPassesBackendErrorThrough(t *testing.T) {
	t.Parallel()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg rpc.Message
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		resp := rpc.NewErrorf(msg.ID, -32050, "tool exploded")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer backend.Close()

	client := NewClient()
	req, err := rpc.NewRequest(1, "tools/call", map[string]any{"name": "echo"})
	require.NoError(t, err)

	resp, err := client.Forward(context.Background(), httpServer(backend.URL), req)
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "tool exploded", resp.Error.Message)
}
