package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metamcp/metamcp/pkg/rpc"
	"github.com/metamcp/metamcp/pkg/store"
)

// fakeServerRepo is an in-memory ServerRepository.
type fakeServerRepo struct {
	servers map[uuid.UUID]*store.MCPServer
}

func newFakeServerRepo() *fakeServerRepo {
	return &fakeServerRepo{servers: make(map[uuid.UUID]*store.MCPServer)}
}

func (f *fakeServerRepo) Create(_ context.Context, srv *store.MCPServer) error {
	if err := store.ValidateServerName(srv.Name); err != nil {
		return err
	}
	if srv.ID == uuid.Nil {
		srv.ID = uuid.New()
	}
	f.servers[srv.ID] = srv
	return nil
}

func (f *fakeServerRepo) FindByID(_ context.Context, id uuid.UUID) (*store.MCPServer, error) {
	srv, ok := f.servers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return srv, nil
}

func (f *fakeServerRepo) List(_ context.Context, includeInactive bool) ([]*store.MCPServer, error) {
	var out []*store.MCPServer
	for _, srv := range f.servers {
		if srv.IsActive || includeInactive {
			out = append(out, srv)
		}
	}
	return out, nil
}

func (f *fakeServerRepo) Update(_ context.Context, id uuid.UUID, patch *store.ServerUpdate) (*store.MCPServer, error) {
	srv, ok := f.servers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if patch.Name != nil {
		if err := store.ValidateServerName(*patch.Name); err != nil {
			return nil, err
		}
		srv.Name = *patch.Name
	}
	if patch.URL != nil {
		srv.URL = patch.URL
	}
	if patch.IsActive != nil {
		srv.IsActive = *patch.IsActive
	}
	return srv, nil
}

func (f *fakeServerRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := f.servers[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.servers, id)
	return nil
}

// fakeInvoker returns a canned result for every call.
type fakeInvoker struct {
	lastCall *rpc.Message
}

func (f *fakeInvoker) Handle(_ context.Context, msg *rpc.Message) *rpc.Message {
	f.lastCall = msg
	return rpc.NewRawResult(msg.ID, json.RawMessage(`{"content":[]}`))
}

func serverFixture(repo *fakeServerRepo, name string) *store.MCPServer {
	url := "http://8.8.8.8:3001/mcp"
	srv := &store.MCPServer{
		ID:       uuid.New(),
		Name:     name,
		URL:      &url,
		Protocol: store.ProtocolHTTP,
		IsActive: true,
	}
	repo.servers[srv.ID] = srv
	return srv
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body == "" {
		reader = bytes.NewBuffer(nil)
	} else {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestCreateServer(t *testing.T) {
	t.Parallel()

	repo := newFakeServerRepo()
	handler := ServerRoutes(repo, &fakeInvoker{})

	rec := doJSON(t, handler, http.MethodPost, "/",
		`{"name":"alpha","url":"http://8.8.8.8:3001/mcp","protocol":"http"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var srv store.MCPServer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &srv))
	assert.Equal(t, "alpha", srv.Name)
	assert.True(t, srv.IsActive)
	assert.Len(t, repo.servers, 1)
}

func TestCreateServerRejectsSSRFTarget(t *testing.T) {
	t.Parallel()

	repo := newFakeServerRepo()
	handler := ServerRoutes(repo, &fakeInvoker{})

	rec := doJSON(t, handler, http.MethodPost, "/",
		`{"name":"x","url":"http://169.254.169.254/latest/meta-data/","protocol":"http"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Security Violation", body["error"])
	assert.Empty(t, repo.servers, "rejected descriptor must not be persisted")
}

func TestCreateServerValidation(t *testing.T) {
	t.Parallel()

	repo := newFakeServerRepo()
	handler := ServerRoutes(repo, &fakeInvoker{})

	cases := []struct {
		name string
		body string
	}{
		{"unknown protocol", `{"name":"a","protocol":"carrier-pigeon"}`},
		{"http without url", `{"name":"a","protocol":"http"}`},
		{"stdio without command", `{"name":"a","protocol":"stdio"}`},
		{"separator in name", `{"name":"bad_name","url":"http://8.8.8.8/","protocol":"http"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, handler, http.MethodPost, "/", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
	assert.Empty(t, repo.servers)
}

func TestGetServer(t *testing.T) {
	t.Parallel()

	repo := newFakeServerRepo()
	srv := serverFixture(repo, "alpha")
	handler := ServerRoutes(repo, &fakeInvoker{})

	rec := doJSON(t, handler, http.MethodGet, "/"+srv.ID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"alpha"`)

	rec = doJSON(t, handler, http.MethodGet, "/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListServers(t *testing.T) {
	t.Parallel()

	repo := newFakeServerRepo()
	serverFixture(repo, "alpha")
	serverFixture(repo, "beta")
	handler := ServerRoutes(repo, &fakeInvoker{})

	rec := doJSON(t, handler, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Servers []store.MCPServer `json:"servers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Servers, 2)
}

func TestUpdateServer(t *testing.T) {
	t.Parallel()

	repo := newFakeServerRepo()
	srv := serverFixture(repo, "alpha")
	handler := ServerRoutes(repo, &fakeInvoker{})

	rec := doJSON(t, handler, http.MethodPut, "/"+srv.ID.String(), `{"name":"renamed"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "renamed", repo.servers[srv.ID].Name)

	// URL updates go through the SSRF guard.
	rec = doJSON(t, handler, http.MethodPut, "/"+srv.ID.String(), `{"url":"http://127.0.0.1/"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.NotEqual(t, "http://127.0.0.1/", *repo.servers[srv.ID].URL)
}

func TestDeleteServer(t *testing.T) {
	t.Parallel()

	repo := newFakeServerRepo()
	srv := serverFixture(repo, "alpha")
	handler := ServerRoutes(repo, &fakeInvoker{})

	rec := doJSON(t, handler, http.MethodDelete, "/"+srv.ID.String(), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, repo.servers)

	rec = doJSON(t, handler, http.MethodDelete, "/"+srv.ID.String(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExecuteToolRoutesThroughEngine(t *testing.T) {
	t.Parallel()

	repo := newFakeServerRepo()
	srv := serverFixture(repo, "alpha")
	invoker := &fakeInvoker{}
	handler := ServerRoutes(repo, invoker)

	path := fmt.Sprintf("/%s/tools/echo/execute", srv.ID)
	rec := doJSON(t, handler, http.MethodPost, path, `{"arguments":{"message":"hi"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.NotNil(t, invoker.lastCall)
	assert.Equal(t, "tools/call", invoker.lastCall.Method)

	var params map[string]any
	require.NoError(t, json.Unmarshal(invoker.lastCall.Params, &params))
	assert.Equal(t, "alpha_echo", params["name"])
}

func TestExecuteToolUnknownServer(t *testing.T) {
	t.Parallel()

	handler := ServerRoutes(newFakeServerRepo(), &fakeInvoker{})

	path := fmt.Sprintf("/%s/tools/echo/execute", uuid.New())
	rec := doJSON(t, handler, http.MethodPost, path, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
