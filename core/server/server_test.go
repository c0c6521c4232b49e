package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilnworks/kiln/core/config"
	"github.com/kilnworks/kiln/core/engine"
	"github.com/kilnworks/kiln/core/schema"
	"github.com/kilnworks/kiln/core/server"
)

const testSchema = `
datasources:
  - name: db
    provider: postgres
    url: postgres://localhost:5432/app
models:
  - name: User
    fields:
      - name: id
        type: Int
        id: true
`

type stubExecutor struct{}

func (stubExecutor) Query(ctx context.Context, qs *schema.QuerySchema, req *engine.QueryRequest) (*engine.QueryResponse, error) {
	return &engine.QueryResponse{Data: []map[string]any{{"id": 1}}}, nil
}

func (stubExecutor) PrimaryConnector() string { return "postgres" }

func (stubExecutor) Close(ctx context.Context) error { return nil }

func stubLoader(ctx context.Context, ds *config.Datasource, previewFeatures []string, url string) (string, engine.Executor, error) {
	return "app", stubExecutor{}, nil
}

func newTestServer(t *testing.T) (*server.Server, http.Handler) {
	t.Helper()
	eng, err := engine.New(testSchema, engine.WithExecutorLoader(stubLoader))
	require.NoError(t, err)
	srv := server.New(eng)
	return srv, srv.Router()
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	_, h := newTestServer(t)

	rec := doRequest(t, h, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["connected"])
}

func TestConnectLifecycle(t *testing.T) {
	_, h := newTestServer(t)

	rec := doRequest(t, h, http.MethodPost, "/connect", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	// A second connect conflicts and leaves the engine connected.
	rec = doRequest(t, h, http.MethodPost, "/connect", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	var body map[string]map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ALREADY_CONNECTED", body["error"]["code"])

	rec = doRequest(t, h, http.MethodGet, "/healthz", "")
	var health map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, true, health["connected"])

	rec = doRequest(t, h, http.MethodPost, "/disconnect", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/disconnect", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "NOT_CONNECTED", body["error"]["code"])
}

func TestQueryRequiresConnection(t *testing.T) {
	_, h := newTestServer(t)

	rec := doRequest(t, h, http.MethodPost, "/query", `{"query":"SELECT 1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	var body map[string]map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "NOT_CONNECTED", body["error"]["code"])
}

func TestQuery(t *testing.T) {
	_, h := newTestServer(t)

	doRequest(t, h, http.MethodPost, "/connect", "")

	rec := doRequest(t, h, http.MethodPost, "/query", `{"query":"SELECT * FROM users"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp engine.QueryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotNil(t, resp.Data)
	assert.Empty(t, resp.Errors)
}

func TestQueryRejectsInvalidBody(t *testing.T) {
	_, h := newTestServer(t)

	rec := doRequest(t, h, http.MethodPost, "/query", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSchemaEndpoints(t *testing.T) {
	_, h := newTestServer(t)

	rec := doRequest(t, h, http.MethodGet, "/schema", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testSchema, rec.Body.String())

	// SDL requires a connection.
	rec = doRequest(t, h, http.MethodGet, "/schema/sdl", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	doRequest(t, h, http.MethodPost, "/connect", "")
	rec = doRequest(t, h, http.MethodGet, "/schema/sdl", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "type User {")
}

func TestConfigEndpoint(t *testing.T) {
	_, h := newTestServer(t)

	rec := doRequest(t, h, http.MethodGet, "/config", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	sources, ok := body["datasources"].([]any)
	require.True(t, ok)
	assert.Len(t, sources, 1)
}

func TestServerInfoEndpoint(t *testing.T) {
	_, h := newTestServer(t)

	rec := doRequest(t, h, http.MethodGet, "/server-info", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var info engine.ServerInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "dev", info.Version)
	assert.Empty(t, info.PrimaryConnector)

	doRequest(t, h, http.MethodPost, "/connect", "")
	rec = doRequest(t, h, http.MethodGet, "/server-info", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "postgres", info.PrimaryConnector)
}
