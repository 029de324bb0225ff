package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/NTGPC/ntglogin-sub000/internal/infrastructure/config"
	"github.com/NTGPC/ntglogin-sub000/internal/infrastructure/logging"
	"github.com/NTGPC/ntglogin-sub000/internal/infrastructure/server"
	"github.com/NTGPC/ntglogin-sub000/internal/providers/browser/browsertest"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type api struct {
	t        *testing.T
	handler  http.Handler
	launcher *browsertest.Launcher
}

func newAPI(t *testing.T) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Logging.Development = true
	cfg.RateLimit.Enabled = false
	cfg.Storage.DataFile = filepath.Join(dir, "store.json")
	cfg.Storage.ScreenshotsDir = filepath.Join(dir, "shots")
	cfg.Browser.ProfilesDir = filepath.Join(dir, "profiles")
	cfg.Proxy.ProbeURL = "http://probe.test/generate_204"
	cfg.Proxy.Timeout = 2 * time.Second
	cfg.Workers.Size = 2
	cfg.Workers.ActionTimeout = 5 * time.Second

	l := browsertest.NewLauncher("rod")
	ctx := context.Background()
	srv, err := server.NewServer(ctx, cfg, server.WithLogger(logging.NewNop()), server.WithLaunchers(l))
	require.NoError(t, err)
	srv.Start(ctx)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	return &api{t: t, handler: srv.Handler(), launcher: l}
}

func (a *api) do(method, path string, body any) (int, map[string]any) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return a.serve(req)
}

func (a *api) serve(req *http.Request) (int, map[string]any) {
	a.t.Helper()
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	out := map[string]any{}
	if w.Body.Len() > 0 && strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func num(v any) int {
	f, _ := v.(float64)
	return int(f)
}

func (a *api) createProfile(name string) int {
	a.t.Helper()
	code, body := a.do("POST", "/profiles", map[string]any{
		"name":        name,
		"accountInfo": map[string]string{"username": name},
	})
	require.Equal(a.t, http.StatusCreated, code, body)
	return num(body["profile"].(map[string]any)["id"])
}

func TestHealth(t *testing.T) {
	a := newAPI(t)
	code, body := a.do("GET", "/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])

	code, _ = a.do("GET", "/metrics/json", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestProfileLifecycle(t *testing.T) {
	a := newAPI(t)

	code, body := a.do("POST", "/profiles", map[string]any{"name": ""})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, false, body["success"])

	id := a.createProfile("alice")
	assert.Equal(t, 1, id)

	code, body = a.do("GET", "/profiles/1", nil)
	require.Equal(t, http.StatusOK, code)
	fp := body["fingerprint"].(map[string]any)
	assert.EqualValues(t, 1, fp["seed"])

	code, body = a.do("PUT", "/profiles/1/fingerprint", map[string]any{"osName": "Linux"})
	require.Equal(t, http.StatusOK, code, body)
	fp = body["profile"].(map[string]any)["fingerprint"].(map[string]any)
	assert.Equal(t, "Linux", fp["os"].(map[string]any)["name"])

	code, _ = a.do("DELETE", "/profiles/1", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = a.do("GET", "/profiles/1", nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = a.do("GET", "/profiles/zero", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSessionRoutes(t *testing.T) {
	a := newAPI(t)
	a.createProfile("bob")

	code, body := a.do("POST", "/sessions", map[string]any{"profileId": 1})
	require.Equal(t, http.StatusCreated, code, body)
	sess := body["session"].(map[string]any)
	assert.Equal(t, "rod", sess["engine"])
	sid := num(sess["sessionId"])

	code, body = a.do("GET", fmt.Sprintf("/sessions/%d/pages", sid), nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{"about:blank"}, body["urls"])

	code, body = a.do("GET", "/sessions?profileId=1&status=running", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["sessions"], 1)

	for i := 0; i < 2; i++ {
		code, _ = a.do("DELETE", fmt.Sprintf("/sessions/%d", sid), nil)
		assert.Equal(t, http.StatusOK, code, "close is idempotent")
	}
	code, _ = a.do("GET", fmt.Sprintf("/sessions/%d/pages", sid), nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = a.do("POST", "/sessions", map[string]any{"profileId": 42})
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = a.do("POST", "/sessions", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = a.do("DELETE", "/sessions/999", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestScratchSession(t *testing.T) {
	a := newAPI(t)

	code, body := a.do("POST", "/sessions/scratch", nil)
	require.Equal(t, http.StatusCreated, code, body)
	sess := body["session"].(map[string]any)
	assert.Equal(t, float64(0), sess["profileId"])
	sid := num(sess["sessionId"])

	dir := a.launcher.Launches()[0].UserDataDir
	assert.Contains(t, filepath.Base(dir), "session_")

	code, _ = a.do("DELETE", fmt.Sprintf("/sessions/%d", sid), nil)
	assert.Equal(t, http.StatusOK, code)
	assert.NoDirExists(t, dir)
}

func TestLaunchFailureIs500(t *testing.T) {
	a := newAPI(t)
	a.createProfile("carol")
	a.launcher.SetErr(fmt.Errorf("chrome missing"))

	code, body := a.do("POST", "/sessions", map[string]any{"profileId": 1})
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Contains(t, body["error"], "Failed to start session")

	code, body = a.do("GET", "/sessions?status=failed", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["sessions"], 1)
}

func TestValidateWorkflow(t *testing.T) {
	a := newAPI(t)

	code, body := a.do("POST", "/workflows/validate", map[string]any{
		"nodes": []map[string]any{
			{"id": "start", "type": "start"},
			{"id": "A", "type": "click", "config": map[string]any{"selector": "#a"}},
			{"id": "B", "type": "click", "config": map[string]any{"selector": "#b"}},
		},
		"edges": []map[string]any{
			{"source": "start", "target": "A"},
			{"source": "A", "target": "B"},
			{"source": "B", "target": "A"},
		},
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["valid"])
	assert.NotEmpty(t, body["issues"])

	yamlDoc := `
nodes:
  - {id: s, type: start}
  - {id: o, type: openPage, config: {url: "https://example.com"}}
  - {id: e, type: end}
edges:
  - {source: s, target: o}
  - {source: o, target: e}
`
	req := httptest.NewRequest("POST", "/workflows/validate", strings.NewReader(yamlDoc))
	req.Header.Set("Content-Type", "application/yaml")
	code, body = a.serve(req)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, []any{"s", "o", "e"}, body["order"])

	req = httptest.NewRequest("POST", "/workflows/validate", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	code, _ = a.serve(req)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestCanConnectRoute(t *testing.T) {
	a := newAPI(t)
	graph := map[string]any{
		"nodes": []map[string]any{
			{"id": "s", "type": "start"},
			{"id": "c", "type": "click", "config": map[string]any{"selector": "#go"}},
			{"id": "e", "type": "end"},
		},
		"edges": []map[string]any{{"source": "s", "target": "c"}},
	}

	tests := []struct {
		source, target string
		want           int
	}{
		{"c", "e", http.StatusOK},
		{"s", "c", http.StatusBadRequest},
		{"e", "c", http.StatusBadRequest},
		{"c", "missing", http.StatusNotFound},
	}
	for _, tt := range tests {
		code, body := a.do("POST", "/workflows/connect", map[string]any{
			"graph": graph, "source": tt.source, "target": tt.target,
		})
		assert.Equal(t, tt.want, code, "%s>%s: %v", tt.source, tt.target, body)
	}
}

func TestExecuteWorkflowRoute(t *testing.T) {
	a := newAPI(t)
	a.createProfile("dave")

	code, body := a.do("POST", "/workflows", map[string]any{
		"name": "open",
		"graph": map[string]any{
			"nodes": []map[string]any{
				{"id": "s", "type": "start"},
				{"id": "o", "type": "openPage", "config": map[string]any{"url": "https://example.com/{{username}}"}},
				{"id": "e", "type": "end"},
			},
			"edges": []map[string]any{
				{"source": "s", "target": "o"},
				{"source": "o", "target": "e"},
			},
		},
	})
	require.Equal(t, http.StatusCreated, code, body)
	wfID := num(body["workflow"].(map[string]any)["id"])

	code, _ = a.do("POST", fmt.Sprintf("/workflows/%d/assign", wfID), map[string]any{"profileId": 1})
	assert.Equal(t, http.StatusOK, code)
	code, body = a.do("POST", "/workflows/999/assign", map[string]any{"profileId": 1})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "workflow 999 not found", body["error"])
	code, _ = a.do("POST", fmt.Sprintf("/workflows/%d/assign", wfID), map[string]any{"profileId": 77})
	assert.Equal(t, http.StatusNotFound, code)

	code, body = a.do("POST", fmt.Sprintf("/workflows/%d/execute", wfID), map[string]any{"profileIds": []int{}})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = a.do("POST", "/workflows/999/execute", map[string]any{"profileIds": []int{1}})
	assert.Equal(t, http.StatusNotFound, code)

	code, body = a.do("POST", fmt.Sprintf("/workflows/%d/execute", wfID), map[string]any{"profileIds": []int{1}})
	require.Equal(t, http.StatusAccepted, code, body)
	jobID := num(body["jobId"])
	execID := num(body["executionIds"].([]any)[0])

	require.Eventually(t, func() bool {
		_, exec := a.do("GET", "/executions/"+strconv.Itoa(execID), nil)
		return exec["status"] == "completed"
	}, 5*time.Second, 20*time.Millisecond)

	code, body = a.do("GET", "/jobs/"+strconv.Itoa(jobID), nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "completed", body["job"].(map[string]any)["status"])

	calls := a.launcher.Browsers()[0].FakePages()[0].Calls()
	assert.Contains(t, calls, "navigate https://example.com/dave")
}

func TestExecuteRejectsInvalidGraph(t *testing.T) {
	a := newAPI(t)
	a.createProfile("erin")

	code, body := a.do("POST", "/workflows", map[string]any{
		"name":  "no end",
		"graph": map[string]any{"nodes": []map[string]any{{"id": "s", "type": "start"}}},
	})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, false, body["validation"].(map[string]any)["valid"])
	wfID := num(body["workflow"].(map[string]any)["id"])

	code, body = a.do("POST", fmt.Sprintf("/workflows/%d/execute", wfID), map[string]any{"profileIds": []int{1}})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"], "workflow must have at least one end node")
	assert.NotEmpty(t, body["issues"])

	code, _ = a.do("POST", "/workflows", map[string]any{
		"name":  "bad type",
		"graph": map[string]any{"nodes": []map[string]any{{"id": "x", "type": "teleport"}}},
	})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestProxyRoutes(t *testing.T) {
	a := newAPI(t)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	code, body := a.do("POST", "/proxies", map[string]any{
		"host": "127.0.0.1", "port": port, "type": "http", "username": "u", "password": "secret",
	})
	require.Equal(t, http.StatusCreated, code, body)
	p := body["proxy"].(map[string]any)
	assert.Nil(t, p["password"], "password is never echoed")
	id := num(p["id"])

	code, body = a.do("POST", fmt.Sprintf("/proxies/%d/check", id), nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "die", body["status"])

	code, body = a.do("POST", "/proxies/check", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["results"], 1)

	code, _ = a.do("POST", "/proxies/77/check", nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = a.do("POST", "/proxies", map[string]any{"host": "h", "port": 1, "type": "ftp"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestPrometheusEndpoint(t *testing.T) {
	a := newAPI(t)
	a.do("GET", "/health", nil)

	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "fleet_http_requests_total")
}
