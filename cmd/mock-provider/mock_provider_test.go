package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitoutofhere7/japan-post-demo/internal/common/logger"
	"github.com/gitoutofhere7/japan-post-demo/internal/provider"
	"github.com/gitoutofhere7/japan-post-demo/pkg/sse"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, apiKey string) *httptest.Server {
	t.Helper()
	scenarios, err := loadScenarios("")
	require.NoError(t, err)
	return httptest.NewServer(newRouter(&server{
		scenarios:       scenarios,
		defaultScenario: "success",
		apiKey:          apiKey,
		logger:          logger.NewNop(),
	}))
}

func runRequest() provider.RunRequest {
	return provider.RunRequest{URL: "https://example.com/form", Goal: "fill it", Options: provider.RunOptions{Mode: "stealth", TimeoutMS: 1000}}
}

func readEvents(t *testing.T, body io.Reader) []provider.Event {
	t.Helper()
	var out []provider.Event
	for payload, err := range sse.NewStream(body).All(context.Background()) {
		require.NoError(t, err)
		ev, err := provider.ParseEvent(payload)
		if err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out
}

func TestMockProvider_Success(t *testing.T) {
	srv := newTestServer(t, "sk-mock")
	defer srv.Close()

	client := provider.NewClient(srv.URL, "sk-mock", time.Second, logger.NewNop())
	body, err := client.Run(context.Background(), runRequest())
	require.NoError(t, err)
	defer body.Close()

	events := readEvents(t, body)
	require.NotEmpty(t, events)
	assert.Equal(t, provider.Started{RunID: "mock-run-1"}, events[0])
	last, ok := events[len(events)-1].(provider.Complete)
	require.True(t, ok)
	assert.True(t, last.Succeeded())
	assert.JSONEq(t, `{"filled":true,"submitted":false}`, string(last.Result))
}

func TestMockProvider_Legacy(t *testing.T) {
	srv := newTestServer(t, "")
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL+provider.RunPath+"?scenario=legacy",
		strings.NewReader(`{"url":"https://example.com","goal":"g","options":{"mode":"stealth","timeout":1}}`))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	events := readEvents(t, resp.Body)
	assert.Contains(t, events, provider.StreamingURL{Raw: provider.TypeBrowserURL, URL: "https://example.com/live/mock-run-5"})
	assert.Contains(t, events, provider.Action{Raw: provider.TypeAction, Description: "Choosing a time slot"})
}

func TestMockProvider_Quota(t *testing.T) {
	srv := newTestServer(t, "")
	defer srv.Close()

	httpReq, err := http.NewRequest(http.MethodPost, srv.URL+provider.RunPath,
		strings.NewReader(`{"url":"u","goal":"g"}`))
	require.NoError(t, err)
	httpReq.Header.Set(ScenarioHeader, "quota")
	resp, err := http.DefaultClient.Do(httpReq)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, `"quota exceeded"`, string(data))
}

func TestMockProvider_RejectsBadKey(t *testing.T) {
	srv := newTestServer(t, "sk-mock")
	defer srv.Close()

	client := provider.NewClient(srv.URL, "wrong", time.Second, logger.NewNop())
	_, err := client.Run(context.Background(), runRequest())

	var statusErr *provider.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
}

func TestMockProvider_RejectsIncompleteRequest(t *testing.T) {
	srv := newTestServer(t, "")
	defer srv.Close()

	client := provider.NewClient(srv.URL, "", time.Second, logger.NewNop())
	_, err := client.Run(context.Background(), provider.RunRequest{Goal: "no url"})

	var statusErr *provider.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
}

func TestLoadScenarios_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenarios.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
scenarios:
  - name: slow-captcha
    frames:
      - event: {type: STARTED, runId: yaml-run}
      - event: {type: PROGRESS, purpose: Solving captcha}
        delayMs: 10
      - raw: '{"type":"COMPLETE"'
  - name: success
    status: 503
    body: overloaded
`), 0o600))

	scenarios, err := loadScenarios(path)
	require.NoError(t, err)

	custom := scenarios["slow-captcha"]
	require.Len(t, custom.Frames, 3)
	assert.Equal(t, 10, custom.Frames[1].DelayMS)
	payload, err := custom.Frames[0].payload()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"STARTED","runId":"yaml-run"}`, string(payload))

	assert.Equal(t, 503, scenarios["success"].Status, "file scenarios replace built-ins")
	assert.Contains(t, scenarios, "legacy")
}

func TestLoadScenarios_Errors(t *testing.T) {
	_, err := loadScenarios(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scenarios:\n  - frames: []\n"), 0o600))
	_, err = loadScenarios(path)
	assert.Error(t, err)
}
