// ABOUTME: Tests for the wired HTTP server
// ABOUTME: Covers health endpoints and websocket handshake authentication

package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palaver-chat/palaver/internal/auth"
	"github.com/palaver-chat/palaver/internal/config"
)

const testSecret = "test-secret-for-server"

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	cfg := &config.Config{}
	cfg.Server.HTTPAddr = "127.0.0.1:0"
	cfg.Database.Path = ":memory:"
	cfg.Auth.JWTSecret = testSecret
	cfg.Metrics.Enabled = true
	cfg.Metrics.Path = "/metrics"
	cfg.Realtime.SendBuffer = config.DefaultSendBuffer
	cfg.Realtime.BacklogLimit = config.DefaultBacklogLimit
	cfg.Realtime.PingInterval = 30 * time.Second
	cfg.Realtime.PongTimeout = 60 * time.Second
	cfg.Realtime.TypingInterval = 2 * time.Second

	s, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.typing.Close(); s.store.Close() })

	ts := httptest.NewServer(s.httpServer.Handler)
	t.Cleanup(ts.Close)
	return s, ts
}

func token(t *testing.T, userID string) string {
	t.Helper()
	verifier, err := auth.NewJWTVerifier([]byte(testSecret))
	require.NoError(t, err)
	tok, err := verifier.Generate(userID, time.Hour)
	require.NoError(t, err)
	return tok
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReady(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health/ready")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebSocket_RejectsMissingCredential(t *testing.T) {
	_, ts := newTestServer(t)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocket_RejectsInvalidToken(t *testing.T) {
	_, ts := newTestServer(t)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?access_token=garbage"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocket_AcceptsBearerHeader(t *testing.T) {
	_, ts := newTestServer(t)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	header := http.Header{"Authorization": []string{"Bearer " + token(t, "alice")}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()

	// First frame is the connected event for the new session
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var frame map[string]any
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "event", frame["type"])
	assert.Equal(t, "connected", frame["event"])
	assert.Equal(t, "alice", frame["payload"].(map[string]any)["user_id"])
}

func TestWebSocket_AcceptsQueryToken(t *testing.T) {
	_, ts := newTestServer(t)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?access_token=" + token(t, "bob")

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var frame map[string]any
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "connected", frame["event"])
}
