package feed

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afroash/baro-monitor/internal/config"
)

// fakeCommander records commands and serves canned dump lines.
type fakeCommander struct {
	ids      []int
	commands []string
	dumps    map[int][]string
}

func (f *fakeCommander) WorkerIDs() []int { return f.ids }

func (f *fakeCommander) SendCommand(workerID int, cmd string) error {
	for _, id := range f.ids {
		if id == workerID {
			f.commands = append(f.commands, cmd)
			return nil
		}
	}
	return assert.AnError
}

func (f *fakeCommander) DrainData(workerID int) []string {
	return f.dumps[workerID]
}

func newTestServer(t *testing.T, cmd Commander, stats func() map[string]any) (*Server, *httptest.Server) {
	t.Helper()

	s := NewServer(config.FeedConfig{
		Host:      "localhost",
		Port:      0,
		AuthToken: "secret-token",
	}, cmd, stats, zerolog.Nop())
	s.dumpWait = time.Millisecond

	mux := http.NewServeMux()
	s.Routes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return s, ts
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func TestValidateToken(t *testing.T) {
	s := NewServer(config.FeedConfig{AuthToken: "secret"}, nil, nil, zerolog.Nop())

	assert.True(t, s.validateToken("Bearer secret"))
	assert.False(t, s.validateToken("Bearer wrong"))
	assert.False(t, s.validateToken("secret"), "scheme prefix is required")
	assert.False(t, s.validateToken(""))
}

func TestCheckOrigin(t *testing.T) {
	s := NewServer(config.FeedConfig{
		AuthToken:      "secret",
		AllowedOrigins: []string{"https://dash.example.com"},
	}, nil, nil, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/feed", nil)
	assert.True(t, s.checkOrigin(req), "same-origin (no header) is allowed")

	req.Header.Set("Origin", "https://dash.example.com")
	assert.True(t, s.checkOrigin(req))

	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, s.checkOrigin(req))

	bare := NewServer(config.FeedConfig{AuthToken: "secret"}, nil, nil, zerolog.Nop())
	req.Header.Set("Origin", "https://dash.example.com")
	assert.False(t, bare.checkOrigin(req), "empty allowlist rejects cross-origin")
}

func TestFeed_Unauthorized(t *testing.T) {
	_, ts := newTestServer(t, nil, nil)

	resp, err := http.Get(ts.URL + "/feed")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestFeed_BroadcastsRecords(t *testing.T) {
	s, ts := newTestServer(t, nil, nil)

	header := http.Header{"Authorization": []string{"Bearer secret-token"}}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "/feed"), header)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	// Wait for the subscriber to register.
	deadline := time.Now().Add(2 * time.Second)
	for s.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, 1, s.ClientCount())

	s.Publish(2, "1.23 72.14 0.00 2026-08-28 10:15 (1787000000)")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "record", ev.Type)
	assert.Equal(t, 2, ev.Sensor)
	assert.Contains(t, ev.Line, "1.23 72.14")
}

func TestFeed_BroadcastsDumps(t *testing.T) {
	s, ts := newTestServer(t, nil, nil)

	header := http.Header{"Authorization": []string{"Bearer secret-token"}}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "/feed"), header)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for s.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	s.PublishDump(1, []string{"sensor 1: 2 entries", "a", "b"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "dump", ev.Type)
	assert.Len(t, ev.Lines, 3)
}

func TestDumpEndpoint(t *testing.T) {
	cmd := &fakeCommander{
		ids:   []int{1, 2},
		dumps: map[int][]string{1: {"sensor 1: 1 entries", "0.42 70.00 0.00"}},
	}
	_, ts := newTestServer(t, cmd, nil)

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/dump?sensor=1", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Sensor int      `json:"sensor"`
		Lines  []string `json:"lines"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.Sensor)
	assert.Len(t, body.Lines, 2)
	assert.Equal(t, []string{"dump"}, cmd.commands)
}

func TestDumpEndpoint_Errors(t *testing.T) {
	cmd := &fakeCommander{ids: []int{1}}
	_, ts := newTestServer(t, cmd, nil)

	// Wrong method.
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/dump?sensor=1", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	// Missing token.
	req, _ = http.NewRequest(http.MethodPost, ts.URL+"/dump?sensor=1", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Bad sensor id.
	req, _ = http.NewRequest(http.MethodPost, ts.URL+"/dump?sensor=abc", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Unknown sensor.
	req, _ = http.NewRequest(http.MethodPost, ts.URL+"/dump?sensor=9", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	cmd := &fakeCommander{ids: []int{1, 3}}
	_, ts := newTestServer(t, cmd, nil)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Status  string `json:"status"`
		Sensors []int  `json:"sensors"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, []int{1, 3}, body.Sensors)
}

func TestStatsEndpoint(t *testing.T) {
	_, ts := newTestServer(t, nil, func() map[string]any {
		return map[string]any{"total_written": 42}
	})

	// Stats require auth.
	resp, err := http.Get(ts.URL + "/stats")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/stats", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.EqualValues(t, 42, body["total_written"])
	assert.Contains(t, body, "subscribers")
}
