package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/deer-motility/internal/engine"
	"github.com/talgya/deer-motility/internal/entropy"
	"github.com/talgya/deer-motility/internal/persistence"
	"github.com/talgya/deer-motility/internal/terrain"
	"github.com/talgya/deer-motility/internal/world"
)

const testKey = "secret"

func newTestServer(t *testing.T, steps int) (*Server, *httptest.Server) {
	t.Helper()
	table := terrain.Default()
	g, err := world.GenerateTerrain(context.Background(), world.SmallTestConfig(), table)
	require.NoError(t, err)
	sess, err := engine.NewSession(g, table, engine.Config{Steps: steps}, entropy.NewSource(9))
	require.NoError(t, err)

	db, err := persistence.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	run, err := persistence.NewRun(9, sess)
	require.NoError(t, err)
	require.NoError(t, db.CreateRun(run))

	s := &Server{Session: sess, Driver: engine.NewDriver(sess), DB: db, RunID: run.ID, AdminKey: testKey}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func getJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp
}

func post(t *testing.T, url, key, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

func TestStatusAndTrace(t *testing.T) {
	s, ts := newTestServer(t, 30)
	require.NoError(t, s.Session.Run(context.Background()))

	var status map[string]any
	resp := getJSON(t, ts.URL+"/api/v1/status", &status)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "finished", status["state"])
	assert.Equal(t, 30.0, status["step"])
	assert.Equal(t, s.RunID, status["run_id"])
	assert.Equal(t, "viewfinder", status["perception"])

	var page struct {
		Offset  int          `json:"offset"`
		Total   int          `json:"total"`
		Entries engine.Trace `json:"entries"`
	}
	getJSON(t, ts.URL+"/api/v1/trace?offset=10&limit=5", &page)
	assert.Equal(t, 10, page.Offset)
	assert.Equal(t, 30, page.Total)
	require.Len(t, page.Entries, 5)
	assert.Equal(t, s.Session.Trace()[10:15], page.Entries)

	resp = getJSON(t, ts.URL+"/api/v1/trace?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = getJSON(t, ts.URL+"/api/v1/trace?offset=abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOverlayAndMap(t *testing.T) {
	s, ts := newTestServer(t, 20)
	require.NoError(t, s.Session.Run(context.Background()))

	var overlay struct {
		Length  int       `json:"length"`
		Width   int       `json:"width"`
		Visited int       `json:"visited"`
		Alpha   []float64 `json:"alpha"`
	}
	getJSON(t, ts.URL+"/api/v1/overlay", &overlay)
	cfg := world.SmallTestConfig()
	assert.Equal(t, cfg.Length, overlay.Length)
	assert.Equal(t, cfg.Width, overlay.Width)
	assert.Len(t, overlay.Alpha, cfg.Length*cfg.Width)
	assert.Equal(t, s.Session.Overlay().VisitedCount(), overlay.Visited)

	var m struct {
		Classes []struct {
			Tag string `json:"tag"`
			Hex string `json:"hex"`
		} `json:"classes"`
		Cells []int `json:"cells"`
	}
	getJSON(t, ts.URL+"/api/v1/map", &m)
	require.Len(t, m.Classes, 5)
	assert.Equal(t, "barren", m.Classes[0].Tag)
	assert.True(t, strings.HasPrefix(m.Classes[0].Hex, "#"))
	assert.Len(t, m.Cells, cfg.Length*cfg.Width)
}

func TestAdminEndpoints(t *testing.T) {
	s, ts := newTestServer(t, 40)
	_, err := s.Session.Step()
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, post(t, ts.URL+"/api/v1/speed", "", `{"speed": 2}`).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, post(t, ts.URL+"/api/v1/speed", "wrong", `{"speed": 2}`).StatusCode)
	assert.Equal(t, http.StatusBadRequest, post(t, ts.URL+"/api/v1/speed", testKey, `{"speed": 5000}`).StatusCode)
	assert.Equal(t, http.StatusOK, post(t, ts.URL+"/api/v1/speed", testKey, `{"speed": 2.5}`).StatusCode)
	assert.Equal(t, 2.5, s.Driver.Speed())

	var speed map[string]float64
	getJSON(t, ts.URL+"/api/v1/speed", &speed)
	assert.Equal(t, 2.5, speed["speed"])

	assert.Equal(t, http.StatusOK, post(t, ts.URL+"/api/v1/snapshot", testKey, "").StatusCode)
	n, err := s.DB.TraceLen(s.RunID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, http.StatusOK, post(t, ts.URL+"/api/v1/stop", testKey, "").StatusCode)
	assert.Equal(t, engine.StateFinished, s.Session.State())
}

func TestAdminDisabledWithoutKey(t *testing.T) {
	s, ts := newTestServer(t, 5)
	s.AdminKey = ""
	assert.Equal(t, http.StatusForbidden, post(t, ts.URL+"/api/v1/stop", "", "").StatusCode)
	assert.Equal(t, engine.StateIdle, s.Session.State())
}

// openStream connects to the SSE endpoint; the response arrives once the
// handler has subscribed and flushed its catch-up.
func openStream(t *testing.T, ts *httptest.Server) *http.Response {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	return resp
}

// readStream collects step numbers until the finished event, which it returns.
func readStream(t *testing.T, resp *http.Response) ([]int, map[string]any) {
	t.Helper()
	var steps []int
	event := ""
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		data, isData := strings.CutPrefix(line, "data: ")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case isData && event == "step":
			var e engine.TraceEntry
			require.NoError(t, json.Unmarshal([]byte(data), &e))
			steps = append(steps, e.Step)
		case isData && event == "finished":
			var fin map[string]any
			require.NoError(t, json.Unmarshal([]byte(data), &fin))
			return steps, fin
		}
	}
	t.Fatalf("stream ended without a finished event: %v", sc.Err())
	return nil, nil
}

func TestStreamCatchUpAndLive(t *testing.T) {
	s, ts := newTestServer(t, 60)
	for i := 0; i < 55; i++ {
		_, err := s.Session.Step()
		require.NoError(t, err)
	}

	resp := openStream(t, ts)
	go func() {
		_ = s.Session.Run(context.Background())
	}()

	steps, fin := readStream(t, resp)
	require.Len(t, steps, 55)
	for i, st := range steps {
		assert.Equal(t, 5+i, st)
	}
	assert.Equal(t, 60.0, fin["steps"])
	assert.Equal(t, "finished", fin["state"])
}

func TestStreamEndsOnStop(t *testing.T) {
	s, ts := newTestServer(t, 1000)
	_, err := s.Session.Step()
	require.NoError(t, err)

	resp := openStream(t, ts)
	start := time.Now()
	assert.Equal(t, http.StatusOK, post(t, ts.URL+"/api/v1/stop", testKey, "").StatusCode)

	steps, fin := readStream(t, resp)
	assert.Equal(t, []int{0}, steps)
	assert.Equal(t, 1.0, fin["steps"])
	assert.Less(t, time.Since(start), time.Second)
}

func TestStreamAfterFinish(t *testing.T) {
	s, ts := newTestServer(t, 3)
	require.NoError(t, s.Session.Run(context.Background()))

	steps, fin := readStream(t, openStream(t, ts))
	assert.Equal(t, []int{0, 1, 2}, steps)
	assert.Equal(t, 3.0, fin["steps"])
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))
	assert.Equal(t, 61, rl.RetryAfter("a"))

	now = now.Add(time.Minute)
	assert.True(t, rl.Allow("a"))
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", clientIP(r))
	r.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.1")
	assert.Equal(t, "1.2.3.4", clientIP(r))
}
