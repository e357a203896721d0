package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"line2discord/internal/domain"
	"line2discord/internal/events"
	"line2discord/internal/line"
	"line2discord/internal/relay"
)

const testSecret = "test-channel-secret"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

type recordingRelay struct {
	mu      sync.Mutex
	batches [][]domain.InboundEvent
	hosts   []string
	ctxErr  error
}

func (r *recordingRelay) HandleBatch(ctx context.Context, evs []domain.InboundEvent, host string) relay.BatchResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, evs)
	r.hosts = append(r.hosts, host)
	r.ctxErr = ctx.Err()
	return relay.BatchResult{Sent: len(evs)}
}

func newTestServer(t *testing.T, mod func(*Config)) (*Server, *recordingRelay) {
	t.Helper()
	rr := &recordingRelay{}
	cfg := Config{
		ChannelSecret: testSecret,
		Relay:         rr,
		StatusPage:    true,
		MetricsPath:   "/metrics",
		Logger:        testLogger(),
	}
	if mod != nil {
		mod(&cfg)
	}
	return New(cfg), rr
}

const threeEvents = `{"destination":"Ubot","events":[
 {"type":"message","timestamp":1,"source":{"type":"user","userId":"U1"},"message":{"id":"1","type":"text","text":"a"}},
 {"type":"message","timestamp":2,"source":{"type":"group","groupId":"G1","userId":"U2"},"message":{"id":"2","type":"text","text":"b"}},
 {"type":"follow","timestamp":3,"source":{"type":"user","userId":"U3"}}
]}`

func signedRequest(body, secret string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Host = "relay.local:3000"
	req.Header.Set(line.SignatureHeader, line.Sign([]byte(body), secret))
	return req
}

func TestWebhook_RelaysAllEventsWithSingleOK(t *testing.T) {
	s, rr := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, signedRequest(threeEvents, testSecret))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	require.Len(t, rr.batches, 1)
	require.Len(t, rr.batches[0], 3)
	assert.Equal(t, domain.EventMessage, rr.batches[0][0].Type)
	assert.Equal(t, "G1", rr.batches[0][1].Source.ID)
	assert.Equal(t, domain.EventFollow, rr.batches[0][2].Type)
	assert.Equal(t, "relay.local:3000", rr.hosts[0])
	assert.NoError(t, rr.ctxErr)
}

func TestWebhook_BadSignatureDropped(t *testing.T) {
	s, rr := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, signedRequest(threeEvents, "wrong-secret"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rr.batches)
}

func TestWebhook_MissingSignatureDropped(t *testing.T) {
	s, rr := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(threeEvents))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rr.batches)
}

func TestWebhook_RejectModeReturns401(t *testing.T) {
	s, rr := newTestServer(t, func(c *Config) { c.RejectInvalidSignature = true })

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, signedRequest(threeEvents, "wrong-secret"))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rr.batches)
}

func TestWebhook_SkipSignature(t *testing.T) {
	var logs bytes.Buffer
	s, rr := newTestServer(t, func(c *Config) {
		c.SkipSignature = true
		c.ChannelSecret = ""
		c.Logger = slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelWarn}))
	})

	for range 2 {
		req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(threeEvents))
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	assert.Len(t, rr.batches, 2)
	assert.Equal(t, 2, strings.Count(logs.String(), "signature verification skipped"))
}

func TestWebhook_MalformedBodyStillOK(t *testing.T) {
	s, rr := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, signedRequest(`{not json`, testSecret))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rr.batches)
}

func TestWebhook_EmptyEventsVerification(t *testing.T) {
	s, rr := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, signedRequest(`{"destination":"U","events":[]}`, testSecret))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rr.batches)
}

func TestWebhook_OversizedBodyStillOK(t *testing.T) {
	s, rr := newTestServer(t, nil)

	body := `{"events":[],"pad":"` + strings.Repeat("x", MaxBodyBytes) + `"}`
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, signedRequest(body, testSecret))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rr.batches)
}

func TestWebhook_CustomPathAndProbe(t *testing.T) {
	s, rr := newTestServer(t, func(c *Config) { c.WebhookPath = "/line/hook" })

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/line/hook", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	req := signedRequest(threeEvents, testSecret)
	req.URL.Path = "/line/hook"
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, rr.batches, 1)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, signedRequest(threeEvents, testSecret))
	assert.NotEqual(t, http.StatusOK, rec.Code, "default path is not routed")
}

func TestStaticMedia(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "images"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "files"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "images", "img_1_2.jpg"), []byte("jpeg-bytes"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "files", "file_1_2.pdf"), []byte("%PDF"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "files", ".write-test-x"), []byte("ok"), 0o644))

	s, _ := newTestServer(t, func(c *Config) { c.MediaDir = dir })
	h := s.Handler()

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := get("/images/img_1_2.jpg")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "jpeg-bytes", rec.Body.String())

	rec = get("/files/file_1_2.pdf")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "%PDF", rec.Body.String())

	assert.Equal(t, http.StatusNotFound, get("/images/").Code)
	assert.Equal(t, http.StatusNotFound, get("/files/.write-test-x").Code)
	assert.Equal(t, http.StatusNotFound, get("/images/missing.jpg").Code)
}

type stubStats struct{}

func (stubStats) Stats(ctx context.Context) (int, int64, error) { return 7, 2048, nil }

type stubURLs struct{}

func (stubURLs) ConfiguredBase() string { return "" }
func (stubURLs) TunnelURL() string      { return "https://abc.ngrok.io" }

func TestStatusPageAndHealth(t *testing.T) {
	hist := events.NewHistory(10, testLogger())
	require.NoError(t, hist.Publish(context.Background(), "s", relay.RelayedEvent{EventType: "message", Outcome: "sent"}))

	s, _ := newTestServer(t, func(c *Config) {
		c.MediaStats = stubStats{}
		c.URLs = stubURLs{}
		c.History = hist
		c.ExposeEvents = true
		c.Version = "1.2.3"
	})
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "line2discord is running")
	assert.Contains(t, body, "7 files, 2048 bytes")
	assert.Contains(t, body, "https://abc.ngrok.io")
	assert.Contains(t, body, "Outcome:sent")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var health map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "1.2.3", health["version"])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events?limit=5", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var entries []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "s", entries[0]["topic"])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events?limit=x", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "line2discord_http_requests_total")
}

func TestEventHistoryHiddenByDefault(t *testing.T) {
	hist := events.NewHistory(10, testLogger())
	require.NoError(t, hist.Publish(context.Background(), "s", relay.RelayedEvent{
		EventType: "message",
		Sender:    "Alice Tanaka",
		SourceID:  "Cgroup-secret-id",
		Outcome:   "send_failed",
		Error:     "discord rejected payload",
	}))
	s, _ := newTestServer(t, func(c *Config) { c.History = hist })
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotContains(t, rec.Body.String(), "Alice Tanaka")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "line2discord is running")
	for _, secret := range []string{"Alice Tanaka", "Cgroup-secret-id", "discord rejected payload", "Recent events"} {
		assert.NotContains(t, body, secret)
	}
}

func TestStatusPageDisabled(t *testing.T) {
	s, _ := newTestServer(t, func(c *Config) { c.StatusPage = false })
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServe_GracefulShutdown(t *testing.T) {
	s, _ := newTestServer(t, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
