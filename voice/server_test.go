// ABOUTME: HTTP-level tests for the webhook dispatcher, relay, and asset routes
// ABOUTME: Exercises the full router via httptest with real WebSocket clients

package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youngnishant/fonoster/internal/auth"
)

func newTestServer(t *testing.T, cfg Config, handler Handler, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()

	if cfg.AssetsDir == "" {
		cfg.AssetsDir = t.TempDir()
	}

	srv, err := NewServer(cfg, handler, opts...)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.bus.Close()
	})
	return srv, ts
}

func postJSON(t *testing.T, url, body string, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, buf
}

func decodeActions(t *testing.T, body []byte) []Action {
	t.Helper()
	var payload struct {
		Actions []Action `json:"actions"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	return payload.Actions
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestNewServer_RequiresHandler(t *testing.T) {
	_, err := NewServer(Config{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler")
}

func TestNewServer_RejectsInvalidConfig(t *testing.T) {
	noop := func(context.Context, *Request, *Response) {}

	_, err := NewServer(Config{Port: -1}, noop)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid server config")
}

func TestServer_WebhookReturnsActions(t *testing.T) {
	gotReq := make(chan *Request, 1)
	handler := func(ctx context.Context, req *Request, res *Response) {
		gotReq <- req
		require.NoError(t, res.Answer())
		require.NoError(t, res.Say(ctx, "welcome"))
	}
	_, ts := newTestServer(t, Config{}, handler)

	resp, body := postJSON(t, ts.URL+"/",
		`{"event":"call.start","callRef":"call-1","from":"+15550100","to":"+15550111","direction":"inbound"}`, nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))

	actions := decodeActions(t, body)
	require.Len(t, actions, 2)
	assert.Equal(t, VerbAnswer, actions[0].Verb)
	assert.Equal(t, VerbSay, actions[1].Verb)
	assert.Equal(t, "welcome", actions[1].Params["text"])

	req := <-gotReq
	assert.Equal(t, "call.start", req.EventName)
	assert.Equal(t, "call-1", req.CallRef)
	assert.Equal(t, "+15550100", req.From)
	assert.Equal(t, "+15550111", req.To)
	assert.Equal(t, "inbound", req.Direction)
}

func TestServer_WebhookEchoesSuppliedRequestID(t *testing.T) {
	handler := func(context.Context, *Request, *Response) {}
	_, ts := newTestServer(t, Config{}, handler)

	resp, _ := postJSON(t, ts.URL+"/", `{}`, map[string]string{"X-Request-Id": "req-42"})
	assert.Equal(t, "req-42", resp.Header.Get("X-Request-Id"))
}

func TestServer_WebhookRejectsMalformedBody(t *testing.T) {
	var handlerRan atomic.Bool
	handler := func(context.Context, *Request, *Response) {
		handlerRan.Store(true)
	}
	_, ts := newTestServer(t, Config{}, handler)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"event":`},
		{"array body", `[1,2,3]`},
		{"scalar body", `"call.start"`},
		{"typed envelope violation", `{"event":42}`},
		{"oversized body", `{"event":"` + strings.Repeat("a", 2<<20) + `"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := postJSON(t, ts.URL+"/", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

			var errBody map[string]string
			require.NoError(t, json.Unmarshal(body, &errBody))
			assert.NotEmpty(t, errBody["error"])
		})
	}

	assert.False(t, handlerRan.Load(), "handler must not run for rejected bodies")
}

func TestServer_HandlerPanicReturns500(t *testing.T) {
	var calls atomic.Int64
	handler := func(ctx context.Context, req *Request, res *Response) {
		if calls.Add(1) == 1 {
			_ = res.Answer()
			panic("boom")
		}
		_ = res.Hangup()
	}
	_, ts := newTestServer(t, Config{}, handler)

	resp, body := postJSON(t, ts.URL+"/", `{"callRef":"call-panic"}`, nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var errBody map[string]string
	require.NoError(t, json.Unmarshal(body, &errBody))
	assert.Equal(t, "handler failure", errBody["error"])

	// The server survives and keeps dispatching.
	resp, respBody := postJSON(t, ts.URL+"/", `{"callRef":"call-next"}`, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	actions := decodeActions(t, respBody)
	require.Len(t, actions, 1)
	assert.Equal(t, VerbHangup, actions[0].Verb)
}

func TestServer_ConcurrentWebhooksGetIndependentResponses(t *testing.T) {
	firstIn := make(chan struct{})
	release := make(chan struct{})

	handler := func(ctx context.Context, req *Request, res *Response) {
		_ = res.Dial(req.CallRef)
		if req.CallRef == "call-a" {
			close(firstIn)
			<-release
		}
	}
	_, ts := newTestServer(t, Config{}, handler)

	type result struct {
		status  int
		actions []Action
	}
	aDone := make(chan result, 1)
	go func() {
		resp, body := postJSON(t, ts.URL+"/", `{"callRef":"call-a"}`, nil)
		aDone <- result{resp.StatusCode, decodeActions(t, body)}
	}()

	<-firstIn

	// Second request completes while the first handler is still in flight.
	resp, body := postJSON(t, ts.URL+"/", `{"callRef":"call-b"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	bActions := decodeActions(t, body)
	require.Len(t, bActions, 1)
	assert.Equal(t, "call-b", bActions[0].Params["destination"])

	close(release)

	select {
	case a := <-aDone:
		require.Equal(t, http.StatusOK, a.status)
		require.Len(t, a.actions, 1)
		assert.Equal(t, "call-a", a.actions[0].Params["destination"])
	case <-time.After(2 * time.Second):
		t.Fatal("first request never completed")
	}
}

func TestServer_GatherDigitEndToEnd(t *testing.T) {
	handler := func(ctx context.Context, req *Request, res *Response) {
		require.NoError(t, res.Answer())
		require.NoError(t, res.Gather(GatherOptions{MaxDigits: 1}))

		event, err := res.WaitForEvent(ctx, TypeIs("digit"), 5*time.Second)
		require.NoError(t, err)

		var digit struct {
			Digit string `json:"digit"`
		}
		require.NoError(t, event.DecodeLoose(&digit))
		require.NoError(t, res.Say(ctx, "you pressed "+digit.Digit))
	}
	srv, ts := newTestServer(t, Config{}, handler)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts)+"/", nil)
	require.NoError(t, err)
	defer conn.Close()

	done := make(chan []Action, 1)
	go func() {
		_, body := postJSON(t, ts.URL+"/", `{"event":"call.start","callRef":"call-ivr"}`, nil)
		done <- decodeActions(t, body)
	}()

	// Wait until the handler is suspended in WaitForEvent before pressing.
	waitForSubscribers(srv.bus, 1)

	err = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"digit","digit":"7","callRef":"call-ivr"}`))
	require.NoError(t, err)

	select {
	case actions := <-done:
		require.Len(t, actions, 3)
		assert.Equal(t, VerbAnswer, actions[0].Verb)
		assert.Equal(t, VerbGather, actions[1].Verb)
		assert.Equal(t, VerbSay, actions[2].Verb)
		assert.Equal(t, "you pressed 7", actions[2].Params["text"])
	case <-time.After(5 * time.Second):
		t.Fatal("webhook never completed")
	}
}

func TestServer_WaitTimeoutFallback(t *testing.T) {
	handler := func(ctx context.Context, req *Request, res *Response) {
		_, err := res.WaitForEvent(ctx, TypeIs("digit"), 50*time.Millisecond)
		require.ErrorIs(t, err, ErrWaitTimeout)
		_ = res.Say(ctx, "no input received")
		_ = res.Hangup()
	}
	_, ts := newTestServer(t, Config{}, handler)

	resp, body := postJSON(t, ts.URL+"/", `{"callRef":"call-silent"}`, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	actions := decodeActions(t, body)
	require.Len(t, actions, 2)
	assert.Equal(t, "no input received", actions[0].Params["text"])
	assert.Equal(t, VerbHangup, actions[1].Verb)
}

func TestServer_RelayRequiresUpgrade(t *testing.T) {
	handler := func(context.Context, *Request, *Response) {}
	_, ts := newTestServer(t, Config{}, handler)

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

func TestServer_RelayBroadcastsFramesVerbatim(t *testing.T) {
	handler := func(context.Context, *Request, *Response) {}
	srv, ts := newTestServer(t, Config{}, handler)

	ch, _ := srv.Bus().Subscribe(t.Context())

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts)+"/", nil)
	require.NoError(t, err)
	defer conn.Close()

	frame := `{"type":"speech","transcript":"hello there"}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))

	select {
	case event := <-ch:
		assert.Equal(t, frame, string(event.Payload))
		assert.Equal(t, "speech", event.Type())
		assert.NotEmpty(t, event.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("frame never reached the bus")
	}
}

func TestServer_AssetServedWithContentType(t *testing.T) {
	dir := t.TempDir()
	content := []byte("RIFFfakewavdata")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "greeting.wav"), content, 0o644))

	handler := func(context.Context, *Request, *Response) {}
	_, ts := newTestServer(t, Config{AssetsDir: dir}, handler)

	resp, err := http.Get(ts.URL + "/tts/greeting.wav")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/wav", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, content, body)
}

func TestServer_AssetMissingReturnsNotFound(t *testing.T) {
	handler := func(context.Context, *Request, *Response) {}
	_, ts := newTestServer(t, Config{}, handler)

	resp, err := http.Get(ts.URL + "/tts/missing.wav")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var errBody map[string]string
	require.NoError(t, json.Unmarshal(body, &errBody))
	assert.Contains(t, errBody["error"], "missing.wav")
}

func TestServer_AssetTraversalRejected(t *testing.T) {
	handler := func(context.Context, *Request, *Response) {}
	_, ts := newTestServer(t, Config{}, handler)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/tts/foo", nil)
	require.NoError(t, err)
	req.URL.Path = "/tts/.."

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_Healthz(t *testing.T) {
	handler := func(context.Context, *Request, *Response) {}
	_, ts := newTestServer(t, Config{}, handler)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "OK", string(body))
}

func TestServer_MetricsEndpoint(t *testing.T) {
	handler := func(context.Context, *Request, *Response) {}
	_, ts := newTestServer(t, Config{EnableMetrics: true}, handler)

	postJSON(t, ts.URL+"/", `{"callRef":"call-m"}`, nil)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(body)
	assert.Contains(t, text, `voice_webhook_requests_total{outcome="ok"} 1`)
	assert.Contains(t, text, "voice_webhook_inflight")
	assert.Contains(t, text, "voice_bus_dropped_total")
}

func TestServer_MetricsDisabledByDefault(t *testing.T) {
	handler := func(context.Context, *Request, *Response) {}
	_, ts := newTestServer(t, Config{}, handler)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_WebhookAuth(t *testing.T) {
	handler := func(ctx context.Context, req *Request, res *Response) {
		_ = res.Answer()
	}
	_, ts := newTestServer(t, Config{AuthSecret: "test-secret"}, handler)

	t.Run("missing token rejected", func(t *testing.T) {
		resp, _ := postJSON(t, ts.URL+"/", `{}`, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("garbage token rejected", func(t *testing.T) {
		resp, _ := postJSON(t, ts.URL+"/", `{}`, map[string]string{
			"Authorization": "Bearer not-a-jwt",
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("wrong secret rejected", func(t *testing.T) {
		token, err := auth.NewVerifier([]byte("other-secret")).Generate("engine", time.Hour)
		require.NoError(t, err)

		resp, _ := postJSON(t, ts.URL+"/", `{}`, map[string]string{
			"Authorization": "Bearer " + token,
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("valid token accepted", func(t *testing.T) {
		token, err := auth.NewVerifier([]byte("test-secret")).Generate("engine", time.Hour)
		require.NoError(t, err)

		resp, body := postJSON(t, ts.URL+"/", `{}`, map[string]string{
			"Authorization": "Bearer " + token,
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		actions := decodeActions(t, body)
		require.Len(t, actions, 1)
		assert.Equal(t, VerbAnswer, actions[0].Verb)
	})
}

func TestServer_ShutdownReleasesSuspendedHandlers(t *testing.T) {
	waitErr := make(chan error, 1)
	handler := func(ctx context.Context, req *Request, res *Response) {
		_, err := res.WaitForEvent(ctx, TypeIs("digit"), time.Minute)
		waitErr <- err
	}
	srv, ts := newTestServer(t, Config{}, handler)

	done := make(chan int, 1)
	go func() {
		resp, _ := postJSON(t, ts.URL+"/", `{"callRef":"call-stuck"}`, nil)
		done <- resp.StatusCode
	}()

	waitForSubscribers(srv.bus, 1)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(shutdownCtx))

	select {
	case err := <-waitErr:
		assert.ErrorIs(t, err, ErrBusClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("handler still suspended after shutdown")
	}

	select {
	case status := <-done:
		assert.Equal(t, http.StatusOK, status)
	case <-time.After(2 * time.Second):
		t.Fatal("webhook exchange never completed")
	}
}

func TestAudioContentType(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"a.wav", "audio/wav"},
		{"a.WAV", "audio/wav"},
		{"a.mp3", "audio/mpeg"},
		{"a.ogg", "audio/ogg"},
		{"a.txt", "application/octet-stream"},
		{"noext", "application/octet-stream"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, audioContentType(tt.name), tt.name)
	}
}

func TestValidAssetName(t *testing.T) {
	valid := []string{"greeting.wav", "abc123.mp3", "x"}
	for _, name := range valid {
		assert.True(t, validAssetName(name), name)
	}

	invalid := []string{"", ".", "..", "a/b.wav", `a\b.wav`, "../escape.wav"}
	for _, name := range invalid {
		assert.False(t, validAssetName(name), name)
	}
}

func TestServer_RunAndGracefulStop(t *testing.T) {
	handler := func(context.Context, *Request, *Response) {}
	srv, err := NewServer(Config{Bind: "127.0.0.1", Port: pickFreePort(t)}, handler)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() {
		runErr <- srv.Run(ctx)
	}()

	// Wait for the listener to come up.
	url := fmt.Sprintf("http://127.0.0.1:%d/healthz", srv.cfg.Port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()

	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func pickFreePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}
