// ABOUTME: Voice server wiring the webhook dispatcher, realtime relay, and asset responder
// ABOUTME: Owns the bus and the HTTP lifecycle from Listen through graceful Shutdown

package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/youngnishant/fonoster/internal/auth"
	"github.com/youngnishant/fonoster/internal/metrics"
)

// maxWebhookBodyBytes caps an inbound call event payload.
const maxWebhookBodyBytes = 1 << 20

// inboundSchemaJSON is the shape every webhook body must satisfy before the
// handler runs: a JSON object whose envelope fields, when present, are
// strings. Payload semantics beyond that are the engine's business.
const inboundSchemaJSON = `{
	"type": "object",
	"properties": {
		"event": {"type": "string"},
		"callRef": {"type": "string"},
		"from": {"type": "string"},
		"to": {"type": "string"},
		"direction": {"type": "string"}
	}
}`

// Handler is the user-supplied function invoked once per inbound call event.
// It runs to completion, including any WaitForEvent suspensions, before the
// HTTP response is finalized.
type Handler func(ctx context.Context, req *Request, res *Response)

// CallRecord summarizes one handled webhook exchange.
type CallRecord struct {
	RequestID  string
	CallRef    string
	EventName  string
	Actions    []Action
	ReceivedAt time.Time
	Duration   time.Duration
	Status     string
}

// Statuses recorded for webhook exchanges.
const (
	CallStatusOK     = "ok"
	CallStatusFailed = "failed"
)

// CallRecorder persists call detail records. Recording happens off the
// request path; failures are logged and never surface to the exchange.
type CallRecorder interface {
	Record(ctx context.Context, rec CallRecord) error
}

// Server bridges the webhook dispatcher, the realtime relay, and the static
// asset responder over one listener. It owns the process-wide event Bus.
type Server struct {
	cfg      Config
	handler  Handler
	bus      *Bus
	logger   *slog.Logger
	synth    Synthesizer
	recorder CallRecorder
	metrics  *metrics.Metrics
	schema   *jsonschema.Schema
	upgrader websocket.Upgrader

	httpServer *http.Server

	connMu sync.Mutex
	conns  map[*websocket.Conn]struct{}
}

// Option customizes a Server beyond its Config.
type Option func(*Server)

// WithLogger sets the base logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSynthesizer wires a speech synthesizer; Say renders through it into
// the assets directory instead of emitting a literal say action.
func WithSynthesizer(synth Synthesizer) Option {
	return func(s *Server) { s.synth = synth }
}

// WithRecorder wires a call detail recorder for handled webhook exchanges.
func WithRecorder(rec CallRecorder) Option {
	return func(s *Server) { s.recorder = rec }
}

// NewServer validates cfg (after applying defaults) and assembles the
// server. The Bus is created here and lives until Shutdown.
func NewServer(cfg Config, handler Handler, opts ...Option) (*Server, error) {
	if handler == nil {
		return nil, errors.New("handler must not be nil")
	}

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}

	schema, err := jsonschema.CompileString("inbound.json", inboundSchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("compiling inbound payload schema: %w", err)
	}

	s := &Server{
		cfg:     cfg,
		handler: handler,
		logger:  slog.Default(),
		schema:  schema,
		metrics: metrics.New(),
		conns:   make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "voice-server")

	s.bus = NewBus(s.logger)
	s.metrics.RegisterBusDropped(func() float64 {
		return float64(s.bus.Dropped())
	})

	s.httpServer = &http.Server{
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// Bus returns the server's event bus. Useful for publishing synthetic events
// when testing handlers.
func (s *Server) Bus() *Bus {
	return s.bus
}

// Handler returns the HTTP handler, for tests and for embedding the voice
// surface into an existing server.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) buildRouter() http.Handler {
	router := chi.NewRouter()
	router.Use(requestID)

	router.Group(func(r chi.Router) {
		r.Use(accessLog(s.logger))

		r.Get("/healthz", s.handleHealth)
		r.Get("/tts/{file}", s.handleAsset)
		if s.cfg.EnableMetrics {
			r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
		}
		r.Method(http.MethodPost, s.cfg.Path, s.webhookEndpoint())
	})

	// The relay stays outside the access log group: the status recorder
	// does not implement http.Hijacker, which the upgrade needs.
	router.Get(s.cfg.Path, s.handleRelay)

	return router
}

// webhookEndpoint wraps the dispatcher with bearer auth when configured.
func (s *Server) webhookEndpoint() http.Handler {
	endpoint := http.Handler(http.HandlerFunc(s.handleWebhook))
	if s.cfg.AuthSecret == "" {
		return endpoint
	}

	verifier := auth.NewVerifier([]byte(s.cfg.AuthSecret))
	inner := auth.Middleware(verifier, s.logger)(endpoint)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		inner.ServeHTTP(sw, r)
		if sw.status == http.StatusUnauthorized {
			s.metrics.WebhookRequests.WithLabelValues(metrics.OutcomeUnauthorized).Inc()
		}
	})
}

// handleWebhook is the dispatcher: parse and validate the body, build a
// fresh Response bound to the shared bus, run the handler to completion,
// then finalize the HTTP exchange exactly once.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	reqID, _ := RequestIDFrom(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		s.metrics.WebhookRequests.WithLabelValues(metrics.OutcomeBadRequest).Inc()
		writeJSONError(w, http.StatusBadRequest, "reading request body")
		return
	}

	if err := s.validateInbound(body); err != nil {
		s.metrics.WebhookRequests.WithLabelValues(metrics.OutcomeBadRequest).Inc()
		s.logger.Debug("rejected webhook payload", "request_id", reqID, "error", err)
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	req, err := parseRequest(body)
	if err != nil {
		s.metrics.WebhookRequests.WithLabelValues(metrics.OutcomeBadRequest).Inc()
		writeJSONError(w, http.StatusBadRequest, "malformed call event payload")
		return
	}

	res := newResponse(s.bus, s.synth, s.metrics, s.logger)

	s.metrics.WebhookInflight.Inc()
	panicked := s.invokeHandler(r.Context(), req, res)
	s.metrics.WebhookInflight.Dec()
	res.close()

	status := CallStatusOK
	if panicked {
		status = CallStatusFailed
		s.metrics.WebhookRequests.WithLabelValues(metrics.OutcomeHandlerPanic).Inc()
		writeJSONError(w, http.StatusInternalServerError, "handler failure")
	} else {
		s.metrics.WebhookRequests.WithLabelValues(metrics.OutcomeOK).Inc()
		writeJSON(w, http.StatusOK, map[string]any{"actions": res.Actions()})
	}

	if s.recorder != nil {
		go s.recordCall(CallRecord{
			RequestID:  reqID,
			CallRef:    req.CallRef,
			EventName:  req.EventName,
			Actions:    res.Actions(),
			ReceivedAt: start,
			Duration:   time.Since(start),
			Status:     status,
		})
	}
}

// invokeHandler runs the user handler, catching panics at the dispatcher
// boundary so the HTTP exchange always completes.
func (s *Server) invokeHandler(ctx context.Context, req *Request, res *Response) (panicked bool) {
	defer func() {
		if rec := recover(); rec != nil {
			panicked = true
			reqID, _ := RequestIDFrom(ctx)
			s.logger.Error("handler panicked",
				"request_id", reqID,
				"call_ref", req.CallRef,
				"panic", rec,
				"stack", string(debug.Stack()))
		}
	}()
	s.handler(ctx, req, res)
	return false
}

// validateInbound checks the body is JSON satisfying the inbound schema.
func (s *Server) validateInbound(body []byte) error {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("malformed JSON body: %w", err)
	}
	if err := s.schema.Validate(doc); err != nil {
		return fmt.Errorf("invalid call event payload: %w", err)
	}
	return nil
}

// recordCall persists one call detail record off the request path.
func (s *Server) recordCall(rec CallRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.recorder.Record(ctx, rec); err != nil {
		s.logger.Warn("recording call", "call_ref", rec.CallRef, "error", err)
	}
}

// handleHealth returns 200 OK if the server is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// Run binds the configured address and serves until ctx is cancelled or the
// server fails. A bind failure is returned immediately; after ctx
// cancellation the server shuts down gracefully within ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Bind, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("voice server listening",
			"addr", ln.Addr().String(),
			"path", s.cfg.Path)
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		s.logger.Error("server error", "error", serverErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	shutdownErr := s.Shutdown(shutdownCtx)

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// Shutdown stops the server. Closing the bus first releases handlers
// suspended in WaitForEvent so the HTTP drain below can finish within its
// deadline; relay clients get a going-away close frame.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down voice server")

	s.bus.Close()
	s.closeRelayConns()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
