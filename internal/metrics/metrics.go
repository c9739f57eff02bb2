// ABOUTME: Prometheus collectors for the voice server surfaces
// ABOUTME: Registry is owned per instance so tests never collide

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Webhook outcome label values.
const (
	OutcomeOK           = "ok"
	OutcomeBadRequest   = "bad_request"
	OutcomeUnauthorized = "unauthorized"
	OutcomeHandlerPanic = "handler_panic"
)

// Metrics bundles the voice server collectors behind one registry. Each
// server instance owns its own registry, so two servers in one process (or
// one per test) never fight over registration.
type Metrics struct {
	registry *prometheus.Registry

	WebhookRequests  *prometheus.CounterVec
	WebhookInflight  prometheus.Gauge
	RelayConnections prometheus.Counter
	RelayFrames      prometheus.Counter
	WaitTimeouts     prometheus.Counter
}

// New creates and registers the collector set.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		WebhookRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_webhook_requests_total",
			Help: "Total webhook requests by outcome",
		}, []string{"outcome"}),
		WebhookInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "voice_webhook_inflight",
			Help: "Webhook handlers currently executing",
		}),
		RelayConnections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voice_relay_connections_total",
			Help: "Total realtime relay connections accepted",
		}),
		RelayFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voice_relay_frames_total",
			Help: "Total frames received over the realtime relay",
		}),
		WaitTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voice_wait_timeouts_total",
			Help: "Total WaitForEvent calls that timed out",
		}),
	}
	m.registry.MustRegister(
		m.WebhookRequests,
		m.WebhookInflight,
		m.RelayConnections,
		m.RelayFrames,
		m.WaitTimeouts,
	)
	return m
}

// RegisterBusDropped exposes the bus drop counter. The bus keeps its own
// atomic count; a CounterFunc reads it at scrape time.
func (m *Metrics) RegisterBusDropped(count func() float64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "voice_bus_dropped_total",
		Help: "Total events dropped for slow bus subscribers",
	}, count))
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
