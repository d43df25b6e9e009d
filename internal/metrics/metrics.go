// Package metrics holds Prometheus collectors of the service
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fireshare"

// Outcome label values
const (
	OutcomeOK          = "ok"
	OutcomeAuthFailure = "auth_failure"
	OutcomeTransport   = "transport"
	OutcomeTimedOut    = "timed_out"
	OutcomeRejected    = "rejected"
	OutcomeError       = "error"
)

type Metrics struct {
	registry *prometheus.Registry

	steamCalls      *prometheus.CounterVec
	steamDuration   *prometheus.HistogramVec
	qrLogins        *prometheus.CounterVec
	lenderResolves  *prometheus.CounterVec
	remoteMutations *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		steamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steam_calls_total",
			Help:      "Calls to Steam web api by method and outcome.",
		}, []string{"method", "outcome"}),
		steamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "steam_call_duration_seconds",
			Help:      "Duration of Steam web api calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		qrLogins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "qr_logins_total",
			Help:      "Finished QR login attempts by outcome.",
		}, []string{"outcome"}),
		lenderResolves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lender_resolves_total",
			Help:      "Device authorization resolutions of lenders by outcome.",
		}, []string{"outcome"}),
		remoteMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steam_mutations_total",
			Help:      "Changes of Steam sharing state by kind.",
		}, []string{"kind"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.steamCalls,
		m.steamDuration,
		m.qrLogins,
		m.lenderResolves,
		m.remoteMutations,
	)

	return m
}

// Nil receiver is allowed for all methods: metrics are optional

func (m *Metrics) ObserveSteamCall(method string, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.steamCalls.WithLabelValues(method, outcome).Inc()
	m.steamDuration.WithLabelValues(method).Observe(took.Seconds())
}

func (m *Metrics) QRLogin(outcome string) {
	if m == nil {
		return
	}
	m.qrLogins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) LenderResolved(outcome string) {
	if m == nil {
		return
	}
	m.lenderResolves.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RemoteMutation(kind string) {
	if m == nil {
		return
	}
	m.remoteMutations.WithLabelValues(kind).Inc()
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
