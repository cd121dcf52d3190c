// Package metrics holds the prometheus collectors for the sync agent and the
// HTTP API.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tinytelemetry/adpulse/internal/model"
)

const namespace = "adpulse"

// Refresh tracks coordinator attempts per source.
type Refresh struct {
	reg      prometheus.Registerer
	attempts *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight *prometheus.GaugeVec
	paused   *prometheus.GaugeVec
}

// NewRefresh creates and registers the refresh collectors.
func NewRefresh(reg prometheus.Registerer) *Refresh {
	m := &Refresh{
		reg: reg,
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refresh_attempts_total",
				Help:      "Settled refresh attempts by source and outcome.",
			},
			[]string{"source", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "refresh_duration_seconds",
				Help:      "Fetch latency of settled refresh attempts.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1 ms to ~16 seconds
			},
			[]string{"source"},
		),
		inFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "refresh_in_flight",
				Help:      "Refresh attempts currently in flight.",
			},
			[]string{"source"},
		),
		paused: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "refresh_paused",
				Help:      "1 when automatic refresh is paused for the source.",
			},
			[]string{"source"},
		),
	}
	reg.MustRegister(m.attempts, m.duration, m.inFlight, m.paused)
	return m
}

// ObserveSync records a settled attempt.
func (m *Refresh) ObserveSync(rec model.SyncRecord) {
	m.attempts.WithLabelValues(rec.Source, rec.Outcome).Inc()
	if rec.Outcome != model.OutcomeDiscarded {
		m.duration.WithLabelValues(rec.Source).Observe(rec.Duration.Seconds())
	}
}

// SetStatus mirrors the coordinator's loading and pause state.
func (m *Refresh) SetStatus(s model.SourceStatus) {
	m.inFlight.WithLabelValues(s.Name).Set(float64(s.InFlight))
	m.paused.WithLabelValues(s.Name).Set(boolGauge(s.Paused))
}

// RegisterStaleness exposes seconds since the last successful sync of a
// source. The value is computed on every scrape.
func (m *Refresh) RegisterStaleness(source string, secondsAgo func() float64) (prometheus.GaugeFunc, error) {
	g := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "refresh_staleness_seconds",
			Help:        "Seconds since the last successful refresh; NaN before the first one.",
			ConstLabels: prometheus.Labels{"source": source},
		},
		secondsAgo,
	)
	if err := m.reg.Register(g); err != nil {
		return nil, err
	}
	return g, nil
}

// HTTP tracks API requests.
type HTTP struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewHTTP creates and registers the HTTP collectors.
func NewHTTP(reg prometheus.Registerer) *HTTP {
	m := &HTTP{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route, method and status code.",
			},
			[]string{"route", "method", "code"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_latency_seconds",
				Help:      "Request latency in seconds by route and method.",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
			[]string{"route", "method"},
		),
	}
	reg.MustRegister(m.requests, m.latency)
	return m
}

// Observe records one served request.
func (m *HTTP) Observe(route, method string, code int, elapsed time.Duration) {
	m.requests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.latency.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
