// Package metrics collects Prometheus metrics for the API client and the
// session manager and serves them for scraping.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/me/visium/pkg/model"
)

// Collector records client activity. It satisfies api.Recorder.
type Collector struct {
	requests       *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	transportFails prometheus.Counter
	sessionState   *prometheus.GaugeVec
	transitions    prometheus.Counter
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "visium_api_requests_total",
			Help: "API requests by endpoint and HTTP status.",
		}, []string{"endpoint", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "visium_api_request_duration_seconds",
			Help:    "API request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		transportFails: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "visium_api_transport_errors_total",
			Help: "API requests that failed before a response was received.",
		}),
		sessionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "visium_session_state",
			Help: "1 for the current session state, 0 otherwise.",
		}, []string{"state"}),
		transitions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "visium_session_transitions_total",
			Help: "Session state changes observed.",
		}),
	}

	reg.MustRegister(
		c.requests,
		c.latency,
		c.transportFails,
		c.sessionState,
		c.transitions,
	)

	return c
}

// ObserveRequest records a completed request. status 0 means no response.
func (c *Collector) ObserveRequest(endpoint string, status int, elapsed time.Duration) {
	if status == 0 {
		c.transportFails.Inc()
	}
	c.requests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	c.latency.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// RecordSessionState marks state as current.
func (c *Collector) RecordSessionState(state model.AuthState) {
	for _, s := range []model.AuthState{
		model.AuthStateLoading,
		model.AuthStateAuthenticated,
		model.AuthStateUnauthenticated,
	} {
		v := 0.0
		if s == state {
			v = 1
		}
		c.sessionState.WithLabelValues(s.String()).Set(v)
	}
	c.transitions.Inc()
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Routes serves Handler at /metrics.
func Routes(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
