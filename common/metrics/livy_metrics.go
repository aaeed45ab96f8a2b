package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "livy_notebook"
)

var (
	ErrMetricsAlreadyRegistered = errors.New("livy metrics are already registered with that registry")
)

// LivyMetrics holds the Prometheus metrics recorded by the gateway client, sessions and the session registry.
//
// All methods are safe to call on a nil *LivyMetrics, in which case nothing is recorded.
type LivyMetrics struct {
	// RequestsCounterVec counts every HTTP attempt made against the gateway.
	//
	// This metric requires the following labels:
	//
	// - "method": the HTTP method.
	//
	// - "route": the templated gateway route (e.g., "/sessions/{id}/statements").
	//
	// - "code": the HTTP status code, or "network_error" if no response was received.
	RequestsCounterVec *prometheus.CounterVec

	// RetriesCounterVec counts retries, labelled by "method" and "route".
	RetriesCounterVec *prometheus.CounterVec

	// RequestLatencyMillisecondsVec is the latency of a single attempt, labelled by "method" and "route".
	RequestLatencyMillisecondsVec *prometheus.HistogramVec

	// RegisteredSessionsGauge is the number of sessions currently held by the session registry.
	RegisteredSessionsGauge prometheus.Gauge

	// SessionStartupLatencySecondsHistogram is the time between the creation request and the session becoming healthy.
	SessionStartupLatencySecondsHistogram prometheus.Histogram

	// SessionStartupFailuresCounter counts sessions that never became healthy.
	SessionStartupFailuresCounter prometheus.Counter

	// StatementsCounterVec counts finished statements, labelled by session "kind" and final "state".
	StatementsCounterVec *prometheus.CounterVec

	// StatementLatencyMillisecondsVec is the submit-to-final-state latency of statements, labelled by "kind".
	StatementLatencyMillisecondsVec *prometheus.HistogramVec

	// HeartbeatFailuresCounter counts heartbeat refreshes that failed.
	HeartbeatFailuresCounter prometheus.Counter
}

// NewLivyMetrics creates the metrics and registers them with the given prometheus.Registerer.
//
// If registerer is nil, the metrics are created but not registered anywhere.
func NewLivyMetrics(registerer prometheus.Registerer) (*LivyMetrics, error) {
	m := &LivyMetrics{}

	m.RequestsCounterVec = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gateway_requests_total",
		Help:      "The number of HTTP attempts made against the gateway, including retries.",
	}, []string{"method", "route", "code"})

	m.RetriesCounterVec = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gateway_retries_total",
		Help:      "The number of times a request to the gateway was retried.",
	}, []string{"method", "route"})

	m.RequestLatencyMillisecondsVec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "gateway_request_latency_milliseconds",
		Help:      "The latency, in milliseconds, of a single HTTP attempt against the gateway.",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10e3, 30e3, 60e3},
	}, []string{"method", "route"})

	m.RegisteredSessionsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "registered_sessions",
		Help:      "The number of sessions currently held by the session registry.",
	})

	m.SessionStartupLatencySecondsHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "session_startup_latency_seconds",
		Help:      "The time, in seconds, between submitting a session and the session becoming idle or busy.",
		Buckets:   []float64{1, 2.5, 5, 10, 15, 30, 45, 60, 90, 120, 300},
	})

	m.SessionStartupFailuresCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_startup_failures_total",
		Help:      "The number of sessions that timed out or reached a terminal status while starting.",
	})

	m.StatementsCounterVec = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "statements_total",
		Help:      "The number of statements that reached a final state.",
	}, []string{"kind", "state"})

	m.StatementLatencyMillisecondsVec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "statement_latency_milliseconds",
		Help:      "The time, in milliseconds, between submitting a statement and the statement reaching a final state.",
		Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10e3, 30e3, 60e3, 300e3, 900e3},
	}, []string{"kind"})

	m.HeartbeatFailuresCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "heartbeat_failures_total",
		Help:      "The number of heartbeat refreshes that failed.",
	})

	if registerer == nil {
		return m, nil
	}

	collectors := []prometheus.Collector{
		m.RequestsCounterVec,
		m.RetriesCounterVec,
		m.RequestLatencyMillisecondsVec,
		m.RegisteredSessionsGauge,
		m.SessionStartupLatencySecondsHistogram,
		m.SessionStartupFailuresCounter,
		m.StatementsCounterVec,
		m.StatementLatencyMillisecondsVec,
		m.HeartbeatFailuresCounter,
	}

	for _, collector := range collectors {
		if err := registerer.Register(collector); err != nil {
			var alreadyRegistered prometheus.AlreadyRegisteredError
			if errors.As(err, &alreadyRegistered) {
				return nil, ErrMetricsAlreadyRegistered
			}

			return nil, err
		}
	}

	return m, nil
}

// ObserveRequest records one HTTP attempt. A status of 0 means that no response was received.
func (m *LivyMetrics) ObserveRequest(method string, route string, status int, latency time.Duration) {
	if m == nil {
		return
	}

	code := "network_error"
	if status > 0 {
		code = strconv.Itoa(status)
	}

	m.RequestsCounterVec.With(prometheus.Labels{"method": method, "route": route, "code": code}).Inc()
	m.RequestLatencyMillisecondsVec.
		With(prometheus.Labels{"method": method, "route": route}).
		Observe(float64(latency.Milliseconds()))
}

func (m *LivyMetrics) ObserveRetry(method string, route string) {
	if m == nil {
		return
	}

	m.RetriesCounterVec.With(prometheus.Labels{"method": method, "route": route}).Inc()
}

func (m *LivyMetrics) SetRegisteredSessions(n int) {
	if m == nil {
		return
	}

	m.RegisteredSessionsGauge.Set(float64(n))
}

// ObserveSessionStartup records the outcome of starting a session.
func (m *LivyMetrics) ObserveSessionStartup(latency time.Duration, succeeded bool) {
	if m == nil {
		return
	}

	if !succeeded {
		m.SessionStartupFailuresCounter.Inc()
		return
	}

	m.SessionStartupLatencySecondsHistogram.Observe(latency.Seconds())
}

func (m *LivyMetrics) ObserveStatement(kind string, state string, latency time.Duration) {
	if m == nil {
		return
	}

	m.StatementsCounterVec.With(prometheus.Labels{"kind": kind, "state": state}).Inc()
	m.StatementLatencyMillisecondsVec.With(prometheus.Labels{"kind": kind}).Observe(float64(latency.Milliseconds()))
}

func (m *LivyMetrics) ObserveHeartbeatFailure() {
	if m == nil {
		return
	}

	m.HeartbeatFailuresCounter.Inc()
}
