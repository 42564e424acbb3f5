package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pact_mock"

type Outcome string

const (
	OutcomeMatched    Outcome = "matched"
	OutcomeMismatched Outcome = "mismatched"
	OutcomeUnexpected Outcome = "unexpected"
)

// Metrics holds the collectors for mock server traffic on its own registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry     *prometheus.Registry
	requests     *prometheus.CounterVec
	duration     prometheus.Histogram
	servers      prometheus.Gauge
	pactFiles    *prometheus.CounterVec
	interactions prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests received by mock servers, by port and outcome.",
		}, []string{"port", "outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_matching_seconds",
			Help:      "Time spent matching a request against the registered interactions.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		servers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "servers",
			Help:      "Mock servers currently listening.",
		}),
		interactions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "interactions",
			Help:      "Interactions served by the listening mock servers.",
		}),
		pactFiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pact_files_written_total",
			Help:      "Pact file writes, by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		m.requests,
		m.duration,
		m.servers,
		m.interactions,
		m.pactFiles,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveRequest(port int, outcome Outcome, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(strconv.Itoa(port), string(outcome)).Inc()
	m.duration.Observe(elapsed.Seconds())
}

func (m *Metrics) ServerStarted(interactions int) {
	if m == nil {
		return
	}
	m.servers.Inc()
	m.interactions.Add(float64(interactions))
}

func (m *Metrics) ServerStopped(port, interactions int) {
	if m == nil {
		return
	}
	m.servers.Dec()
	m.interactions.Sub(float64(interactions))
	p := strconv.Itoa(port)
	for _, o := range []Outcome{OutcomeMatched, OutcomeMismatched, OutcomeUnexpected} {
		m.requests.DeleteLabelValues(p, string(o))
	}
}

func (m *Metrics) PactFileWritten(err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.pactFiles.WithLabelValues(result).Inc()
}
