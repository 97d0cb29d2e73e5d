package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Orchestration outcome labels.
const (
	OutcomePromptRequested = "prompt_requested"
	OutcomeTimedOut        = "timed_out"
	OutcomeFailed          = "failed"
	OutcomeCancelled       = "cancelled"
	OutcomeRejected        = "rejected"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	registry       *prometheus.Registry
	orchestrations *prometheus.CounterVec
	polls          *prometheus.CounterVec
	connect        prometheus.Histogram
}

// NewMetrics registers collectors on a private registry.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		orchestrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orchestrations_total",
			Help:      "Start-call orchestration runs by outcome.",
		}, []string{"outcome"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_polls_total",
			Help:      "Call state polls by observation.",
		}, []string{"observation"}),
		connect: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "connect_seconds",
			Help:      "Time from call creation request to observed connected state.",
			Buckets:   []float64{1, 2, 4, 6, 10, 15, 20, 30, 45, 60, 90},
		}),
	}
	m.registry.MustRegister(
		m.orchestrations,
		m.polls,
		m.connect,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveOutcome counts a finished run.
func (m *Metrics) ObserveOutcome(outcome string) {
	if m == nil {
		return
	}
	m.orchestrations.WithLabelValues(outcome).Inc()
}

// ObservePoll counts one state poll.
func (m *Metrics) ObservePoll(observation string) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(observation).Inc()
}

// ObserveConnect records the time taken to reach the connected state.
func (m *Metrics) ObserveConnect(d time.Duration) {
	if m == nil {
		return
	}
	m.connect.Observe(d.Seconds())
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
