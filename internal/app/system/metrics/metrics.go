// Package metrics exposes Prometheus instruments for board cycles, backend
// queries and write actions.
package metrics

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/dalemusser/stratacast/internal/app/system/aggregate"
	"github.com/dalemusser/stratacast/internal/app/system/backend"
	"github.com/dalemusser/stratacast/internal/app/system/board"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stratacast"

// Metrics owns a private registry so tests can build independent instances.
type Metrics struct {
	reg *prometheus.Registry

	cycles   *prometheus.CounterVec
	requests *prometheus.HistogramVec
	failures *prometheus.CounterVec
	actions  *prometheus.CounterVec
	boards   prometheus.Gauge
}

// New creates and registers every instrument, plus the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Settled fetch cycles by page and outcome.",
		}, []string{"page", "outcome"}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_seconds",
			Help:      "Latency of backend queries by page and view-model key.",
			Buckets:   []float64{.025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"page", "key"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_request_failures_total",
			Help:      "Failed backend queries by page, key and HTTP status (0 for transport errors).",
		}, []string{"page", "key", "status"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_actions_total",
			Help:      "Retrain and switch actions by kind and outcome.",
		}, []string{"kind", "outcome"}),
		boards: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "boards",
			Help:      "Live boards across all visitors.",
		}),
	}
	m.reg.MustRegister(
		m.cycles, m.requests, m.failures, m.actions, m.boards,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// ObserveCycle counts one settled board cycle.
func (m *Metrics) ObserveCycle(ev board.Event) {
	m.cycles.WithLabelValues(ev.Page, string(ev.Outcome)).Inc()
}

// QueryObserver returns an aggregate observer that records latency and
// failures under page.
func (m *Metrics) QueryObserver(page string) aggregate.Observer {
	return func(o aggregate.Outcome) {
		m.requests.WithLabelValues(page, o.Key).Observe(o.Duration.Seconds())
		if o.Err != nil {
			m.failures.WithLabelValues(page, o.Key, statusLabel(o.Err)).Inc()
		}
	}
}

// ObserveAction counts one finished write action.
func (m *Metrics) ObserveAction(kind, outcome string) {
	m.actions.WithLabelValues(kind, outcome).Inc()
}

// SetBoards records the number of live boards.
func (m *Metrics) SetBoards(n int) {
	m.boards.Set(float64(n))
}

func statusLabel(err error) string {
	var re *backend.RequestError
	if errors.As(err, &re) {
		return strconv.Itoa(re.Status)
	}
	return "0"
}
