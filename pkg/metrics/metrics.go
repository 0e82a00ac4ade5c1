// Package metrics exposes the service's Prometheus metrics. Metrics
// implements vectorstore.Observer and is fed by the ingest pipeline and the
// RPC interceptors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/WessleyAI/ragqa/engine/domain"
)

const namespace = "ragqa"

// Metrics owns a private registry so tests and multiple instances never
// collide on the global one.
type Metrics struct {
	reg *prometheus.Registry

	opLatency    *prometheus.HistogramVec
	lookups      *prometheus.CounterVec
	dials        *prometheus.CounterVec
	stored       prometheus.Counter
	ingests      *prometheus.CounterVec
	rpcs         *prometheus.CounterVec
	breakerState prometheus.Gauge
}

// New creates the metric set and registers it, together with the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of coordinator, ingest and RPC operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "status"}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookups_total",
			Help:      "Lookups by outcome.",
		}, []string{"kind"}),
		dials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_dials_total",
			Help:      "Vector backend dial attempts.",
		}, []string{"status"}),
		stored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_stored_total",
			Help:      "Records written by successful bulk stores.",
		}),
		ingests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingests_total",
			Help:      "Ingested files by outcome.",
		}, []string{"outcome"}),
		rpcs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "gRPC requests by method and status code.",
		}, []string{"method", "code"}),
		breakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "embedder_breaker_state",
			Help:      "Embedder circuit breaker state (0 closed, 1 open, 2 half-open).",
		}),
	}
	m.reg.MustRegister(
		m.opLatency, m.lookups, m.dials, m.stored, m.ingests, m.rpcs, m.breakerState,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveDial implements vectorstore.Observer.
func (m *Metrics) ObserveDial(err error, elapsed time.Duration) {
	m.dials.WithLabelValues(status(err)).Inc()
	m.opLatency.WithLabelValues("dial", status(err)).Observe(elapsed.Seconds())
}

// ObserveLookup implements vectorstore.Observer.
func (m *Metrics) ObserveLookup(kind domain.LookupKind, elapsed time.Duration) {
	m.lookups.WithLabelValues(kind.String()).Inc()
	st := "success"
	if kind == domain.LookupInternalError {
		st = "error"
	}
	m.opLatency.WithLabelValues("lookup", st).Observe(elapsed.Seconds())
}

// ObserveStore implements vectorstore.Observer.
func (m *Metrics) ObserveStore(records int, err error, elapsed time.Duration) {
	if err == nil {
		m.stored.Add(float64(records))
	}
	m.opLatency.WithLabelValues("bulk_store", status(err)).Observe(elapsed.Seconds())
}

// ObserveIngest counts one ingested file.
func (m *Metrics) ObserveIngest(outcome string, elapsed time.Duration) {
	m.ingests.WithLabelValues(outcome).Inc()
	m.opLatency.WithLabelValues("ingest", outcome).Observe(elapsed.Seconds())
}

// ObserveRPC counts one gRPC request.
func (m *Metrics) ObserveRPC(method, code string, elapsed time.Duration) {
	m.rpcs.WithLabelValues(method, code).Inc()
	m.opLatency.WithLabelValues("rpc", code).Observe(elapsed.Seconds())
}

// SetBreakerState records the embedder breaker state.
func (m *Metrics) SetBreakerState(state int) {
	m.breakerState.Set(float64(state))
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
