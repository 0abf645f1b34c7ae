// Package metrics provides Prometheus metrics for the studio server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors of one registry. Each server gets its own
// registry so tests can build several without clashing.
type Metrics struct {
	registry *prometheus.Registry

	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	ErrorsTotal       *prometheus.CounterVec

	HTTPRequestsTotal *prometheus.CounterVec
	RunsInFlight      prometheus.Gauge
	RunRetriesTotal   prometheus.Counter
	StreamClients     prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studio_operations_total",
				Help: "Total number of studio operations",
			},
			[]string{"operation", "status"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "studio_operation_duration_seconds",
				Help:    "Duration of studio operations in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation"},
		),
		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studio_errors_total",
				Help: "Errors returned by studio operations, by kind",
			},
			[]string{"kind"},
		),
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studio_http_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "code"},
		),
		RunsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "studio_action_runs_in_flight",
			Help: "Number of action runs currently being processed",
		}),
		RunRetriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "studio_action_run_retries_total",
			Help: "Total number of action run retries",
		}),
		StreamClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "studio_stream_clients",
			Help: "Number of connected snapshot stream clients",
		}),
	}
}

// RecordOperation records one studio operation. kind is the error kind,
// empty on success.
func (m *Metrics) RecordOperation(operation, kind string, duration time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if kind != "" {
		status = "error"
		m.ErrorsTotal.WithLabelValues(kind).Inc()
	}
	m.OperationsTotal.WithLabelValues(operation, status).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
