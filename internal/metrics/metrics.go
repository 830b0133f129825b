package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// MetricsRegistry bundles the Prometheus collectors the server exports
type MetricsRegistry struct {
	Registry *prometheus.Registry

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight *prometheus.GaugeVec

	LocationUpdatesTotal  *prometheus.CounterVec
	RouteProgressTotal    *prometheus.CounterVec
	ConcurrencyConflicts  prometheus.Counter
	WebsocketClientsGauge prometheus.Gauge
}

func NewMetricsRegistry() *MetricsRegistry {
	reg := prometheus.NewRegistry()

	m := &MetricsRegistry{
		Registry: reg,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
			[]string{"endpoint", "method", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
			[]string{"endpoint", "method"},
		),
		HTTPRequestsInFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "http_requests_in_flight", Help: "HTTP requests currently being served."},
			[]string{"endpoint"},
		),
		LocationUpdatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "location_updates_total", Help: "Processed position reports by outcome."},
			[]string{"outcome"},
		),
		RouteProgressTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "route_progress_updates_total", Help: "Processed route progress updates by outcome."},
			[]string{"outcome"},
		),
		ConcurrencyConflicts: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "concurrency_conflicts_total", Help: "Optimistic-lock write conflicts."},
		),
		WebsocketClientsGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "websocket_clients", Help: "Connected websocket clients."},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.LocationUpdatesTotal,
		m.RouteProgressTotal,
		m.ConcurrencyConflicts,
		m.WebsocketClientsGauge,
	)
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}
