package http

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsRegistry holds the tracker's Prometheus metrics.
type MetricsRegistry struct {
	FramesTotal     *prometheus.CounterVec
	EventsEmitted   *prometheus.CounterVec
	EventsDebounced *prometheus.CounterVec
	DatabaseLoads   prometheus.Counter
	Subscribers     prometheus.Gauge
	CacheHits       *prometheus.CounterVec
	CacheMisses     *prometheus.CounterVec
	QueryDuration   *prometheus.HistogramVec
}

// NewMetricsRegistry creates and registers all tracker metrics.
func NewMetricsRegistry() *MetricsRegistry {
	registry := &MetricsRegistry{
		FramesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_frames_total",
				Help: "Inbound source frames by kind",
			},
			[]string{"kind"},
		),
		EventsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_events_emitted_total",
				Help: "Hub events fanned out to displays, by type",
			},
			[]string{"type"},
		),
		EventsDebounced: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_events_debounced_total",
				Help: "Hub events dropped by the debounce window, by type",
			},
			[]string{"type"},
		),
		DatabaseLoads: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tracker_database_loads_total",
				Help: "Database snapshots accepted",
			},
		),
		Subscribers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tracker_subscribers",
				Help: "Connected display subscribers",
			},
		),
		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_cache_hits_total",
				Help: "Plugin cache hits by plugin type",
			},
			[]string{"plugin"},
		),
		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_cache_misses_total",
				Help: "Plugin cache misses by plugin type",
			},
			[]string{"plugin"},
		),
		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tracker_query_duration_seconds",
				Help:    "Scoreboard query latency",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
			},
			[]string{"plugin"},
		),
	}

	prometheus.MustRegister(
		registry.FramesTotal,
		registry.EventsEmitted,
		registry.EventsDebounced,
		registry.DatabaseLoads,
		registry.Subscribers,
		registry.CacheHits,
		registry.CacheMisses,
		registry.QueryDuration,
	)

	return registry
}

// HubCallback adapts the registry to the hub's metrics hook.
func (m *MetricsRegistry) HubCallback() func(name string, value float64, labels map[string]string) {
	return func(name string, value float64, labels map[string]string) {
		switch name {
		case "tracker_frames_total":
			m.FramesTotal.WithLabelValues(labels["kind"]).Add(value)
		case "tracker_events_emitted_total":
			m.EventsEmitted.WithLabelValues(labels["type"]).Add(value)
		case "tracker_events_debounced_total":
			m.EventsDebounced.WithLabelValues(labels["type"]).Add(value)
		case "tracker_database_loads_total":
			m.DatabaseLoads.Add(value)
		case "tracker_cache_hits_total":
			m.CacheHits.WithLabelValues(labels["plugin"]).Add(value)
		case "tracker_cache_misses_total":
			m.CacheMisses.WithLabelValues(labels["plugin"]).Add(value)
		}
	}
}

// Handler exposes the /metrics endpoint.
func (m *MetricsRegistry) Handler() http.Handler {
	return promhttp.Handler()
}
