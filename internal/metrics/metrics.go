package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API.
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds.
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// HubConnections tracks open hub connections by kind (viewer, technician).
	HubConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "hub_connections", Help: "Open dispatch hub connections."},
		[]string{"kind"},
	)
	// HubBroadcasts counts messages fanned out by type.
	HubBroadcasts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "hub_broadcasts_total", Help: "Hub broadcast messages by type."},
		[]string{"type"},
	)
	// HubDroppedSends counts per-connection sends abandoned because the
	// peer was slow or gone.
	HubDroppedSends = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "hub_dropped_sends_total", Help: "Hub sends dropped due to slow or dead peers."},
	)
	// HubEvictions counts technician connections replaced by a newer device.
	HubEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "hub_evictions_total", Help: "Technician connections evicted by a newer device."},
	)

	// WeatherChecks counts gate evaluations by result (clear, flagged, unavailable).
	WeatherChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "weather_checks_total", Help: "Weather gate evaluations by result."},
		[]string{"result"},
	)
	// WeatherHolds counts appointments moved to weather_hold.
	WeatherHolds = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "weather_holds_total", Help: "Appointments placed on weather hold."},
	)
	// ForecastCacheHits / Misses measure forecast cache effectiveness.
	ForecastCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "forecast_cache_hits_total", Help: "Forecast cache hits."},
	)
	ForecastCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "forecast_cache_misses_total", Help: "Forecast cache misses."},
	)
)

// RegisterDefault registers collectors to the package registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(HubConnections)
		Registry.MustRegister(HubBroadcasts)
		Registry.MustRegister(HubDroppedSends)
		Registry.MustRegister(HubEvictions)
		Registry.MustRegister(WeatherChecks)
		Registry.MustRegister(WeatherHolds)
		Registry.MustRegister(ForecastCacheHits)
		Registry.MustRegister(ForecastCacheMisses)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
