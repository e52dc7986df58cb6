// Package metrics provides Prometheus metrics for monitoring pageforge.
package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RendersTotal counts completed renders by endpoint and outcome.
	// Outcome is "ok", "emergency", or the error kind.
	RendersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pageforge_renders_total",
			Help: "Total number of renders processed",
		},
		[]string{"endpoint", "outcome"},
	)

	// RenderDuration tracks wall-clock render duration by endpoint.
	RenderDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pageforge_render_duration_seconds",
			Help:    "Render duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s to ~400s
		},
		[]string{"endpoint"},
	)

	// RendersInFlight shows renders currently holding a concurrency slot.
	RendersInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pageforge_renders_in_flight",
			Help: "Renders currently in flight",
		},
	)

	// BrowserRestarts counts engine restarts after a crash or disconnect.
	BrowserRestarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pageforge_browser_restarts_total",
			Help: "Total browser engine restarts",
		},
	)

	// BrowserState encodes the lifecycle state as a numeric gauge
	// (0 uninitialised, 1 starting, 2 ready, 3 degraded, 4 shutdown).
	BrowserState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pageforge_browser_state",
			Help: "Browser lifecycle state (0=uninitialised 1=starting 2=ready 3=degraded 4=shutdown)",
		},
	)

	// ActiveSessions shows open browser sessions.
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pageforge_active_sessions",
			Help: "Number of open browser sessions",
		},
	)

	// EmergencyExtractions counts renders salvaged by emergency recovery.
	EmergencyExtractions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pageforge_emergency_extractions_total",
			Help: "Renders salvaged by emergency extraction after timeout",
		},
	)

	// BatchSize tracks the URL count of submitted batches.
	BatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pageforge_batch_size",
			Help:    "URLs per batch request",
			Buckets: prometheus.LinearBuckets(1, 2, 10), // 1 to 19
		},
	)

	// MemoryUsageBytes shows current memory usage.
	MemoryUsageBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pageforge_memory_usage_bytes",
			Help: "Current memory usage in bytes (alloc)",
		},
	)

	// MemorySysBytes shows system memory obtained.
	MemorySysBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pageforge_memory_sys_bytes",
			Help: "Total memory obtained from system",
		},
	)

	// GoroutineCount shows current goroutine count.
	GoroutineCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pageforge_goroutines",
			Help: "Current number of goroutines",
		},
	)

	// BuildInfo provides build information as labels.
	BuildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pageforge_build_info",
			Help: "Build information",
		},
		[]string{"version", "go_version"},
	)
)

func init() {
	prometheus.MustRegister(
		RendersTotal,
		RenderDuration,
		RendersInFlight,
		BrowserRestarts,
		BrowserState,
		ActiveSessions,
		EmergencyExtractions,
		BatchSize,
		MemoryUsageBytes,
		MemorySysBytes,
		GoroutineCount,
		BuildInfo,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, goVersion string) {
	BuildInfo.WithLabelValues(version, goVersion).Set(1)
}

// StartMemoryCollector starts a goroutine that periodically updates memory metrics.
func StartMemoryCollector(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			updateMemoryMetrics()
		case <-stopCh:
			return
		}
	}
}

func updateMemoryMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	MemoryUsageBytes.Set(float64(m.Alloc))
	MemorySysBytes.Set(float64(m.Sys))
	GoroutineCount.Set(float64(runtime.NumGoroutine()))
}

// RecordRender records metrics for a completed render.
func RecordRender(endpoint, outcome string, duration time.Duration) {
	RendersTotal.WithLabelValues(endpoint, outcome).Inc()
	RenderDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordBatch records the size of a submitted batch.
func RecordBatch(urls int) {
	BatchSize.Observe(float64(urls))
}

// UpdateBrowserMetrics updates the lifecycle gauges.
func UpdateBrowserMetrics(state int, sessions int) {
	BrowserState.Set(float64(state))
	ActiveSessions.Set(float64(sessions))
}
