package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	EventsLogged     = prometheus.NewCounter(prometheus.CounterOpts{Name: "syncmon_events_logged_total", Help: "Network-call events recorded by the engine"})
	ProgressUpdates  = prometheus.NewCounter(prometheus.CounterOpts{Name: "syncmon_progress_updates_total", Help: "Coarse progress reports from the job runner"})
	PersistFailures  = prometheus.NewCounter(prometheus.CounterOpts{Name: "syncmon_persist_failures_total", Help: "Durable writes that failed (excludes benign not-ready skips)"})
	RateLimitHits    = prometheus.NewCounter(prometheus.CounterOpts{Name: "syncmon_rate_limit_hits_total", Help: "429 responses observed across all jobs"})
	StallsDetected   = prometheus.NewCounter(prometheus.CounterOpts{Name: "syncmon_stalls_detected_total", Help: "Stall flags raised by the background scan"})
	ReadRejects      = prometheus.NewCounter(prometheus.CounterOpts{Name: "syncmon_read_rejects_total", Help: "Read API requests rejected by the rate limiter"})
	TrackedJobsGauge = prometheus.NewGauge(prometheus.GaugeOpts{Name: "syncmon_tracked_jobs", Help: "Jobs currently held in the snapshot cache"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			EventsLogged,
			ProgressUpdates,
			PersistFailures,
			RateLimitHits,
			StallsDetected,
			ReadRejects,
			TrackedJobsGauge,
		)
	})
	return promhttp.Handler()
}
