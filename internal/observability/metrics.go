package observability

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/3leaps/streamctl/pkg/tracking"
)

var (
	once sync.Once

	// Registry holds every streamctl collector. It is separate from the
	// prometheus default registry so tests can scrape it in isolation.
	Registry = prometheus.NewRegistry()

	PollRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "streamctl_poll_runs_total",
		Help: "Completed tracking poll passes",
	})
	PollChanges = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "streamctl_poll_state_changes_total",
		Help: "State changes written by the poller",
	})
	PollErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "streamctl_poll_errors_total",
		Help: "Per-application poll failures",
	})
	FailureDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "streamctl_failure_decisions_total",
		Help: "Failure decisions by action",
	}, []string{"action"})
	PollDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "streamctl_poll_duration_seconds",
		Help:    "Duration of a poll pass",
		Buckets: prometheus.DefBuckets,
	})
	TrackedApps = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "streamctl_tracked_applications",
		Help: "Applications considered by the last poll pass",
	})
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "streamctl_http_requests_total",
		Help: "HTTP requests by route pattern and status",
	}, []string{"method", "route", "code"})
)

// RegisterMetrics registers the collectors once.
func RegisterMetrics() {
	once.Do(func() {
		Registry.MustRegister(
			PollRuns,
			PollChanges,
			PollErrors,
			FailureDecisions,
			PollDuration,
			TrackedApps,
			HTTPRequests,
		)
	})
}

// MetricsHandler exposes /metrics for the streamctl registry.
func MetricsHandler() http.Handler {
	RegisterMetrics()
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObservePoll folds one poll summary into the metrics.
func ObservePoll(sum *tracking.Summary) {
	if sum == nil {
		return
	}
	RegisterMetrics()
	PollRuns.Inc()
	PollChanges.Add(float64(sum.Changed))
	PollErrors.Add(float64(sum.Errors))
	FailureDecisions.WithLabelValues("RESTART").Add(float64(sum.Restarts))
	FailureDecisions.WithLabelValues("ALERT").Add(float64(sum.Alerts))
	PollDuration.Observe(sum.Duration.Seconds())
	TrackedApps.Set(float64(sum.Apps))
}
