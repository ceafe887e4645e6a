package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Impact engine metrics for production monitoring
var (
	// Analysis metrics
	AnalysisRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilitics_analysis_runs_total",
			Help: "Total number of impact analysis runs",
		},
		[]string{"strategy", "status"},
	)

	AnalysisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "resilitics_analysis_duration_seconds",
			Help:    "Impact analysis duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"strategy"},
	)

	EventsAssessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilitics_events_assessed_total",
			Help: "Total number of termination events assessed",
		},
		[]string{"outcome"},
	)

	SignificantImpactsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilitics_significant_impacts_total",
			Help: "Total number of metric deviations by significance level",
		},
		[]string{"metric", "scale", "level"}, // scale: z_score/percent_change
	)

	WindowsUnavailableTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilitics_windows_unavailable_total",
			Help: "Total number of event windows with no usable samples",
		},
		[]string{"window"}, // window: before/after/baseline
	)

	// Chaos injector metrics
	ChaosTerminationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilitics_chaos_terminations_total",
			Help: "Total number of pod terminations attempted by the injector",
		},
		[]string{"namespace", "status"}, // status: deleted/dry_run/error
	)

	ChaosRunActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "resilitics_chaos_run_active",
			Help: "Whether a chaos experiment is currently running (1=active, 0=idle)",
		},
	)

	// Annotation metrics
	AnnotationsPostedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilitics_annotations_posted_total",
			Help: "Total number of Grafana annotations posted",
		},
		[]string{"status"},
	)

	// WebSocket metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "resilitics_websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WebSocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilitics_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"}, // direction: inbound/outbound
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilitics_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "resilitics_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Watcher metrics
	WatchTriggersTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "resilitics_watch_triggers_total",
			Help: "Total number of analyses triggered by the directory watcher",
		},
	)

	// Store metrics
	StoreWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilitics_store_writes_total",
			Help: "Total number of run persistence operations",
		},
		[]string{"backend", "status"},
	)
)
