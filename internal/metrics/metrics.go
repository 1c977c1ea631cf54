package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Rotation metrics

	SyncsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rotator",
		Name:      "syncs_total",
		Help:      "Roster syncs run, by outcome.",
	}, []string{"outcome"})

	SyncDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "rotator",
		Name:      "sync_duration_seconds",
		Help:      "Duration of one task's roster sync.",
		Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
	})

	GroupMembersChangedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rotator",
		Name:      "group_members_changed_total",
		Help:      "Syncs that actually changed user group membership.",
	})

	TasksDue = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "rotator",
		Name:      "tasks_due",
		Help:      "Tasks found due in the last invocation.",
	})

	// Trigger reconciliation metrics

	TriggersCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rotator",
		Name:      "triggers_created_total",
		Help:      "One-shot wake-up triggers created.",
	})

	TriggersDeletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rotator",
		Name:      "triggers_deleted_total",
		Help:      "Redundant or stale triggers deleted.",
	})

	ReconcileDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "rotator",
		Name:      "reconcile_duration_seconds",
		Help:      "Duration of one trigger reconciliation.",
		Buckets:   prometheus.DefBuckets,
	})

	// Command surface metrics

	CommandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rotator",
		Name:      "commands_total",
		Help:      "Slash commands handled, by subcommand and outcome.",
	}, []string{"command", "outcome"})

	// HTTP metrics

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rotator",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rotator",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

func Register() {
	prometheus.MustRegister(
		SyncsTotal,
		SyncDuration,
		GroupMembersChangedTotal,
		TasksDue,
		TriggersCreatedTotal,
		TriggersDeletedTotal,
		ReconcileDuration,
		CommandsTotal,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

func NewServer(addr string, health http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if health != nil {
		mux.Handle("/healthz", health)
		mux.Handle("/readyz", health)
	}
	return &http.Server{Addr: addr, Handler: mux}
}
