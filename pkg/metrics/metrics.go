package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Entity gauges (C1)
	EntitiesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "catalog_entities_total",
			Help: "Total number of catalog entities by kind and state",
		},
		[]string{"kind", "state"},
	)

	// Raft metrics (C4)
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalog_raft_is_leader",
			Help: "Whether this master is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftTerm = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalog_raft_term",
			Help: "Current Raft term",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalog_raft_applied_index",
			Help: "Last applied Raft log index",
		},
	)

	RaftApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "catalog_raft_apply_duration_seconds",
			Help:    "Time taken to apply a Raft log entry",
			Buckets: prometheus.DefBuckets,
		},
	)

	LeaderLoadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "catalog_leader_load_duration_seconds",
			Help:    "Time taken to run loaders and reach leader_ready_term on election",
			Buckets: prometheus.DefBuckets,
		},
	)

	// DDL engine (C5)
	DDLOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_ddl_op_duration_seconds",
			Help:    "Duration of a DDL operation by kind",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	DDLOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_ddl_ops_total",
			Help: "Total DDL operations by kind and result",
		},
		[]string{"op", "result"},
	)

	// Tablet assignment (C6)
	AssignmentPassDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "catalog_assignment_pass_duration_seconds",
			Help:    "Duration of one tablet assignment background pass",
			Buckets: prometheus.DefBuckets,
		},
	)

	TabletsAssigned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_tablets_assigned_total",
			Help: "Total tablets that completed replica selection",
		},
	)

	// Heartbeat & report processor (C7)
	ReportProcessingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "catalog_report_processing_duration_seconds",
			Help:    "Duration of tablet-report processing per heartbeat",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReportsTruncatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_reports_truncated_total",
			Help: "Total tablet reports where processing was truncated by the deadline guard",
		},
	)

	// Async task framework (C8)
	TasksInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "catalog_tasks_in_flight",
			Help: "Outstanding async tasks by kind",
		},
		[]string{"kind"},
	)

	TaskRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_task_retries_total",
			Help: "Total async task retry attempts by kind",
		},
		[]string{"kind"},
	)

	// Split pipeline (C9)
	SplitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "catalog_split_duration_seconds",
			Help:    "Duration of a tablet split from validation to child registration",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Background tasks (C10)
	BackgroundSweepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_background_sweep_duration_seconds",
			Help:    "Duration of a background maintenance sweep by kind",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"sweep"},
	)
)

func init() {
	prometheus.MustRegister(
		EntitiesTotal,
		RaftLeader,
		RaftTerm,
		RaftAppliedIndex,
		RaftApplyDuration,
		LeaderLoadDuration,
		DDLOpDuration,
		DDLOpsTotal,
		AssignmentPassDuration,
		TabletsAssigned,
		ReportProcessingDuration,
		ReportsTruncatedTotal,
		TasksInFlight,
		TaskRetriesTotal,
		SplitDuration,
		BackgroundSweepDuration,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
