package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Replica-set coordinator metrics (pkg/replset, spec §4.F).
	ReplSetState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shardset_replset_state",
			Help: "1 if this node is currently in the named member state, else 0",
		},
		[]string{"set", "state"},
	)

	ReplSetPeerHealth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shardset_replset_peer_health",
			Help: "Health of a replica-set peer as last observed by heartbeat polling (1 = up, 0 = down)",
		},
		[]string{"set", "peer"},
	)

	HeartbeatLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shardset_heartbeat_latency_seconds",
			Help:    "replSetHeartbeat round-trip latency by peer",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"peer"},
	)

	ConfigVersion = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shardset_config_version",
			Help: "The currently adopted replica-set configuration version",
		},
	)

	// Distributed lock metrics (pkg/distlock, spec §4.E).
	LockAcquisitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shardset_lock_acquisitions_total",
			Help: "Total number of distributed lock acquisition attempts by name and outcome",
		},
		[]string{"name", "outcome"},
	)

	LockHeldDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shardset_lock_held_duration_seconds",
			Help:    "How long a distributed lock was held before release",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"name"},
	)

	// Router cursor federation metrics (pkg/cursor, spec §4.D).
	CursorBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shardset_cursor_batch_docs",
			Help:    "Number of documents returned per sendNextBatch call",
			Buckets: []float64{1, 10, 50, 100, 250, 500, 1000, 5000},
		},
	)

	CursorsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shardset_cursors_open",
			Help: "Number of cursors currently owned by the cache",
		},
	)

	CursorsReaped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shardset_cursors_reaped_total",
			Help: "Total number of cursors reclaimed by Cache.Sweep",
		},
	)

	// Version-vector store metrics (pkg/shardversion, spec §4.C).
	VersionCheckRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shardset_version_check_rejections_total",
			Help: "Total number of query/write version checks rejected by kind",
		},
		[]string{"kind"},
	)

	VersionCheckDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shardset_version_check_duration_seconds",
			Help:    "Time taken to evaluate a setShardVersion/checkQuery/checkWrite call",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Balancer metrics (pkg/balancer).
	MigrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shardset_migrations_total",
			Help: "Total number of chunk migrations attempted, by outcome",
		},
		[]string{"outcome"},
	)

	MigrationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shardset_migration_duration_seconds",
			Help:    "Time taken to complete one chunk migration",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)
)

func init() {
	prometheus.MustRegister(
		ReplSetState,
		ReplSetPeerHealth,
		HeartbeatLatency,
		ConfigVersion,
		LockAcquisitionsTotal,
		LockHeldDuration,
		CursorBatchSize,
		CursorsOpen,
		CursorsReaped,
		VersionCheckRejectionsTotal,
		VersionCheckDuration,
		MigrationsTotal,
		MigrationDuration,
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
