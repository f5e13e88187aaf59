// Package observability exposes Prometheus metrics and the probe server.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// namespace defines the global prefix for all metrics (e.g., gatekeeper_...).
const namespace = "gatekeeper"

// lowLatencyBuckets are for the evaluation hot path.
// Standard buckets start at 5ms, which hides cache-hit latencies entirely.
var lowLatencyBuckets = []float64{.0005, .001, .002, .005, .010, .020, .050, .100, .500}

var (
	// -------------------------------------------------------------------------
	// ADMINISTRATION API (HTTP)
	// -------------------------------------------------------------------------

	// HTTPReqDuration measures the latency of HTTP requests.
	// Metric: gatekeeper_http_handling_seconds
	HTTPReqDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "handling_seconds",
		Help:      "Time taken to handle HTTP requests",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	// HTTPReqTotal counts HTTP requests by route pattern and status code.
	// Metric: gatekeeper_http_requests_total
	HTTPReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests",
	}, []string{"method", "path", "code"})

	// -------------------------------------------------------------------------
	// EVALUATION API (gRPC)
	// -------------------------------------------------------------------------

	// GRPCReqDuration measures the latency of gRPC calls.
	// Metric: gatekeeper_grpc_handling_seconds
	GRPCReqDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "grpc",
		Name:      "handling_seconds",
		Help:      "Time taken to handle gRPC calls",
		Buckets:   lowLatencyBuckets,
	}, []string{"method", "code"})

	// GRPCReqTotal counts gRPC calls by method and status code.
	// Metric: gatekeeper_grpc_requests_total
	GRPCReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "grpc",
		Name:      "requests_total",
		Help:      "Total gRPC calls",
	}, []string{"method", "code"})

	// -------------------------------------------------------------------------
	// EVALUATION ENGINE
	// -------------------------------------------------------------------------

	// EvaluationsTotal counts decisions by reason code.
	// Metric: gatekeeper_evaluation_decisions_total
	EvaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "evaluation",
		Name:      "decisions_total",
		Help:      "Total flag evaluations by reason code",
	}, []string{"reason"})

	// EvaluationDuration measures one evaluation including the flag lookup.
	EvaluationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "evaluation",
		Name:      "duration_seconds",
		Help:      "Time taken to evaluate a flag, including definition lookup",
		Buckets:   lowLatencyBuckets,
	})

	// -------------------------------------------------------------------------
	// FLAG CACHE (per instance)
	// -------------------------------------------------------------------------

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total local cache hits",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total local cache misses (registry reads)",
	})

	// CacheEvictions tracks entries removed by the capacity policy, not by invalidation.
	CacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "evictions_total",
		Help:      "Total entries evicted due to capacity pressure",
	})

	// CacheItems reports the current entry count (S3-FIFO tracks count, not bytes).
	CacheItems = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "items_count",
		Help:      "Current number of entries in the local cache",
	})

	// CacheRejected tracks writes refused by the cache (write buffer contention).
	CacheRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "rejected_sets_total",
		Help:      "Total sets rejected by the cache",
	})

	// CacheStaleLoadsDropped counts registry reads discarded because an invalidation
	// landed while the read was in flight.
	CacheStaleLoadsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "stale_loads_dropped_total",
		Help:      "Registry reads not cached because an invalidation raced them",
	})

	// CachePurges counts full cache flushes (subscriber reconnects).
	CachePurges = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "purges_total",
		Help:      "Total full local cache purges",
	})

	// -------------------------------------------------------------------------
	// INVALIDATION BROADCAST
	// -------------------------------------------------------------------------

	// InvalidationsPublished counts broadcast attempts by outcome (success, error).
	InvalidationsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "invalidation",
		Name:      "published_total",
		Help:      "Total invalidation broadcasts by status",
	}, []string{"status"})

	// InvalidationsReceived counts keys evicted because of a broadcast.
	InvalidationsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "invalidation",
		Name:      "received_total",
		Help:      "Total invalidation messages received",
	})

	// SubscriberReconnects counts subscription failures followed by a retry.
	SubscriberReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "invalidation",
		Name:      "subscriber_reconnects_total",
		Help:      "Total invalidation subscriber reconnect attempts",
	})

	// -------------------------------------------------------------------------
	// REGISTRY (mutations)
	// -------------------------------------------------------------------------

	// MutationsTotal counts registry mutations by action and outcome.
	// status: success, rejected (validation/not found/forbidden), conflict, error.
	MutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "registry",
		Name:      "mutations_total",
		Help:      "Total flag mutations by action and status",
	}, []string{"action", "status"})

	// KillSwitchDenials counts mutations blocked by the kill-switch guard.
	KillSwitchDenials = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "registry",
		Name:      "kill_switch_denials_total",
		Help:      "Total mutations denied on kill-switch flags",
	})

	// AuditFailures counts audit entries that could not be recorded.
	AuditFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "registry",
		Name:      "audit_failures_total",
		Help:      "Total audit entries that failed to persist",
	})

	// -------------------------------------------------------------------------
	// DATABASE POOL
	// -------------------------------------------------------------------------

	// DBPoolConnections reports pool sizes by state (total, idle, in_use, max).
	DBPoolConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "pool_connections",
		Help:      "Database pool connections by state",
	}, []string{"state"})

	// DBPoolAcquireCount mirrors pgxpool's cumulative successful acquires.
	DBPoolAcquireCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "pool_acquire_count_total",
		Help:      "Cumulative successful connection acquires",
	})

	// DBPoolAcquireDuration mirrors pgxpool's cumulative time spent acquiring.
	DBPoolAcquireDuration = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "pool_acquire_duration_seconds_total",
		Help:      "Cumulative time spent acquiring connections",
	})

	// DBPoolWaitCount mirrors pgxpool's cumulative acquires that had to wait.
	DBPoolWaitCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "pool_wait_count_total",
		Help:      "Cumulative acquires that waited for a free connection",
	})

	// -------------------------------------------------------------------------
	// REDIS POOL (broadcast channel)
	// -------------------------------------------------------------------------

	// RedisPoolConnections reports pool sizes by state (total, idle, stale).
	RedisPoolConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "redis",
		Name:      "pool_connections",
		Help:      "Redis pool connections by state",
	}, []string{"state"})

	RedisPoolHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "redis",
		Name:      "pool_hits_total",
		Help:      "Times a free connection was found in the pool",
	})

	RedisPoolMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "redis",
		Name:      "pool_misses_total",
		Help:      "Times a free connection was NOT found in the pool",
	})

	RedisPoolTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "redis",
		Name:      "pool_timeouts_total",
		Help:      "Times a wait for a pool connection timed out",
	})
)
