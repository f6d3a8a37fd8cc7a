// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rollfeed"

var (
	// CacheLookups counts TTL cache probes by cache namespace and result (hit|miss).
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "TTL cache lookups by result.",
	}, []string{"cache", "result"})

	CacheStores = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "stores_total",
		Help:      "Assembled responses written to the TTL cache.",
	}, []string{"cache"})

	// CacheEntries is sampled periodically from each cache.
	CacheEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "entries",
		Help:      "Live entries per TTL cache.",
	}, []string{"cache"})

	CacheClears = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "clears_total",
		Help:      "Full invalidations of a TTL cache.",
	}, []string{"cache"})

	// Mutations counts counter mutations by action, direction and outcome.
	Mutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engagement",
		Name:      "mutations_total",
		Help:      "Engagement counter mutations by outcome.",
	}, []string{"action", "direction", "outcome"})

	// DriftClamps counts decrements that would have made a counter negative.
	DriftClamps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engagement",
		Name:      "drift_clamps_total",
		Help:      "Decrements clamped at zero, a sign of counter drift.",
	}, []string{"action"})

	ReconcileRepairs = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reconcile",
		Name:      "repairs_total",
		Help:      "Rolls whose comment count was corrected in a response.",
	})

	ReconcileFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reconcile",
		Name:      "query_failures_total",
		Help:      "Grouped comment count queries that failed.",
	})

	// WriteBacks counts background write-backs by result (ok|error|dropped).
	WriteBacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reconcile",
		Name:      "writebacks_total",
		Help:      "Background counter write-backs by result.",
	}, []string{"result"})

	AssembleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "feed",
		Name:      "assemble_duration_seconds",
		Help:      "Time to serve a feed page, by resource and cache result.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"resource", "cache"})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "published_total",
		Help:      "Engagement events handed to the publisher, by result.",
	}, []string{"result"})

	// DependencyUp is 1 while a dependency answers its health check.
	DependencyUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "dependency_up",
		Help:      "Whether a dependency is considered available (1) or not (0).",
	}, []string{"dependency"})
)
