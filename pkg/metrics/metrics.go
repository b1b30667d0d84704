package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheLookups records cache gateway lookups by result (hit|miss|forced).
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coderwall_cache_lookups_total",
			Help: "Total number of cache gateway lookups",
		},
		[]string{"result"},
	)

	// CacheComputations counts underlying recomputations performed after a
	// coalesced miss. Under a thundering herd this should stay close to the
	// number of distinct keys, not the number of callers.
	CacheComputations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coderwall_cache_computations_total",
			Help: "Total number of cache value computations",
		},
	)

	// MembershipMutations counts membership state transitions by operation
	// (request|approve|deny|accept) and result (success|conflict|error).
	MembershipMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coderwall_membership_mutations_total",
			Help: "Total number of membership mutation attempts",
		},
		[]string{"operation", "result"},
	)

	// VisitorExits counts recorded visitor exit events.
	VisitorExits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coderwall_visitor_exits_total",
			Help: "Total number of recorded visitor exit events",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coderwall_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
