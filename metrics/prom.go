package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DumpCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkdump_dump_created_total",
		Help: "no. of dumps created",
	})
	DumpRetrieved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkdump_dump_retrieved_total",
		Help: "no. of dumps retrieved",
	})
	DumpExpiredFetches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkdump_dump_expired_fetch_total",
		Help: "no. of fetches that hit a logically expired dump",
	})
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkdump_cache_hits_total",
		Help: "no. of cache hits",
	})
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkdump_cache_misses_total",
		Help: "no. of cache misses",
	})
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "linkdump_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkdump_rate_limit_hits_total",
			Help: "no. of rate limit violations",
		},
		[]string{"endpoint"},
	)
	PruneCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkdump_prune_cycles_total",
		Help: "no. of cleanup worker cycles",
	})
	RecentErrorRatePercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "linkdump_recent_error_rate_percent",
		Help: "5min rolling avg error rate percentage",
	})
)

func Init() {
}
