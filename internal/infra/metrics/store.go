package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(dbPoolStats, cacheRequestsTotal) }

var (
	// state: total|idle|acquired|max
	dbPoolStats = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "db_pool_stats",
			Help: "Postgres pool connections by state.",
		},
		[]string{"state"},
	)

	// result: hit|miss|error
	cacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_requests_total",
			Help: "Read-through cache lookups in front of the store.",
		},
		[]string{"cache", "result"},
	)
)

func SetDBPoolStats(total, idle, acquired, max int32) {
	for state, v := range map[string]int32{"total": total, "idle": idle, "acquired": acquired, "max": max} {
		dbPoolStats.WithLabelValues(state).Set(float64(v))
	}
}

// IncCacheRequest counts one lookup of the named cache.
func IncCacheRequest(cacheName, res string) {
	cacheRequestsTotal.WithLabelValues(norm(cacheName), norm(res)).Inc()
}
