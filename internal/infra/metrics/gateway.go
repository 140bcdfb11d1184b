package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(gatewayRequestDuration) }

// Latency of gateway calls grouped by operation (create|status) and result.
var gatewayRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "gateway_request_duration_seconds",
		Help:    "Duration of payment gateway calls in seconds.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	},
	[]string{"op", "result"},
)

func ObserveGatewayRequest(op string, started time.Time, err error) {
	gatewayRequestDuration.WithLabelValues(norm(op), result(err)).Observe(time.Since(started).Seconds())
}
