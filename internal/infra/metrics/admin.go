package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(adminAuthTotal) }

var adminAuthTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "admin_auth_total",
		Help: "Admin API authentication decisions.",
	},
	[]string{"status"}, // 'authorized', 'unauthorized'
)

func IncAdminAuth(status string) {
	adminAuthTotal.WithLabelValues(norm(status)).Inc()
}
