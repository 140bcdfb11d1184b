package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"crypto-role-subscription/internal/domain/model"
)

func init() {
	register(
		paymentAttemptsTotal,
		gatewayPollsTotal,
		paymentAttemptsByStatus,
	)
}

var (
	paymentAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_attempts_total",
			Help: "Payment attempts by lifecycle event (created/paid/failed/expired/refunded).",
		},
		[]string{"status"},
	)

	// result: pending|terminal|transient|unknown_id|horizon|skipped
	gatewayPollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_polls_total",
			Help: "Outcome of single attempt polls.",
		},
		[]string{"result"},
	)
)

var paymentAttemptsByStatus = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "payment_attempts",
		Help: "Stored payment attempts by status.",
	},
	[]string{"status"},
)

func IncPaymentAttempt(status string) {
	paymentAttemptsTotal.WithLabelValues(norm(status)).Inc()
}

func IncGatewayPoll(res string) {
	gatewayPollsTotal.WithLabelValues(norm(res)).Inc()
}

// SetPaymentAttemptsByStatus sets every status gauge; missing statuses read 0.
func SetPaymentAttemptsByStatus(counts map[model.PaymentStatus]int) {
	for _, st := range []model.PaymentStatus{
		model.PaymentStatusPending,
		model.PaymentStatusPaid,
		model.PaymentStatusExpired,
		model.PaymentStatusFailed,
		model.PaymentStatusRefunded,
	} {
		paymentAttemptsByStatus.WithLabelValues(string(st)).Set(float64(counts[st]))
	}
}
