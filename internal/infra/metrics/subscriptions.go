package metrics

import (
	"crypto-role-subscription/internal/domain/model"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		subscriptionTransitionsTotal,
		subscriptionsByState,
		sweepRunsTotal,
	)
}

var (
	subscriptionTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_transitions_total",
			Help: "Subscription state transitions by target (activated/renewed/expiring_notified/expired).",
		},
		[]string{"to"},
	)

	subscriptionsByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "subscriptions",
			Help: "Current number of subscriptions by state.",
		},
		[]string{"state"}, // 'active', 'expiring_notified', 'expired'
	)

	sweepRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_sweeps_total",
			Help: "Subscription sweep runs by result.",
		},
		[]string{"result"},
	)
)

func IncSubscriptionTransition(to string) {
	subscriptionTransitionsTotal.WithLabelValues(norm(to)).Inc()
}

func SetSubscriptionsByState(counts map[model.SubscriptionState]int) {
	for _, st := range []model.SubscriptionState{
		model.SubscriptionStateActive,
		model.SubscriptionStateExpiringNotified,
		model.SubscriptionStateExpired,
	} {
		subscriptionsByState.WithLabelValues(string(st)).Set(float64(counts[st]))
	}
}

func IncSweepRun(err error) {
	sweepRunsTotal.WithLabelValues(result(err)).Inc()
}
