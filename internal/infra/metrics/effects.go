package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		roleEffectsTotal,
		webhookDeliveriesTotal,
		memberMessagesTotal,
	)
}

var (
	// op: grant|revoke, result: ok|error
	roleEffectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "role_effects_total",
			Help: "Role grant/revoke outcomes after bounded retries.",
		},
		[]string{"op", "result"},
	)

	webhookDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_deliveries_total",
			Help: "Outbound webhook posts by event and result.",
		},
		[]string{"event", "result"},
	)

	memberMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "member_messages_total",
			Help: "Direct messages to members by result.",
		},
		[]string{"result"},
	)
)

func IncRoleEffect(op string, err error) {
	roleEffectsTotal.WithLabelValues(norm(op), result(err)).Inc()
}

func IncWebhookDelivery(event string, err error) {
	webhookDeliveriesTotal.WithLabelValues(norm(event), result(err)).Inc()
}

func IncMemberMessage(err error) {
	memberMessagesTotal.WithLabelValues(result(err)).Inc()
}
