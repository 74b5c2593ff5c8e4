package prometheus

import (
	"strconv"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeSent    = "sent"
	OutcomeRetry   = "retry"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

var (
	dispatchTotal = promauto.NewCounterVec(prom.CounterOpts{
		Name: "notification_dispatch_total",
		Help: "Dispatch attempts by channel and outcome",
	}, []string{"channel", "outcome"})

	webhookEventsTotal = promauto.NewCounterVec(prom.CounterOpts{
		Name: "notification_webhook_events_total",
		Help: "Provider webhook events by type and whether they changed a message",
	}, []string{"event", "applied"})

	batchesClosedTotal = promauto.NewCounterVec(prom.CounterOpts{
		Name: "notification_batches_closed_total",
		Help: "Batches that reached a terminal status",
	}, []string{"status"})
)

func ObserveDispatch(channel, outcome string) {
	dispatchTotal.WithLabelValues(channel, outcome).Inc()
}

func ObserveWebhookEvent(event string, applied bool) {
	webhookEventsTotal.WithLabelValues(event, strconv.FormatBool(applied)).Inc()
}

func ObserveBatchClosed(status string) {
	batchesClosedTotal.WithLabelValues(status).Inc()
}
