package prometheus

import (
	"context"
	"time"

	"inviqa/notification-relay/log"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const observeInterval = time.Second

var (
	queueSize      prom.Gauge
	totalSize      prom.Gauge
	deadLetterSize prom.Gauge
)

func init() {
	queueSize = promauto.NewGauge(prom.GaugeOpts{
		Name: "notification_queue_size",
		Help: "The number of messages waiting for or undergoing dispatch",
	})
	totalSize = promauto.NewGauge(prom.GaugeOpts{
		Name: "notification_total_size",
		Help: "The total number of stored messages",
	})
	deadLetterSize = promauto.NewGauge(prom.GaugeOpts{
		Name: "notification_dead_letter_size",
		Help: "The number of messages that failed permanently",
	})
}

// ObserveSizes keeps the size gauges up to date until ctx is cancelled.
func ObserveSizes(sizer Sizer, ctx context.Context) {
	go ObserveQueueSize(sizer, ctx)
	go ObserveTotalSize(sizer, ctx)
	ObserveDeadLetterSize(sizer, ctx)
}

func ObserveQueueSize(sizer Sizer, ctx context.Context) {
	observe(ctx, queueSize, sizer.QueueSize, "queue")
}

func ObserveTotalSize(sizer Sizer, ctx context.Context) {
	observe(ctx, totalSize, sizer.TotalSize, "message table")
}

func ObserveDeadLetterSize(sizer Sizer, ctx context.Context) {
	observe(ctx, deadLetterSize, sizer.DeadLetterSize, "dead-letter queue")
}

func observe(ctx context.Context, g prom.Gauge, size func(context.Context) (uint, error), what string) {
	for {
		n, err := size(ctx)
		if err != nil {
			log.Logger.WithError(err).Errorf("an error occurred determining the size of the %s", what)
		} else {
			g.Set(float64(n))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(observeInterval):
		}
	}
}
