package batch

import (
	"context"
	"time"

	"inviqa/notification-relay/log"
	"inviqa/notification-relay/notification"
	"inviqa/notification-relay/prometheus"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var logger = log.ForComponent("batch-tracker")

type store interface {
	GetBatch(ctx context.Context, id uuid.UUID) (*notification.Batch, error)
	CloseBatch(ctx context.Context, id uuid.UUID, status notification.BatchStatus) (bool, error)
}

// Completion describes a batch in which every member has been sent or has
// failed. Closed is only true for the call that stamped the terminal status.
type Completion struct {
	BatchId         uuid.UUID
	VendorId        string
	Status          notification.BatchStatus
	TotalRecipients int
	SentCount       int
	DeliveredCount  int
	FailedCount     int
	DeliveryRate    float64
	CompletedAt     time.Time
	Closed          bool
}

type Summary struct {
	Batch        *notification.Batch
	DeliveryRate float64
	Settled      bool
}

type Tracker struct {
	store  store
	events notification.EventSink
}

func NewTracker(s store, events notification.EventSink) *Tracker {
	if events == nil {
		events = notification.NopSink{}
	}

	return &Tracker{store: s, events: events}
}

// CheckBatchCompletion closes the batch once its members have all settled.
// It returns nil while members are still outstanding.
func (t *Tracker) CheckBatchCompletion(ctx context.Context, id uuid.UUID) (*Completion, error) {
	b, err := t.store.GetBatch(ctx, id)
	if err != nil {
		return nil, err
	}

	if b.CompletedAt.Valid {
		return completionOf(b, false), nil
	}

	if !b.Settled() {
		return nil, nil
	}

	closed, err := t.store.CloseBatch(ctx, id, b.ClosingStatus())
	if err != nil {
		return nil, err
	}

	// re-read so the caller sees the stamped status and time, whoever won
	b, err = t.store.GetBatch(ctx, id)
	if err != nil {
		return nil, err
	}

	if !b.CompletedAt.Valid {
		return nil, errors.Errorf("batch: %s is settled but could not be closed", id)
	}

	c := completionOf(b, closed)
	if closed {
		t.closed(ctx, c)
	}

	return c, nil
}

func (t *Tracker) Summary(ctx context.Context, id uuid.UUID) (*Summary, error) {
	b, err := t.store.GetBatch(ctx, id)
	if err != nil {
		return nil, err
	}

	return &Summary{Batch: b, DeliveryRate: b.DeliveryRate(), Settled: b.Settled()}, nil
}

func (t *Tracker) closed(ctx context.Context, c *Completion) {
	logger.WithFields(logrus.Fields{
		"batch_id":      c.BatchId.String(),
		"vendor_id":     c.VendorId,
		"status":        c.Status,
		"sent":          c.SentCount,
		"failed":        c.FailedCount,
		"delivery_rate": c.DeliveryRate,
	}).Info("batch closed")

	prometheus.ObserveBatchClosed(c.Status.String())

	eventType := notification.EventBatchCompleted
	if c.Status == notification.BatchFailed {
		eventType = notification.EventBatchFailed
	}

	batchId := c.BatchId
	t.events.Record(ctx, notification.Event{
		Type:       eventType,
		VendorId:   c.VendorId,
		BatchId:    &batchId,
		Status:     c.Status.String(),
		Count:      c.TotalRecipients,
		OccurredAt: c.CompletedAt,
	})
}

func completionOf(b *notification.Batch, closed bool) *Completion {
	return &Completion{
		BatchId:         b.Id,
		VendorId:        b.VendorId,
		Status:          b.Status,
		TotalRecipients: b.TotalRecipients,
		SentCount:       b.SentCount,
		DeliveredCount:  b.DeliveredCount,
		FailedCount:     b.FailedCount,
		DeliveryRate:    b.DeliveryRate(),
		CompletedAt:     b.CompletedAt.Time,
		Closed:          closed,
	}
}
