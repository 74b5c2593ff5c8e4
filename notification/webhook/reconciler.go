package webhook

import (
	"context"
	"fmt"
	"time"

	"inviqa/notification-relay/log"
	"inviqa/notification-relay/notification"
	"inviqa/notification-relay/notification/batch"
	"inviqa/notification-relay/prometheus"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var logger = log.ForComponent("reconciler")

type EventType string

const (
	Delivered EventType = "delivered"
	Bounced   EventType = "bounced"
	Failed    EventType = "failed"
	Opened    EventType = "opened"
	Clicked   EventType = "clicked"
)

const defaultFailureReason = "provider reported failure"

func (t EventType) IsValid() bool {
	switch t {
	case Delivered, Bounced, Failed, Opened, Clicked:
		return true
	}
	return false
}

// Event is a delivery report pushed by a provider after the message left the
// relay.
type Event struct {
	Provider     string    `json:"provider"`
	Type         EventType `json:"event"`
	ProviderId   string    `json:"providerId"`
	Timestamp    time.Time `json:"timestamp"`
	BounceType   string    `json:"bounceType,omitempty"`
	BounceReason string    `json:"bounceReason,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// Outcome reports whether an event changed the message. Duplicate and late
// events are absorbed with Applied set to false.
type Outcome struct {
	Message *notification.Message
	Applied bool
}

type store interface {
	FindByProviderMessageId(ctx context.Context, providerId string) (*notification.Message, error)
	ApplyDelivered(ctx context.Context, m *notification.Message, at time.Time) (bool, error)
	ApplyDeliveryFailure(ctx context.Context, m *notification.Message, status notification.Status, reason string) (bool, error)
}

type BatchTracker interface {
	CheckBatchCompletion(ctx context.Context, id uuid.UUID) (*batch.Completion, error)
}

type Reconciler struct {
	store   store
	tracker BatchTracker
	events  notification.EventSink
	now     func() time.Time
}

func NewReconciler(s store, tracker BatchTracker, events notification.EventSink) *Reconciler {
	if events == nil {
		events = notification.NopSink{}
	}

	return &Reconciler{
		store:   s,
		tracker: tracker,
		events:  events,
		now:     func() time.Time { return time.Now().In(time.UTC) },
	}
}

// Apply moves the message the event refers to into the reported state.
func (r *Reconciler) Apply(ctx context.Context, e Event) (*Outcome, error) {
	if !e.Type.IsValid() {
		return nil, errors.Wrapf(notification.ErrUnknownEventType, "%q", e.Type)
	}

	m, err := r.store.FindByProviderMessageId(ctx, e.ProviderId)
	if err != nil {
		return nil, err
	}

	entry := logger.WithFields(logrus.Fields{
		"id":          m.Id.String(),
		"provider":    e.Provider,
		"provider_id": e.ProviderId,
		"event":       e.Type,
	})

	var (
		applied   bool
		eventType notification.EventType
	)

	switch e.Type {
	case Delivered:
		applied, err = r.store.ApplyDelivered(ctx, m, r.at(e))
		eventType = notification.EventMessageDelivered
	case Bounced:
		applied, err = r.store.ApplyDeliveryFailure(ctx, m, notification.StatusBounced, bounceReason(e))
		eventType = notification.EventMessageBounced
	case Failed:
		applied, err = r.store.ApplyDeliveryFailure(ctx, m, notification.StatusFailed, failureReason(e))
		eventType = notification.EventMessageFailed
	case Opened, Clicked:
		eventType = notification.EventMessageOpened
		if e.Type == Clicked {
			eventType = notification.EventMessageClicked
		}
		entry.Debug("engagement event recorded")
		prometheus.ObserveWebhookEvent(string(e.Type), false)
		r.events.Record(ctx, notification.MessageEvent(eventType, m, r.at(e)))
		return &Outcome{Message: m}, nil
	}
	if err != nil {
		return nil, err
	}

	prometheus.ObserveWebhookEvent(string(e.Type), applied)

	if !applied {
		entry.WithField("status", m.Status).Debug("webhook event did not apply to the message in its current state")
		return &Outcome{Message: m}, nil
	}

	entry.WithField("status", m.Status).Info("webhook event applied")
	r.events.Record(ctx, notification.MessageEvent(eventType, m, r.at(e)))

	if e.Type != Delivered {
		r.checkBatch(ctx, m)
	}

	return &Outcome{Message: m, Applied: true}, nil
}

func (r *Reconciler) at(e Event) time.Time {
	if e.Timestamp.IsZero() {
		return r.now()
	}
	return e.Timestamp.In(time.UTC)
}

func (r *Reconciler) checkBatch(ctx context.Context, m *notification.Message) {
	if m.BatchId == nil || r.tracker == nil {
		return
	}

	if _, err := r.tracker.CheckBatchCompletion(ctx, *m.BatchId); err != nil {
		logger.WithError(err).WithField("batch_id", m.BatchId.String()).Error("unable to check batch completion")
	}
}

func bounceReason(e Event) string {
	return fmt.Sprintf("%s: %s", e.BounceType, e.BounceReason)
}

func failureReason(e Event) string {
	if e.Error == "" {
		return defaultFailureReason
	}
	return e.Error
}
