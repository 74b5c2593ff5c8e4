package deadletter

import (
	"context"
	"time"

	"inviqa/notification-relay/log"
	"inviqa/notification-relay/notification"
	"inviqa/notification-relay/notification/retry"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var logger = log.ForComponent("dead-letter")

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

type store interface {
	Get(ctx context.Context, id uuid.UUID) (*notification.Message, error)
	ListFailed(ctx context.Context, vendorId string, limit, offset int) ([]*notification.Message, error)
	Reprocess(ctx context.Context, m *notification.Message) error
}

// Filter narrows a listing to one vendor. An empty VendorId lists all vendors.
type Filter struct {
	VendorId string
	Limit    int
	Offset   int
}

// Entry is a dead-lettered message. Exhausted separates messages that used up
// their retries from those that failed in a way that could not be retried.
type Entry struct {
	Message   *notification.Message
	Reason    string
	Exhausted bool
}

type Manager struct {
	store  store
	policy retry.Policy
	events notification.EventSink
	now    func() time.Time
}

func NewManager(s store, policy retry.Policy, events notification.EventSink) *Manager {
	if events == nil {
		events = notification.NopSink{}
	}

	return &Manager{
		store:  s,
		policy: policy,
		events: events,
		now:    func() time.Time { return time.Now().In(time.UTC) },
	}
}

func (dl *Manager) List(ctx context.Context, f Filter) ([]Entry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	msgs, err := dl.store.ListFailed(ctx, f.VendorId, limit, offset)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, len(msgs))
	for i, m := range msgs {
		entries[i] = Entry{
			Message:   m,
			Reason:    m.FailureReason.String,
			Exhausted: dl.policy.Exhausted(m.RetryCount),
		}
	}

	return entries, nil
}

// Reprocess puts a dead-lettered message back in the queue with a fresh retry
// budget.
func (dl *Manager) Reprocess(ctx context.Context, id uuid.UUID) (*notification.Message, error) {
	m, err := dl.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if m.Status != notification.StatusFailed {
		return nil, notification.ErrNotDeadLettered
	}

	reason := m.FailureReason.String
	if err := dl.store.Reprocess(ctx, m); err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"id":              m.Id.String(),
		"vendor_id":       m.VendorId,
		"previous_reason": reason,
	}).Info("dead-lettered message requeued")

	e := notification.MessageEvent(notification.EventMessageRequeued, m, dl.now())
	e.Reason = reason
	dl.events.Record(ctx, e)

	return m, nil
}
