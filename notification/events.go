package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventMessageQueued    EventType = "message.queued"
	EventMessageSent      EventType = "message.sent"
	EventMessageRetry     EventType = "message.retry"
	EventMessageFailed    EventType = "message.failed"
	EventMessageDelivered EventType = "message.delivered"
	EventMessageBounced   EventType = "message.bounced"
	EventMessageOpened    EventType = "message.opened"
	EventMessageClicked   EventType = "message.clicked"
	EventMessageRequeued  EventType = "message.reprocessed"
	EventBatchQueued      EventType = "batch.queued"
	EventBatchCompleted   EventType = "batch.completed"
	EventBatchFailed      EventType = "batch.failed"
)

// Event is an audit and usage record of something that happened to a message
// or batch.
type Event struct {
	Type       EventType  `json:"type"`
	VendorId   string     `json:"vendorId"`
	MessageId  *uuid.UUID `json:"messageId,omitempty"`
	BatchId    *uuid.UUID `json:"batchId,omitempty"`
	Channel    Channel    `json:"channel,omitempty"`
	Status     string     `json:"status,omitempty"`
	RetryCount int        `json:"retryCount,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	Provider   string     `json:"provider,omitempty"`
	Count      int        `json:"count,omitempty"`
	OccurredAt time.Time  `json:"occurredAt"`
}

type EventSink interface {
	Record(ctx context.Context, e Event)
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) Record(context.Context, Event) {}

// MessageEvent builds an event describing the current state of m.
func MessageEvent(t EventType, m *Message, at time.Time) Event {
	id := m.Id
	e := Event{
		Type:       t,
		VendorId:   m.VendorId,
		MessageId:  &id,
		BatchId:    m.BatchId,
		Channel:    m.Channel,
		Status:     m.Status.String(),
		RetryCount: m.RetryCount,
		OccurredAt: at,
	}
	if m.FailureReason.Valid {
		e.Reason = m.FailureReason.String
	}
	if m.ProviderName.Valid {
		e.Provider = m.ProviderName.String
	}
	return e
}
