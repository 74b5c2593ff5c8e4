package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"inviqa/notification-relay/config"
	"inviqa/notification-relay/kafka/test"
	"inviqa/notification-relay/notification"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
	"github.com/go-test/deep"
	"github.com/google/uuid"
)

func TestNewEventPublisherWithProducer(t *testing.T) {
	deep.CompareUnexportedFields = true
	deep.MaxDepth = 2
	defer func() {
		deep.CompareUnexportedFields = false
		deep.MaxDepth = 10
	}()

	prod := mocks.NewSyncProducer(t, NewSaramaConfig(&config.Config{}))
	exp := &publisher{
		producer: prod,
		topic:    "notification.events",
	}

	if diff := deep.Equal(exp, NewEventPublisherWithProducer(prod, "notification.events")); diff != nil {
		t.Error(diff)
	}
}

func TestPublisher_PublishMessageEvent(t *testing.T) {
	prod := test.NewMockEventProducer()
	pub := NewEventPublisherWithProducer(prod, "notification.events")

	id := uuid.MustParse("0b3c5b36-5f0c-4b7e-9d59-8a3c2b1f4e10")
	e := notification.Event{
		Type:       notification.EventMessageSent,
		VendorId:   "vendor-1",
		MessageId:  &id,
		Channel:    notification.ChannelEmail,
		Status:     "sent",
		Provider:   "brevo",
		OccurredAt: time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC),
	}

	if err := pub.Publish(e); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	payload, _ := json.Marshal(e)
	exp := &sarama.ProducerMessage{
		Topic: "notification.events",
		Key:   newMessageKey(id.String(), "vendor-1"),
		Headers: []sarama.RecordHeader{
			{Key: []byte("x-event-type"), Value: []byte("message.sent")},
		},
		Value: sarama.ByteEncoder(payload),
	}

	if err := prod.MessageWasProduced("notification.events", exp); err != nil {
		t.Error(err)
	}
}

func TestPublisher_RecordKeys(t *testing.T) {
	msgId := uuid.New()
	batchId := uuid.New()

	tests := []struct {
		name  string
		event notification.Event
		want  string
	}{
		{"message event", notification.Event{VendorId: "vendor-1", MessageId: &msgId, BatchId: &batchId}, msgId.String()},
		{"batch event", notification.Event{VendorId: "vendor-1", BatchId: &batchId}, batchId.String()},
		{"vendor event", notification.Event{VendorId: "vendor-1"}, "vendor-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := recordKey(tt.event); got != tt.want {
				t.Errorf("expected key %s, got %s", tt.want, got)
			}
		})
	}
}

func TestPublisher_RecordSwallowsSendErrors(t *testing.T) {
	prod := mocks.NewSyncProducer(t, NewSaramaConfig(&config.Config{}))
	pub := NewEventPublisherWithProducer(prod, "notification.events")

	prod.ExpectSendMessageAndFail(errors.New("oops"))
	pub.Record(context.Background(), notification.Event{Type: notification.EventBatchQueued, VendorId: "vendor-1"})

	prod.ExpectSendMessageAndFail(errors.New("oops"))
	if err := pub.Publish(notification.Event{Type: notification.EventBatchQueued, VendorId: "vendor-1"}); err == nil {
		t.Error("expected an error but got nil")
	}

	if err := pub.Close(); err != nil {
		t.Errorf("unexpected error closing the producer: %s", err)
	}
}

func TestPublisher_RecordKeepsEventOrder(t *testing.T) {
	prod := test.NewMockEventProducer()
	pub := NewEventPublisherWithProducer(prod, "notification.events")
	id := uuid.New()

	pub.Record(context.Background(), notification.Event{Type: notification.EventMessageQueued, VendorId: "vendor-1", MessageId: &id})
	prod.FailNext(errors.New("broker unavailable"))
	pub.Record(context.Background(), notification.Event{Type: notification.EventMessageSent, VendorId: "vendor-1", MessageId: &id})
	pub.Record(context.Background(), notification.Event{Type: notification.EventMessageDelivered, VendorId: "vendor-1", MessageId: &id})

	exp := []string{"message.queued", "message.delivered"}
	if diff := deep.Equal(exp, prod.EventTypes("notification.events")); diff != nil {
		t.Error(diff)
	}
}
