package kafka

import (
	"context"
	"encoding/json"
	"io"

	"inviqa/notification-relay/log"
	"inviqa/notification-relay/notification"

	"github.com/Shopify/sarama"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const eventTypeHeader = "x-event-type"

// EventPublisher produces notification events to a single topic. It is a
// notification.EventSink, so a failure to publish is logged and never fails
// the operation that raised the event.
type EventPublisher interface {
	io.Closer
	notification.EventSink
	Publish(e notification.Event) error
}

type publisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewEventPublisher(kafkaHost []string, topic string, cfg *sarama.Config) (EventPublisher, error) {
	producer, err := sarama.NewSyncProducer(kafkaHost, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "could not start kafka producer")
	}

	return NewEventPublisherWithProducer(producer, topic), nil
}

func NewEventPublisherWithProducer(prod sarama.SyncProducer, topic string) EventPublisher {
	return &publisher{
		producer: prod,
		topic:    topic,
	}
}

func (p *publisher) Record(_ context.Context, e notification.Event) {
	if err := p.Publish(e); err != nil {
		log.Logger.WithError(err).WithFields(logrus.Fields{
			"type":      e.Type,
			"vendor_id": e.VendorId,
		}).Error("unable to publish notification event")
	}
}

func (p *publisher) Publish(e notification.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "error marshalling notification event")
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   newMessageKey(recordKey(e), e.VendorId),
		Headers: []sarama.RecordHeader{
			{Key: []byte(eventTypeHeader), Value: []byte(e.Type)},
		},
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return errors.Wrap(err, "error producing message in Kafka")
	}

	log.Logger.Debugf("produced %s event in Kafka (topic: %s, partition: %d, offset: %d)", e.Type, p.topic, partition, offset)

	return nil
}

func (p *publisher) Close() error {
	return p.producer.Close()
}

func recordKey(e notification.Event) string {
	switch {
	case e.MessageId != nil:
		return e.MessageId.String()
	case e.BatchId != nil:
		return e.BatchId.String()
	}
	return e.VendorId
}
