//go:build benchmarks
// +build benchmarks

package kafka

import (
	"sync"

	"inviqa/notification-relay/config"
	"inviqa/notification-relay/kafka"

	"github.com/Shopify/sarama"
)

// CountingProducer forwards events to Kafka and counts the ones the broker
// acknowledged, per event type.
type CountingProducer struct {
	mu       sync.Mutex
	producer sarama.SyncProducer
	acked    map[string]int
}

func NewCountingProducer(cfg *config.Config) *CountingProducer {
	p, err := sarama.NewSyncProducer(cfg.KafkaHost, kafka.NewSaramaConfig(cfg))
	if err != nil {
		panic(err)
	}

	return &CountingProducer{
		producer: p,
		acked:    map[string]int{},
	}
}

// Acked returns the number of acknowledged events, across all types when no
// type is given.
func (cp *CountingProducer) Acked(eventTypes ...string) int {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	if len(eventTypes) == 0 {
		total := 0
		for _, n := range cp.acked {
			total += n
		}
		return total
	}

	total := 0
	for _, t := range eventTypes {
		total += cp.acked[t]
	}
	return total
}

func (cp *CountingProducer) SendMessage(msg *sarama.ProducerMessage) (int32, int64, error) {
	pt, off, err := cp.producer.SendMessage(msg)
	if err != nil {
		return pt, off, err
	}

	cp.mu.Lock()
	cp.acked[eventType(msg)]++
	cp.mu.Unlock()

	return pt, off, nil
}

func (cp *CountingProducer) SendMessages(msgs []*sarama.ProducerMessage) error {
	for _, m := range msgs {
		if _, _, err := cp.SendMessage(m); err != nil {
			return err
		}
	}
	return nil
}

func (cp *CountingProducer) Close() error {
	return cp.producer.Close()
}

func eventType(msg *sarama.ProducerMessage) string {
	for _, h := range msg.Headers {
		if string(h.Key) == "x-event-type" {
			return string(h.Value)
		}
	}
	return ""
}
