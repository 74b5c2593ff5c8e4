package test

import (
	"fmt"
	"sync"

	"github.com/Shopify/sarama"
	"github.com/go-test/deep"
)

const eventTypeHeader = "x-event-type"

// MockEventProducer records produced events per topic. It can be told to fail
// the next send to exercise the publisher's error path.
type MockEventProducer struct {
	mu       sync.Mutex
	produced map[string][]*sarama.ProducerMessage
	failWith error
}

func NewMockEventProducer() *MockEventProducer {
	return &MockEventProducer{
		produced: map[string][]*sarama.ProducerMessage{},
	}
}

func (m *MockEventProducer) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

func (m *MockEventProducer) MessageWasProduced(topic string, exp *sarama.ProducerMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	msgs, ok := m.produced[topic]
	if !ok {
		return fmt.Errorf("no events produced to %s", topic)
	}

	for _, msg := range msgs {
		if diff := deep.Equal(exp, msg); diff == nil {
			return nil
		}
	}
	return fmt.Errorf("none of the %d events in %s match %#v", len(msgs), topic, exp)
}

// EventTypes lists the event type header of every record produced to topic,
// in order.
func (m *MockEventProducer) EventTypes(topic string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var types []string
	for _, msg := range m.produced[topic] {
		for _, h := range msg.Headers {
			if string(h.Key) == eventTypeHeader {
				types = append(types, string(h.Value))
			}
		}
	}
	return types
}

func (m *MockEventProducer) SendMessage(msg *sarama.ProducerMessage) (int32, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWith != nil {
		err := m.failWith
		m.failWith = nil
		return 0, 0, err
	}

	m.produced[msg.Topic] = append(m.produced[msg.Topic], msg)

	return 0, int64(len(m.produced[msg.Topic]) - 1), nil
}

func (m *MockEventProducer) SendMessages(msgs []*sarama.ProducerMessage) error {
	for _, msg := range msgs {
		if _, _, err := m.SendMessage(msg); err != nil {
			return err
		}
	}
	return nil
}

func (m *MockEventProducer) Close() error {
	return nil
}
