//go:build integration
// +build integration

package kafka

import (
	"sync"

	"github.com/Shopify/sarama"
)

// ConsumerHandler collects the records of a topic until Match reports that
// everything expected has been seen.
type ConsumerHandler struct {
	sync.Mutex
	Match    func(message *sarama.ConsumerMessage) bool
	Found    chan struct{}
	closed   bool
	Received []*sarama.ConsumerMessage
}

func NewConsumerHandler(match func(message *sarama.ConsumerMessage) bool) *ConsumerHandler {
	return &ConsumerHandler{Match: match, Found: make(chan struct{})}
}

func (c *ConsumerHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		c.Lock()
		c.Received = append(c.Received, message)
		if !c.closed && c.Match(message) {
			c.closed = true
			close(c.Found)
		}
		c.Unlock()
		session.MarkMessage(message, "")
	}

	return nil
}

func (c *ConsumerHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (c *ConsumerHandler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}
