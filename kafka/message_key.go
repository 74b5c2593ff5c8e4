package kafka

import (
	"github.com/Shopify/sarama"
)

// MessageKey is the record key of an event. Key is written to Kafka while
// PartitionKey, when set, decides the partition so that all events of one
// vendor stay in order.
type MessageKey struct {
	Key          string
	PartitionKey string
	sarama.StringEncoder
}

func newMessageKey(key, partitionKey string) MessageKey {
	return MessageKey{
		Key:           key,
		PartitionKey:  partitionKey,
		StringEncoder: sarama.StringEncoder(key),
	}
}

func (k MessageKey) KeyForPartitioning() string {
	if k.PartitionKey == "" {
		return k.Key
	}
	return k.PartitionKey
}
