package kafka

import (
	"github.com/Shopify/sarama"
)

type VendorPartitioner struct {
	topic           string
	hashPartitioner sarama.Partitioner
}

func NewVendorPartitioner(topic string) sarama.Partitioner {
	return NewVendorPartitionerWithCustomPartitioner(topic, sarama.NewHashPartitioner(topic))
}

func NewVendorPartitionerWithCustomPartitioner(topic string, p sarama.Partitioner) sarama.Partitioner {
	return VendorPartitioner{
		topic:           topic,
		hashPartitioner: p,
	}
}

func (o VendorPartitioner) Partition(message *sarama.ProducerMessage, numPartitions int32) (int32, error) {
	mk, ok := message.Key.(MessageKey)
	if !ok {
		return o.hashPartitioner.Partition(message, numPartitions)
	}

	// hash on the partition key, then put the record key back
	message.Key = sarama.StringEncoder(mk.KeyForPartitioning())
	ptn, err := o.hashPartitioner.Partition(message, numPartitions)
	message.Key = mk

	return ptn, err
}

func (o VendorPartitioner) RequiresConsistency() bool {
	return true
}
