package kafka

import (
	"crypto/tls"
	"fmt"
	"os"
	"time"

	"inviqa/notification-relay/config"

	"github.com/Shopify/sarama"
)

const clientIdPrefix = "notification-relay"

// NewSaramaConfig builds the producer settings for the event stream. Events
// are acknowledged by the partition leader only: they are an audit trail, and
// a lost event never loses a notification.
func NewSaramaConfig(cfg *config.Config) *sarama.Config {
	sc := sarama.NewConfig()

	sc.ClientID = clientId()
	sc.Version = sarama.V2_4_0_0
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForLocal
	sc.Producer.Compression = sarama.CompressionSnappy
	sc.Producer.Partitioner = NewVendorPartitioner
	sc.Producer.Retry.Max = 3
	sc.Producer.Timeout = 5 * time.Second
	sc.Metadata.Retry.Max = 10
	sc.Metadata.Retry.Backoff = 2 * time.Second

	if cfg.TLSEnable {
		sc.Net.TLS.Enable = true
		// #nosec G402
		sc.Net.TLS.Config = &tls.Config{InsecureSkipVerify: cfg.TLSSkipVerifyPeer}
	}

	return sc
}

func clientId() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return clientIdPrefix
	}
	return fmt.Sprintf("%s-%s", clientIdPrefix, host)
}
