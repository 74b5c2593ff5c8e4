//go:build benchmarks
// +build benchmarks

package benchmarks

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	benchkafka "inviqa/notification-relay/benchmarks/kafka"
	"inviqa/notification-relay/config"
	"inviqa/notification-relay/kafka"
	"inviqa/notification-relay/notification"
	"inviqa/notification-relay/notification/data"

	"github.com/google/uuid"
)

var (
	repo         notification.Repository
	cfg          *config.Config
	db           *sql.DB
	pub          kafka.EventPublisher
	producer     *benchkafka.CountingProducer
)

func init() {
	cfg = createConfig()

	db, _ = data.NewDB(cfg)
	repo = notification.NewRepository(db, cfg)
	producer = benchkafka.NewCountingProducer(cfg)
	pub = kafka.NewEventPublisherWithProducer(producer, cfg.KafkaEventsTopic)
}

func purgeTables() {
	for _, table := range []string{cfg.DBMessagesTable, cfg.DBBatchesTable} {
		if _, err := db.Exec(fmt.Sprintf("DELETE FROM `%s`;", table)); err != nil {
			panic(fmt.Sprintf("an error occurred cleaning the %s table: %s", table, err))
		}
	}
}

// populateQueue writes n queued SMS messages as batches of up to
// notification.MaxBatchSize members.
func populateQueue(n int) {
	now := time.Now().UTC()
	for n > 0 {
		size := n
		if size > notification.MaxBatchSize {
			size = notification.MaxBatchSize
		}
		n -= size

		b := &notification.Batch{
			Id:              uuid.New(),
			VendorId:        "vendor-bench",
			Channel:         notification.ChannelSMS,
			Body:            "benchmark",
			Priority:        notification.PriorityNormal,
			TotalRecipients: size,
			Status:          notification.BatchQueued,
			CreatedAt:       now,
		}

		msgs := make([]*notification.Message, size)
		for i := range msgs {
			batchId := b.Id
			msgs[i] = &notification.Message{
				Id:             uuid.New(),
				VendorId:       b.VendorId,
				BatchId:        &batchId,
				Channel:        b.Channel,
				RecipientToken: "TKN_PAR_BENCH001",
				RecipientType:  notification.RecipientParent,
				Body:           b.Body,
				Priority:       b.Priority,
				Status:         notification.StatusQueued,
				CreatedAt:      now,
			}
		}

		if err := repo.InsertBatch(context.Background(), b, msgs); err != nil {
			panic(fmt.Sprintf("failed to populate the queue: %s", err))
		}
	}
}

func createConfig() *config.Config {
	return &config.Config{
		DBHost:            "localhost",
		DBPort:            13306,
		DBUser:            "notification-relay",
		DBPass:            "notification-relay",
		DBSchema:          "notification-relay",
		DBDriver:          config.MySQL,
		DBMessagesTable:   "notification_messages",
		DBBatchesTable:    "notification_batches",
		KafkaHost:         []string{"localhost:9092"},
		KafkaEventsTopic:  "notification.events.bench",
		PollFrequencyMs:   500,
		MaxRetryAttempts:  5,
		ProviderTimeoutMs: 1000,
	}
}
