//go:build integration
// +build integration

package integration

import (
	"context"
	"database/sql"
	"net/http/httptest"
	"os"
	"sync"
	"time"

	"inviqa/notification-relay/config"
	h "inviqa/notification-relay/integration/http"
	"inviqa/notification-relay/kafka"
	"inviqa/notification-relay/log"
	"inviqa/notification-relay/notification"
	"inviqa/notification-relay/notification/batch"
	"inviqa/notification-relay/notification/data"
	"inviqa/notification-relay/notification/deadletter"
	"inviqa/notification-relay/notification/enqueue"
	"inviqa/notification-relay/notification/poller"
	"inviqa/notification-relay/notification/provider"
	"inviqa/notification-relay/notification/retry"
	"inviqa/notification-relay/notification/webhook"
	"inviqa/notification-relay/notification/worker"
	"inviqa/notification-relay/recipient"
)

const (
	testModeDocker = "docker"
	eventsTopic    = "notification.events.test"
	maxAttempts    = 3
)

var (
	cfg        *config.Config
	db         *sql.DB
	repo       notification.Repository
	sidecar    *h.Sidecar
	server     *httptest.Server
	sender     *scriptedSender
	events     kafka.EventPublisher
	service    *enqueue.Service
	reconciler *webhook.Reconciler
	tracker    *batch.Tracker
	dlq        *deadletter.Manager
	dispatcher *worker.Worker
	policy     retry.Policy
)

func init() {
	sidecar = &h.Sidecar{}
	server = httptest.NewServer(sidecar)
	setupConfig()

	db, _ = data.NewDB(cfg)
	ensureRecipientsTableExists()
	purgeTables()

	pub, err := kafka.NewEventPublisher(cfg.KafkaHost, cfg.KafkaEventsTopic, kafka.NewSaramaConfig(cfg))
	if err != nil {
		log.Logger.WithError(err).Panic("unable to create the event publisher")
	}
	events = pub

	repo = notification.NewRepository(db, cfg)
	policy = retry.NewPolicy(cfg.MaxRetryAttempts)
	sender = newScriptedSender()

	registry := provider.NewRegistry()
	registry.Register(notification.ChannelEmail, sender)
	registry.Register(notification.ChannelSMS, sender)

	directory := recipient.NewSQLDirectory(db, cfg)
	tracker = batch.NewTracker(repo, events)
	dispatcher = worker.New(repo, registry, policy, tracker, events, cfg.GetProviderTimeout(), nil)
	service = enqueue.NewService(repo, directory, nil, events)
	reconciler = webhook.NewReconciler(repo, tracker, events)
	dlq = deadletter.NewManager(repo, policy, events)

	go func() {
		if err := poller.Start(context.Background(), cfg, dispatcher, nil); err != nil {
			log.Logger.WithError(err).Panic("dispatcher stopped")
		}
	}()
}

func setupConfig() *config.Config {
	cfg = &config.Config{
		DBUser:            "notification-relay",
		DBPass:            "notification-relay",
		DBSchema:          "notification-relay",
		DBMessagesTable:   "notification_messages",
		DBBatchesTable:    "notification_batches",
		DBRecipientsTable: "recipients_test",
		WorkerConcurrency: 2,
		PollFrequencyMs:   50,
		ProviderTimeoutMs: 1000,
		ProcessingTimeout: 60000,
		MaxRetryAttempts:  maxAttempts,
		KafkaHost:         []string{"localhost:9092"},
		KafkaEventsTopic:  eventsTopic,
		SidecarProxyUrl:   server.URL,
	}

	if os.Getenv("DB_DRIVER") == string(config.MySQL) {
		cfg.DBDriver = config.MySQL
		cfg.DBPort = 13306
	} else {
		cfg.DBDriver = config.Postgres
		cfg.DBPort = 15432
	}

	if os.Getenv("GO_TEST_MODE") == testModeDocker {
		cfg.DBHost = cfg.DBDriver.String()
		cfg.DBPort = cfg.DBPort - 10000
		cfg.KafkaHost = []string{"kafka:29092"}
	} else {
		cfg.DBHost = "localhost"
	}

	return cfg
}

// scriptedSender decides the outcome of a send from the recipient token so
// that tests running against the shared dispatcher do not interfere.
type scriptedSender struct {
	sync.Mutex
	outcomes map[string]provider.Outcome
	calls    map[string]int
}

func newScriptedSender() *scriptedSender {
	return &scriptedSender{outcomes: map[string]provider.Outcome{}, calls: map[string]int{}}
}

func (s *scriptedSender) Name() string {
	return "integration"
}

func (s *scriptedSender) Send(_ context.Context, in provider.Input) (provider.Outcome, error) {
	s.Lock()
	defer s.Unlock()
	s.calls[in.RecipientToken]++

	if out, ok := s.outcomes[in.RecipientToken]; ok {
		return out, nil
	}

	return provider.Outcome{Success: true, ProviderId: "int-" + in.MessageId.String()}, nil
}

func (s *scriptedSender) FailFor(token, reason string, retryable bool) {
	s.Lock()
	defer s.Unlock()
	s.outcomes[token] = provider.Outcome{Error: reason, Retryable: retryable}
}

func (s *scriptedSender) Succeed(token string) {
	s.Lock()
	defer s.Unlock()
	delete(s.outcomes, token)
}

func (s *scriptedSender) Calls(token string) int {
	s.Lock()
	defer s.Unlock()
	return s.calls[token]
}

// waitFor polls until cond holds or the timeout expires.
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return cond()
}
