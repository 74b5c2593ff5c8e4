package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"

	nr "github.com/newrelic/go-agent/v3/newrelic"
	"golang.org/x/sync/errgroup"

	"inviqa/notification-relay/config"
	h "inviqa/notification-relay/http"
	"inviqa/notification-relay/job"
	"inviqa/notification-relay/kafka"
	"inviqa/notification-relay/log"
	"inviqa/notification-relay/newrelic"
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
	"inviqa/notification-relay/pricing"
	"inviqa/notification-relay/prometheus"
	"inviqa/notification-relay/recipient"
)

func main() {
	nrApp, stopAgent := newrelic.StartAgent()
	defer stopAgent()

	ctx, cancel := context.WithCancel(context.Background())
	cfg, err := config.NewConfig()
	if err != nil {
		log.Logger.Fatalf("unable to create configuration: %s", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
	}()

	db, dbClose := data.NewDB(cfg)
	defer dbClose()

	repo := notification.NewRepository(db, cfg)
	policy := retry.NewPolicy(cfg.MaxRetryAttempts)

	var exitCode int
	switch {
	case cfg.RunSweep:
		w := worker.New(repo, provider.NewRegistry(), policy, batch.NewTracker(repo, nil), nil, 0, nrApp)
		exitCode = job.RunSweep(ctx, job.NewSweep(repo, w, cfg.GetProcessingTimeout()), cfg)
	case cfg.RunOptimize:
		exitCode = job.RunOptimize(ctx, nrApp, db, cfg)
	default:
		exitCode = runMainApp(ctx, nrApp, db, repo, policy, cfg)
	}

	if exitCode > 0 {
		dbClose() // we call this manually because os.Exit() does not respect defer
		stopAgent()
		os.Exit(exitCode)
	}
}

func runMainApp(ctx context.Context, nrApp *nr.Application, db *sql.DB, repo notification.Repository, policy retry.Policy, cfg *config.Config) int {
	events, closeEvents := newEventSink(cfg)
	defer closeEvents()

	directory := newRecipientDirectory(db, cfg)
	registry, err := provider.NewRegistryFromConfig(cfg, directory)
	if err != nil {
		log.Logger.WithError(err).Error("unable to configure providers")
		return 1
	}

	tracker := batch.NewTracker(repo, events)
	w := worker.New(repo, registry, policy, tracker, events, cfg.GetProviderTimeout(), nrApp)
	sweep := job.NewSweep(repo, w, cfg.GetProcessingTimeout())

	api := h.NewAPIHandler(
		enqueue.NewService(repo, directory, pricing.NewTieredEstimator(cfg), events),
		tracker,
		deadletter.NewManager(repo, policy, events),
	)
	webhooks := h.NewWebhookHandler(webhook.NewReconciler(repo, tracker, events))

	go prometheus.ObserveSizes(repo, ctx)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return poller.Start(ctx, cfg, w, sweep)
	})
	g.Go(func() error {
		return h.StartHttpServer(ctx, cfg, h.NewServeMux(cfg, db, webhooks, api))
	})

	if err := g.Wait(); err != nil {
		log.Logger.WithError(err).Error("notification relay stopped unexpectedly")
		return 1
	}

	log.Logger.Info("notification relay stopped")
	return 0
}

func newEventSink(cfg *config.Config) (notification.EventSink, func()) {
	if !cfg.KafkaEnabled() {
		return notification.NopSink{}, func() {}
	}

	pub, err := kafka.NewEventPublisher(cfg.KafkaHost, cfg.KafkaEventsTopic, kafka.NewSaramaConfig(cfg))
	if err != nil {
		log.Logger.WithError(err).Fatal("unable to start the event publisher")
	}

	return pub, func() {
		if err := pub.Close(); err != nil {
			log.Logger.WithError(err).Error("unable to close the event publisher")
		}
	}
}

func newRecipientDirectory(db *sql.DB, cfg *config.Config) recipient.Directory {
	var d recipient.Directory = recipient.NewSQLDirectory(db, cfg)
	if !cfg.RedisEnabled() {
		return d
	}

	return recipient.NewCachedDirectory(d, recipient.NewRedisClient(cfg), cfg.GetRecipientCacheTTL())
}
