package poller

import (
	"context"
	"time"

	"inviqa/notification-relay/config"
	"inviqa/notification-relay/log"
	"inviqa/notification-relay/notification"
	"inviqa/notification-relay/notification/worker"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

var logger = log.ForComponent("dispatcher")

type dispatcher interface {
	claimer
	Dispatch(ctx context.Context, m *notification.Message) (*worker.Result, error)
}

type sweeper interface {
	Execute(ctx context.Context) (int, error)
}

// Start runs the poller, the dispatchers and the periodic visibility sweep
// until ctx is cancelled.
func Start(ctx context.Context, cfg *config.Config, d dispatcher, s sweeper) error {
	logger.WithField("config", cfg).Info("starting notification dispatch")

	concurrency := cfg.WorkerConcurrency
	if concurrency < 1 {
		concurrency = 1
	}

	msgCh := make(chan *notification.Message, concurrency)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return New(d, msgCh).Poll(ctx, cfg.GetPollIntervalDurationInMs())
	})

	for i := 0; i < concurrency; i++ {
		g.Go(func() error {
			ListenAndDispatch(ctx, d, msgCh)
			return nil
		})
	}

	if s != nil {
		g.Go(func() error {
			SweepEvery(ctx, s, cfg.GetSweepInterval())
			return nil
		})
	}

	return g.Wait()
}

// ListenAndDispatch dispatches claimed messages until ctx is cancelled. A
// dispatch already under way is allowed to record its outcome.
func ListenAndDispatch(ctx context.Context, d dispatcher, messages <-chan *notification.Message) {
	for {
		select {
		case m := <-messages:
			if m == nil {
				break
			}

			if _, err := d.Dispatch(context.WithoutCancel(ctx), m); err != nil {
				entry := logger.WithError(err).WithField("id", m.Id.String())
				if errors.Is(err, notification.ErrClaimLost) {
					entry.Warn("message was reclaimed while it was being dispatched")
				} else {
					entry.Error("unable to record the dispatch outcome")
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func SweepEvery(ctx context.Context, s sweeper, interval time.Duration) {
	if interval <= 0 {
		return
	}

	for wait(ctx, interval) {
		if _, err := s.Execute(ctx); err != nil {
			logger.WithError(err).Error("visibility sweep failed")
		}
	}
}
