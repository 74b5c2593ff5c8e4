package job

import (
	"context"
	"net/http"
	"time"

	"inviqa/notification-relay/config"
	"inviqa/notification-relay/log"
	"inviqa/notification-relay/notification"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var logger = log.ForComponent("sweep")

const (
	sweepPageSize      = 100
	stuckFailureReason = "processing timeout"
)

type staleLister interface {
	ListStale(ctx context.Context, startedBefore time.Time, limit int) ([]*notification.Message, error)
}

// failureRecorder applies a failed attempt the same way a worker does.
type failureRecorder interface {
	RecordFailure(ctx context.Context, m *notification.Message, reason string, retryable bool) error
}

// Sweep releases messages whose worker went away while they were processing.
// Each one counts as a failed, retryable attempt, so it is requeued with a
// backoff or dead-lettered once its retries are used up.
type Sweep struct {
	store    staleLister
	recorder failureRecorder
	timeout  time.Duration
	now      func() time.Time
	SidecarQuitter
}

func NewSweep(s staleLister, r failureRecorder, timeout time.Duration) *Sweep {
	return newSweep(s, r, timeout, http.DefaultClient)
}

func newSweep(s staleLister, r failureRecorder, timeout time.Duration, cl httpDoer) *Sweep {
	return &Sweep{
		store:          s,
		recorder:       r,
		timeout:        timeout,
		now:            func() time.Time { return time.Now().In(time.UTC) },
		SidecarQuitter: SidecarQuitter{Client: cl},
	}
}

func RunSweep(ctx context.Context, s *Sweep, cfg *config.Config) int {
	if cfg.SidecarProxyUrl != "" {
		s.EnableSideCarProxyQuit(cfg.SidecarProxyUrl)
	}

	_, err := s.Execute(ctx)

	if s.QuitSidecar {
		if qErr := s.Quit(ctx); qErr != nil && err == nil {
			err = qErr
		}
	}

	if err != nil {
		return 1
	}
	return 0
}

// Execute returns the number of messages released.
func (s *Sweep) Execute(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.timeout)
	released := 0

	for {
		msgs, err := s.store.ListStale(ctx, cutoff, sweepPageSize)
		if err != nil {
			logger.WithError(err).Error("an error occurred whilst listing stuck messages")
			return released, err
		}

		for _, m := range msgs {
			err := s.recorder.RecordFailure(ctx, m, stuckFailureReason, true)
			if errors.Is(err, notification.ErrClaimLost) {
				// finished by its worker since it was listed
				continue
			}
			if err != nil {
				logger.WithError(err).WithField("id", m.Id.String()).Error("unable to release stuck message")
				return released, err
			}
			released++
		}

		if len(msgs) < sweepPageSize {
			break
		}
	}

	if released > 0 {
		logger.WithFields(logrus.Fields{
			"released": released,
			"cutoff":   cutoff,
		}).Warn("released messages stuck in processing")
	} else {
		logger.Debug("no messages stuck in processing")
	}

	return released, nil
}
