package poller

import (
	"context"
	"time"

	"inviqa/notification-relay/notification"
)

type Poller interface {
	Poll(ctx context.Context, interval time.Duration) error
}

type claimer interface {
	ClaimNextDue(ctx context.Context) (*notification.Message, error)
}

func New(c claimer, ch chan<- *notification.Message) Poller {
	return &queuePoller{
		ch:      ch,
		claimer: c,
	}
}

type queuePoller struct {
	ch      chan<- *notification.Message
	claimer claimer
}

// Poll claims due messages and hands them to the dispatchers until ctx is
// cancelled. It only waits for the interval when the queue is idle or the
// claim failed.
func (p queuePoller) Poll(ctx context.Context, interval time.Duration) error {
	for {
		m, err := p.claimer.ClaimNextDue(ctx)
		if err != nil {
			logger.WithError(err).Errorf("an unexpected error occurred when polling the queue: %s", err)
		}

		if m == nil {
			if !wait(ctx, interval) {
				return nil
			}
			continue
		}

		select {
		case p.ch <- m:
		case <-ctx.Done():
			// the claim is released by the visibility sweep
			return nil
		}
	}
}

func wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
