package provider

import (
	"context"
	"fmt"
	"time"

	"inviqa/notification-relay/log"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

var errProviderUnavailable = errors.New("provider reported a transient failure")

// Breaker stops calling a provider that keeps failing transiently and fails
// fast with a retryable outcome until the provider has had time to recover.
type Breaker struct {
	next Sender
	cb   *gobreaker.CircuitBreaker
}

type BreakerSettings struct {
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	MinRequests uint32
	MaxFailures float64
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		MinRequests: 5,
		MaxFailures: 0.5,
	}
}

func NewBreaker(next Sender, settings BreakerSettings) *Breaker {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        next.Name(),
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= settings.MinRequests && failureRatio >= settings.MaxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Logger.WithFields(logrus.Fields{
				"provider": name,
				"from":     from.String(),
				"to":       to.String(),
			}).Warn("provider circuit breaker state changed")
		},
	})

	return &Breaker{next: next, cb: cb}
}

func (b *Breaker) Name() string {
	return b.next.Name()
}

func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// Send calls the wrapped provider. Transport errors and retryable rejections
// count against the provider, permanent rejections do not.
func (b *Breaker) Send(ctx context.Context, in Input) (Outcome, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		out, err := b.next.Send(ctx, in)
		if err != nil {
			return out, err
		}
		if !out.Success && out.Retryable {
			return out, errProviderUnavailable
		}
		return out, nil
	})

	switch {
	case err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests:
		return Outcome{
			ProviderName: b.Name(),
			Error:        fmt.Sprintf("%s: %s", b.Name(), err),
			Retryable:    true,
		}, nil
	case err == errProviderUnavailable:
		return res.(Outcome), nil
	case err != nil:
		return Outcome{}, err
	}

	return res.(Outcome), nil
}
