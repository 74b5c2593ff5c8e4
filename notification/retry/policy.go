package retry

import (
	"math/rand"
	"time"
)

const (
	DefaultBase        = time.Second
	DefaultMax         = time.Hour
	DefaultJitter      = 0.1
	DefaultMaxAttempts = 5
)

// Policy maps the number of failed attempts of a message to the delay before
// its next attempt: Base doubled per retry, capped at Max and spread by
// Jitter in both directions.
type Policy struct {
	Base        time.Duration
	Max         time.Duration
	Jitter      float64
	MaxAttempts int

	random func() float64
}

func NewPolicy(maxAttempts int) Policy {
	return Policy{
		Base:        DefaultBase,
		Max:         DefaultMax,
		Jitter:      DefaultJitter,
		MaxAttempts: maxAttempts,
		random:      rand.Float64,
	}
}

func DefaultPolicy() Policy {
	return NewPolicy(DefaultMaxAttempts)
}

// WithRandom returns a copy of p drawing jitter from fn, which must return
// values in [0, 1).
func (p Policy) WithRandom(fn func() float64) Policy {
	p.random = fn
	return p
}

func (p Policy) DelayForRetry(retryCount int) time.Duration {
	capped := p.capped(retryCount)
	if p.Jitter <= 0 || capped == 0 {
		return capped
	}

	spread := float64(capped) * p.Jitter
	d := float64(capped) + (p.rand()*2-1)*spread
	if d < 0 {
		return 0
	}

	return time.Duration(d)
}

// Exhausted reports whether a message with the given retry count has used up
// its attempts.
func (p Policy) Exhausted(retryCount int) bool {
	return retryCount >= p.MaxAttempts
}

func (p Policy) capped(retryCount int) time.Duration {
	if p.Base <= 0 {
		return 0
	}

	d := p.Base
	for i := 0; i < retryCount; i++ {
		if d >= p.Max/2 {
			return p.Max
		}
		d *= 2
	}

	if d > p.Max {
		return p.Max
	}

	return d
}

func (p Policy) rand() float64 {
	if p.random == nil {
		return rand.Float64()
	}

	return p.random()
}
