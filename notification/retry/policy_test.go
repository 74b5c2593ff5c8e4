package retry

import (
	"math"
	"testing"
	"time"
)

func TestPolicy_DelayForRetryWithoutJitter(t *testing.T) {
	p := DefaultPolicy()
	p.Jitter = 0

	tests := []struct {
		retryCount int
		want       time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{5, 32 * time.Second},
		{11, 2048 * time.Second},
		{12, time.Hour},
		{63, time.Hour},
		{1000000, time.Hour},
		{math.MaxInt32, time.Hour},
		{-3, time.Second},
	}

	for _, tt := range tests {
		if got := p.DelayForRetry(tt.retryCount); got != tt.want {
			t.Errorf("DelayForRetry(%d) = %v, want %v", tt.retryCount, got, tt.want)
		}
	}
}

func TestPolicy_DelayForRetryJitterBounds(t *testing.T) {
	tests := []struct {
		name   string
		random float64
		want   time.Duration
	}{
		{"lowest draw", 0, 3600 * time.Millisecond},
		{"middle draw", 0.5, 4 * time.Second},
		{"highest draw", 0.999999, 4400 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPolicy().WithRandom(func() float64 { return tt.random })

			got := p.DelayForRetry(2)
			if diff := got - tt.want; diff > time.Millisecond || diff < -time.Millisecond {
				t.Errorf("DelayForRetry(2) = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPolicy_DelayForRetryStaysWithinBounds(t *testing.T) {
	p := DefaultPolicy()

	for n := 0; n < 40; n++ {
		capped := p.capped(n)
		low := time.Duration(float64(capped)*(1-p.Jitter)) - time.Microsecond
		high := time.Duration(float64(capped)*(1+p.Jitter)) + time.Microsecond

		for i := 0; i < 50; i++ {
			d := p.DelayForRetry(n)
			if d < low || d > high {
				t.Fatalf("DelayForRetry(%d) = %v outside [%v, %v]", n, d, low, high)
			}
		}
	}
}

func TestPolicy_Exhausted(t *testing.T) {
	p := NewPolicy(5)

	for n := 0; n < 5; n++ {
		if p.Exhausted(n) {
			t.Errorf("expected %d retries not to exhaust the policy", n)
		}
	}

	if !p.Exhausted(5) || !p.Exhausted(6) {
		t.Error("expected 5 or more retries to exhaust the policy")
	}
}

func TestPolicy_ZeroValueDoesNotPanic(t *testing.T) {
	var p Policy

	if got := p.DelayForRetry(3); got != 0 {
		t.Errorf("expected no delay from a zero policy, got %v", got)
	}
}
