package test

import (
	"context"
	"sync"

	"inviqa/notification-relay/notification/provider"
)

type response struct {
	outcome provider.Outcome
	err     error
}

// MockSender replays queued responses in order and then keeps answering with
// the last one. With nothing queued every send succeeds.
type MockSender struct {
	sync.Mutex
	name      string
	responses []response
	sent      []provider.Input
	counter   int
}

func NewMockSender(name string) *MockSender {
	return &MockSender{name: name}
}

func (s *MockSender) Name() string {
	return s.name
}

func (s *MockSender) Send(ctx context.Context, in provider.Input) (provider.Outcome, error) {
	s.Lock()
	defer s.Unlock()
	s.sent = append(s.sent, in)
	s.counter++

	if len(s.responses) == 0 {
		return provider.Outcome{Success: true, ProviderId: s.name + "-" + in.MessageId.String(), ProviderName: s.name}, nil
	}

	r := s.responses[0]
	if len(s.responses) > 1 {
		s.responses = s.responses[1:]
	}

	return r.outcome, r.err
}

func (s *MockSender) WillReturn(out provider.Outcome) *MockSender {
	s.Lock()
	defer s.Unlock()
	if out.ProviderName == "" {
		out.ProviderName = s.name
	}
	s.responses = append(s.responses, response{outcome: out})

	return s
}

func (s *MockSender) WillFail(err error) *MockSender {
	s.Lock()
	defer s.Unlock()
	s.responses = append(s.responses, response{err: err})

	return s
}

func (s *MockSender) CallCount() int {
	s.Lock()
	defer s.Unlock()
	return s.counter
}

func (s *MockSender) Sent() []provider.Input {
	s.Lock()
	defer s.Unlock()
	return append([]provider.Input{}, s.sent...)
}

// BlockingSender waits until the context ends, like a provider that never
// answers.
type BlockingSender struct{}

func (BlockingSender) Name() string {
	return "blocking"
}

func (BlockingSender) Send(ctx context.Context, _ provider.Input) (provider.Outcome, error) {
	<-ctx.Done()
	return provider.Outcome{}, ctx.Err()
}
