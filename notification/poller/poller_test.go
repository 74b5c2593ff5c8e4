package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"inviqa/notification-relay/notification"
	"inviqa/notification-relay/notification/worker"

	"github.com/google/uuid"
)

type mockDispatcher struct {
	sync.Mutex
	queue       []*notification.Message
	claimCalls  int
	dispatched  []uuid.UUID
	returnError bool
	dispatchErr error
}

func (d *mockDispatcher) ClaimNextDue(context.Context) (*notification.Message, error) {
	d.Lock()
	defer d.Unlock()
	d.claimCalls++

	if d.returnError {
		return nil, errors.New("oops")
	}
	if len(d.queue) == 0 {
		return nil, nil
	}

	m := d.queue[0]
	d.queue = d.queue[1:]

	return m, nil
}

func (d *mockDispatcher) Dispatch(_ context.Context, m *notification.Message) (*worker.Result, error) {
	d.Lock()
	defer d.Unlock()
	d.dispatched = append(d.dispatched, m.Id)

	return &worker.Result{Message: m}, d.dispatchErr
}

func (d *mockDispatcher) ClaimCallCount() int {
	d.Lock()
	defer d.Unlock()
	return d.claimCalls
}

func (d *mockDispatcher) Dispatched() []uuid.UUID {
	d.Lock()
	defer d.Unlock()
	return append([]uuid.UUID{}, d.dispatched...)
}

type mockSweeper struct {
	sync.Mutex
	calls int
}

func (s *mockSweeper) Execute(context.Context) (int, error) {
	s.Lock()
	defer s.Unlock()
	s.calls++
	return 0, nil
}

func (s *mockSweeper) CallCount() int {
	s.Lock()
	defer s.Unlock()
	return s.calls
}

func TestNew(t *testing.T) {
	if nil == New(&mockDispatcher{}, make(chan *notification.Message)) {
		t.Errorf("received nil from New()")
	}
}

func Test_Poller_Poll(t *testing.T) {
	t.Run("it polls for messages and sends them for dispatch", func(t *testing.T) {
		m1 := &notification.Message{Id: uuid.New()}
		m2 := &notification.Message{Id: uuid.New()}
		d := &mockDispatcher{queue: []*notification.Message{m1, m2}}
		ch := make(chan *notification.Message, 2)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go New(d, ch).Poll(ctx, time.Millisecond*10)

		for _, want := range []*notification.Message{m1, m2} {
			select {
			case got := <-ch:
				if got.Id != want.Id {
					t.Errorf("expected message %s, got %s", want.Id, got.Id)
				}
			case <-time.After(time.Second):
				t.Fatalf("timed out waiting for message %s", want.Id)
			}
		}
	})

	t.Run("it sleeps after a claim error", func(t *testing.T) {
		d := &mockDispatcher{returnError: true}

		ctx, cancel := context.WithCancel(context.Background())
		go New(d, make(chan *notification.Message)).Poll(ctx, time.Second*200)

		time.Sleep(time.Millisecond * 100)
		cancel()

		if d.ClaimCallCount() > 1 {
			t.Errorf("expected the poller to sleep after ClaimNextDue() returns an error")
		}
	})

	t.Run("it sleeps when the queue is idle", func(t *testing.T) {
		d := &mockDispatcher{}

		ctx, cancel := context.WithCancel(context.Background())
		go New(d, make(chan *notification.Message)).Poll(ctx, time.Second*200)

		time.Sleep(time.Millisecond * 100)
		cancel()

		if d.ClaimCallCount() > 1 {
			t.Errorf("expected the poller to sleep when there is nothing to claim")
		}
	})

	t.Run("it returns when the context is cancelled", func(t *testing.T) {
		d := &mockDispatcher{queue: []*notification.Message{{Id: uuid.New()}}}
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})

		go func() {
			_ = New(d, make(chan *notification.Message)).Poll(ctx, time.Millisecond*10)
			close(done)
		}()

		time.Sleep(time.Millisecond * 50)
		cancel()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Error("the poller did not stop after the context was cancelled")
		}
	})
}

func TestStart(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	d := &mockDispatcher{}
	for _, id := range ids {
		d.queue = append(d.queue, &notification.Message{Id: id})
	}
	s := &mockSweeper{}
	cfg := testConfig()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- Start(ctx, cfg, d, s)
	}()

	time.Sleep(time.Millisecond * 100)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %s", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Start() did not return after the context was cancelled")
	}

	if got := len(d.Dispatched()); got != len(ids) {
		t.Errorf("expected %d dispatched messages, got %d", len(ids), got)
	}
	if s.CallCount() == 0 {
		t.Error("expected the sweep to run")
	}
}

func TestListenAndDispatchSurvivesErrors(t *testing.T) {
	d := &mockDispatcher{dispatchErr: notification.ErrClaimLost}
	ch := make(chan *notification.Message, 2)
	ch <- &notification.Message{Id: uuid.New()}
	ch <- &notification.Message{Id: uuid.New()}

	ctx, cancel := context.WithCancel(context.Background())
	go ListenAndDispatch(ctx, d, ch)

	time.Sleep(time.Millisecond * 50)
	cancel()

	if got := len(d.Dispatched()); got != 2 {
		t.Errorf("expected both messages to be dispatched, got %d", got)
	}
}
