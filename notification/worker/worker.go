package worker

import (
	"context"
	"time"

	nr "github.com/newrelic/go-agent/v3/newrelic"

	"inviqa/notification-relay/log"
	"inviqa/notification-relay/newrelic"
	"inviqa/notification-relay/notification"
	"inviqa/notification-relay/notification/batch"
	"inviqa/notification-relay/notification/provider"
	"inviqa/notification-relay/notification/retry"
	"inviqa/notification-relay/prometheus"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var logger = log.ForComponent("worker")

const defaultFailureReason = "provider reported failure"

type store interface {
	Get(ctx context.Context, id uuid.UUID) (*notification.Message, error)
	ClaimNext(ctx context.Context) (*notification.Message, error)
	ClaimNextDue(ctx context.Context) (*notification.Message, error)
	ClaimById(ctx context.Context, id uuid.UUID) (*notification.Message, error)
	MarkSent(ctx context.Context, m *notification.Message, providerId, providerName string) error
	MarkFailure(ctx context.Context, m *notification.Message, f notification.Failure) error
}

type BatchTracker interface {
	CheckBatchCompletion(ctx context.Context, id uuid.UUID) (*batch.Completion, error)
}

// Result is what happened to a message handed to the worker. Provider
// failures are reported here and on the stored row, not as errors.
type Result struct {
	Message *notification.Message
	Skipped bool
	Outcome provider.Outcome
}

type Worker struct {
	store    store
	registry *provider.Registry
	policy   retry.Policy
	tracker  BatchTracker
	events   notification.EventSink
	timeout  time.Duration
	nrApp    *nr.Application
	now      func() time.Time
}

func New(s store, registry *provider.Registry, policy retry.Policy, tracker BatchTracker, events notification.EventSink, timeout time.Duration, nrApp *nr.Application) *Worker {
	if events == nil {
		events = notification.NopSink{}
	}

	return &Worker{
		store:    s,
		registry: registry,
		policy:   policy,
		tracker:  tracker,
		events:   events,
		timeout:  timeout,
		nrApp:    nrApp,
		now:      func() time.Time { return time.Now().In(time.UTC) },
	}
}

// ClaimNext takes the oldest queued message and marks it as processing. The
// retry backoff is advisory here; it returns nil when the queue is empty.
func (w *Worker) ClaimNext(ctx context.Context) (*notification.Message, error) {
	return claimed(w.store.ClaimNext(ctx))
}

// ClaimNextDue is ClaimNext for the poller, honouring each message's retry
// backoff.
func (w *Worker) ClaimNextDue(ctx context.Context) (*notification.Message, error) {
	return claimed(w.store.ClaimNextDue(ctx))
}

func claimed(m *notification.Message, err error) (*notification.Message, error) {
	if errors.Is(err, notification.ErrNoMessages) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (w *Worker) ProcessNextMessage(ctx context.Context) (*Result, error) {
	m, err := w.ClaimNext(ctx)
	if err != nil || m == nil {
		return nil, err
	}

	return w.Dispatch(ctx, m)
}

// ProcessMessage dispatches one specific message. Messages that are already
// being handled, or have been handled, are skipped.
func (w *Worker) ProcessMessage(ctx context.Context, id uuid.UUID) (*Result, error) {
	m, err := w.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !m.Status.Claimable() {
		return w.skipped(m), nil
	}

	claimed, err := w.store.ClaimById(ctx, id)
	if errors.Is(err, notification.ErrNoMessages) {
		// another worker got there first
		current, getErr := w.store.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return w.skipped(current), nil
	}
	if err != nil {
		return nil, err
	}

	return w.Dispatch(ctx, claimed)
}

// Dispatch sends a claimed message through the provider registered for its
// channel and records the outcome.
func (w *Worker) Dispatch(parent context.Context, m *notification.Message) (*Result, error) {
	ctx, txn := newrelic.ContextWithTxn(parent, "worker: Worker.Dispatch()", w.nrApp)
	defer txn.End()
	txn.AddAttribute("channel", m.Channel.String())
	txn.AddAttribute("vendor_id", m.VendorId)

	out := w.send(ctx, m)
	if out.Success {
		if err := w.store.MarkSent(ctx, m, out.ProviderId, out.ProviderName); err != nil {
			txn.NoticeError(err)
			return nil, err
		}

		logger.WithFields(logrus.Fields{
			"id":          m.Id.String(),
			"provider":    out.ProviderName,
			"provider_id": out.ProviderId,
		}).Debug("message sent")

		prometheus.ObserveDispatch(m.Channel.String(), prometheus.OutcomeSent)
		w.events.Record(ctx, notification.MessageEvent(notification.EventMessageSent, m, w.now()))
		w.checkBatch(ctx, m)

		return &Result{Message: m, Outcome: out}, nil
	}

	txn.NoticeError(errors.New(out.Error))
	if err := w.RecordFailure(ctx, m, out.Error, out.Retryable); err != nil {
		return nil, err
	}

	return &Result{Message: m, Outcome: out}, nil
}

// RecordFailure applies a failed attempt to a claimed message: it goes back to
// the queue with a backoff, or to the dead-letter state once retries are
// exhausted or the failure cannot be retried.
func (w *Worker) RecordFailure(ctx context.Context, m *notification.Message, reason string, retryable bool) error {
	now := w.now()
	attempts := m.RetryCount + 1
	f := notification.Failure{
		Reason:   reason,
		Terminal: !retryable || w.policy.Exhausted(attempts),
	}
	if !f.Terminal {
		f.NextAttemptAt = now.Add(w.policy.DelayForRetry(m.RetryCount))
	}

	if err := w.store.MarkFailure(ctx, m, f); err != nil {
		return err
	}

	entry := logger.WithFields(logrus.Fields{
		"id":          m.Id.String(),
		"retry_count": m.RetryCount,
		"reason":      reason,
	})

	if f.Terminal {
		entry.Warn("message failed permanently")
		prometheus.ObserveDispatch(m.Channel.String(), prometheus.OutcomeFailed)
		w.events.Record(ctx, notification.MessageEvent(notification.EventMessageFailed, m, now))
		w.checkBatch(ctx, m)
		return nil
	}

	entry.WithField("next_attempt_at", f.NextAttemptAt).Info("message requeued for retry")
	prometheus.ObserveDispatch(m.Channel.String(), prometheus.OutcomeRetry)
	w.events.Record(ctx, notification.MessageEvent(notification.EventMessageRetry, m, now))

	return nil
}

func (w *Worker) send(ctx context.Context, m *notification.Message) provider.Outcome {
	sender, ok := w.registry.Lookup(m.Channel)
	if !ok {
		return provider.Outcome{
			Error:     errors.Wrapf(notification.ErrUnsupportedChannel, "no provider for %s", m.Channel).Error(),
			Retryable: false,
		}
	}

	sendCtx := ctx
	if w.timeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	out, err := sender.Send(sendCtx, provider.InputFor(m))
	if err != nil {
		out = provider.FromError(sender.Name(), err)
	}
	if out.ProviderName == "" {
		out.ProviderName = sender.Name()
	}
	if !out.Success {
		if out.Error == "" {
			out.Error = defaultFailureReason
		}
		if errors.Is(sendCtx.Err(), context.DeadlineExceeded) {
			out.Retryable = true
		}
	}

	return out
}

func (w *Worker) skipped(m *notification.Message) *Result {
	logger.WithFields(logrus.Fields{
		"id":     m.Id.String(),
		"status": m.Status,
	}).Debug("message skipped")
	prometheus.ObserveDispatch(m.Channel.String(), prometheus.OutcomeSkipped)

	return &Result{Message: m, Skipped: true}
}

func (w *Worker) checkBatch(ctx context.Context, m *notification.Message) {
	if m.BatchId == nil || w.tracker == nil {
		return
	}

	if _, err := w.tracker.CheckBatchCompletion(ctx, *m.BatchId); err != nil {
		logger.WithError(err).WithField("batch_id", m.BatchId.String()).Error("unable to check batch completion")
	}
}
