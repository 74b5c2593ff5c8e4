package enqueue

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"inviqa/notification-relay/log"
	"inviqa/notification-relay/notification"
	"inviqa/notification-relay/pricing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var logger = log.ForComponent("enqueue")

// RecipientLookup answers whether a recipient token belongs to a known user.
type RecipientLookup interface {
	Exists(ctx context.Context, token string) (bool, error)
}

type CostEstimator interface {
	Estimate(ch notification.Channel, count, monthlyVolume int) (pricing.Cost, error)
}

type store interface {
	Insert(ctx context.Context, m *notification.Message) error
	InsertBatch(ctx context.Context, b *notification.Batch, msgs []*notification.Message) error
	FindByIdempotencyKey(ctx context.Context, vendorId, key string) (*notification.Message, error)
	FindBatchByIdempotencyKey(ctx context.Context, vendorId, key string) (*notification.Batch, error)
	CountVendorMessagesSince(ctx context.Context, vendorId string, since time.Time) (int, error)
}

type MessageInput struct {
	VendorId       string
	Channel        notification.Channel
	RecipientToken string
	RecipientType  notification.RecipientType
	Subject        string
	Body           string
	Priority       notification.Priority
	IdempotencyKey string
	ScheduledAt    *time.Time
}

type Recipient struct {
	Token string
	Type  notification.RecipientType
}

type BatchInput struct {
	VendorId       string
	Channel        notification.Channel
	Recipients     []Recipient
	Subject        string
	Body           string
	Priority       notification.Priority
	IdempotencyKey string
	ScheduledAt    *time.Time
}

type Receipt struct {
	Message       *notification.Message
	IsDuplicate   bool
	EstimatedCost *pricing.Cost
}

type BatchReceipt struct {
	Batch         *notification.Batch
	MessageIds    []uuid.UUID
	IsDuplicate   bool
	EstimatedCost *pricing.Cost
}

type Service struct {
	store      store
	recipients RecipientLookup
	estimator  CostEstimator
	events     notification.EventSink
	now        func() time.Time
}

func NewService(s store, recipients RecipientLookup, estimator CostEstimator, events notification.EventSink) *Service {
	if events == nil {
		events = notification.NopSink{}
	}

	return &Service{
		store:      s,
		recipients: recipients,
		estimator:  estimator,
		events:     events,
		now:        func() time.Time { return time.Now().In(time.UTC) },
	}
}

// EnqueueMessage validates and persists a single message. A repeated
// idempotency key returns the original message without writing anything.
func (s *Service) EnqueueMessage(ctx context.Context, in MessageInput) (*Receipt, error) {
	if !in.Channel.IsValid() {
		return nil, notification.ErrInvalidChannel
	}
	if err := validateRecipient(in.RecipientToken, in.RecipientType); err != nil {
		return nil, err
	}
	priority, err := validateContent(in.Channel, in.Subject, in.Body, in.Priority)
	if err != nil {
		return nil, err
	}

	if in.IdempotencyKey != "" {
		existing, err := s.store.FindByIdempotencyKey(ctx, in.VendorId, in.IdempotencyKey)
		if err == nil {
			return &Receipt{Message: existing, IsDuplicate: true}, nil
		}
		if !errors.Is(err, notification.ErrMessageNotFound) {
			return nil, errors.Wrap(err, "enqueue: idempotency check failed")
		}
	}

	if err := s.lookup(ctx, in.RecipientToken); err != nil {
		return nil, err
	}

	now := s.now()
	scheduledAt := nullTime(in.ScheduledAt)
	m := &notification.Message{
		Id:             uuid.New(),
		VendorId:       in.VendorId,
		Channel:        in.Channel,
		RecipientToken: in.RecipientToken,
		RecipientType:  in.RecipientType,
		Subject:        in.Subject,
		Body:           in.Body,
		Priority:       priority,
		Status:         notification.InitialStatus(scheduledAt, now),
		IdempotencyKey: nullString(in.IdempotencyKey),
		ScheduledAt:    scheduledAt,
		CreatedAt:      now,
	}

	cost := s.estimate(ctx, in.VendorId, in.Channel, 1)

	if err := s.store.Insert(ctx, m); err != nil {
		if errors.Is(err, notification.ErrIdempotencyConflict) {
			existing, findErr := s.store.FindByIdempotencyKey(ctx, in.VendorId, in.IdempotencyKey)
			if findErr != nil {
				return nil, errors.Wrap(findErr, "enqueue: unable to load the message that won the idempotency race")
			}
			return &Receipt{Message: existing, IsDuplicate: true}, nil
		}
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"id":        m.Id.String(),
		"vendor_id": m.VendorId,
		"channel":   m.Channel,
		"status":    m.Status,
	}).Debug("message enqueued")

	s.events.Record(ctx, notification.MessageEvent(notification.EventMessageQueued, m, now))

	return &Receipt{Message: m, EstimatedCost: cost}, nil
}

// EnqueueBatch validates every recipient and then writes the batch and all of
// its members in one transaction.
func (s *Service) EnqueueBatch(ctx context.Context, in BatchInput) (*BatchReceipt, error) {
	if !in.Channel.IsValid() {
		return nil, notification.ErrInvalidChannel
	}
	if len(in.Recipients) == 0 {
		return nil, notification.ErrEmptyBatch
	}
	if len(in.Recipients) > notification.MaxBatchSize {
		return nil, notification.ErrBatchTooLarge
	}
	for i, r := range in.Recipients {
		if err := validateRecipient(r.Token, r.Type); err != nil {
			return nil, errors.Wrapf(err, "recipient %d", i)
		}
	}
	priority, err := validateContent(in.Channel, in.Subject, in.Body, in.Priority)
	if err != nil {
		return nil, err
	}

	if in.IdempotencyKey != "" {
		existing, err := s.store.FindBatchByIdempotencyKey(ctx, in.VendorId, in.IdempotencyKey)
		if err == nil {
			return &BatchReceipt{Batch: existing, IsDuplicate: true}, nil
		}
		if !errors.Is(err, notification.ErrBatchNotFound) {
			return nil, errors.Wrap(err, "enqueue: idempotency check failed")
		}
	}

	for i, r := range in.Recipients {
		if err := s.lookup(ctx, r.Token); err != nil {
			return nil, errors.Wrapf(err, "recipient %d", i)
		}
	}

	now := s.now()
	scheduledAt := nullTime(in.ScheduledAt)
	status := notification.InitialStatus(scheduledAt, now)
	b := &notification.Batch{
		Id:              uuid.New(),
		VendorId:        in.VendorId,
		Channel:         in.Channel,
		Subject:         in.Subject,
		Body:            in.Body,
		Priority:        priority,
		IdempotencyKey:  nullString(in.IdempotencyKey),
		TotalRecipients: len(in.Recipients),
		Status:          notification.BatchStatusFor(status),
		ScheduledAt:     scheduledAt,
		CreatedAt:       now,
	}

	msgs := make([]*notification.Message, len(in.Recipients))
	ids := make([]uuid.UUID, len(in.Recipients))
	for i, r := range in.Recipients {
		batchId := b.Id
		msgs[i] = &notification.Message{
			Id:             uuid.New(),
			VendorId:       in.VendorId,
			BatchId:        &batchId,
			Channel:        in.Channel,
			RecipientToken: r.Token,
			RecipientType:  r.Type,
			Subject:        in.Subject,
			Body:           in.Body,
			Priority:       priority,
			Status:         status,
			ScheduledAt:    scheduledAt,
			CreatedAt:      now,
		}
		ids[i] = msgs[i].Id
	}

	cost := s.estimate(ctx, in.VendorId, in.Channel, len(msgs))

	if err := s.store.InsertBatch(ctx, b, msgs); err != nil {
		if errors.Is(err, notification.ErrIdempotencyConflict) {
			existing, findErr := s.store.FindBatchByIdempotencyKey(ctx, in.VendorId, in.IdempotencyKey)
			if findErr != nil {
				return nil, errors.Wrap(findErr, "enqueue: unable to load the batch that won the idempotency race")
			}
			return &BatchReceipt{Batch: existing, IsDuplicate: true}, nil
		}
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"batch_id":       b.Id.String(),
		"vendor_id":      b.VendorId,
		"num_recipients": b.TotalRecipients,
		"status":         b.Status,
	}).Debug("batch enqueued")

	batchId := b.Id
	s.events.Record(ctx, notification.Event{
		Type:       notification.EventBatchQueued,
		VendorId:   b.VendorId,
		BatchId:    &batchId,
		Channel:    b.Channel,
		Status:     b.Status.String(),
		Count:      b.TotalRecipients,
		OccurredAt: now,
	})

	return &BatchReceipt{Batch: b, MessageIds: ids, EstimatedCost: cost}, nil
}

func (s *Service) lookup(ctx context.Context, token string) error {
	ok, err := s.recipients.Exists(ctx, token)
	if err != nil {
		return errors.Wrap(err, "enqueue: recipient lookup failed")
	}
	if !ok {
		return notification.ErrRecipientNotFound
	}

	return nil
}

// estimate prices the send for the vendor's current monthly volume. Any
// failure is logged and leaves the estimate empty.
func (s *Service) estimate(ctx context.Context, vendorId string, ch notification.Channel, count int) *pricing.Cost {
	if s.estimator == nil {
		return nil
	}

	now := s.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	volume, err := s.store.CountVendorMessagesSince(ctx, vendorId, monthStart)
	if err != nil {
		logger.WithError(err).WithField("vendor_id", vendorId).Warn("unable to determine monthly volume for cost estimate")
		return nil
	}

	cost, err := s.estimator.Estimate(ch, count, volume)
	if err != nil {
		logger.WithError(err).WithField("vendor_id", vendorId).Warn("unable to estimate message cost")
		return nil
	}

	return &cost
}

// validateContent checks body, subject and priority. Callers check the
// channel and recipients first.
func validateContent(ch notification.Channel, subject, body string, p notification.Priority) (notification.Priority, error) {
	if strings.TrimSpace(body) == "" {
		return "", notification.ErrMissingBody
	}
	if ch == notification.ChannelEmail && strings.TrimSpace(subject) == "" {
		return "", notification.ErrMissingSubject
	}
	if strings.ContainsAny(subject, "\r\n") {
		return "", notification.ErrInvalidSubject
	}
	if p == "" {
		return notification.PriorityNormal, nil
	}
	if !p.IsValid() {
		return "", notification.ErrInvalidPriority
	}

	return p, nil
}

func validateRecipient(token string, t notification.RecipientType) error {
	if !t.IsValid() {
		return notification.ErrInvalidRecipientType
	}
	if !notification.ValidateToken(token, t) {
		return notification.ErrInvalidRecipientToken
	}

	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}

	return sql.NullTime{Time: t.In(time.UTC), Valid: true}
}
