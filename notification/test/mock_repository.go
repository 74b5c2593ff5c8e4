package test

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"time"

	"inviqa/notification-relay/notification"

	"github.com/google/uuid"
)

// MockRepository is an in-memory store with the same conditional update
// semantics as notification.Repository.
type MockRepository struct {
	sync.RWMutex
	messages    map[uuid.UUID]*notification.Message
	batches     map[uuid.UUID]*notification.Batch
	order       []uuid.UUID
	returnError bool
	now         func() time.Time
	insertCalls int
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		messages: map[uuid.UUID]*notification.Message{},
		batches:  map[uuid.UUID]*notification.Batch{},
		now:      func() time.Time { return time.Now().In(time.UTC) },
	}
}

func (mr *MockRepository) Insert(_ context.Context, m *notification.Message) error {
	mr.Lock()
	defer mr.Unlock()
	mr.insertCalls++

	if mr.returnError {
		return errors.New("oops")
	}

	if m.IdempotencyKey.Valid && mr.findByKey(m.VendorId, m.IdempotencyKey.String) != nil {
		return notification.ErrIdempotencyConflict
	}

	mr.store(m)

	return nil
}

func (mr *MockRepository) InsertBatch(_ context.Context, b *notification.Batch, msgs []*notification.Message) error {
	mr.Lock()
	defer mr.Unlock()
	mr.insertCalls++

	if mr.returnError {
		return errors.New("oops")
	}

	if b.IdempotencyKey.Valid {
		for _, existing := range mr.batches {
			if existing.VendorId == b.VendorId && existing.IdempotencyKey == b.IdempotencyKey {
				return notification.ErrIdempotencyConflict
			}
		}
	}

	cp := *b
	mr.batches[b.Id] = &cp
	for _, m := range msgs {
		mr.store(m)
	}

	return nil
}

func (mr *MockRepository) Get(_ context.Context, id uuid.UUID) (*notification.Message, error) {
	mr.RLock()
	defer mr.RUnlock()

	if mr.returnError {
		return nil, errors.New("oops")
	}

	m, ok := mr.messages[id]
	if !ok {
		return nil, notification.ErrMessageNotFound
	}

	return copyMessage(m), nil
}

func (mr *MockRepository) FindByIdempotencyKey(_ context.Context, vendorId, key string) (*notification.Message, error) {
	mr.RLock()
	defer mr.RUnlock()

	if mr.returnError {
		return nil, errors.New("oops")
	}

	if m := mr.findByKey(vendorId, key); m != nil {
		return copyMessage(m), nil
	}

	return nil, notification.ErrMessageNotFound
}

func (mr *MockRepository) FindByProviderMessageId(_ context.Context, providerId string) (*notification.Message, error) {
	mr.RLock()
	defer mr.RUnlock()

	if mr.returnError {
		return nil, errors.New("oops")
	}

	for _, id := range mr.order {
		m := mr.messages[id]
		if m.ProviderMessageId.Valid && m.ProviderMessageId.String == providerId {
			return copyMessage(m), nil
		}
	}

	return nil, notification.ErrMessageNotFound
}

func (mr *MockRepository) GetBatch(_ context.Context, id uuid.UUID) (*notification.Batch, error) {
	mr.RLock()
	defer mr.RUnlock()

	if mr.returnError {
		return nil, errors.New("oops")
	}

	b, ok := mr.batches[id]
	if !ok {
		return nil, notification.ErrBatchNotFound
	}
	cp := *b

	return &cp, nil
}

func (mr *MockRepository) FindBatchByIdempotencyKey(_ context.Context, vendorId, key string) (*notification.Batch, error) {
	mr.RLock()
	defer mr.RUnlock()

	if mr.returnError {
		return nil, errors.New("oops")
	}

	for _, b := range mr.batches {
		if b.VendorId == vendorId && b.IdempotencyKey.Valid && b.IdempotencyKey.String == key {
			cp := *b
			return &cp, nil
		}
	}

	return nil, notification.ErrBatchNotFound
}

func (mr *MockRepository) ClaimNext(_ context.Context) (*notification.Message, error) {
	return mr.claimNext(false)
}

func (mr *MockRepository) ClaimNextDue(_ context.Context) (*notification.Message, error) {
	return mr.claimNext(true)
}

func (mr *MockRepository) claimNext(dueOnly bool) (*notification.Message, error) {
	mr.Lock()
	defer mr.Unlock()

	if mr.returnError {
		return nil, errors.New("oops")
	}

	now := mr.now()
	for _, id := range mr.order {
		m := mr.messages[id]
		if eligible(m, now, dueOnly) {
			return mr.claim(m, now), nil
		}
	}

	return nil, notification.ErrNoMessages
}

func (mr *MockRepository) ClaimById(_ context.Context, id uuid.UUID) (*notification.Message, error) {
	mr.Lock()
	defer mr.Unlock()

	if mr.returnError {
		return nil, errors.New("oops")
	}

	m, ok := mr.messages[id]
	if !ok || !m.Status.Claimable() {
		return nil, notification.ErrNoMessages
	}

	return mr.claim(m, mr.now()), nil
}

func (mr *MockRepository) MarkSent(_ context.Context, m *notification.Message, providerId, providerName string) error {
	mr.Lock()
	defer mr.Unlock()

	if mr.returnError {
		return errors.New("oops")
	}

	stored, err := mr.claimed(m)
	if err != nil {
		return err
	}

	stored.Status = notification.StatusSent
	stored.SentAt = sql.NullTime{Time: mr.now(), Valid: true}
	stored.ProviderMessageId = sql.NullString{String: providerId, Valid: providerId != ""}
	stored.ProviderName = sql.NullString{String: providerName, Valid: providerName != ""}
	stored.ClaimId = nil
	mr.bumpBatch(stored.BatchId, 1, 0, 0)

	*m = *copyMessage(stored)

	return nil
}

func (mr *MockRepository) MarkFailure(_ context.Context, m *notification.Message, f notification.Failure) error {
	mr.Lock()
	defer mr.Unlock()

	if mr.returnError {
		return errors.New("oops")
	}

	stored, err := mr.claimed(m)
	if err != nil {
		return err
	}

	stored.RetryCount++
	stored.FailureReason = sql.NullString{String: f.Reason, Valid: true}
	stored.ClaimId = nil
	stored.ProcessingStartedAt = sql.NullTime{}
	if f.Terminal {
		stored.Status = notification.StatusFailed
		stored.NextAttemptAt = sql.NullTime{}
		mr.bumpBatch(stored.BatchId, 0, 0, 1)
	} else {
		stored.Status = notification.StatusQueued
		stored.NextAttemptAt = sql.NullTime{Time: f.NextAttemptAt, Valid: !f.NextAttemptAt.IsZero()}
	}

	*m = *copyMessage(stored)

	return nil
}

func (mr *MockRepository) ApplyDelivered(_ context.Context, m *notification.Message, at time.Time) (bool, error) {
	mr.Lock()
	defer mr.Unlock()

	if mr.returnError {
		return false, errors.New("oops")
	}

	stored, ok := mr.messages[m.Id]
	if !ok || stored.Status != notification.StatusSent {
		return false, nil
	}

	stored.Status = notification.StatusDelivered
	stored.DeliveredAt = sql.NullTime{Time: at, Valid: true}
	mr.bumpBatch(stored.BatchId, 0, 1, 0)
	*m = *copyMessage(stored)

	return true, nil
}

func (mr *MockRepository) ApplyDeliveryFailure(_ context.Context, m *notification.Message, status notification.Status, reason string) (bool, error) {
	mr.Lock()
	defer mr.Unlock()

	if mr.returnError {
		return false, errors.New("oops")
	}

	stored, ok := mr.messages[m.Id]
	if !ok || stored.Status != notification.StatusSent {
		return false, nil
	}

	stored.Status = status
	stored.FailureReason = sql.NullString{String: reason, Valid: true}
	mr.bumpBatch(stored.BatchId, -1, 0, 1)
	*m = *copyMessage(stored)

	return true, nil
}

func (mr *MockRepository) CloseBatch(_ context.Context, id uuid.UUID, status notification.BatchStatus) (bool, error) {
	mr.Lock()
	defer mr.Unlock()

	if mr.returnError {
		return false, errors.New("oops")
	}

	b, ok := mr.batches[id]
	if !ok || b.CompletedAt.Valid || !b.Settled() {
		return false, nil
	}

	b.Status = status
	b.CompletedAt = sql.NullTime{Time: mr.now(), Valid: true}

	return true, nil
}

func (mr *MockRepository) ListFailed(_ context.Context, vendorId string, limit, offset int) ([]*notification.Message, error) {
	mr.RLock()
	defer mr.RUnlock()

	if mr.returnError {
		return nil, errors.New("oops")
	}

	var failed []*notification.Message
	for _, id := range mr.order {
		m := mr.messages[id]
		if m.Status == notification.StatusFailed && (vendorId == "" || m.VendorId == vendorId) {
			failed = append(failed, copyMessage(m))
		}
	}

	return page(failed, limit, offset), nil
}

func (mr *MockRepository) Reprocess(_ context.Context, m *notification.Message) error {
	mr.Lock()
	defer mr.Unlock()

	if mr.returnError {
		return errors.New("oops")
	}

	stored, ok := mr.messages[m.Id]
	if !ok || stored.Status != notification.StatusFailed {
		return notification.ErrNotDeadLettered
	}

	stored.Status = notification.StatusQueued
	stored.RetryCount = 0
	stored.FailureReason = sql.NullString{}
	stored.NextAttemptAt = sql.NullTime{}
	stored.ClaimId = nil
	mr.bumpBatch(stored.BatchId, 0, 0, -1)
	*m = *copyMessage(stored)

	return nil
}

func (mr *MockRepository) ListStale(_ context.Context, startedBefore time.Time, limit int) ([]*notification.Message, error) {
	mr.RLock()
	defer mr.RUnlock()

	if mr.returnError {
		return nil, errors.New("oops")
	}

	var stale []*notification.Message
	for _, id := range mr.order {
		m := mr.messages[id]
		if m.Status == notification.StatusProcessing && m.ProcessingStartedAt.Valid && m.ProcessingStartedAt.Time.Before(startedBefore) {
			stale = append(stale, copyMessage(m))
		}
	}
	sort.SliceStable(stale, func(i, j int) bool {
		return stale[i].ProcessingStartedAt.Time.Before(stale[j].ProcessingStartedAt.Time)
	})

	return page(stale, limit, 0), nil
}

func (mr *MockRepository) CountVendorMessagesSince(_ context.Context, vendorId string, since time.Time) (int, error) {
	mr.RLock()
	defer mr.RUnlock()

	if mr.returnError {
		return 0, errors.New("oops")
	}

	count := 0
	for _, m := range mr.messages {
		if m.VendorId == vendorId && !m.CreatedAt.Before(since) {
			count++
		}
	}

	return count, nil
}

func (mr *MockRepository) QueueSize(context.Context) (uint, error) {
	return mr.countWhere(func(m *notification.Message) bool {
		return m.Status.Claimable() || m.Status == notification.StatusProcessing
	})
}

func (mr *MockRepository) TotalSize(context.Context) (uint, error) {
	return mr.countWhere(func(*notification.Message) bool { return true })
}

func (mr *MockRepository) DeadLetterSize(context.Context) (uint, error) {
	return mr.countWhere(func(m *notification.Message) bool { return m.Status == notification.StatusFailed })
}

// AddMessage stores m as is, bypassing any validation.
func (mr *MockRepository) AddMessage(m *notification.Message) {
	mr.Lock()
	defer mr.Unlock()
	mr.store(m)
}

func (mr *MockRepository) AddBatch(b *notification.Batch) {
	mr.Lock()
	defer mr.Unlock()
	cp := *b
	mr.batches[b.Id] = &cp
}

// Message returns the stored state of the message with the given id.
func (mr *MockRepository) Message(id uuid.UUID) *notification.Message {
	mr.RLock()
	defer mr.RUnlock()
	m, ok := mr.messages[id]
	if !ok {
		return nil
	}

	return copyMessage(m)
}

// Batch returns the stored state of the batch with the given id.
func (mr *MockRepository) Batch(id uuid.UUID) *notification.Batch {
	mr.RLock()
	defer mr.RUnlock()
	b, ok := mr.batches[id]
	if !ok {
		return nil
	}
	cp := *b

	return &cp
}

func (mr *MockRepository) MessageCount() int {
	mr.RLock()
	defer mr.RUnlock()
	return len(mr.messages)
}

func (mr *MockRepository) BatchCount() int {
	mr.RLock()
	defer mr.RUnlock()
	return len(mr.batches)
}

func (mr *MockRepository) InsertCallCount() int {
	mr.RLock()
	defer mr.RUnlock()
	return mr.insertCalls
}

func (mr *MockRepository) ReturnErrors() {
	mr.Lock()
	defer mr.Unlock()
	mr.returnError = true
}

func (mr *MockRepository) SetNow(now func() time.Time) {
	mr.Lock()
	defer mr.Unlock()
	mr.now = now
}

func (mr *MockRepository) store(m *notification.Message) {
	if _, exists := mr.messages[m.Id]; !exists {
		mr.order = append(mr.order, m.Id)
	}
	mr.messages[m.Id] = copyMessage(m)
}

func (mr *MockRepository) findByKey(vendorId, key string) *notification.Message {
	for _, id := range mr.order {
		m := mr.messages[id]
		if m.VendorId == vendorId && m.IdempotencyKey.Valid && m.IdempotencyKey.String == key {
			return m
		}
	}

	return nil
}

func (mr *MockRepository) claim(m *notification.Message, now time.Time) *notification.Message {
	claimId := uuid.New()
	m.Status = notification.StatusProcessing
	m.ClaimId = &claimId
	m.ProcessingStartedAt = sql.NullTime{Time: now, Valid: true}

	return copyMessage(m)
}

func (mr *MockRepository) claimed(m *notification.Message) (*notification.Message, error) {
	stored, ok := mr.messages[m.Id]
	if !ok || stored.Status != notification.StatusProcessing || stored.ClaimId == nil || m.ClaimId == nil || *stored.ClaimId != *m.ClaimId {
		return nil, notification.ErrClaimLost
	}

	return stored, nil
}

func (mr *MockRepository) bumpBatch(id *uuid.UUID, sent, delivered, failed int) {
	if id == nil {
		return
	}

	b, ok := mr.batches[*id]
	if !ok {
		return
	}

	b.SentCount += sent
	b.DeliveredCount += delivered
	b.FailedCount += failed
	if b.Status == notification.BatchQueued || b.Status == notification.BatchScheduled {
		b.Status = notification.BatchProcessing
	}
}

func (mr *MockRepository) countWhere(fn func(m *notification.Message) bool) (uint, error) {
	mr.RLock()
	defer mr.RUnlock()

	if mr.returnError {
		return 0, errors.New("oops")
	}

	var count uint
	for _, m := range mr.messages {
		if fn(m) {
			count++
		}
	}

	return count, nil
}

func eligible(m *notification.Message, now time.Time, dueOnly bool) bool {
	switch m.Status {
	case notification.StatusQueued:
		return !dueOnly || !m.NextAttemptAt.Valid || !m.NextAttemptAt.Time.After(now)
	case notification.StatusScheduled:
		return m.ScheduledAt.Valid && !m.ScheduledAt.Time.After(now)
	}

	return false
}

func page(msgs []*notification.Message, limit, offset int) []*notification.Message {
	if offset >= len(msgs) {
		return []*notification.Message{}
	}
	msgs = msgs[offset:]
	if limit > 0 && limit < len(msgs) {
		msgs = msgs[:limit]
	}

	return msgs
}

func copyMessage(m *notification.Message) *notification.Message {
	cp := *m
	if m.BatchId != nil {
		id := *m.BatchId
		cp.BatchId = &id
	}
	if m.ClaimId != nil {
		id := *m.ClaimId
		cp.ClaimId = &id
	}

	return &cp
}
