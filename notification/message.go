package notification

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// MaxBatchSize is the largest recipient list accepted for a single batch.
const MaxBatchSize = 10000

type Message struct {
	Id                  uuid.UUID
	VendorId            string
	BatchId             *uuid.UUID
	Channel             Channel
	RecipientToken      string
	RecipientType       RecipientType
	Subject             string
	Body                string
	Priority            Priority
	Status              Status
	RetryCount          int
	FailureReason       sql.NullString
	IdempotencyKey      sql.NullString
	ProviderMessageId   sql.NullString
	ProviderName        sql.NullString
	ClaimId             *uuid.UUID
	ProcessingStartedAt sql.NullTime
	ScheduledAt         sql.NullTime
	NextAttemptAt       sql.NullTime
	CreatedAt           time.Time
	SentAt              sql.NullTime
	DeliveredAt         sql.NullTime
}

type Batch struct {
	Id              uuid.UUID
	VendorId        string
	Channel         Channel
	Subject         string
	Body            string
	Priority        Priority
	IdempotencyKey  sql.NullString
	TotalRecipients int
	SentCount       int
	DeliveredCount  int
	FailedCount     int
	Status          BatchStatus
	ScheduledAt     sql.NullTime
	CreatedAt       time.Time
	CompletedAt     sql.NullTime
}

// Settled reports whether every member has reached sent or failed.
func (b *Batch) Settled() bool {
	return b.SentCount+b.FailedCount >= b.TotalRecipients
}

// DeliveryRate is the share of sent members confirmed as delivered.
func (b *Batch) DeliveryRate() float64 {
	if b.SentCount == 0 {
		return 0
	}
	return float64(b.DeliveredCount) / float64(b.SentCount)
}

// ClosingStatus is the terminal status the batch takes once settled.
func (b *Batch) ClosingStatus() BatchStatus {
	if b.FailedCount >= b.TotalRecipients {
		return BatchFailed
	}
	return BatchCompleted
}

// InitialStatus returns queued, or scheduled when the given time lies in the
// future relative to now.
func InitialStatus(scheduledAt sql.NullTime, now time.Time) Status {
	if scheduledAt.Valid && scheduledAt.Time.After(now) {
		return StatusScheduled
	}
	return StatusQueued
}
