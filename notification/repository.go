package notification

import (
	"context"
	"database/sql"
	"time"

	"inviqa/notification-relay/config"
	"inviqa/notification-relay/log"
	s "inviqa/notification-relay/notification/data/sql"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	columns = []string{
		"id", "vendor_id", "batch_id", "channel", "recipient_token", "recipient_type", "subject", "body",
		"priority", "status", "retry_count", "failure_reason", "idempotency_key", "provider_message_id",
		"provider_name", "claim_id", "processing_started_at", "scheduled_at", "next_attempt_at",
		"created_at", "sent_at", "delivered_at",
	}
	batchColumns = []string{
		"id", "vendor_id", "channel", "subject", "body", "priority", "idempotency_key", "total_recipients",
		"sent_count", "delivered_count", "failed_count", "status", "scheduled_at", "created_at", "completed_at",
	}
)

type queryProvider interface {
	InsertMessageSql() string
	InsertBatchSql() string
	MessageByIdSql() string
	MessageByIdempotencyKeySql() string
	MessageByProviderIdSql() string
	MessageByClaimSql() string
	BatchByIdSql() string
	BatchByIdempotencyKeySql() string
	ClaimNextSql(priorityOrdering, dueOnly bool) string
	ClaimByIdSql() string
	MarkSentSql() string
	MarkFailureSql() string
	DeliveredSql() string
	DeliveryFailureSql() string
	BatchCounterSql(sent, delivered, failed int) string
	CloseBatchSql() string
	ListFailedSql(byVendor bool) string
	ReprocessSql() string
	ListStaleSql() string
	CountVendorMessagesSinceSql() string
	GetQueueSizeSql() string
	GetTotalSizeSql() string
	GetDeadLetterSizeSql() string
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// Failure is the outcome of an unsuccessful dispatch attempt as it is written
// back to the message row.
type Failure struct {
	Reason        string
	Terminal      bool
	NextAttemptAt time.Time
}

type Repository struct {
	db            *sql.DB
	cfg           *config.Config
	queryProvider queryProvider
}

func NewRepository(db *sql.DB, cfg *config.Config) Repository {
	return NewRepositoryWithQueryProvider(db, cfg, newQueryProvider(cfg.DBDriver, cfg.DBMessagesTable, cfg.DBBatchesTable))
}

func NewRepositoryWithQueryProvider(db *sql.DB, cfg *config.Config, qp queryProvider) Repository {
	return Repository{
		db:            db,
		cfg:           cfg,
		queryProvider: qp,
	}
}

func (r Repository) Insert(ctx context.Context, m *Message) error {
	_, err := r.db.ExecContext(ctx, r.queryProvider.InsertMessageSql(), messageArgs(m)...)
	if isDuplicateKeyError(err) {
		return ErrIdempotencyConflict
	}
	if err != nil {
		return errors.Wrap(err, "notification: error inserting message in repository")
	}

	return nil
}

// InsertBatch writes the batch row and all of its member messages in a single
// transaction. Nothing is written if any insert fails.
func (r Repository) InsertBatch(ctx context.Context, b *Batch, msgs []*Message) error {
	log.Logger.WithFields(logrus.Fields{
		"batch_id":       b.Id.String(),
		"num_recipients": len(msgs),
	}).Debug("inserting batch")

	return r.inTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, r.queryProvider.InsertBatchSql(), batchArgs(b)...)
		if isDuplicateKeyError(err) {
			return ErrIdempotencyConflict
		}
		if err != nil {
			return errors.Wrap(err, "notification: error inserting batch in repository")
		}

		stmt, err := tx.PrepareContext(ctx, r.queryProvider.InsertMessageSql())
		if err != nil {
			return errors.Wrap(err, "notification: error preparing batch member insert")
		}
		defer stmt.Close()

		for _, m := range msgs {
			if _, err := stmt.ExecContext(ctx, messageArgs(m)...); err != nil {
				return errors.Wrapf(err, "notification: error inserting batch member %s", m.Id)
			}
		}

		return nil
	})
}

func (r Repository) Get(ctx context.Context, id uuid.UUID) (*Message, error) {
	return r.findMessage(ctx, r.queryProvider.MessageByIdSql(), id)
}

func (r Repository) FindByIdempotencyKey(ctx context.Context, vendorId, key string) (*Message, error) {
	return r.findMessage(ctx, r.queryProvider.MessageByIdempotencyKeySql(), vendorId, key)
}

func (r Repository) FindByProviderMessageId(ctx context.Context, providerId string) (*Message, error) {
	return r.findMessage(ctx, r.queryProvider.MessageByProviderIdSql(), providerId)
}

func (r Repository) GetBatch(ctx context.Context, id uuid.UUID) (*Batch, error) {
	return r.findBatch(ctx, r.queryProvider.BatchByIdSql(), id)
}

func (r Repository) FindBatchByIdempotencyKey(ctx context.Context, vendorId, key string) (*Batch, error) {
	return r.findBatch(ctx, r.queryProvider.BatchByIdempotencyKeySql(), vendorId, key)
}

// ClaimNext atomically moves the oldest queued message, or a scheduled one
// that is due, into processing under a fresh claim id and returns it. The
// retry backoff stored on the message is not consulted. When nothing can be
// claimed the special ErrNoMessages value is returned.
func (r Repository) ClaimNext(ctx context.Context) (*Message, error) {
	return r.claimNext(ctx, false)
}

// ClaimNextDue is ClaimNext for the poller: queued messages whose
// next_attempt_at lies in the future are left alone.
func (r Repository) ClaimNextDue(ctx context.Context) (*Message, error) {
	return r.claimNext(ctx, true)
}

func (r Repository) claimNext(ctx context.Context, dueOnly bool) (*Message, error) {
	claimId := uuid.New()
	now := time.Now().In(time.UTC)

	args := []interface{}{claimId, now}
	if dueOnly {
		args = append(args, now)
	}
	args = append(args, now)

	q := r.queryProvider.ClaimNextSql(r.cfg.PriorityOrdering, dueOnly)
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "notification: error claiming next message in repository")
	}

	// the drivers we use never return an error here
	count, _ := res.RowsAffected()
	if count < 1 {
		return nil, ErrNoMessages
	}

	return r.findMessage(ctx, r.queryProvider.MessageByClaimSql(), claimId)
}

// ClaimById claims a specific message when it is still queued or scheduled.
// ErrNoMessages means the message was not claimable.
func (r Repository) ClaimById(ctx context.Context, id uuid.UUID) (*Message, error) {
	claimId := uuid.New()

	res, err := r.db.ExecContext(ctx, r.queryProvider.ClaimByIdSql(), claimId, time.Now().In(time.UTC), id)
	if err != nil {
		return nil, errors.Wrapf(err, "notification: error claiming message %s in repository", id)
	}

	count, _ := res.RowsAffected()
	if count < 1 {
		return nil, ErrNoMessages
	}

	return r.findMessage(ctx, r.queryProvider.MessageByClaimSql(), claimId)
}

// MarkSent records a successful dispatch and, for batch members, bumps the
// batch sent count in the same transaction.
func (r Repository) MarkSent(ctx context.Context, m *Message, providerId, providerName string) error {
	sentAt := time.Now().In(time.UTC)
	pid := sql.NullString{String: providerId, Valid: providerId != ""}
	pname := sql.NullString{String: providerName, Valid: providerName != ""}

	err := r.inTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, r.queryProvider.MarkSentSql(), sentAt, pid, pname, m.Id, m.ClaimId)
		if err != nil {
			return errors.Wrapf(err, "notification: error marking message %s as sent", m.Id)
		}
		if count, _ := res.RowsAffected(); count < 1 {
			return ErrClaimLost
		}

		return r.bumpBatch(ctx, tx, m.BatchId, 1, 0, 0)
	})
	if err != nil {
		return err
	}

	m.Status = StatusSent
	m.SentAt = sql.NullTime{Time: sentAt, Valid: true}
	m.ProviderMessageId = pid
	m.ProviderName = pname
	m.ClaimId = nil

	return nil
}

// MarkFailure records a failed dispatch attempt. A terminal failure moves the
// message to failed and counts it against its batch, otherwise the message is
// re-queued for its next attempt.
func (r Repository) MarkFailure(ctx context.Context, m *Message, f Failure) error {
	status := StatusQueued
	next := sql.NullTime{Time: f.NextAttemptAt, Valid: !f.NextAttemptAt.IsZero()}
	if f.Terminal {
		status = StatusFailed
		next = sql.NullTime{}
	}
	retryCount := m.RetryCount + 1

	log.Logger.WithFields(logrus.Fields{
		"id":          m.Id.String(),
		"status":      status,
		"retry_count": retryCount,
		"reason":      f.Reason,
	}).Debug("recording dispatch failure")

	err := r.inTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, r.queryProvider.MarkFailureSql(), status, retryCount, f.Reason, next, m.Id, m.ClaimId)
		if err != nil {
			return errors.Wrapf(err, "notification: error recording failure for message %s", m.Id)
		}
		if count, _ := res.RowsAffected(); count < 1 {
			return ErrClaimLost
		}

		if !f.Terminal {
			return nil
		}

		return r.bumpBatch(ctx, tx, m.BatchId, 0, 0, 1)
	})
	if err != nil {
		return err
	}

	m.Status = status
	m.RetryCount = retryCount
	m.FailureReason = sql.NullString{String: f.Reason, Valid: true}
	m.NextAttemptAt = next
	m.ClaimId = nil
	m.ProcessingStartedAt = sql.NullTime{}

	return nil
}

// ApplyDelivered moves a sent message to delivered. It reports false without
// an error when the message was not in the sent state.
func (r Repository) ApplyDelivered(ctx context.Context, m *Message, at time.Time) (bool, error) {
	applied := false
	err := r.inTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, r.queryProvider.DeliveredSql(), at, m.Id)
		if err != nil {
			return errors.Wrapf(err, "notification: error marking message %s as delivered", m.Id)
		}
		if count, _ := res.RowsAffected(); count < 1 {
			return nil
		}
		applied = true

		return r.bumpBatch(ctx, tx, m.BatchId, 0, 1, 0)
	})
	if err != nil || !applied {
		return false, err
	}

	m.Status = StatusDelivered
	m.DeliveredAt = sql.NullTime{Time: at, Valid: true}

	return true, nil
}

// ApplyDeliveryFailure moves a sent message to bounced or failed. A batch
// member is moved from the batch sent count to its failed count so the sum of
// the two is preserved.
func (r Repository) ApplyDeliveryFailure(ctx context.Context, m *Message, status Status, reason string) (bool, error) {
	if status != StatusBounced && status != StatusFailed {
		return false, errors.Errorf("notification: %s is not a delivery failure status", status)
	}

	applied := false
	err := r.inTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, r.queryProvider.DeliveryFailureSql(), status, reason, m.Id)
		if err != nil {
			return errors.Wrapf(err, "notification: error marking message %s as %s", m.Id, status)
		}
		if count, _ := res.RowsAffected(); count < 1 {
			return nil
		}
		applied = true

		return r.bumpBatch(ctx, tx, m.BatchId, -1, 0, 1)
	})
	if err != nil || !applied {
		return false, err
	}

	m.Status = status
	m.FailureReason = sql.NullString{String: reason, Valid: true}

	return true, nil
}

// CloseBatch stamps the batch with its terminal status. Only the first caller
// to observe a settled batch gets true back.
func (r Repository) CloseBatch(ctx context.Context, id uuid.UUID, status BatchStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.queryProvider.CloseBatchSql(), status, time.Now().In(time.UTC), id)
	if err != nil {
		return false, errors.Wrapf(err, "notification: error closing batch %s", id)
	}

	count, _ := res.RowsAffected()

	return count > 0, nil
}

// ListFailed returns dead-lettered messages, oldest first. An empty vendor id
// lists every vendor.
func (r Repository) ListFailed(ctx context.Context, vendorId string, limit, offset int) ([]*Message, error) {
	q := r.queryProvider.ListFailedSql(vendorId != "")
	args := []interface{}{limit, offset}
	if vendorId != "" {
		args = append([]interface{}{vendorId}, args...)
	}

	return r.findMessages(ctx, q, args...)
}

// Reprocess returns a failed message to the queue with a fresh retry budget.
// A batch member gives back the failure it counted against its batch.
func (r Repository) Reprocess(ctx context.Context, m *Message) error {
	err := r.inTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, r.queryProvider.ReprocessSql(), m.Id)
		if err != nil {
			return errors.Wrapf(err, "notification: error reprocessing message %s", m.Id)
		}
		if count, _ := res.RowsAffected(); count < 1 {
			return ErrNotDeadLettered
		}

		return r.bumpBatch(ctx, tx, m.BatchId, 0, 0, -1)
	})
	if err != nil {
		return err
	}

	m.Status = StatusQueued
	m.RetryCount = 0
	m.FailureReason = sql.NullString{}
	m.NextAttemptAt = sql.NullTime{}
	m.ClaimId = nil

	return nil
}

// ListStale returns messages that have been processing since before the
// given time, i.e. whose worker most likely died.
func (r Repository) ListStale(ctx context.Context, startedBefore time.Time, limit int) ([]*Message, error) {
	return r.findMessages(ctx, r.queryProvider.ListStaleSql(), startedBefore, limit)
}

func (r Repository) CountVendorMessagesSince(ctx context.Context, vendorId string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, r.queryProvider.CountVendorMessagesSinceSql(), vendorId, since).Scan(&count)
	if err != nil {
		return 0, errors.Wrapf(err, "notification: error counting messages for vendor %s", vendorId)
	}

	return count, nil
}

// QueueSize counts messages that are waiting for or undergoing dispatch.
func (r Repository) QueueSize(ctx context.Context) (uint, error) {
	return r.count(ctx, r.queryProvider.GetQueueSizeSql())
}

func (r Repository) TotalSize(ctx context.Context) (uint, error) {
	return r.count(ctx, r.queryProvider.GetTotalSizeSql())
}

func (r Repository) DeadLetterSize(ctx context.Context) (uint, error) {
	return r.count(ctx, r.queryProvider.GetDeadLetterSizeSql())
}

func (r Repository) count(ctx context.Context, q string) (uint, error) {
	res := r.db.QueryRowContext(ctx, q)

	var count uint
	err := res.Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

func (r Repository) bumpBatch(ctx context.Context, ex execer, batchId *uuid.UUID, sent, delivered, failed int) error {
	if batchId == nil {
		return nil
	}

	q := r.queryProvider.BatchCounterSql(sent, delivered, failed)
	log.Logger.WithFields(logrus.Fields{"query": q, "batch_id": batchId.String()}).Debug("updating batch counters")

	if _, err := ex.ExecContext(ctx, q, *batchId); err != nil {
		return errors.Wrapf(err, "notification: error updating counters for batch %s", batchId)
	}

	return nil
}

func (r Repository) inTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "notification: error starting a DB transaction")
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Logger.WithError(rbErr).Error("error rolling back the DB transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "notification: error committing DB transaction")
	}

	return nil
}

func (r Repository) findMessage(ctx context.Context, q string, args ...interface{}) (*Message, error) {
	m, err := scanMessage(r.db.QueryRowContext(ctx, q, args...))
	if err == sql.ErrNoRows {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "notification: error fetching message in repository")
	}

	return m, nil
}

func (r Repository) findMessages(ctx context.Context, q string, args ...interface{}) ([]*Message, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "notification: error listing messages in repository")
	}
	defer rows.Close()

	msgs := []*Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, errors.Wrap(err, "notification: error scanning message result into memory in repository")
		}
		msgs = append(msgs, m)
	}

	return msgs, rows.Err()
}

func (r Repository) findBatch(ctx context.Context, q string, args ...interface{}) (*Batch, error) {
	b := &Batch{}
	err := r.db.QueryRowContext(ctx, q, args...).Scan(
		&b.Id, &b.VendorId, &b.Channel, &b.Subject, &b.Body, &b.Priority, &b.IdempotencyKey, &b.TotalRecipients,
		&b.SentCount, &b.DeliveredCount, &b.FailedCount, &b.Status, &b.ScheduledAt, &b.CreatedAt, &b.CompletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrBatchNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "notification: error fetching batch in repository")
	}

	return b, nil
}

func scanMessage(row rowScanner) (*Message, error) {
	m := &Message{}
	err := row.Scan(
		&m.Id, &m.VendorId, &m.BatchId, &m.Channel, &m.RecipientToken, &m.RecipientType, &m.Subject, &m.Body,
		&m.Priority, &m.Status, &m.RetryCount, &m.FailureReason, &m.IdempotencyKey, &m.ProviderMessageId,
		&m.ProviderName, &m.ClaimId, &m.ProcessingStartedAt, &m.ScheduledAt, &m.NextAttemptAt,
		&m.CreatedAt, &m.SentAt, &m.DeliveredAt,
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func messageArgs(m *Message) []interface{} {
	return []interface{}{
		m.Id, m.VendorId, m.BatchId, m.Channel, m.RecipientToken, m.RecipientType, m.Subject, m.Body,
		m.Priority, m.Status, m.RetryCount, m.FailureReason, m.IdempotencyKey, m.ProviderMessageId,
		m.ProviderName, m.ClaimId, m.ProcessingStartedAt, m.ScheduledAt, m.NextAttemptAt,
		m.CreatedAt, m.SentAt, m.DeliveredAt,
	}
}

func batchArgs(b *Batch) []interface{} {
	return []interface{}{
		b.Id, b.VendorId, b.Channel, b.Subject, b.Body, b.Priority, b.IdempotencyKey, b.TotalRecipients,
		b.SentCount, b.DeliveredCount, b.FailedCount, b.Status, b.ScheduledAt, b.CreatedAt, b.CompletedAt,
	}
}

func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	return false
}

func newQueryProvider(d config.DbDriver, table, batchTable string) queryProvider {
	switch true {
	case d.Postgres():
		return &s.PostgresQueryProvider{
			Table:        table,
			BatchTable:   batchTable,
			Columns:      columns,
			BatchColumns: batchColumns,
		}
	case d.MySQL():
		return &s.MysqlQueryProvider{
			Table:        table,
			BatchTable:   batchTable,
			Columns:      columns,
			BatchColumns: batchColumns,
		}
	}

	return nil
}
