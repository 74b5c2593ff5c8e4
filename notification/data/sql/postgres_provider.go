package sql

import (
	"fmt"
	"strings"
)

type PostgresQueryProvider struct {
	Table        string
	BatchTable   string
	Columns      []string
	BatchColumns []string
}

func (m PostgresQueryProvider) InsertMessageSql() string {
	return m.insert(m.Table, m.Columns)
}

func (m PostgresQueryProvider) InsertBatchSql() string {
	return m.insert(m.BatchTable, m.BatchColumns)
}

func (m PostgresQueryProvider) MessageByIdSql() string {
	return m.selectMessages("id = $1")
}

func (m PostgresQueryProvider) MessageByIdempotencyKeySql() string {
	return m.selectMessages("vendor_id = $1 AND idempotency_key = $2")
}

func (m PostgresQueryProvider) MessageByProviderIdSql() string {
	return m.selectMessages("provider_message_id = $1 LIMIT 1")
}

func (m PostgresQueryProvider) MessageByClaimSql() string {
	return m.selectMessages("claim_id = $1")
}

func (m PostgresQueryProvider) BatchByIdSql() string {
	return fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, strings.Join(m.BatchColumns, ", "), m.BatchTable)
}

func (m PostgresQueryProvider) BatchByIdempotencyKeySql() string {
	return fmt.Sprintf(`SELECT %s FROM %s WHERE vendor_id = $1 AND idempotency_key = $2`, strings.Join(m.BatchColumns, ", "), m.BatchTable)
}

// ClaimNextSql selects the candidate in a sub-query with SKIP LOCKED so that
// concurrent workers move on to the next row instead of queueing behind the lock.
// With dueOnly set, queued messages still inside their retry backoff are passed
// over.
func (m PostgresQueryProvider) ClaimNextSql(priorityOrdering, dueOnly bool) string {
	queued, scheduledArg := "status = 'queued'", "$3"
	if dueOnly {
		queued, scheduledArg = "(status = 'queued' AND (next_attempt_at IS NULL OR next_attempt_at <= $3))", "$4"
	}

	q := `UPDATE %s SET status = 'processing', claim_id = $1, processing_started_at = $2
		WHERE id = (
			SELECT id FROM %s WHERE %s
			OR (status = 'scheduled' AND scheduled_at <= %s)
			ORDER BY %s LIMIT 1 FOR UPDATE SKIP LOCKED)`

	return fmt.Sprintf(q, m.Table, m.Table, queued, scheduledArg, claimOrder(priorityOrdering))
}

func (m PostgresQueryProvider) ClaimByIdSql() string {
	q := `UPDATE %s SET status = 'processing', claim_id = $1, processing_started_at = $2 WHERE id = $3 AND status IN ('queued', 'scheduled')`

	return fmt.Sprintf(q, m.Table)
}

func (m PostgresQueryProvider) MarkSentSql() string {
	q := `UPDATE %s SET status = 'sent', sent_at = $1, provider_message_id = $2, provider_name = $3, claim_id = NULL WHERE id = $4 AND status = 'processing' AND claim_id = $5`

	return fmt.Sprintf(q, m.Table)
}

func (m PostgresQueryProvider) MarkFailureSql() string {
	q := `UPDATE %s SET status = $1, retry_count = $2, failure_reason = $3, next_attempt_at = $4, claim_id = NULL, processing_started_at = NULL WHERE id = $5 AND status = 'processing' AND claim_id = $6`

	return fmt.Sprintf(q, m.Table)
}

func (m PostgresQueryProvider) DeliveredSql() string {
	return fmt.Sprintf(`UPDATE %s SET status = 'delivered', delivered_at = $1 WHERE id = $2 AND status = 'sent'`, m.Table)
}

func (m PostgresQueryProvider) DeliveryFailureSql() string {
	return fmt.Sprintf(`UPDATE %s SET status = $1, failure_reason = $2 WHERE id = $3 AND status = 'sent'`, m.Table)
}

func (m PostgresQueryProvider) BatchCounterSql(sent, delivered, failed int) string {
	q := `UPDATE %s SET sent_count = sent_count + %d, delivered_count = delivered_count + %d, failed_count = failed_count + %d, ` +
		`status = CASE WHEN status IN ('queued', 'scheduled') THEN 'processing' ELSE status END WHERE id = $1`

	return fmt.Sprintf(q, m.BatchTable, sent, delivered, failed)
}

func (m PostgresQueryProvider) CloseBatchSql() string {
	q := `UPDATE %s SET status = $1, completed_at = $2 WHERE id = $3 AND completed_at IS NULL AND sent_count + failed_count >= total_recipients`

	return fmt.Sprintf(q, m.BatchTable)
}

func (m PostgresQueryProvider) ListFailedSql(byVendor bool) string {
	if byVendor {
		return m.selectMessages("status = 'failed' AND vendor_id = $1 ORDER BY created_at ASC LIMIT $2 OFFSET $3")
	}

	return m.selectMessages("status = 'failed' ORDER BY created_at ASC LIMIT $1 OFFSET $2")
}

func (m PostgresQueryProvider) ReprocessSql() string {
	q := `UPDATE %s SET status = 'queued', retry_count = 0, failure_reason = NULL, next_attempt_at = NULL, claim_id = NULL WHERE id = $1 AND status = 'failed'`

	return fmt.Sprintf(q, m.Table)
}

func (m PostgresQueryProvider) ListStaleSql() string {
	return m.selectMessages("status = 'processing' AND processing_started_at < $1 ORDER BY processing_started_at ASC LIMIT $2")
}

func (m PostgresQueryProvider) CountVendorMessagesSinceSql() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE vendor_id = $1 AND created_at >= $2", m.Table)
}

func (m PostgresQueryProvider) GetQueueSizeSql() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE status IN ('queued', 'scheduled', 'processing')", m.Table)
}

func (m PostgresQueryProvider) GetTotalSizeSql() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s", m.Table)
}

func (m PostgresQueryProvider) GetDeadLetterSizeSql() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE status = 'failed'", m.Table)
}

func (m PostgresQueryProvider) selectMessages(where string) string {
	return fmt.Sprintf(`SELECT %s FROM %s WHERE %s`, strings.Join(m.Columns, ", "), m.Table, where)
}

func (m PostgresQueryProvider) insert(table string, columns []string) string {
	var placeholders []string
	for i := 1; i <= len(columns); i++ {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i))
	}

	return fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, table, strings.Join(columns, ", "), strings.Join(placeholders, ", "))
}
