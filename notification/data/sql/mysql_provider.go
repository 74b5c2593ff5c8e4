package sql

import (
	"fmt"
	"strings"
)

type MysqlQueryProvider struct {
	Table        string
	BatchTable   string
	Columns      []string
	BatchColumns []string
}

func (m MysqlQueryProvider) InsertMessageSql() string {
	return m.insert(m.Table, m.Columns)
}

func (m MysqlQueryProvider) InsertBatchSql() string {
	return m.insert(m.BatchTable, m.BatchColumns)
}

func (m MysqlQueryProvider) MessageByIdSql() string {
	return m.selectMessages("`id` = ?")
}

func (m MysqlQueryProvider) MessageByIdempotencyKeySql() string {
	return m.selectMessages("`vendor_id` = ? AND `idempotency_key` = ?")
}

func (m MysqlQueryProvider) MessageByProviderIdSql() string {
	return m.selectMessages("`provider_message_id` = ? LIMIT 1")
}

func (m MysqlQueryProvider) MessageByClaimSql() string {
	return m.selectMessages("`claim_id` = ?")
}

func (m MysqlQueryProvider) BatchByIdSql() string {
	return fmt.Sprintf("SELECT %s FROM `%s` WHERE `id` = ?", strings.Join(escapeColumns(m.BatchColumns), ", "), m.BatchTable)
}

func (m MysqlQueryProvider) BatchByIdempotencyKeySql() string {
	return fmt.Sprintf("SELECT %s FROM `%s` WHERE `vendor_id` = ? AND `idempotency_key` = ?", strings.Join(escapeColumns(m.BatchColumns), ", "), m.BatchTable)
}

// ClaimNextSql flips the oldest queued message to processing. With dueOnly
// set, queued messages still inside their retry backoff are passed over. MySQL
// applies ORDER BY and LIMIT to the UPDATE itself, so the row is chosen and
// locked in one statement.
func (m MysqlQueryProvider) ClaimNextSql(priorityOrdering, dueOnly bool) string {
	queued := "`status` = 'queued'"
	if dueOnly {
		queued = "(`status` = 'queued' AND (`next_attempt_at` IS NULL OR `next_attempt_at` <= ?))"
	}

	q := "UPDATE `%s` SET `status` = 'processing', `claim_id` = ?, `processing_started_at` = ?\n" +
		"\t\tWHERE %s\n" +
		"\t\tOR (`status` = 'scheduled' AND `scheduled_at` <= ?)\n" +
		"\t\tORDER BY %s LIMIT 1"

	return fmt.Sprintf(q, m.Table, queued, claimOrder(priorityOrdering))
}

func (m MysqlQueryProvider) ClaimByIdSql() string {
	q := "UPDATE `%s` SET `status` = 'processing', `claim_id` = ?, `processing_started_at` = ? WHERE `id` = ? AND `status` IN ('queued', 'scheduled')"

	return fmt.Sprintf(q, m.Table)
}

func (m MysqlQueryProvider) MarkSentSql() string {
	q := "UPDATE `%s` SET `status` = 'sent', `sent_at` = ?, `provider_message_id` = ?, `provider_name` = ?, `claim_id` = NULL WHERE `id` = ? AND `status` = 'processing' AND `claim_id` = ?"

	return fmt.Sprintf(q, m.Table)
}

func (m MysqlQueryProvider) MarkFailureSql() string {
	q := "UPDATE `%s` SET `status` = ?, `retry_count` = ?, `failure_reason` = ?, `next_attempt_at` = ?, `claim_id` = NULL, `processing_started_at` = NULL WHERE `id` = ? AND `status` = 'processing' AND `claim_id` = ?"

	return fmt.Sprintf(q, m.Table)
}

func (m MysqlQueryProvider) DeliveredSql() string {
	return fmt.Sprintf("UPDATE `%s` SET `status` = 'delivered', `delivered_at` = ? WHERE `id` = ? AND `status` = 'sent'", m.Table)
}

func (m MysqlQueryProvider) DeliveryFailureSql() string {
	return fmt.Sprintf("UPDATE `%s` SET `status` = ?, `failure_reason` = ? WHERE `id` = ? AND `status` = 'sent'", m.Table)
}

func (m MysqlQueryProvider) BatchCounterSql(sent, delivered, failed int) string {
	q := "UPDATE `%s` SET `sent_count` = `sent_count` + %d, `delivered_count` = `delivered_count` + %d, `failed_count` = `failed_count` + %d, " +
		"`status` = CASE WHEN `status` IN ('queued', 'scheduled') THEN 'processing' ELSE `status` END WHERE `id` = ?"

	return fmt.Sprintf(q, m.BatchTable, sent, delivered, failed)
}

func (m MysqlQueryProvider) CloseBatchSql() string {
	q := "UPDATE `%s` SET `status` = ?, `completed_at` = ? WHERE `id` = ? AND `completed_at` IS NULL AND `sent_count` + `failed_count` >= `total_recipients`"

	return fmt.Sprintf(q, m.BatchTable)
}

func (m MysqlQueryProvider) ListFailedSql(byVendor bool) string {
	where := "`status` = 'failed'"
	if byVendor {
		where += " AND `vendor_id` = ?"
	}

	return m.selectMessages(where + " ORDER BY `created_at` ASC LIMIT ? OFFSET ?")
}

func (m MysqlQueryProvider) ReprocessSql() string {
	q := "UPDATE `%s` SET `status` = 'queued', `retry_count` = 0, `failure_reason` = NULL, `next_attempt_at` = NULL, `claim_id` = NULL WHERE `id` = ? AND `status` = 'failed'"

	return fmt.Sprintf(q, m.Table)
}

func (m MysqlQueryProvider) ListStaleSql() string {
	return m.selectMessages("`status` = 'processing' AND `processing_started_at` < ? ORDER BY `processing_started_at` ASC LIMIT ?")
}

func (m MysqlQueryProvider) CountVendorMessagesSinceSql() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM `%s` WHERE `vendor_id` = ? AND `created_at` >= ?", m.Table)
}

func (m MysqlQueryProvider) GetQueueSizeSql() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM `%s` WHERE `status` IN ('queued', 'scheduled', 'processing')", m.Table)
}

func (m MysqlQueryProvider) GetTotalSizeSql() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM `%s`", m.Table)
}

func (m MysqlQueryProvider) GetDeadLetterSizeSql() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM `%s` WHERE `status` = 'failed'", m.Table)
}

func (m MysqlQueryProvider) selectMessages(where string) string {
	return fmt.Sprintf("SELECT %s FROM `%s` WHERE %s", strings.Join(escapeColumns(m.Columns), ", "), m.Table, where)
}

func (m MysqlQueryProvider) insert(table string, columns []string) string {
	return fmt.Sprintf(
		"INSERT INTO `%s` (%s) VALUES (%s)",
		table,
		strings.Join(escapeColumns(columns), ", "),
		strings.Trim(strings.Repeat("?, ", len(columns)), ", "),
	)
}

func escapeColumns(columns []string) []string {
	var escaped []string
	for _, c := range columns {
		escaped = append(escaped, "`"+c+"`")
	}

	return escaped
}
