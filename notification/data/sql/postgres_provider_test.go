package sql

import (
	"strings"
	"testing"
)

func TestPostgresQueryProvider_InsertMessageSql(t *testing.T) {
	actual := createPostgresProvider().InsertMessageSql()

	exp := `INSERT INTO notification_messages (id, vendor_id, status) VALUES ($1, $2, $3)`

	if actual != exp {
		t.Errorf(`received "%s" but expected "%s"`, actual, exp)
	}
}

func TestPostgresQueryProvider_ClaimNextSql(t *testing.T) {
	actual := createPostgresProvider().ClaimNextSql(false, false)

	if !strings.Contains(actual, "ORDER BY created_at ASC LIMIT 1 FOR UPDATE SKIP LOCKED") {
		t.Errorf("claim SQL does not skip locked rows: %s", actual)
	}

	if strings.Contains(actual, "next_attempt_at") {
		t.Errorf("claim SQL should not wait for the retry backoff: %s", actual)
	}

	if !strings.Contains(actual, "WHERE status = 'queued'\n") || !strings.Contains(actual, "scheduled_at <= $3") {
		t.Errorf("claim SQL placeholders are not as expected: %s", actual)
	}
}

func TestPostgresQueryProvider_ClaimNextDueSql(t *testing.T) {
	actual := createPostgresProvider().ClaimNextSql(false, true)

	if !strings.Contains(actual, "next_attempt_at <= $3") || !strings.Contains(actual, "scheduled_at <= $4") {
		t.Errorf("due claim SQL placeholders are not as expected: %s", actual)
	}
}

func TestPostgresQueryProvider_MarkFailureSql(t *testing.T) {
	actual := createPostgresProvider().MarkFailureSql()

	if !strings.HasSuffix(actual, "WHERE id = $5 AND status = 'processing' AND claim_id = $6") {
		t.Errorf("failure SQL is not guarded by the claim: %s", actual)
	}
}

func TestPostgresQueryProvider_BatchCounterSql(t *testing.T) {
	actual := createPostgresProvider().BatchCounterSql(1, 0, 0)

	exp := `UPDATE notification_batches SET sent_count = sent_count + 1, delivered_count = delivered_count + 0, failed_count = failed_count + 0, ` +
		`status = CASE WHEN status IN ('queued', 'scheduled') THEN 'processing' ELSE status END WHERE id = $1`

	if actual != exp {
		t.Errorf(`received "%s" but expected "%s"`, actual, exp)
	}
}

func TestPostgresQueryProvider_ListFailedSql(t *testing.T) {
	p := createPostgresProvider()

	if actual := p.ListFailedSql(false); !strings.HasSuffix(actual, "LIMIT $1 OFFSET $2") {
		t.Errorf("unfiltered SQL placeholders are not as expected: %s", actual)
	}

	if actual := p.ListFailedSql(true); !strings.HasSuffix(actual, "vendor_id = $1 ORDER BY created_at ASC LIMIT $2 OFFSET $3") {
		t.Errorf("vendor filtered SQL placeholders are not as expected: %s", actual)
	}
}

func TestPostgresQueryProvider_ListStaleSql(t *testing.T) {
	actual := createPostgresProvider().ListStaleSql()

	if !strings.Contains(actual, "status = 'processing' AND processing_started_at < $1") {
		t.Errorf("stale SQL is not as expected: %s", actual)
	}
}

func createPostgresProvider() *PostgresQueryProvider {
	return &PostgresQueryProvider{
		Table:        "notification_messages",
		BatchTable:   "notification_batches",
		Columns:      []string{"id", "vendor_id", "status"},
		BatchColumns: []string{"id", "total_recipients"},
	}
}
