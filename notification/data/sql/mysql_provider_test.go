package sql

import (
	"strings"
	"testing"
)

func TestMysqlQueryProvider_InsertMessageSql(t *testing.T) {
	actual := createProvider().InsertMessageSql()

	exp := "INSERT INTO `notification_messages` (`id`, `vendor_id`, `status`) VALUES (?, ?, ?)"

	if actual != exp {
		t.Errorf(`received "%s" but expected "%s"`, actual, exp)
	}
}

func TestMysqlQueryProvider_InsertBatchSql(t *testing.T) {
	actual := createProvider().InsertBatchSql()

	exp := "INSERT INTO `notification_batches` (`id`, `total_recipients`) VALUES (?, ?)"

	if actual != exp {
		t.Errorf(`received "%s" but expected "%s"`, actual, exp)
	}
}

func TestMysqlQueryProvider_ClaimNextSql(t *testing.T) {
	actual := createProvider().ClaimNextSql(false, false)

	if !strings.Contains(actual, "ORDER BY created_at ASC LIMIT 1") {
		t.Errorf("claim SQL does not claim the oldest message first: %s", actual)
	}

	if strings.Contains(actual, "next_attempt_at") {
		t.Errorf("claim SQL should not wait for the retry backoff: %s", actual)
	}

	if strings.Count(actual, "?") != 3 {
		t.Errorf("claim SQL should take 3 arguments: %s", actual)
	}

	if !strings.Contains(actual, "`status` = 'scheduled' AND `scheduled_at` <= ?") {
		t.Errorf("claim SQL does not release due scheduled messages: %s", actual)
	}
}

func TestMysqlQueryProvider_ClaimNextDueSql(t *testing.T) {
	actual := createProvider().ClaimNextSql(false, true)

	if !strings.Contains(actual, "`next_attempt_at` <= ?") {
		t.Errorf("due claim SQL does not honour the retry backoff: %s", actual)
	}

	if strings.Count(actual, "?") != 4 {
		t.Errorf("due claim SQL should take 4 arguments: %s", actual)
	}
}

func TestMysqlQueryProvider_ClaimNextSqlWithPriorityOrdering(t *testing.T) {
	actual := createProvider().ClaimNextSql(true, false)

	if !strings.Contains(actual, "ORDER BY CASE priority WHEN 'HIGH' THEN 0 WHEN 'NORMAL' THEN 1 ELSE 2 END, created_at ASC LIMIT 1") {
		t.Errorf("claim SQL does not order by priority: %s", actual)
	}
}

func TestMysqlQueryProvider_OutcomeWritesAreGuardedByClaim(t *testing.T) {
	p := createProvider()
	for name, q := range map[string]string{"sent": p.MarkSentSql(), "failure": p.MarkFailureSql()} {
		if !strings.HasSuffix(q, "WHERE `id` = ? AND `status` = 'processing' AND `claim_id` = ?") {
			t.Errorf("%s SQL is not guarded by the claim: %s", name, q)
		}
	}
}

func TestMysqlQueryProvider_BatchCounterSql(t *testing.T) {
	actual := createProvider().BatchCounterSql(-1, 0, 1)

	if !strings.Contains(actual, "`sent_count` = `sent_count` + -1") || !strings.Contains(actual, "`failed_count` = `failed_count` + 1") {
		t.Errorf("batch counter SQL does not apply the deltas: %s", actual)
	}

	if !strings.HasPrefix(actual, "UPDATE `notification_batches`") {
		t.Errorf("batch counter SQL does not target the batches table: %s", actual)
	}
}

func TestMysqlQueryProvider_CloseBatchSql(t *testing.T) {
	actual := createProvider().CloseBatchSql()

	if !strings.Contains(actual, "`completed_at` IS NULL AND `sent_count` + `failed_count` >= `total_recipients`") {
		t.Errorf("close batch SQL is not conditional: %s", actual)
	}
}

func TestMysqlQueryProvider_ListFailedSql(t *testing.T) {
	p := createProvider()

	if actual := p.ListFailedSql(false); strings.Contains(actual, "`vendor_id` = ?") {
		t.Errorf("unfiltered SQL should not restrict the vendor: %s", actual)
	}

	if actual := p.ListFailedSql(true); !strings.Contains(actual, "`vendor_id` = ? ORDER BY `created_at` ASC LIMIT ? OFFSET ?") {
		t.Errorf("vendor filtered SQL is not as expected: %s", actual)
	}
}

func TestMysqlQueryProvider_ReprocessSql(t *testing.T) {
	actual := createProvider().ReprocessSql()

	if !strings.HasSuffix(actual, "WHERE `id` = ? AND `status` = 'failed'") {
		t.Errorf("reprocess SQL must only apply to failed messages: %s", actual)
	}
}

func createProvider() *MysqlQueryProvider {
	return &MysqlQueryProvider{
		Table:        "notification_messages",
		BatchTable:   "notification_batches",
		Columns:      []string{"id", "vendor_id", "status"},
		BatchColumns: []string{"id", "total_recipients"},
	}
}
