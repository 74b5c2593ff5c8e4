//go:build integration
// +build integration

package integration

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

func q(query string) string {
	if cfg.DBDriver.Postgres() {
		for i := 1; strings.Contains(query, "?"); i++ {
			query = strings.Replace(query, "?", fmt.Sprintf("$%d", i), 1)
		}
	}
	return query
}

func ensureRecipientsTableExists() {
	_, err := db.Exec(fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		token VARCHAR(32) PRIMARY KEY,
		email VARCHAR(255) NULL,
		phone VARCHAR(32) NULL
	)`, cfg.DBRecipientsTable))
	if err != nil {
		panic(fmt.Sprintf("an error occurred creating the recipients table for integration tests: %s", err))
	}
}

func purgeTables() {
	for _, table := range []string{cfg.DBMessagesTable, cfg.DBBatchesTable, cfg.DBRecipientsTable} {
		if _, err := db.Exec(fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			panic(fmt.Sprintf("an error occurred cleaning the %s table for tests: %s", table, err))
		}
	}
}

func insertRecipient(token, email, phone string) {
	_, err := db.Exec(q(fmt.Sprintf("INSERT INTO %s (token, email, phone) VALUES (?, ?, ?)", cfg.DBRecipientsTable)), token, email, phone)
	if err != nil {
		panic(fmt.Sprintf("failed to insert recipient %s: %s", token, err))
	}
}

// uniqueToken returns a token that no other test uses.
func uniqueToken(prefix string) string {
	return prefix + strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
}

func backdateNextAttempt(id uuid.UUID) {
	_, err := db.Exec(q(fmt.Sprintf("UPDATE %s SET next_attempt_at = ? WHERE id = ?", cfg.DBMessagesTable)), time.Now().UTC().Add(-time.Second), id.String())
	if err != nil {
		panic(fmt.Sprintf("failed to backdate message %s: %s", id, err))
	}
}

func backdateProcessingStart(id uuid.UUID, by time.Duration) {
	_, err := db.Exec(q(fmt.Sprintf("UPDATE %s SET processing_started_at = ? WHERE id = ?", cfg.DBMessagesTable)), time.Now().UTC().Add(-by), id.String())
	if err != nil {
		panic(fmt.Sprintf("failed to backdate message %s: %s", id, err))
	}
}
