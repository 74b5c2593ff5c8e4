package data

import (
	"io"
	"strings"
	"testing"

	"inviqa/notification-relay/config"
)

func TestCreateMigrateSourceDriverRewritesTableNames(t *testing.T) {
	tests := []struct {
		name   string
		driver config.DbDriver
	}{
		{"mysql", config.MySQL},
		{"postgres", config.Postgres},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{
				DBDriver:        tt.driver,
				DBMessagesTable: "school_messages",
				DBBatchesTable:  "school_batches",
			}

			d := createMigrateSourceDriver(cfg)
			defer d.Close()

			version, err := d.First()
			if err != nil {
				t.Fatalf("unexpected error reading the first migration: %s", err)
			}

			r, _, err := d.ReadUp(version)
			if err != nil {
				t.Fatalf("unexpected error reading the up migration: %s", err)
			}
			defer r.Close()

			b, _ := io.ReadAll(r)
			up := string(b)

			if !strings.Contains(up, "school_messages") || !strings.Contains(up, "school_batches") {
				t.Errorf("configured table names were not applied to the migration:\n%s", up)
			}

			if strings.Contains(up, "notification_messages") {
				t.Errorf("default table name was left in the migration:\n%s", up)
			}
		})
	}
}
