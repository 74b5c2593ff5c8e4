package data

import (
	"database/sql"
	"embed"
	"io"
	"strings"

	"inviqa/notification-relay/config"
	"inviqa/notification-relay/log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/johejo/golang-migrate-extra/source/iofs"
)

const (
	migrationsTable = "notification_relay_schema_migrations"
)

var (
	//go:embed migrations/mysql/*.sql
	mysqlFiles embed.FS
	//go:embed migrations/postgres/*.sql
	postgresFiles embed.FS
)

// tableNames rewrites the default table names in the migration files to the
// configured ones.
type tableNames struct {
	source.Driver
	replacer *strings.Replacer
}

func MigrateDatabase(db *sql.DB, cfg *config.Config) {
	log.Logger.Info("checking database migrations")

	if cfg.SkipMigrations {
		log.Logger.Info("skipping database migrations because they are disabled")
		return
	}

	var err error
	var driver database.Driver
	if cfg.DBDriver.MySQL() {
		driver, err = mysql.WithInstance(db, &mysql.Config{MigrationsTable: migrationsTable})
	} else {
		driver, err = postgres.WithInstance(db, &postgres.Config{MigrationsTable: migrationsTable})
	}

	if err != nil {
		log.Logger.Fatalf("unable to create migration instance from database: %s", err)
	}

	d := createMigrateSourceDriver(cfg)

	m, err := migrate.NewWithInstance("iofs", d, cfg.DBSchema, driver)
	if err != nil {
		log.Logger.Fatalf("failed to load migration files from source driver: %s", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		log.Logger.Fatalf("failed to migrate database: %s", err)
	}

	log.Logger.Info("database is up-to-date, all migrations applied")
}

func createMigrateSourceDriver(cfg *config.Config) source.Driver {
	var d source.Driver
	var err error

	switch cfg.DBDriver {
	case config.MySQL:
		d, err = iofs.New(mysqlFiles, "migrations/mysql")
	case config.Postgres:
		d, err = iofs.New(postgresFiles, "migrations/postgres")
	}

	if err != nil {
		log.Logger.Fatalf("unable to load migration files from embedded filesystem: %s", err)
	}

	return newTableNames(d, cfg)
}

func newTableNames(d source.Driver, cfg *config.Config) source.Driver {
	return &tableNames{
		Driver: d,
		replacer: strings.NewReplacer(
			"notification_messages", cfg.DBMessagesTable,
			"notification_batches", cfg.DBBatchesTable,
		),
	}
}

func (t *tableNames) ReadUp(version uint) (io.ReadCloser, string, error) {
	r, identifier, err := t.Driver.ReadUp(version)
	if err != nil {
		return nil, "", err
	}

	return t.rewrite(r, identifier)
}

func (t *tableNames) ReadDown(version uint) (io.ReadCloser, string, error) {
	r, identifier, err := t.Driver.ReadDown(version)
	if err != nil {
		return nil, "", err
	}

	return t.rewrite(r, identifier)
}

func (t *tableNames) rewrite(r io.ReadCloser, identifier string) (io.ReadCloser, string, error) {
	defer r.Close()

	b, err := io.ReadAll(r)
	if err != nil {
		return nil, "", err
	}

	return io.NopCloser(strings.NewReader(t.replacer.Replace(string(b)))), identifier, nil
}
