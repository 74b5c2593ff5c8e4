package job

import (
	"context"
	"database/sql"
	"net/http"

	nr "github.com/newrelic/go-agent/v3/newrelic"

	"inviqa/notification-relay/config"
	"inviqa/notification-relay/log"
	"inviqa/notification-relay/newrelic"
)

type Optimizer interface {
	Execute(ctx context.Context) error
}

// RunOptimize reclaims space in the messages and batches tables. Both tables
// are attempted even if the first one fails.
func RunOptimize(ctx context.Context, nrApp *nr.Application, db *sql.DB, cfg *config.Config) int {
	return runOptimize(ctx, nrApp, db, cfg, http.DefaultClient)
}

func runOptimize(ctx context.Context, nrApp *nr.Application, db *sql.DB, cfg *config.Config, cl httpDoer) int {
	ctx, txn := newrelic.ContextWithTxn(ctx, "job: optimize tables", nrApp)
	defer txn.End()

	var exitCode int
	for _, table := range []string{cfg.DBMessagesTable, cfg.DBBatchesTable} {
		j := newOptimizeTable(db, table, cfg.DBDriver)
		if j == nil {
			log.Logger.WithField("driver", cfg.DBDriver).Error("unable to determine the database driver")
			return 1
		}

		if err := j.Execute(ctx); err != nil {
			txn.NoticeError(err)
			exitCode = 1
		}
	}

	if cfg.SidecarProxyUrl != "" {
		sq := SidecarQuitter{Client: cl}
		sq.EnableSideCarProxyQuit(cfg.SidecarProxyUrl)
		if err := sq.Quit(ctx); err != nil {
			exitCode = 1
		}
	}

	return exitCode
}

func newOptimizeTable(db *sql.DB, tableName string, dr config.DbDriver) Optimizer {
	switch true {
	case dr.MySQL():
		return &mysqlOptimizeTable{
			Db:        db,
			TableName: tableName,
		}
	case dr.Postgres():
		return &postgresOptimizeTable{
			Db:        db,
			TableName: tableName,
		}
	}
	return nil
}
