package job

import (
	"context"
	"database/sql"
	"fmt"

	nr "github.com/newrelic/go-agent/v3/newrelic"

	"inviqa/notification-relay/log"
	"inviqa/notification-relay/newrelic"
)

type postgresOptimizeTable struct {
	Db        *sql.DB
	TableName string
}

func (o *postgresOptimizeTable) Execute(ctx context.Context) error {
	defer newrelic.DatastoreSegment(ctx, nr.DatastorePostgres, o.TableName, "VACUUM").End()

	_, err := o.Db.ExecContext(ctx, fmt.Sprintf(`VACUUM ANALYZE "%s";`, o.TableName))
	if err != nil {
		log.Logger.WithError(err).WithField("table", o.TableName).Error("an error occurred vacuuming the Postgres table")
		return err
	}

	log.Logger.WithField("table", o.TableName).Info("vacuumed Postgres table successfully")

	return nil
}
