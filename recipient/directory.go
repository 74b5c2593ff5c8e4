package recipient

import (
	"context"
	"database/sql"
	"fmt"

	"inviqa/notification-relay/config"
	"inviqa/notification-relay/notification"

	"github.com/pkg/errors"
)

// SQLDirectory looks recipients up in the users table shared with the
// platform. Rows are keyed by token and carry the contact details for each
// channel.
type SQLDirectory struct {
	db         *sql.DB
	existsSql  string
	contactSql string
}

func NewSQLDirectory(db *sql.DB, cfg *config.Config) *SQLDirectory {
	d := &SQLDirectory{db: db}
	if cfg.DBDriver.Postgres() {
		d.existsSql = fmt.Sprintf(`SELECT 1 FROM "%s" WHERE "token" = $1 LIMIT 1`, cfg.DBRecipientsTable)
		d.contactSql = fmt.Sprintf(`SELECT "email", "phone" FROM "%s" WHERE "token" = $1 LIMIT 1`, cfg.DBRecipientsTable)
	} else {
		d.existsSql = fmt.Sprintf("SELECT 1 FROM `%s` WHERE `token` = ? LIMIT 1", cfg.DBRecipientsTable)
		d.contactSql = fmt.Sprintf("SELECT `email`, `phone` FROM `%s` WHERE `token` = ? LIMIT 1", cfg.DBRecipientsTable)
	}

	return d
}

func (d *SQLDirectory) Exists(ctx context.Context, token string) (bool, error) {
	var one int
	err := d.db.QueryRowContext(ctx, d.existsSql, token).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "recipient: error looking up recipient")
	}

	return true, nil
}

// Resolve returns the address a channel delivers to for the given token.
func (d *SQLDirectory) Resolve(ctx context.Context, token string, ch notification.Channel) (string, error) {
	var email, phone sql.NullString
	err := d.db.QueryRowContext(ctx, d.contactSql, token).Scan(&email, &phone)
	if err == sql.ErrNoRows {
		return "", notification.ErrRecipientNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "recipient: error resolving recipient address")
	}

	var addr sql.NullString
	switch ch {
	case notification.ChannelEmail:
		addr = email
	case notification.ChannelSMS:
		addr = phone
	default:
		return "", errors.Wrapf(notification.ErrUnsupportedChannel, "recipient: %s", ch)
	}

	if !addr.Valid || addr.String == "" {
		return "", errors.Wrapf(notification.ErrRecipientNotFound, "recipient has no %s address", ch)
	}

	return addr.String, nil
}
