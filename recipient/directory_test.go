package recipient

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"inviqa/notification-relay/config"
	"inviqa/notification-relay/notification"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestSQLDirectory_Exists(t *testing.T) {
	db, mock, _ := sqlmock.New()
	cfg := &config.Config{DBDriver: config.MySQL, DBRecipientsTable: "users"}
	q := regexp.QuoteMeta("SELECT 1 FROM `users` WHERE `token` = ? LIMIT 1")

	mock.ExpectQuery(q).WithArgs("TKN_PAR_AB12CD34").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery(q).WithArgs("TKN_PAR_NOPE0000").WillReturnRows(sqlmock.NewRows([]string{"1"}))
	mock.ExpectQuery(q).WithArgs("TKN_PAR_ERR00000").WillReturnError(errors.New("oops"))

	d := NewSQLDirectory(db, cfg)

	if ok, err := d.Exists(context.Background(), "TKN_PAR_AB12CD34"); !ok || err != nil {
		t.Errorf("expected a known recipient, got %v, %v", ok, err)
	}

	if ok, err := d.Exists(context.Background(), "TKN_PAR_NOPE0000"); ok || err != nil {
		t.Errorf("expected an unknown recipient, got %v, %v", ok, err)
	}

	if _, err := d.Exists(context.Background(), "TKN_PAR_ERR00000"); err == nil {
		t.Error("expected an error but got nil")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("some SQL expectations were not met: %s", err)
	}
}

func TestSQLDirectory_ResolvePostgres(t *testing.T) {
	db, mock, _ := sqlmock.New()
	cfg := &config.Config{DBDriver: config.Postgres, DBRecipientsTable: "users"}
	q := regexp.QuoteMeta(`SELECT "email", "phone" FROM "users" WHERE "token" = $1 LIMIT 1`)

	tests := []struct {
		name    string
		email   interface{}
		phone   interface{}
		ch      notification.Channel
		want    string
		wantErr error
	}{
		{"email address", "parent@example.com", "+447700900000", notification.ChannelEmail, "parent@example.com", nil},
		{"phone number", "parent@example.com", "+447700900000", notification.ChannelSMS, "+447700900000", nil},
		{"no phone on record", "parent@example.com", nil, notification.ChannelSMS, "", notification.ErrRecipientNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock.ExpectQuery(q).WithArgs("TKN_PAR_AB12CD34").WillReturnRows(
				sqlmock.NewRows([]string{"email", "phone"}).AddRow(tt.email, tt.phone),
			)

			got, err := NewSQLDirectory(db, cfg).Resolve(context.Background(), "TKN_PAR_AB12CD34", tt.ch)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("some SQL expectations were not met: %s", err)
	}
}

func TestSQLDirectory_ResolveUnknownToken(t *testing.T) {
	db, mock, _ := sqlmock.New()
	cfg := &config.Config{DBDriver: config.MySQL, DBRecipientsTable: "users"}
	mock.ExpectQuery("SELECT `email`, `phone`").WillReturnRows(sqlmock.NewRows([]string{"email", "phone"}))

	_, err := NewSQLDirectory(db, cfg).Resolve(context.Background(), "TKN_PAR_NOPE0000", notification.ChannelEmail)
	if !errors.Is(err, notification.ErrRecipientNotFound) {
		t.Errorf("expected ErrRecipientNotFound, got %v", err)
	}
}
