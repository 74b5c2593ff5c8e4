package provider

import (
	"context"

	"inviqa/notification-relay/config"
	"inviqa/notification-relay/log"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// LogSender pretends to deliver messages by logging them. It is the default
// for both channels so the relay can run without provider credentials.
type LogSender struct{}

func (LogSender) Name() string {
	return config.ProviderLog
}

func (s LogSender) Send(ctx context.Context, in Input) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	id := "log_" + uuid.New().String()
	log.Logger.WithFields(logrus.Fields{
		"message_id":      in.MessageId.String(),
		"vendor_id":       in.VendorId,
		"channel":         in.Channel,
		"recipient_token": in.RecipientToken,
		"provider_id":     id,
	}).Info("simulated message delivery")

	return Outcome{Success: true, ProviderId: id, ProviderName: s.Name()}, nil
}
