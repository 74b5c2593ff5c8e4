package provider

import (
	"inviqa/notification-relay/config"
	"inviqa/notification-relay/notification"

	"github.com/pkg/errors"
)

// NewRegistryFromConfig builds the sender for each channel from the configured
// provider names. Real providers are wrapped in a circuit breaker.
func NewRegistryFromConfig(cfg *config.Config, resolver AddressResolver) (*Registry, error) {
	r := NewRegistry()

	switch cfg.EmailProvider {
	case config.ProviderLog:
		r.Register(notification.ChannelEmail, LogSender{})
	case config.ProviderSMTP:
		r.Register(notification.ChannelEmail, NewBreaker(NewSMTPSender(cfg, resolver), DefaultBreakerSettings()))
	case config.ProviderBrevo:
		r.Register(notification.ChannelEmail, NewBreaker(NewBrevoSender(cfg, resolver), DefaultBreakerSettings()))
	default:
		return nil, errors.Errorf("unsupported email provider %q", cfg.EmailProvider)
	}

	switch cfg.SmsProvider {
	case config.ProviderLog:
		r.Register(notification.ChannelSMS, LogSender{})
	case config.ProviderTwilio:
		r.Register(notification.ChannelSMS, NewBreaker(NewTwilioSender(cfg, resolver), DefaultBreakerSettings()))
	default:
		return nil, errors.Errorf("unsupported SMS provider %q", cfg.SmsProvider)
	}

	return r, nil
}
