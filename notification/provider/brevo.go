package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"inviqa/notification-relay/config"
	"inviqa/notification-relay/notification"

	"github.com/pkg/errors"
)

const brevoEndpoint = "https://api.brevo.com/v3/smtp/email"

type brevoAddress struct {
	Email string `json:"email"`
}

type brevoRequest struct {
	Sender      brevoAddress      `json:"sender"`
	To          []brevoAddress    `json:"to"`
	Subject     string            `json:"subject"`
	TextContent string            `json:"textContent"`
	Headers     map[string]string `json:"headers,omitempty"`
}

type brevoResponse struct {
	MessageId string `json:"messageId"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// BrevoSender delivers email through the Brevo transactional API.
type BrevoSender struct {
	apiKey   string
	sender   string
	resolver AddressResolver
	client   *http.Client
}

func NewBrevoSender(cfg *config.Config, resolver AddressResolver) *BrevoSender {
	return &BrevoSender{
		apiKey:   cfg.BrevoAPIKey,
		sender:   cfg.BrevoSender,
		resolver: resolver,
		client:   &http.Client{Timeout: cfg.GetProviderTimeout()},
	}
}

func (s *BrevoSender) Name() string {
	return config.ProviderBrevo
}

func (s *BrevoSender) Send(ctx context.Context, in Input) (Outcome, error) {
	to, err := s.resolver.Resolve(ctx, in.RecipientToken, notification.ChannelEmail)
	if err != nil {
		return Outcome{}, errors.Wrap(err, "brevo: unable to resolve recipient address")
	}

	payload, err := json.Marshal(brevoRequest{
		Sender:      brevoAddress{Email: s.sender},
		To:          []brevoAddress{{Email: to}},
		Subject:     in.Subject,
		TextContent: in.Body,
		Headers:     map[string]string{"X-Notification-Id": in.MessageId.String()},
	})
	if err != nil {
		return Outcome{}, errors.Wrap(err, "brevo: unable to encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, brevoEndpoint, bytes.NewReader(payload))
	if err != nil {
		return Outcome{}, errors.Wrap(err, "brevo: unable to create request")
	}
	req.Header.Set("api-key", s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Outcome{}, errors.Wrap(err, "brevo: request failed")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	var res brevoResponse
	_ = json.Unmarshal(body, &res)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return Outcome{Success: true, ProviderId: res.MessageId, ProviderName: s.Name()}, nil
	}

	return Outcome{
		ProviderName: s.Name(),
		Error:        fmt.Sprintf("brevo responded with %d: %s", resp.StatusCode, res.Message),
		Retryable:    retryableStatus(resp.StatusCode),
	}, nil
}
