package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"inviqa/notification-relay/config"
	"inviqa/notification-relay/notification"

	"github.com/pkg/errors"
)

const twilioEndpoint = "https://api.twilio.com/2010-04-01/Accounts/%s/Messages.json"

type twilioResponse struct {
	Sid     string `json:"sid"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// TwilioSender delivers SMS through the Twilio messages API.
type TwilioSender struct {
	accountSid string
	authToken  string
	from       string
	resolver   AddressResolver
	client     *http.Client
}

func NewTwilioSender(cfg *config.Config, resolver AddressResolver) *TwilioSender {
	return &TwilioSender{
		accountSid: cfg.TwilioAccountSid,
		authToken:  cfg.TwilioAuthToken,
		from:       cfg.TwilioFrom,
		resolver:   resolver,
		client:     &http.Client{Timeout: cfg.GetProviderTimeout()},
	}
}

func (s *TwilioSender) Name() string {
	return config.ProviderTwilio
}

func (s *TwilioSender) Send(ctx context.Context, in Input) (Outcome, error) {
	to, err := s.resolver.Resolve(ctx, in.RecipientToken, notification.ChannelSMS)
	if err != nil {
		return Outcome{}, errors.Wrap(err, "twilio: unable to resolve recipient number")
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", s.from)
	form.Set("Body", in.Body)

	endpoint := fmt.Sprintf(twilioEndpoint, url.PathEscape(s.accountSid))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Outcome{}, errors.Wrap(err, "twilio: unable to create request")
	}
	req.SetBasicAuth(s.accountSid, s.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return Outcome{}, errors.Wrap(err, "twilio: request failed")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	var res twilioResponse
	_ = json.Unmarshal(body, &res)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return Outcome{Success: true, ProviderId: res.Sid, ProviderName: s.Name()}, nil
	}

	return Outcome{
		ProviderName: s.Name(),
		Error:        fmt.Sprintf("twilio responded with %d (code %d): %s", resp.StatusCode, res.Code, res.Message),
		Retryable:    retryableStatus(resp.StatusCode),
	}, nil
}
