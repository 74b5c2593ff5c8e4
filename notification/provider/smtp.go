package provider

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"inviqa/notification-relay/config"
	"inviqa/notification-relay/notification"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type SMTPSender struct {
	host     string
	port     int
	username string
	password string
	from     string
	resolver AddressResolver
	dialer   *net.Dialer
}

func NewSMTPSender(cfg *config.Config, resolver AddressResolver) *SMTPSender {
	return &SMTPSender{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
		from:     cfg.SMTPFrom,
		resolver: resolver,
		dialer:   &net.Dialer{Timeout: cfg.GetProviderTimeout()},
	}
}

func (s *SMTPSender) Name() string {
	return config.ProviderSMTP
}

func (s *SMTPSender) Send(ctx context.Context, in Input) (Outcome, error) {
	to, err := s.resolver.Resolve(ctx, in.RecipientToken, notification.ChannelEmail)
	if err != nil {
		return Outcome{}, errors.Wrap(err, "smtp: unable to resolve recipient address")
	}

	msgId := fmt.Sprintf("<%s@%s>", uuid.New().String(), s.host)
	if err := s.deliver(ctx, to, s.compose(to, msgId, in)); err != nil {
		var tpErr *textproto.Error
		if errors.As(err, &tpErr) {
			return Outcome{
				ProviderName: s.Name(),
				Error:        tpErr.Error(),
				Retryable:    tpErr.Code >= 400 && tpErr.Code < 500,
			}, nil
		}
		return Outcome{}, err
	}

	return Outcome{Success: true, ProviderId: msgId, ProviderName: s.Name()}, nil
}

func (s *SMTPSender) deliver(ctx context.Context, to string, body []byte) error {
	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	conn, err := s.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "smtp: failed to connect to %s", addr)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(s.dialer.Timeout))
	}

	c, err := smtp.NewClient(conn, s.host)
	if err != nil {
		conn.Close()
		return errors.Wrap(err, "smtp: failed to create client")
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.host}); err != nil {
			return err
		}
	}

	if s.username != "" {
		if err := c.Auth(smtp.PlainAuth("", s.username, s.password, s.host)); err != nil {
			return err
		}
	}

	if err := c.Mail(s.from); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}

	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	return c.Quit()
}

func (s *SMTPSender) compose(to, msgId string, in Input) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", s.from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", in.Subject))
	fmt.Fprintf(&b, "Message-ID: %s\r\n", msgId)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(in.Body)
	b.WriteString("\r\n")

	return b.Bytes()
}
