package mailer

import (
	"context"
	"crypto/tls"

	"example.com/backstage/allegro/config"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/gomail.v2"
)

// Message is a plain-text email to a single buyer
type Message struct {
	To          string
	Subject     string
	Body        string
	ReplyTo     string
	DisplayName string
}

// Sender delivers email messages
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender sends mail through an SMTP relay
type SMTPSender struct {
	from   string
	dialer *gomail.Dialer
}

// NewSMTPSender creates a sender from the SMTP configuration
func NewSMTPSender(cfg config.SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" || cfg.Port == 0 || cfg.From == "" {
		return nil, errors.New("SMTP host, port and sender address must be configured")
	}

	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	dialer.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}

	return &SMTPSender{from: cfg.From, dialer: dialer}, nil
}

// Send delivers msg, giving up when ctx is done
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m, err := s.build(msg)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- s.dialer.DialAndSend(m)
	}()

	select {
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "sending email to %s", msg.To)
	case err := <-done:
		if err != nil {
			return errors.Wrapf(err, "failed to send email to %s", msg.To)
		}
	}

	log.Info().Str("to", msg.To).Str("subject", msg.Subject).Msg("email sent")
	return nil
}

func (s *SMTPSender) build(msg Message) (*gomail.Message, error) {
	if msg.To == "" {
		return nil, errors.New("email recipient is empty")
	}

	m := gomail.NewMessage(gomail.SetCharset("UTF-8"))
	if msg.DisplayName != "" {
		m.SetHeader("From", m.FormatAddress(s.from, msg.DisplayName))
	} else {
		m.SetHeader("From", s.from)
	}
	m.SetHeader("To", msg.To)
	if msg.ReplyTo != "" {
		m.SetHeader("Reply-To", msg.ReplyTo)
	}
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)
	return m, nil
}
