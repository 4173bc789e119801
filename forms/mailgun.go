package forms

import (
	"context"
	"fmt"
	"strings"

	"github.com/mailgun/mailgun-go/v4"
)

// MailgunConfig holds the Mailgun API credentials.
type MailgunConfig struct {
	Domain  string
	APIKey  string
	Region  string // "us" (default) or "eu"
	APIBase string // overrides Region when set
}

// MailgunSender sends messages through the Mailgun HTTP API.
type MailgunSender struct {
	mg *mailgun.MailgunImpl
}

// NewMailgunSender returns a Sender for the given account.
func NewMailgunSender(cfg MailgunConfig) (*MailgunSender, error) {
	if cfg.Domain == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("forms: mailgun domain and api key are required")
	}
	mg := mailgun.NewMailgun(cfg.Domain, cfg.APIKey)
	switch {
	case cfg.APIBase != "":
		mg.SetAPIBase(cfg.APIBase)
	case strings.EqualFold(cfg.Region, "eu"):
		mg.SetAPIBase(mailgun.APIBaseEU)
	}
	return &MailgunSender{mg: mg}, nil
}

// Send implements Sender.
func (s *MailgunSender) Send(ctx context.Context, msg Message) (string, error) {
	m := s.mg.NewMessage(msg.From, msg.Subject, msg.Text, msg.To...)
	if msg.ReplyTo != "" {
		m.SetReplyTo(msg.ReplyTo)
	}
	for _, a := range msg.Attachments {
		m.AddBufferAttachment(a.Filename, a.Data)
	}
	_, id, err := s.mg.Send(ctx, m)
	if err != nil {
		return "", fmt.Errorf("mailgun: %w", err)
	}
	return id, nil
}
