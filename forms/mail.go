package forms

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Message is a transport-neutral email.
type Message struct {
	From        string
	To          []string
	Subject     string
	Text        string
	ReplyTo     string
	Attachments []Attachment
}

// Sender delivers a Message and returns the provider's message id.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// MailHandler is a Handler that emails each submission through a Sender.
type MailHandler struct {
	sender  Sender
	from    string
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures a MailHandler.
type Option func(*MailHandler)

// WithFrom sets the sender address used when a form does not define one.
func WithFrom(from string) Option {
	return func(h *MailHandler) { h.from = from }
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(h *MailHandler) { h.logger = l }
}

// WithMetrics records delivery outcomes.
func WithMetrics(m *Metrics) Option {
	return func(h *MailHandler) { h.metrics = m }
}

// NewMailHandler returns a MailHandler sending through sender.
func NewMailHandler(sender Sender, opts ...Option) *MailHandler {
	h := &MailHandler{sender: sender, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle emails the submission to cfg.Recipients. A form without recipients
// is skipped with a warning. Transport errors are wrapped with ErrSend and
// returned; no retry happens here.
func (h *MailHandler) Handle(ctx context.Context, formName string, data Fields, attachments []Attachment, cfg FormConfig) error {
	log := h.logger.With("form", formName)
	msg := Compose(formName, data, attachments, cfg)
	if len(msg.To) == 0 {
		log.Warn("form has no recipients configured, skipping email")
		h.metrics.Observe(formName, OutcomeSkipped)
		return nil
	}
	if msg.From == "" {
		msg.From = h.from
	}
	id, err := h.sender.Send(ctx, msg)
	if err != nil {
		h.metrics.Observe(formName, OutcomeFailed)
		return fmt.Errorf("%w: form %q: %w", ErrSend, formName, err)
	}
	log.Info("form submission emailed", "recipients", len(msg.To), "attachments", len(msg.Attachments), "id", id)
	h.metrics.Observe(formName, OutcomeSent)
	return nil
}

// Compose builds the email for a submission. Visible fields are listed in
// name order; control fields (leading "_") are left out.
func Compose(formName string, data Fields, attachments []Attachment, cfg FormConfig) Message {
	subject := strings.TrimSpace(cfg.Subject)
	if subject == "" {
		subject = fmt.Sprintf("New %s submission", formName)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Form: %s\n\n", formName)
	for _, k := range data.Keys() {
		fmt.Fprintf(&b, "%s: %s\n", k, strings.Join(data[k], ", "))
	}
	if len(attachments) > 0 {
		b.WriteString("\nAttachments:\n")
		for _, a := range attachments {
			fmt.Fprintf(&b, "- %s (%d bytes)\n", a.Filename, len(a.Data))
		}
	}

	replyField := cfg.ReplyToField
	if replyField == "" {
		replyField = "email"
	}
	var replyTo string
	if v := strings.TrimSpace(data.Get(replyField)); ValidEmail(v) {
		replyTo = v
	}

	return Message{
		From:        cfg.From,
		To:          cleanRecipients(cfg.Recipients),
		Subject:     subject,
		Text:        b.String(),
		ReplyTo:     replyTo,
		Attachments: attachments,
	}
}
