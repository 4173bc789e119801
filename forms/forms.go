// Package forms turns website form submissions into outgoing email.
//
// A Handler receives the form name, the submitted fields, any uploaded
// attachments and the recipient configuration for that form. The stock
// implementation, MailHandler, composes a plain-text message and hands it
// to a Sender such as the Mailgun adapter.
package forms

import (
	"context"
	"errors"
	"sort"
	"strings"
)

var (
	// ErrUnknownForm is returned by Registry.Lookup for unconfigured forms.
	ErrUnknownForm = errors.New("forms: unknown form")
	// ErrSend wraps every transport failure returned by MailHandler.
	ErrSend = errors.New("forms: send failed")
	// ErrNoTransport reports that a submission was accepted but no mail
	// transport is configured to deliver it.
	ErrNoTransport = errors.New("forms: no mail transport configured")
)

// Fields holds submitted values keyed by field name.
type Fields map[string][]string

// Get returns the first value for key, or "".
func (f Fields) Get(key string) string {
	if vs := f[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// Keys returns the visible field names in sorted order. Names starting
// with "_" are control fields and are skipped.
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		if strings.HasPrefix(k, "_") {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Attachment is an uploaded file forwarded with the email.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// FormConfig describes where submissions of one form go.
type FormConfig struct {
	Recipients   []string `yaml:"recipients"`
	From         string   `yaml:"from"`
	Subject      string   `yaml:"subject"`
	ReplyToField string   `yaml:"replyToField"` // default "email"
}

// HasRecipients reports whether at least one non-blank recipient is set.
func (c FormConfig) HasRecipients() bool {
	return len(cleanRecipients(c.Recipients)) > 0
}

// Handler delivers a single form submission.
type Handler interface {
	Handle(ctx context.Context, formName string, data Fields, attachments []Attachment, cfg FormConfig) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, formName string, data Fields, attachments []Attachment, cfg FormConfig) error

// Handle implements Handler.
func (fn HandlerFunc) Handle(ctx context.Context, formName string, data Fields, attachments []Attachment, cfg FormConfig) error {
	return fn(ctx, formName, data, attachments, cfg)
}

// Registry maps form names to their configuration.
type Registry map[string]FormConfig

// Lookup returns the configuration for name.
func (r Registry) Lookup(name string) (FormConfig, error) {
	cfg, ok := r[name]
	if !ok {
		return FormConfig{}, ErrUnknownForm
	}
	return cfg, nil
}

// Names returns the configured form names in sorted order.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for n := range r {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ValidEmail is a light guardrail, not an RFC validator: it rejects empty
// input, a missing '@' and domains without a dot.
func ValidEmail(s string) bool {
	s = strings.TrimSpace(s)
	if strings.ContainsAny(s, " \t\r\n<>,") {
		return false
	}
	at := strings.IndexByte(s, '@')
	if at <= 0 || at == len(s)-1 {
		return false
	}
	return strings.Contains(s[at+1:], ".")
}

func cleanRecipients(in []string) []string {
	var out []string
	for _, r := range in {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}
