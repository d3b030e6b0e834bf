package mailin

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Message is the provider-neutral shape of an inbound email. Every provider
// webhook is normalized into this before being fanned out.
type Message struct {
	Provider  string `json:"provider"`
	From      string `json:"from"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	TextBody  string `json:"text_body,omitempty"`
	HTMLBody  string `json:"html_body,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	SpamScore string `json:"spam_score,omitempty"`
}

var ErrUnparsable = errors.New("inbound email payload did not match any known provider")

// adapter recognizes and parses one provider's inbound-parse webhook format.
type adapter interface {
	name() string
	matches(form url.Values) bool
	parse(form url.Values) (*Message, error)
}

// adapters are tried in fixed priority order. SendGrid's format is the most
// distinctive so it goes first; the generic adapter accepts anything with a
// from/to pair and must stay last.
var adapters = []adapter{
	sendgridAdapter{},
	mailgunAdapter{},
	genericAdapter{},
}

// Normalize parses an inbound-email webhook request into a Message. Provider
// detection is by payload shape, not by URL, because forwarding services strip
// path hints.
func Normalize(r *http.Request) (*Message, error) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("failed to parse inbound email form: %w", err)
		}
	}

	form := url.Values{}
	for k, v := range r.Form {
		form[k] = v
	}
	if r.MultipartForm != nil {
		for k, v := range r.MultipartForm.Value {
			form[k] = v
		}
	}

	for _, a := range adapters {
		if a.matches(form) {
			msg, err := a.parse(form)
			if err != nil {
				return nil, fmt.Errorf("%s payload rejected: %w", a.name(), err)
			}
			msg.Provider = a.name()
			return msg, nil
		}
	}
	return nil, ErrUnparsable
}

// ---------------- SENDGRID ----------------

// sendgridAdapter handles SendGrid's inbound parse webhook, identified by its
// JSON envelope field.
type sendgridAdapter struct{}

func (sendgridAdapter) name() string { return "sendgrid" }

func (sendgridAdapter) matches(form url.Values) bool {
	return form.Get("envelope") != "" && form.Get("from") != ""
}

func (sendgridAdapter) parse(form url.Values) (*Message, error) {
	msg := &Message{
		From:      form.Get("from"),
		To:        form.Get("to"),
		Subject:   form.Get("subject"),
		TextBody:  form.Get("text"),
		HTMLBody:  form.Get("html"),
		SpamScore: form.Get("spam_score"),
	}

	// The envelope carries the true SMTP recipient, which beats the To header
	// when mail was BCCed or forwarded.
	var envelope struct {
		To   []string `json:"to"`
		From string   `json:"from"`
	}
	if err := json.Unmarshal([]byte(form.Get("envelope")), &envelope); err == nil {
		if len(envelope.To) > 0 {
			msg.To = envelope.To[0]
		}
		if envelope.From != "" {
			msg.From = envelope.From
		}
	}

	if msg.From == "" || msg.To == "" {
		return nil, errors.New("missing from/to")
	}
	return msg, nil
}

// ---------------- MAILGUN ----------------

// mailgunAdapter handles Mailgun routes, identified by the body-plain field
// and the sender/recipient pair.
type mailgunAdapter struct{}

func (mailgunAdapter) name() string { return "mailgun" }

func (mailgunAdapter) matches(form url.Values) bool {
	if form.Get("sender") == "" || form.Get("recipient") == "" {
		return false
	}
	_, hasBody := form["body-plain"]
	_, hasSig := form["signature"]
	return hasBody || hasSig
}

func (mailgunAdapter) parse(form url.Values) (*Message, error) {
	msg := &Message{
		From:      form.Get("sender"),
		To:        form.Get("recipient"),
		Subject:   form.Get("subject"),
		TextBody:  form.Get("body-plain"),
		HTMLBody:  form.Get("body-html"),
		MessageID: strings.Trim(form.Get("Message-Id"), "<>"),
	}
	if msg.From == "" || msg.To == "" {
		return nil, errors.New("missing sender/recipient")
	}
	return msg, nil
}

// ---------------- GENERIC ----------------

// genericAdapter is the last-resort fallback for self-hosted forwarders that
// post plain from/to/subject/body fields.
type genericAdapter struct{}

func (genericAdapter) name() string { return "generic" }

func (genericAdapter) matches(form url.Values) bool {
	return form.Get("from") != "" && form.Get("to") != ""
}

func (genericAdapter) parse(form url.Values) (*Message, error) {
	body := form.Get("body")
	if body == "" {
		body = form.Get("text")
	}
	return &Message{
		From:      form.Get("from"),
		To:        form.Get("to"),
		Subject:   form.Get("subject"),
		TextBody:  body,
		HTMLBody:  form.Get("html"),
		MessageID: strings.Trim(form.Get("message-id"), "<>"),
	}, nil
}
