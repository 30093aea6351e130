package mailgunmail

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"

	"github.com/gobuffalo/packr"
	"github.com/newsapps/foiatracker/email"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tdewolff/minify"
	minifyhtml "github.com/tdewolff/minify/html"
	mailgun "gopkg.in/mailgun/mailgun-go.v1"
)

var templates = packr.NewBox("../../templates")

const promptTemplate = "email_prompt.html"

type verifier interface {
	VerifyWebhookRequest(req *http.Request) (verified bool, err error)
}

type sender interface {
	NewMessage(from, subject, text string, to ...string) *mailgun.Message
	Send(m *mailgun.Message) (string, string, error)
}

// Prompt holds what's needed to ask a staffer how to classify an email they forwarded
type Prompt struct {
	To          string
	SenderName  string
	Subject     string
	Recipients  []string
	NewURL      string
	ExistingURL string
}

// MailgunMail verifies inbound Mailgun webhooks and sends classification prompts through Mailgun
type MailgunMail struct {
	mg       sender
	verifier verifier
	from     string
	prompt   *template.Template
	minifier *minify.M
}

// NewMailgunProvider returns a MailgunMail sending from the given domain. With an empty signingKey
// every webhook request is accepted.
func NewMailgunProvider(domain, key, signingKey, from string) *MailgunMail {
	m := &MailgunMail{
		mg:       mailgun.NewMailgun(domain, key, ""),
		from:     from,
		prompt:   mustParseTemplate(templates, promptTemplate),
		minifier: minify.New(),
	}

	if signingKey != "" {
		m.verifier = mailgun.NewMailgun(domain, signingKey, "")
	}

	m.minifier.AddFunc("text/html", minifyhtml.Minify)

	return m
}

// Permissive reports whether webhook requests are accepted without a signature check
func (m *MailgunMail) Permissive() bool {
	return m.verifier == nil
}

// VerifyWebhookRequest checks the HMAC signature Mailgun adds to the timestamp and token form fields
func (m *MailgunMail) VerifyWebhookRequest(r *http.Request) (bool, error) {
	if m.verifier == nil {
		return true, nil
	}

	return m.verifier.VerifyWebhookRequest(r)
}

// RenderPrompt returns the minified html body of the prompt and its plain text alternative
func (m *MailgunMail) RenderPrompt(p Prompt) (string, string, error) {
	var buf bytes.Buffer
	if err := m.prompt.Execute(&buf, p); err != nil {
		return "", "", errors.Wrap(err, "RenderPrompt: failed to execute template")
	}

	html, err := m.minifier.String("text/html", buf.String())
	if err != nil {
		return "", "", errors.Wrap(err, "RenderPrompt: failed to minify html")
	}

	text, err := email.TextFromHTML(buf.String())
	if err != nil {
		return "", "", errors.Wrap(err, "RenderPrompt: failed to get text from html")
	}

	return html, text, nil
}

// SendPrompt emails the classification prompt to the staffer
func (m *MailgunMail) SendPrompt(p Prompt) error {
	html, text, err := m.RenderPrompt(p)
	if err != nil {
		return err
	}

	msg := m.mg.NewMessage(m.from, fmt.Sprintf("Help us understand \"%s\"", p.Subject), text, p.To)
	msg.SetHtml(html)

	_, id, err := m.mg.Send(msg)
	if err != nil {
		return errors.Wrap(err, "SendPrompt: failed to send message")
	}

	log.WithField("to", p.To).WithField("id", id).Info("Mailgun: sent classification prompt")
	return nil
}

func mustParseTemplate(box packr.Box, name string) *template.Template {
	s, err := box.FindString(name)
	if err != nil {
		log.WithError(err).Fatalf("MustParseTemplate: failed to find template %v", name)
	}

	return template.Must(template.New(name).Parse(s))
}
