package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log"

	"github.com/stockalert/stockalert/internal/database"
	"github.com/stockalert/stockalert/internal/utils"
)

// Escalation channel names, matched against AlertSettings toggles
const (
	EscalationEmail = "email"
	EscalationSlack = "slack"
)

// maxSubjectLength keeps escalation subjects on one line in mail clients
const maxSubjectLength = 120

// ErrNoEmailAddress is returned when the recipient has no email address
var ErrNoEmailAddress = errors.New("recipient has no email address")

// Escalator delivers a CRITICAL notification outside the application
type Escalator interface {
	Name() string
	Escalate(ctx context.Context, n *database.Notification, recipient Recipient) error
}

// SendEmailFunc matches the email transport boundary
type SendEmailFunc func(ctx context.Context, to, subject, htmlBody string) error

// EmailEscalator renders a notification as an email and hands it to the transport
type EmailEscalator struct {
	send SendEmailFunc
}

// NewEmailEscalator creates an escalator that sends through send
func NewEmailEscalator(send SendEmailFunc) *EmailEscalator {
	return &EmailEscalator{send: send}
}

// Name returns the escalation channel name
func (e *EmailEscalator) Name() string {
	return EscalationEmail
}

// Escalate sends one email to the recipient. There is no retry.
func (e *EmailEscalator) Escalate(ctx context.Context, n *database.Notification, recipient Recipient) error {
	if recipient.Email == "" {
		return ErrNoEmailAddress
	}
	subject, body, err := RenderEscalationEmail(n, recipient)
	if err != nil {
		return err
	}
	if err := e.send(ctx, recipient.Email, subject, body); err != nil {
		return fmt.Errorf("failed to send escalation email: %w", err)
	}
	log.Printf("Dispatcher: escalation email for notification %s sent to %s", n.ID, recipient.Email)
	return nil
}

var escalationEmailTemplate = template.Must(template.New("escalation").Parse(`<html>
<body style="font-family: sans-serif;">
<h2>[{{.Notification.Severity}}] {{.Notification.Summary}}</h2>
<p>Hello {{.RecipientName}},</p>
<p>The inventory health check raised an alert that needs attention.</p>
<table cellpadding="4">
<tr><td><b>Rule</b></td><td>{{.Notification.RuleKind}}</td></tr>
<tr><td><b>Product</b></td><td>{{.Notification.SubjectID}}</td></tr>
{{range $key, $value := .Notification.Facts}}<tr><td><b>{{$key}}</b></td><td>{{$value}}</td></tr>
{{end}}<tr><td><b>Raised at</b></td><td>{{.RaisedAt}}</td></tr>
</table>
</body>
</html>`))

// RenderEscalationEmail builds the subject and HTML body for n
func RenderEscalationEmail(n *database.Notification, recipient Recipient) (string, string, error) {
	name := recipient.Name
	if name == "" {
		name = "there"
	}

	var buf bytes.Buffer
	err := escalationEmailTemplate.Execute(&buf, map[string]interface{}{
		"Notification":  n,
		"RecipientName": name,
		"RaisedAt":      n.CreatedAt.UTC().Format("2006-01-02 15:04 MST"),
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to render escalation email: %w", err)
	}

	subject := utils.TruncateText(fmt.Sprintf("[%s] %s", n.Severity, n.Summary), maxSubjectLength)
	return subject, buf.String(), nil
}

// SlackPoster is the part of the Slack notifier used for escalation
type SlackPoster interface {
	IsActive() bool
	Notify(ctx context.Context, n *database.Notification) error
}

// SlackEscalator posts CRITICAL notifications to the alerts channel
type SlackEscalator struct {
	poster SlackPoster
}

// NewSlackEscalator creates an escalator backed by poster
func NewSlackEscalator(poster SlackPoster) *SlackEscalator {
	return &SlackEscalator{poster: poster}
}

// Name returns the escalation channel name
func (e *SlackEscalator) Name() string {
	return EscalationSlack
}

// Escalate posts n; an inactive Slack integration is skipped silently
func (e *SlackEscalator) Escalate(ctx context.Context, n *database.Notification, _ Recipient) error {
	if e.poster == nil || !e.poster.IsActive() {
		return nil
	}
	return e.poster.Notify(ctx, n)
}

// escalationEnabled reports whether settings allow the named channel
func escalationEnabled(settings *database.AlertSettings, name string) bool {
	switch name {
	case EscalationEmail:
		return settings.EmailEscalationEnabled
	case EscalationSlack:
		return settings.SlackEscalationEnabled
	default:
		return true
	}
}
