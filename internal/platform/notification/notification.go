// Package notification sends the transactional email this system depends on:
// OTP codes, welcome and login alerts, and report deliveries with PDF
// attachments. Rendering goes through a small {{key}} template engine; delivery
// goes through the EmailSender interface so tests can swap in a mock.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Attachment is a file attached to an outbound email.
type Attachment struct {
	Name    string
	Content []byte
}

// EmailSender is the delivery contract for transactional email.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string, attachments ...Attachment) error
}

// Template defines a reusable notification template.
type Template struct {
	ID      string
	Subject string
	Body    string
}

// TemplateEngine holds notification templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates
// pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      "otp-code",
			Subject: "Your DeepTB verification code",
			Body:    "Hi {{name}}, your verification code is {{code}}. It expires in 5 minutes.",
		},
		{
			ID:      "patient-welcome",
			Subject: "Welcome to DeepTB",
			Body:    "Hi {{name}}, your account is verified. You can now upload chest X-rays for screening.",
		},
		{
			ID:      "login-alert",
			Subject: "New login to your DeepTB account",
			Body:    "Hi {{name}}, your account was signed in at {{time}}. If this wasn't you, reset your password.",
		},
		{
			ID:      "doctor-welcome",
			Subject: "DeepTB reviewer account created",
			Body:    "Dr. {{name}}, your reviewer account (license {{license}}) is active. You are the primary doctor for this deployment.",
		},
		{
			ID:      "report-ready",
			Subject: "Your TB Detection Report",
			Body:    "Hi {{name}}, your TB report is ready. The PDF is attached.",
		},
		{
			ID:      "report-reviewed",
			Subject: "Your TB Report has been {{decision}}",
			Body:    "Hi {{name}}, your TB report has been reviewed by the doctor. The reviewed PDF is attached.",
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement. Keys in
// the template that are absent from data are left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// Mailer renders templates and dispatches them through an EmailSender.
type Mailer struct {
	sender    EmailSender
	templates *TemplateEngine
	logger    zerolog.Logger
}

func NewMailer(sender EmailSender, templates *TemplateEngine, logger zerolog.Logger) *Mailer {
	return &Mailer{sender: sender, templates: templates, logger: logger}
}

// Send renders and delivers a templated email, propagating delivery errors.
func (m *Mailer) Send(ctx context.Context, templateID, to string, data map[string]string, attachments ...Attachment) error {
	subject, body, err := m.templates.Render(templateID, data)
	if err != nil {
		return fmt.Errorf("render template: %w", err)
	}
	if err := m.sender.SendEmail(ctx, to, subject, body, attachments...); err != nil {
		return fmt.Errorf("send %s to %s: %w", templateID, to, err)
	}
	return nil
}

// SendAsync delivers a templated email in the background. Failures are logged,
// never surfaced; callers must not depend on delivery. The send detaches from
// the request context so an early client disconnect does not cancel it.
func (m *Mailer) SendAsync(templateID, to string, data map[string]string) {
	go func() {
		if err := m.Send(context.Background(), templateID, to, data); err != nil {
			m.logger.Warn().
				Err(err).
				Str("template", templateID).
				Str("recipient", to).
				Msg("background email failed")
		}
	}()
}

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To          string
	Subject     string
	Body        string
	Attachments []Attachment
}

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []EmailCall
	ShouldFail bool
	FailError  string
}

// SendEmail records the call and optionally returns an error.
func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string, attachments ...Attachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body, Attachments: attachments})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded email calls.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}
