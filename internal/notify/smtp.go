package notify

import (
	"bytes"
	"context"
	"fmt"
	"text/template"
	"time"

	gomail "github.com/wneessen/go-mail"
)

const (
	defaultSubject = "{{.subject}}"
	defaultBody    = `{{.subject}}

Batch: {{.batch}}
Ready: {{.ready}}
In progress: {{.in_progress}}
Failed: {{.failed}}
Credits refunded: {{.refunded}}
`
)

// MessageTemplate is the subject and plain text body for one template id
type MessageTemplate struct {
	Subject string
	Body    string
}

// SMTPConfig holds SMTP credentials and sender identity
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
}

type compiledTemplate struct {
	subject *template.Template
	body    *template.Template
}

// SMTP renders templates locally and delivers them with go-mail
type SMTP struct {
	cfg       SMTPConfig
	templates map[string]compiledTemplate
	fallback  compiledTemplate
}

// NewSMTP compiles the message templates up front so a bad template fails at startup
func NewSMTP(cfg SMTPConfig, messages map[string]MessageTemplate) (*SMTP, error) {
	fallback, err := compile("default", MessageTemplate{Subject: defaultSubject, Body: defaultBody})
	if err != nil {
		return nil, err
	}

	templates := make(map[string]compiledTemplate, len(messages))
	for id, msg := range messages {
		compiled, err := compile(id, msg)
		if err != nil {
			return nil, err
		}
		templates[id] = compiled
	}

	return &SMTP{
		cfg:       cfg,
		templates: templates,
		fallback:  fallback,
	}, nil
}

func compile(id string, msg MessageTemplate) (compiledTemplate, error) {
	subject, err := template.New(id + ".subject").Option("missingkey=zero").Parse(msg.Subject)
	if err != nil {
		return compiledTemplate{}, fmt.Errorf("parse subject template %s: %w", id, err)
	}
	body, err := template.New(id + ".body").Option("missingkey=zero").Parse(msg.Body)
	if err != nil {
		return compiledTemplate{}, fmt.Errorf("parse body template %s: %w", id, err)
	}
	return compiledTemplate{subject: subject, body: body}, nil
}

func (s *SMTP) render(templateID string, vars map[string]string) (string, string, error) {
	tpl, ok := s.templates[templateID]
	if !ok {
		tpl = s.fallback
	}

	var subject, body bytes.Buffer
	if err := tpl.subject.Execute(&subject, vars); err != nil {
		return "", "", fmt.Errorf("render subject: %w", err)
	}
	if err := tpl.body.Execute(&body, vars); err != nil {
		return "", "", fmt.Errorf("render body: %w", err)
	}
	return subject.String(), body.String(), nil
}

func (s *SMTP) buildMessage(templateID, email string, vars map[string]string) (*gomail.Msg, error) {
	subject, body, err := s.render(templateID, vars)
	if err != nil {
		return nil, err
	}

	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.cfg.FromName, s.cfg.FromEmail); err != nil {
		return nil, fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(email); err != nil {
		return nil, fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)

	return msg, nil
}

func (s *SMTP) SendTransactional(ctx context.Context, templateID, email string, vars map[string]string) error {
	msg, err := s.buildMessage(templateID, email, vars)
	if err != nil {
		return err
	}

	client, err := gomail.NewClient(s.cfg.Host,
		gomail.WithPort(s.cfg.Port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.cfg.Username),
		gomail.WithPassword(s.cfg.Password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}
