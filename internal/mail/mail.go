// Package mail renders and dispatches account emails. Dispatch never fails
// a flow: errors and timeouts are logged and reported as false.
package mail

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agjmills/drive/internal/config"
	"github.com/agjmills/drive/internal/logger"
	"github.com/agjmills/drive/internal/metrics"
	gomail "github.com/wneessen/go-mail"
)

// ErrNotConfigured is returned by senders that lack SMTP settings.
var ErrNotConfigured = errors.New("email is not configured")

// Sender delivers one HTML message.
type Sender interface {
	Send(ctx context.Context, to, subject, html string) error
}

// Message is a rendered email ready for dispatch.
type Message struct {
	Kind    string // metrics label: "registration-otp", "reset-otp", "reset-link", "test"
	To      string
	Subject string
	HTML    string
}

// Dispatch sends msg, bounded by timeout, and reports whether it went out.
func Dispatch(ctx context.Context, sender Sender, timeout time.Duration, msg Message) bool {
	if sender == nil {
		metrics.RecordMail(msg.Kind, false)
		logger.Warn("email not sent: no sender configured", "kind", msg.Kind)
		return false
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// Senders that ignore ctx must not hold the request past the timeout.
	done := make(chan error, 1)
	go func() {
		done <- sender.Send(ctx, msg.To, msg.Subject, msg.HTML)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = fmt.Errorf("email timeout: %w", ctx.Err())
	}

	metrics.RecordMail(msg.Kind, err == nil)
	if err != nil {
		logger.Error("email dispatch failed", "kind", msg.Kind, "error", err)
		return false
	}
	logger.Info("email sent", "kind", msg.Kind)
	return true
}

// Configured reports whether cfg carries enough settings to send mail.
func Configured(cfg *config.Config) bool {
	return cfg.EmailHost != "" && cfg.EmailUser != "" && cfg.EmailPass != ""
}

// SMTPSender sends through an SMTP relay using go-mail.
type SMTPSender struct {
	host     string
	port     int
	username string
	password string
	from     string
	timeout  time.Duration
}

func NewSMTPSender(cfg *config.Config) (*SMTPSender, error) {
	if !Configured(cfg) {
		return nil, ErrNotConfigured
	}
	from := cfg.EmailFrom
	if from == "" {
		from = cfg.EmailUser
	}
	return &SMTPSender{
		host:     cfg.EmailHost,
		port:     cfg.EmailPort,
		username: cfg.EmailUser,
		password: cfg.EmailPass,
		from:     from,
		timeout:  cfg.EmailTimeout,
	}, nil
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, html string) error {
	m := gomail.NewMsg()
	if err := m.FromFormat("Drive Support", s.from); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if err := m.To(to); err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}
	m.Subject(subject)
	m.SetBodyString(gomail.TypeTextHTML, html)

	opts := []gomail.Option{
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if s.timeout > 0 {
		opts = append(opts, gomail.WithTimeout(s.timeout))
	}

	client, err := gomail.NewClient(s.host, opts...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// LogSender logs messages instead of sending them. It is only selected
// outside production; bodies go to debug level.
type LogSender struct{}

func (LogSender) Send(_ context.Context, to, subject, html string) error {
	logger.Info("email suppressed (no SMTP configured)", "to", to, "subject", subject)
	logger.Debug("suppressed email body", "html", html)
	return nil
}

// NewSenderFromConfig picks SMTPSender when configured, LogSender in
// development, and nil otherwise so dispatch reports failure.
func NewSenderFromConfig(cfg *config.Config) Sender {
	if s, err := NewSMTPSender(cfg); err == nil {
		return s
	}
	if !cfg.IsProduction() {
		return LogSender{}
	}
	logger.Warn("email is not configured; codes and reset links will not be delivered")
	return nil
}
