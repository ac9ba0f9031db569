package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mail "github.com/wneessen/go-mail"
)

// SMTPConfig configures SMTPSender. The connection upgrades with STARTTLS when the server offers it.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// Timeout bounds dialing and each SMTP command; zero means 10s. ctx deadlines also apply.
	Timeout time.Duration
}

// SMTPSender sends HTML emails over SMTP with PLAIN auth.
type SMTPSender struct {
	from  string
	links Links
	log   *slog.Logger
	// send delivers one message; tests replace it to capture messages.
	send func(ctx context.Context, msg *mail.Msg) error
}

// NewSMTPSender returns an SMTPSender. Auth is skipped when Username is empty.
func NewSMTPSender(cfg SMTPConfig, links Links, log *slog.Logger) (*SMTPSender, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	opts := []mail.Option{
		mail.WithTimeout(cfg.Timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTLSConfig(&tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}),
	}
	if cfg.Port > 0 {
		opts = append(opts, mail.WithPort(cfg.Port))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTPSender{from: cfg.From, links: links, log: log, send: func(ctx context.Context, msg *mail.Msg) error {
		return client.DialAndSendWithContext(ctx, msg)
	}}, nil
}

func (s *SMTPSender) SendVerificationEmail(ctx context.Context, to, token string) error {
	return s.deliver(ctx, "email.SendVerificationEmail", to, verificationMessage(s.links.Verification(token)))
}

func (s *SMTPSender) SendPasswordResetEmail(ctx context.Context, to, token string) error {
	return s.deliver(ctx, "email.SendPasswordResetEmail", to, passwordResetMessage(s.links.PasswordReset(token)))
}

func (s *SMTPSender) deliver(ctx context.Context, op, to string, m message) error {
	log := s.log.With(slog.String("op", op))

	msg, err := s.build(to, m)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSending, m.subject, err)
	}
	if err := s.send(ctx, msg); err != nil {
		log.Error("failed to send email", slog.Any("error", err))
		return fmt.Errorf("%w: %s to %s: %v", ErrSending, m.subject, to, err)
	}
	log.Info("email sent")
	return nil
}

func (s *SMTPSender) build(to string, m message) (*mail.Msg, error) {
	if strings.ContainsAny(to, "\r\n") {
		return nil, fmt.Errorf("invalid recipient")
	}
	msg := mail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return nil, fmt.Errorf("sender address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("recipient address: %w", err)
	}
	msg.Subject(m.subject)
	msg.SetBodyString(mail.TypeTextHTML, m.html)
	return msg, nil
}
