package email

import (
	"context"
	"log/slog"
)

// LogSender writes emails to the logger instead of delivering them. For local development.
// Links are logged so the flow can be completed by hand; do not use in production.
type LogSender struct {
	links Links
	log   *slog.Logger
}

// NewLogSender returns a LogSender.
func NewLogSender(links Links, log *slog.Logger) *LogSender {
	return &LogSender{links: links, log: log}
}

func (s *LogSender) SendVerificationEmail(ctx context.Context, to, token string) error {
	s.log.InfoContext(ctx, "verification email",
		slog.String("op", "email.SendVerificationEmail"),
		slog.String("to", to),
		slog.String("link", s.links.Verification(token)))
	return nil
}

func (s *LogSender) SendPasswordResetEmail(ctx context.Context, to, token string) error {
	s.log.InfoContext(ctx, "password reset email",
		slog.String("op", "email.SendPasswordResetEmail"),
		slog.String("to", to),
		slog.String("link", s.links.PasswordReset(token)))
	return nil
}
