// Package email delivers verification and password-reset links.
package email

import (
	"context"
	"errors"
	"fmt"
	"net/url"
)

// ErrSending is wrapped by every delivery failure.
var ErrSending = errors.New("email sending failed")

// Sender delivers auth emails. token is embedded in the link.
type Sender interface {
	SendVerificationEmail(ctx context.Context, to, token string) error
	SendPasswordResetEmail(ctx context.Context, to, token string) error
}

// Links builds the public URLs placed in emails.
type Links struct {
	// Domain is the public host, e.g. app.example.com.
	Domain string
}

// Verification returns the link that confirms an email address.
func (l Links) Verification(token string) string {
	return fmt.Sprintf("https://%s/api/auth/verify-email?email_token=%s", l.Domain, url.QueryEscape(token))
}

// PasswordReset returns the link to the password reset page.
func (l Links) PasswordReset(token string) string {
	return fmt.Sprintf("https://%s/auth/reset-password?password_token=%s", l.Domain, url.QueryEscape(token))
}

type message struct {
	subject string
	html    string
}

func verificationMessage(link string) message {
	return message{
		subject: "Verify your email",
		html: `<p>Hello!</p>
<p>Please click the link below to verify your email:</p>
<a href="` + link + `">Verify Email</a>`,
	}
}

func passwordResetMessage(link string) message {
	return message{
		subject: "Reset your password",
		html: `<p>Hello!</p>
<p>Please click the link below to reset your password:</p>
<a href="` + link + `">Reset Password</a>`,
	}
}
