package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"expenses-tracker/backend/internal/security"
	"expenses-tracker/backend/internal/user/repository"
)

// RequestVerifyEmail sends a verification link to the user's address.
func (s *AuthService) RequestVerifyEmail(ctx context.Context, userID string) (err error) {
	const op = "service.RequestVerifyEmail"
	log := s.log.With(slog.String("op", op), slog.String("user_id", userID))
	ctx, finish := s.start(ctx, "request_verify_email")
	defer func() { finish(userID, err) }()

	var to, token string
	err = s.uow.WithTransaction(ctx, func(ctx context.Context, repo repository.Repository) error {
		u, err := repo.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if u == nil {
			return ErrUserNotFound
		}
		if !u.HasEmail() {
			return fmt.Errorf("%w: no email address on file", ErrInvalidCredentials)
		}
		if u.EmailVerified {
			return ErrEmailAlreadyVerified
		}
		to = u.Email
		token, err = s.tokens.Issue(u.ID, security.PurposeEmailVerification, "", 0)
		return err
	})
	if err != nil {
		if isDomainError(err) {
			log.Warn("verification email not sent", slog.Any("error", err))
			return err
		}
		log.Error("failed to issue verification token", slog.Any("error", err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.sender.SendVerificationEmail(ctx, to, token); err != nil {
		log.Error("failed to send verification email", slog.Any("error", err))
		return err
	}
	log.Info("verification email sent")
	return nil
}

// VerifyEmail marks the token subject's address as verified.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (err error) {
	const op = "service.VerifyEmail"
	log := s.log.With(slog.String("op", op))
	var userID string
	ctx, finish := s.start(ctx, "verify_email")
	defer func() { finish(userID, err) }()

	claims, err := s.claimsFor(token, security.PurposeEmailVerification)
	if err != nil {
		log.Warn("verification token rejected", slog.Any("error", err))
		return err
	}
	userID = claims.Subject

	err = s.uow.WithTransaction(ctx, func(ctx context.Context, repo repository.Repository) error {
		u, err := repo.GetByIDForUpdate(ctx, claims.Subject)
		if err != nil {
			return err
		}
		if u == nil {
			return ErrUserNotFound
		}
		if !u.HasEmail() {
			return fmt.Errorf("%w: no email address on file", ErrInvalidCredentials)
		}
		if u.EmailVerified {
			return ErrEmailAlreadyVerified
		}
		u.EmailVerified = true
		u.UpdatedAt = s.tokens.Now().UTC()
		if err := repo.Update(ctx, u); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return fmt.Errorf("%w: email %q is verified by another account", ErrUserAlreadyExists, u.Email)
			}
			return err
		}
		return nil
	})
	if err != nil {
		if isDomainError(err) {
			log.Warn("email not verified", slog.String("user_id", userID), slog.Any("error", err))
			return err
		}
		log.Error("failed to verify email", slog.Any("error", err))
		return fmt.Errorf("%s: %w", op, err)
	}

	s.projections.invalidate(ctx, userID)
	log.Info("email verified", slog.String("user_id", userID))
	return nil
}

// RequestPasswordReset sends a reset link. Only verified addresses receive one.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (err error) {
	const op = "service.RequestPasswordReset"
	log := s.log.With(slog.String("op", op))
	var userID string
	ctx, finish := s.start(ctx, "request_password_reset")
	defer func() { finish(userID, err) }()

	email = normalizeEmail(email)
	var token string
	err = s.uow.WithTransaction(ctx, func(ctx context.Context, repo repository.Repository) error {
		u, err := repo.GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		if u == nil {
			return ErrUserNotFound
		}
		userID = u.ID
		token, err = s.tokens.Issue(u.ID, security.PurposePasswordReset, "", 0)
		return err
	})
	if err != nil {
		if isDomainError(err) {
			log.Warn("password reset not sent", slog.Any("error", err))
			return err
		}
		log.Error("failed to issue password reset token", slog.Any("error", err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.sender.SendPasswordResetEmail(ctx, email, token); err != nil {
		log.Error("failed to send password reset email", slog.String("user_id", userID), slog.Any("error", err))
		return err
	}
	log.Info("password reset email sent", slog.String("user_id", userID))
	return nil
}

// ResetPassword sets a new password and ends the user's session. A reset token works once.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) (err error) {
	const op = "service.ResetPassword"
	log := s.log.With(slog.String("op", op))
	var userID string
	ctx, finish := s.start(ctx, "reset_password")
	defer func() { finish(userID, err) }()

	claims, err := s.claimsFor(token, security.PurposePasswordReset)
	if err != nil {
		log.Warn("reset token rejected", slog.Any("error", err))
		return err
	}
	userID = claims.Subject
	if s.revoked.IsBlacklisted(ctx, claims.ID) {
		log.Warn("reset token already used", slog.String("user_id", userID))
		return ErrInvalidCredentials
	}
	if newPassword == "" {
		return fmt.Errorf("%w: new password is required", ErrInvalidCredentials)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		log.Error("failed to hash password", slog.Any("error", err))
		return fmt.Errorf("%s: %w", op, err)
	}

	err = s.uow.WithTransaction(ctx, func(ctx context.Context, repo repository.Repository) error {
		u, err := repo.GetByIDForUpdate(ctx, claims.Subject)
		if err != nil {
			return err
		}
		if u == nil {
			return ErrUserNotFound
		}
		u.HashedPassword = hash
		u.LastRefreshJTI = ""
		u.UpdatedAt = s.tokens.Now().UTC()
		return repo.Update(ctx, u)
	})
	if err != nil {
		if isDomainError(err) {
			log.Warn("password not reset", slog.String("user_id", userID), slog.Any("error", err))
			return err
		}
		log.Error("failed to reset password", slog.Any("error", err))
		return fmt.Errorf("%s: %w", op, err)
	}

	s.revoke(ctx, claims)
	s.projections.invalidate(ctx, userID)
	log.Info("password reset", slog.String("user_id", userID))
	return nil
}
