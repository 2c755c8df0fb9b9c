package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"

	"github.com/nickk-eng/Serialboxd/internal/common"
	"github.com/nickk-eng/Serialboxd/internal/dbx"
	"github.com/nickk-eng/Serialboxd/internal/server/auth"
)

const resetTokenBytes = 20

const resetMailSubject = "Serialboxd: redefinição de senha"

func hashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ForgotPassword mails a reset link when email belongs to an account. The
// outcome is not reported to the caller, so the endpoint cannot be used to
// probe for registered addresses.
func (s *UserService) ForgotPassword(ctx context.Context, email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", common.ErrValidation)
	}

	users := s.repos.Users(s.repos.Conn())

	user, err := users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.log.Debug(ctx, "password reset for unknown email")
			return nil
		}
		return fmt.Errorf("error loading user: %w", err)
	}

	token, err := common.MakeRandHexString(resetTokenBytes)
	if err != nil {
		return fmt.Errorf("error generating reset token: %w", err)
	}

	expires := s.now().Add(s.resetValidity)
	if err := users.SetPasswordReset(ctx, user.ID, hashResetToken(token), expires); err != nil {
		return fmt.Errorf("error storing reset token: %w", err)
	}

	if s.mailer == nil {
		s.log.Warn(ctx, "no mailer configured, reset link not sent", "user_id", user.ID)
		return nil
	}

	link := fmt.Sprintf("%s/reset-password.html?token=%s", s.publicBaseURL, url.QueryEscape(token))
	body := fmt.Sprintf("Olá %s,\n\nPara redefinir sua senha, acesse o link abaixo em até %s:\n\n%s\n\nSe você não pediu a redefinição, ignore este e-mail.\n",
		user.Username, s.resetValidity, link)

	if err := s.mailer.Send(ctx, user.Email, resetMailSubject, body); err != nil {
		s.log.Error(ctx, "failed to send reset mail", "user_id", user.ID, "error", err)
		return nil
	}

	s.log.Info(ctx, "password reset requested", "user_id", user.ID)
	return nil
}

// ResetPassword sets a new password for the account holding token. The token
// is single-use and cleared together with its expiry.
func (s *UserService) ResetPassword(ctx context.Context, token, password string) error {
	if token == "" || password == "" {
		return fmt.Errorf("%w: token and password are required", common.ErrValidation)
	}
	if len(password) < common.MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", common.ErrValidation, common.MinPasswordLength)
	}

	tokenHash := hashResetToken(token)
	user, err := s.repos.Users(s.repos.Conn()).GetByPasswordReset(ctx, tokenHash, s.now())
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrInvalidResetToken
		}
		return fmt.Errorf("error loading reset token: %w", err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("error hashing password: %w", err)
	}

	err = s.repos.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		err := s.repos.Users(tx).ResetPassword(ctx, user.ID, tokenHash, hash, s.now())
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrInvalidResetToken
			}
			return fmt.Errorf("error resetting password: %w", err)
		}
		return s.maybeRevoke(ctx, tx, user.ID)
	})
	if err != nil {
		return err
	}

	s.log.Info(ctx, "password reset", "user_id", user.ID)
	return nil
}
