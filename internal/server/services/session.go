package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/nickk-eng/Serialboxd/internal/common"
	"github.com/nickk-eng/Serialboxd/internal/dbx"
)

// RefreshToken rotates the session: the presented token must be the one
// currently stored for its user. On success the stored value is replaced and
// the presented token can never be used again.
func (s *UserService) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, common.ErrorUnauthorized
	}

	claims, err := s.issuer.VerifyRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}
	userID := claims.UserID

	var pair *TokenPair

	err = s.repos.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		sessions := s.repos.Sessions(tx)

		stored, err := sessions.GetForUpdate(ctx, userID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrSessionRevoked
			}
			return fmt.Errorf("error loading session: %w", err)
		}

		plain, err := s.cipher.Decrypt(stored)
		if err != nil {
			s.log.Warn(ctx, "stored session unreadable", "user_id", userID, "error", err)
			return common.ErrSessionRevoked
		}
		defer common.WipeByteArray(plain)

		if subtle.ConstantTimeCompare(plain, []byte(refreshToken)) != 1 {
			return common.ErrSessionRevoked
		}

		user, err := s.repos.Users(tx).GetByID(ctx, userID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrSessionRevoked
			}
			return fmt.Errorf("error loading user: %w", err)
		}

		next, envelope, err := s.mintTokenPair(user)
		if err != nil {
			return err
		}

		swapped, err := sessions.Rotate(ctx, userID, stored, envelope)
		if err != nil {
			return fmt.Errorf("error rotating session: %w", err)
		}
		if !swapped {
			return common.ErrSessionRevoked
		}

		pair = next
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrSessionRevoked) {
			s.log.Info(ctx, "refresh rejected", "user_id", userID)
		}
		return nil, err
	}

	return pair, nil
}

// Logout clears the session named by refreshToken. Only the signature is
// checked, so an expired token still logs out. It never fails; the result
// reports whether a session was actually removed.
func (s *UserService) Logout(ctx context.Context, refreshToken string) bool {
	if refreshToken == "" {
		return false
	}

	claims, err := s.issuer.ParseRefreshTokenSignature(refreshToken)
	if err != nil {
		s.log.Debug(ctx, "logout with unverifiable token", "error", err)
		return false
	}

	cleared, err := s.repos.Sessions(s.repos.Conn()).Clear(ctx, claims.UserID)
	if err != nil {
		s.log.Warn(ctx, "logout failed to clear session", "user_id", claims.UserID, "error", err)
		return false
	}

	if cleared {
		s.log.Info(ctx, "user logged out", "user_id", claims.UserID)
	}
	return cleared
}
