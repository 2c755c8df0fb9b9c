// Package users provides persistence for user accounts.
package users

import (
	"context"
	"time"

	"github.com/nickk-eng/Serialboxd/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	UpdateAvatarURL(ctx context.Context, id int64, avatarURL string) error

	// SetPasswordReset stores the hash of a reset token and its expiry.
	SetPasswordReset(ctx context.Context, id int64, tokenHash string, expires time.Time) error
	// GetByPasswordReset finds the user whose reset token hash matches and
	// has not expired at now.
	GetByPasswordReset(ctx context.Context, tokenHash string, now time.Time) (*models.User, error)
	// ResetPassword stores a new password hash and clears the reset pair, but
	// only while tokenHash is still the unexpired reset token of id. Otherwise
	// it returns common.ErrorNotFound.
	ResetPassword(ctx context.Context, id int64, tokenHash, passwordHash string, now time.Time) error
}
