// Package sessions persists the single refresh-token session held per user.
//
// The stored value is the encrypted envelope of the refresh token, never the
// token itself. A NULL value means the user has no active session.
package sessions

import "context"

type Repository interface {
	// Get returns the stored envelope, or common.ErrorNotFound when the user
	// does not exist or holds no session.
	Get(ctx context.Context, userID int64) (string, error)
	// GetForUpdate is Get with a row lock held until the surrounding
	// transaction ends.
	GetForUpdate(ctx context.Context, userID int64) (string, error)
	// Set replaces the stored envelope unconditionally.
	Set(ctx context.Context, userID int64, envelope string) error
	// Rotate replaces old with next only if old is still the stored value.
	// It reports whether the swap happened.
	Rotate(ctx context.Context, userID int64, old, next string) (bool, error)
	// Clear removes the session. It reports whether one was present.
	Clear(ctx context.Context, userID int64) (bool, error)
}
