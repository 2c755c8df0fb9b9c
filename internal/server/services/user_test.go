package services

import (
	"context"
	"testing"

	"github.com/nickk-eng/Serialboxd/internal/common"
	"github.com/nickk-eng/Serialboxd/internal/server/auth"
	"github.com/nickk-eng/Serialboxd/internal/server/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	env := newMemoryService(t)
	ctx := context.Background()

	u, err := env.svc.Register(ctx, "Ana", "ana@x.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, "Ana", u.Username)
	assert.NotEqual(t, "secret123", u.PasswordHash)
	assert.True(t, auth.CheckPassword(u.PasswordHash, "secret123"))

	_, err = env.svc.Register(ctx, "Ana 2", "ana@x.com", "other-pass")
	assert.ErrorIs(t, err, common.ErrEmailTaken)

	for _, tc := range []struct{ name, email, pass string }{
		{"", "b@x.com", "p"},
		{"B", "", "p"},
		{"B", "b@x.com", ""},
	} {
		_, err := env.svc.Register(ctx, tc.name, tc.email, tc.pass)
		assert.ErrorIs(t, err, common.ErrValidation)
	}
}

func TestLogin_ReturnsProfileAndStoresSealedToken(t *testing.T) {
	env := newMemoryService(t)
	ctx := context.Background()
	id := env.register(t, "Ana", "ana@x.com", "secret123")

	user, pair, err := env.svc.Login(ctx, "ana@x.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, id, user.ID)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	access, err := env.issuer.VerifyAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, id, access.UserID)
	assert.Equal(t, "Ana", access.Username)

	stored, err := env.repos.Sessions(nil).Get(ctx, id)
	require.NoError(t, err)
	assert.NotContains(t, stored, pair.RefreshToken)

	plain, err := env.cipher.Decrypt(stored)
	require.NoError(t, err)
	assert.Equal(t, pair.RefreshToken, string(plain))
}

func TestLogin_UnknownEmailAndWrongPasswordLookAlike(t *testing.T) {
	env := newMemoryService(t)
	ctx := context.Background()
	env.register(t, "Ana", "ana@x.com", "secret123")

	_, _, errWrong := env.svc.Login(ctx, "ana@x.com", "nope-nope")
	_, _, errUnknown := env.svc.Login(ctx, "ghost@x.com", "secret123")

	assert.ErrorIs(t, errWrong, common.ErrInvalidCredentials)
	assert.ErrorIs(t, errUnknown, common.ErrInvalidCredentials)
	assert.Equal(t, errWrong.Error(), errUnknown.Error())

	_, _, err := env.svc.Login(ctx, "", "x")
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestLogin_ReplacesPreviousSession(t *testing.T) {
	env := newMemoryService(t)
	ctx := context.Background()
	env.register(t, "Ana", "ana@x.com", "secret123")

	first := env.login(t, "ana@x.com", "secret123")
	second := env.login(t, "ana@x.com", "secret123")

	_, err := env.svc.RefreshToken(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, common.ErrSessionRevoked)

	_, err = env.svc.RefreshToken(ctx, second.RefreshToken)
	assert.NoError(t, err)
}

func TestChangePassword(t *testing.T) {
	env := newMemoryService(t)
	ctx := context.Background()
	id := env.register(t, "Ana", "ana@x.com", "secret123")

	t.Run("wrong current", func(t *testing.T) {
		err := env.svc.ChangePassword(ctx, id, "not-it", "brand-new-pass")
		assert.ErrorIs(t, err, common.ErrWrongPassword)
	})

	t.Run("too short", func(t *testing.T) {
		err := env.svc.ChangePassword(ctx, id, "secret123", "1234567")
		assert.ErrorIs(t, err, common.ErrValidation)
	})

	t.Run("missing fields", func(t *testing.T) {
		assert.ErrorIs(t, env.svc.ChangePassword(ctx, id, "", "brand-new-pass"), common.ErrValidation)
		assert.ErrorIs(t, env.svc.ChangePassword(ctx, id, "secret123", ""), common.ErrValidation)
	})

	t.Run("unknown user", func(t *testing.T) {
		err := env.svc.ChangePassword(ctx, 999, "secret123", "brand-new-pass")
		assert.ErrorIs(t, err, common.ErrorNotFound)
	})

	t.Run("ok keeps session by default", func(t *testing.T) {
		pair := env.login(t, "ana@x.com", "secret123")

		require.NoError(t, env.svc.ChangePassword(ctx, id, "secret123", "12345678"))

		_, _, err := env.svc.Login(ctx, "ana@x.com", "secret123")
		assert.ErrorIs(t, err, common.ErrInvalidCredentials)
		env.login(t, "ana@x.com", "12345678")

		_, err = env.svc.RefreshToken(ctx, pair.RefreshToken)
		assert.ErrorIs(t, err, common.ErrSessionRevoked, "new login replaced the session")
	})
}

func TestChangePassword_RevokesWhenConfigured(t *testing.T) {
	env := newMemoryService(t, func(c *config.Config) { c.RevokeSessionsOnPasswordChange = true })
	ctx := context.Background()
	id := env.register(t, "Ana", "ana@x.com", "secret123")
	pair := env.login(t, "ana@x.com", "secret123")

	require.NoError(t, env.svc.ChangePassword(ctx, id, "secret123", "brand-new-pass"))

	_, err := env.repos.Sessions(nil).Get(ctx, id)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	_, err = env.svc.RefreshToken(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, common.ErrSessionRevoked)
}

func TestChangePassword_KeepsSessionWithoutRelogin(t *testing.T) {
	env := newMemoryService(t)
	ctx := context.Background()
	id := env.register(t, "Ana", "ana@x.com", "secret123")
	pair := env.login(t, "ana@x.com", "secret123")

	require.NoError(t, env.svc.ChangePassword(ctx, id, "secret123", "brand-new-pass"))

	_, err := env.svc.RefreshToken(ctx, pair.RefreshToken)
	assert.NoError(t, err)
}
