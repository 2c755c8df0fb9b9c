// Package services contains server-side business logic. UserService owns the
// account and session lifecycle: registration, login, refresh-token rotation,
// logout, password changes and resets, and avatars.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nickk-eng/Serialboxd/internal/common"
	"github.com/nickk-eng/Serialboxd/internal/dbx"
	"github.com/nickk-eng/Serialboxd/internal/logging"
	"github.com/nickk-eng/Serialboxd/internal/server/auth"
	"github.com/nickk-eng/Serialboxd/internal/server/config"
	"github.com/nickk-eng/Serialboxd/internal/server/models"
	"github.com/nickk-eng/Serialboxd/internal/server/repositories/repomanager"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// SessionCipher seals refresh tokens before they reach the session store.
type SessionCipher interface {
	Encrypt(plaintext []byte) (string, error)
	Decrypt(envelope string) ([]byte, error)
}

// Mailer delivers plain-text mail.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// AvatarStore saves an avatar object under key and returns its public URL.
type AvatarStore interface {
	Save(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error)
}

// Deps are the collaborators of UserService. Mailer and Avatars may be nil
// when the corresponding feature is not used.
type Deps struct {
	Repos   repomanager.RepositoryManager
	Issuer  *auth.Issuer
	Cipher  SessionCipher
	Mailer  Mailer
	Avatars AvatarStore
	Logger  logging.Logger
}

type UserService struct {
	repos   repomanager.RepositoryManager
	issuer  *auth.Issuer
	cipher  SessionCipher
	mailer  Mailer
	avatars AvatarStore
	log     logging.Logger
	now     func() time.Time

	revokeOnPasswordChange bool
	resetValidity          time.Duration
	publicBaseURL          string
}

func NewUserService(d Deps, cfg *config.Config) *UserService {
	log := d.Logger
	if log == nil {
		log = logging.Nop{}
	}
	return &UserService{
		repos:                  d.Repos,
		issuer:                 d.Issuer,
		cipher:                 d.Cipher,
		mailer:                 d.Mailer,
		avatars:                d.Avatars,
		log:                    log.With("module", "users"),
		now:                    time.Now,
		revokeOnPasswordChange: cfg.RevokeSessionsOnPasswordChange,
		resetValidity:          cfg.PasswordResetValidityDuration,
		publicBaseURL:          strings.TrimRight(cfg.PublicBaseURL, "/"),
	}
}

func (s *UserService) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	if username == "" || email == "" || password == "" {
		return nil, fmt.Errorf("%w: name, email and password are required", common.ErrValidation)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	user, err := s.repos.Users(s.repos.Conn()).Create(ctx, &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.ErrEmailTaken
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	s.log.Info(ctx, "user registered", "user_id", user.ID)
	return user, nil
}

// Login checks the credentials and opens a new session, replacing any
// previous one.
func (s *UserService) Login(ctx context.Context, email, password string) (*models.User, *TokenPair, error) {
	if email == "" || password == "" {
		return nil, nil, fmt.Errorf("%w: email and password are required", common.ErrValidation)
	}

	user, err := s.repos.Users(s.repos.Conn()).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			auth.BurnPasswordCheck(password)
			return nil, nil, common.ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("error loading user: %w", err)
	}

	if !auth.CheckPassword(user.PasswordHash, password) {
		return nil, nil, common.ErrInvalidCredentials
	}

	pair, envelope, err := s.mintTokenPair(user)
	if err != nil {
		return nil, nil, err
	}

	if err := s.repos.Sessions(s.repos.Conn()).Set(ctx, user.ID, envelope); err != nil {
		return nil, nil, fmt.Errorf("error storing session: %w", err)
	}

	s.log.Info(ctx, "user logged in", "user_id", user.ID)
	return user, pair, nil
}

// ChangePassword replaces the password of userID after checking current.
func (s *UserService) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	if current == "" || next == "" {
		return fmt.Errorf("%w: current and new password are required", common.ErrValidation)
	}
	if len(next) < common.MinPasswordLength {
		return fmt.Errorf("%w: new password must be at least %d characters", common.ErrValidation, common.MinPasswordLength)
	}

	user, err := s.repos.Users(s.repos.Conn()).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("error loading user: %w", err)
	}

	if !auth.CheckPassword(user.PasswordHash, current) {
		return common.ErrWrongPassword
	}

	hash, err := auth.HashPassword(next)
	if err != nil {
		return fmt.Errorf("error hashing password: %w", err)
	}

	err = s.repos.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repos.Users(tx).UpdatePassword(ctx, userID, hash); err != nil {
			return fmt.Errorf("error updating password: %w", err)
		}
		return s.maybeRevoke(ctx, tx, userID)
	})
	if err != nil {
		return err
	}

	s.log.Info(ctx, "password changed", "user_id", userID)
	return nil
}

// mintTokenPair issues both tokens for user and seals the refresh token for
// storage.
func (s *UserService) mintTokenPair(user *models.User) (*TokenPair, string, error) {
	access, err := s.issuer.IssueAccessToken(user.ID, user.Username)
	if err != nil {
		return nil, "", fmt.Errorf("error issuing access token: %w", err)
	}

	refresh, err := s.issuer.IssueRefreshToken(user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("error issuing refresh token: %w", err)
	}

	envelope, err := s.cipher.Encrypt([]byte(refresh))
	if err != nil {
		return nil, "", fmt.Errorf("error sealing refresh token: %w", err)
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, envelope, nil
}

func (s *UserService) maybeRevoke(ctx context.Context, tx dbx.DBTX, userID int64) error {
	if !s.revokeOnPasswordChange {
		return nil
	}
	if _, err := s.repos.Sessions(tx).Clear(ctx, userID); err != nil {
		return fmt.Errorf("error revoking session: %w", err)
	}
	return nil
}
