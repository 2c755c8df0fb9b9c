// Package auth issues and verifies the access and refresh JWTs and hashes
// user passwords.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/nickk-eng/Serialboxd/internal/common"
)

// AccessClaims is carried by the short-lived access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
}

// RefreshClaims is carried by the long-lived refresh token.
type RefreshClaims struct {
	jwt.RegisteredClaims
	UserID int64 `json:"userId"`
}

var (
	ErrEmptySecret = errors.New("token secrets must not be empty")
	ErrSameSecret  = errors.New("access and refresh secrets must differ")
)

// Issuer mints and verifies both token kinds. Each kind has its own HMAC
// secret, so one leaked key cannot forge the other kind.
type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewIssuer(accessSecret, refreshSecret []byte, accessTTL, refreshTTL time.Duration) (*Issuer, error) {
	if len(accessSecret) == 0 || len(refreshSecret) == 0 {
		return nil, ErrEmptySecret
	}
	if string(accessSecret) == string(refreshSecret) {
		return nil, ErrSameSecret
	}
	return &Issuer{
		accessSecret:  accessSecret,
		refreshSecret: refreshSecret,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}, nil
}

func (i *Issuer) IssueAccessToken(userID int64, username string) (string, error) {
	claims := AccessClaims{
		RegisteredClaims: i.registered(i.accessTTL),
		UserID:           userID,
		Username:         username,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.accessSecret)
}

func (i *Issuer) IssueRefreshToken(userID int64) (string, error) {
	claims := RefreshClaims{
		RegisteredClaims: i.registered(i.refreshTTL),
		UserID:           userID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.refreshSecret)
}

// VerifyAccessToken checks signature and expiry.
func (i *Issuer) VerifyAccessToken(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := i.parse(token, claims, i.accessSecret, true); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyRefreshToken checks signature and expiry.
func (i *Issuer) VerifyRefreshToken(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := i.parse(token, claims, i.refreshSecret, true); err != nil {
		return nil, err
	}
	return claims, nil
}

// ParseRefreshTokenSignature checks the signature only. An expired refresh
// token is still accepted so that it can revoke its own session.
func (i *Issuer) ParseRefreshTokenSignature(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := i.parse(token, claims, i.refreshSecret, false); err != nil {
		return nil, err
	}
	return claims, nil
}

func (i *Issuer) registered(ttl time.Duration) jwt.RegisteredClaims {
	now := i.now()
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (i *Issuer) parse(token string, claims jwt.Claims, secret []byte, validateClaims bool) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	}
	if validateClaims {
		opts = append(opts, jwt.WithExpirationRequired())
	} else {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return common.ErrTokenExpired
		}
		return fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return common.ErrInvalidToken
	}
	return nil
}
