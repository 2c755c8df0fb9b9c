// Package config handles configuration for the server: defaults, .env and
// environment variables, an optional JSON file and command-line flags, applied
// in that order.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds runtime settings for the Serialboxd server.
//
// Token secrets must be distinct. An empty DatabaseDSN selects the in-memory
// store. Avatars go to S3 when S3Bucket is set and to AvatarDir otherwise.
// Login rate limiting is enabled only when RedisAddr is set.
type Config struct {
	HTTPAddr    string `env:"HTTP_ADDR"`
	GRPCAddr    string `env:"GRPC_ADDR"`
	DatabaseDSN string `env:"DATABASE_DSN"`
	LogLevel    string `env:"LOG_LEVEL"`

	AccessTokenSecret            string        `env:"ACCESS_TOKEN_SECRET"`
	RefreshTokenSecret           string        `env:"REFRESH_TOKEN_SECRET"`
	AccessTokenValidityDuration  time.Duration `env:"ACCESS_TOKEN_TTL"`
	RefreshTokenValidityDuration time.Duration `env:"REFRESH_TOKEN_TTL"`

	PrivateKeyPath string `env:"PRIVATE_KEY_PATH"`
	PublicKeyPath  string `env:"PUBLIC_KEY_PATH"`
	WrappedKeyPath string `env:"WRAPPED_KEY_PATH"`
	EncryptionKey  string `env:"ENCRYPTION_KEY"`

	RevokeSessionsOnPasswordChange bool          `env:"REVOKE_SESSIONS_ON_PASSWORD_CHANGE"`
	PasswordResetValidityDuration  time.Duration `env:"PASSWORD_RESET_TTL"`
	PublicBaseURL                  string        `env:"PUBLIC_BASE_URL"`

	TMDBAPIKey     string        `env:"TMDB_API_KEY"`
	TMDBBaseURL    string        `env:"TMDB_BASE_URL"`
	TMDBLanguage   string        `env:"TMDB_LANGUAGE"`
	TMDBRecentDays int           `env:"TMDB_RECENT_DAYS"`
	TMDBTimeout    time.Duration `env:"TMDB_TIMEOUT"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	MailFrom     string `env:"MAIL_FROM"`

	AvatarDir       string `env:"AVATAR_DIR"`
	AvatarURLPrefix string `env:"AVATAR_URL_PREFIX"`

	S3AccessKey     string `env:"S3_ACCESS_KEY"`
	S3SecretKey     string `env:"S3_SECRET_KEY"`
	S3Bucket        string `env:"S3_BUCKET"`
	S3Region        string `env:"S3_REGION"`
	S3BaseEndpoint  string `env:"S3_BASE_ENDPOINT"`
	S3PublicBaseURL string `env:"S3_PUBLIC_BASE_URL"`

	RedisAddr       string        `env:"REDIS_ADDR"`
	LoginRateLimit  int           `env:"LOGIN_RATE_LIMIT"`
	LoginRateWindow time.Duration `env:"LOGIN_RATE_WINDOW"`
}

// LoadDefaults populates Config with development defaults.
// The token secrets and key material are left empty on purpose and must be
// supplied through the environment, a JSON file or flags.
func (c *Config) LoadDefaults() {
	c.HTTPAddr = ":3000"
	c.GRPCAddr = ":50051"
	c.LogLevel = "info"

	c.AccessTokenValidityDuration = 15 * time.Minute
	c.RefreshTokenValidityDuration = 7 * 24 * time.Hour

	c.PrivateKeyPath = "private_key.pem"
	c.PublicKeyPath = "public_key.pem"

	c.PasswordResetValidityDuration = time.Hour
	c.PublicBaseURL = "http://localhost:3000"

	c.TMDBBaseURL = "https://api.themoviedb.org/3"
	c.TMDBLanguage = "pt-BR"
	c.TMDBRecentDays = 90
	c.TMDBTimeout = 10 * time.Second

	c.SMTPPort = 587
	c.MailFrom = "Serialboxd <no-reply@serialboxd.local>"

	c.AvatarDir = "public/uploads/avatars"
	c.AvatarURLPrefix = "/uploads/avatars/"

	c.S3Region = "us-east-1"

	c.LoginRateLimit = 10
	c.LoginRateWindow = time.Minute
}

// LoadConfig builds a Config by applying defaults, then .env and environment
// variables, then an optional JSON file and finally command-line flags.
// Malformed input panics, like flag parsing in the standard library.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if c.AccessTokenSecret == "" {
		errs = append(errs, errors.New("access token secret is required"))
	}
	if c.RefreshTokenSecret == "" {
		errs = append(errs, errors.New("refresh token secret is required"))
	}
	if c.AccessTokenSecret != "" && c.AccessTokenSecret == c.RefreshTokenSecret {
		errs = append(errs, errors.New("access and refresh token secrets must differ"))
	}
	if c.AccessTokenValidityDuration <= 0 || c.RefreshTokenValidityDuration <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}
	if c.PrivateKeyPath == "" {
		errs = append(errs, errors.New("private key path is required"))
	}
	if c.WrappedKeyPath == "" && c.EncryptionKey == "" {
		errs = append(errs, errors.New("either a wrapped key file or ENCRYPTION_KEY is required"))
	}
	if c.WrappedKeyPath == "" && c.EncryptionKey != "" && len(c.EncryptionKey) != 32 {
		errs = append(errs, fmt.Errorf("ENCRYPTION_KEY must be 32 bytes, got %d", len(c.EncryptionKey)))
	}
	if c.PasswordResetValidityDuration <= 0 {
		errs = append(errs, errors.New("password reset lifetime must be positive"))
	}

	return errors.Join(errs...)
}

// S3Enabled reports whether avatars should be stored in object storage.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != ""
}
