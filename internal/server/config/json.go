package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/nickk-eng/Serialboxd/internal/flagx"
	"github.com/nickk-eng/Serialboxd/internal/timex"
)

// JsonConfig is the on-disk shape of the optional configuration file.
// Pointer fields distinguish "absent" from "zero", so a file only overrides
// the keys it actually contains.
type JsonConfig struct {
	HTTPAddr    *string `json:"http_addr"`
	GRPCAddr    *string `json:"grpc_addr"`
	DatabaseDSN *string `json:"database_dsn"`
	LogLevel    *string `json:"log_level"`

	AccessTokenSecret            *string         `json:"access_token_secret"`
	RefreshTokenSecret           *string         `json:"refresh_token_secret"`
	AccessTokenValidityDuration  *timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration *timex.Duration `json:"refresh_token_validity_duration"`

	PrivateKeyPath *string `json:"private_key_path"`
	PublicKeyPath  *string `json:"public_key_path"`
	WrappedKeyPath *string `json:"wrapped_key_path"`

	RevokeSessionsOnPasswordChange *bool           `json:"revoke_sessions_on_password_change"`
	PasswordResetValidityDuration  *timex.Duration `json:"password_reset_validity_duration"`
	PublicBaseURL                  *string         `json:"public_base_url"`

	TMDBBaseURL    *string         `json:"tmdb_base_url"`
	TMDBLanguage   *string         `json:"tmdb_language"`
	TMDBRecentDays *int            `json:"tmdb_recent_days"`
	TMDBTimeout    *timex.Duration `json:"tmdb_timeout"`

	SMTPHost *string `json:"smtp_host"`
	SMTPPort *int    `json:"smtp_port"`
	MailFrom *string `json:"mail_from"`

	AvatarDir       *string `json:"avatar_dir"`
	AvatarURLPrefix *string `json:"avatar_url_prefix"`

	S3Bucket        *string `json:"s3_bucket"`
	S3Region        *string `json:"s3_region"`
	S3BaseEndpoint  *string `json:"s3_base_endpoint"`
	S3PublicBaseURL *string `json:"s3_public_base_url"`

	RedisAddr       *string         `json:"redis_addr"`
	LoginRateLimit  *int            `json:"login_rate_limit"`
	LoginRateWindow *timex.Duration `json:"login_rate_window"`
}

// parseJson overlays values from the JSON file named by -c/-config (or
// SERIALBOXD_CONFIG). Nothing happens when no file is given. An unreadable
// file or invalid JSON panics.
//
// Credentials (SMTP password, S3 keys, TMDB key, ENCRYPTION_KEY) are not read
// from the file; they come from the environment only.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.GRPCAddr, c.GRPCAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.LogLevel, c.LogLevel)

	setString(&config.AccessTokenSecret, c.AccessTokenSecret)
	setString(&config.RefreshTokenSecret, c.RefreshTokenSecret)
	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setDuration(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration)

	setString(&config.PrivateKeyPath, c.PrivateKeyPath)
	setString(&config.PublicKeyPath, c.PublicKeyPath)
	setString(&config.WrappedKeyPath, c.WrappedKeyPath)

	if c.RevokeSessionsOnPasswordChange != nil {
		config.RevokeSessionsOnPasswordChange = *c.RevokeSessionsOnPasswordChange
	}
	setDuration(&config.PasswordResetValidityDuration, c.PasswordResetValidityDuration)
	setString(&config.PublicBaseURL, c.PublicBaseURL)

	setString(&config.TMDBBaseURL, c.TMDBBaseURL)
	setString(&config.TMDBLanguage, c.TMDBLanguage)
	setInt(&config.TMDBRecentDays, c.TMDBRecentDays)
	setDuration(&config.TMDBTimeout, c.TMDBTimeout)

	setString(&config.SMTPHost, c.SMTPHost)
	setInt(&config.SMTPPort, c.SMTPPort)
	setString(&config.MailFrom, c.MailFrom)

	setString(&config.AvatarDir, c.AvatarDir)
	setString(&config.AvatarURLPrefix, c.AvatarURLPrefix)

	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.S3PublicBaseURL, c.S3PublicBaseURL)

	setString(&config.RedisAddr, c.RedisAddr)
	setInt(&config.LoginRateLimit, c.LoginRateLimit)
	setDuration(&config.LoginRateWindow, c.LoginRateWindow)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
