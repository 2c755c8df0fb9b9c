// Package server wires the Serialboxd components together and runs the HTTP
// API and the gRPC health endpoint until the process is told to stop.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nickk-eng/Serialboxd/internal/common"
	"github.com/nickk-eng/Serialboxd/internal/cryptox"
	"github.com/nickk-eng/Serialboxd/internal/logging"
	"github.com/nickk-eng/Serialboxd/internal/server/auth"
	"github.com/nickk-eng/Serialboxd/internal/server/config"
	"github.com/nickk-eng/Serialboxd/internal/server/httpapi"
	"github.com/nickk-eng/Serialboxd/internal/server/mailer"
	"github.com/nickk-eng/Serialboxd/internal/server/ratelimit"
	"github.com/nickk-eng/Serialboxd/internal/server/repositories/repomanager"
	"github.com/nickk-eng/Serialboxd/internal/server/services"
	"github.com/nickk-eng/Serialboxd/internal/server/storage"
	"github.com/nickk-eng/Serialboxd/internal/server/tmdb"
	"github.com/redis/go-redis/v9"

	gs "github.com/nickk-eng/Serialboxd/internal/server/grpc"
)

const (
	healthInterval  = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	key     *cryptox.KeyHandle
	repos   repomanager.RepositoryManager
	redis   *redis.Client
	handler http.Handler
}

// NewApp performs the key ceremony, opens storage and builds the HTTP handler.
// A failure here is meant to stop the process.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewLogger(os.Stdout, c.LogLevel)
	app := &App{config: c, logger: logger}

	rawKey := []byte(c.EncryptionKey)
	key, err := cryptox.LoadKeyHandle(cryptox.KeySource{
		PrivateKeyPath: c.PrivateKeyPath,
		PublicKeyPath:  c.PublicKeyPath,
		WrappedKeyPath: c.WrappedKeyPath,
		RawKey:         rawKey,
	})
	common.WipeByteArray(rawKey)
	if err != nil {
		return nil, fmt.Errorf("key init error: %w", err)
	}
	app.key = key

	cipher, err := cryptox.NewCipher(key)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("cipher init error: %w", err)
	}

	issuer, err := auth.NewIssuer([]byte(c.AccessTokenSecret), []byte(c.RefreshTokenSecret),
		c.AccessTokenValidityDuration, c.RefreshTokenValidityDuration)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("token issuer init error: %w", err)
	}

	if c.DatabaseDSN == "" {
		logger.Warn(ctx, "no database configured, using in-memory store")
		app.repos = repomanager.NewMemoryRepositoryManager()
	} else {
		pm, err := repomanager.OpenPostgres(ctx, c.DatabaseDSN)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("db init error: %w", err)
		}
		app.repos = pm
	}
	if err := app.repos.RunMigrations(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	avatars, err := newAvatarStore(ctx, c)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("avatar storage init error: %w", err)
	}

	var mail services.Mailer
	if c.SMTPHost != "" {
		mail = mailer.NewSMTPSender(c.SMTPHost, c.SMTPPort, c.SMTPUser, c.SMTPPassword, c.MailFrom)
	} else {
		mail = mailer.NewLogSender(logger)
	}

	var limiter httpapi.Limiter
	if c.RedisAddr != "" {
		app.redis = redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		limiter = ratelimit.NewRedisLimiter(app.redis, "serialboxd:login:", c.LoginRateLimit, c.LoginRateWindow)
	}

	if c.TMDBAPIKey == "" {
		logger.Warn(ctx, "TMDB_API_KEY not set, catalog requests will fail")
	}
	catalog := tmdb.NewClient(tmdb.Options{
		APIKey:     c.TMDBAPIKey,
		BaseURL:    c.TMDBBaseURL,
		Language:   c.TMDBLanguage,
		RecentDays: c.TMDBRecentDays,
		Timeout:    c.TMDBTimeout,
	})

	us := services.NewUserService(services.Deps{
		Repos:   app.repos,
		Issuer:  issuer,
		Cipher:  cipher,
		Mailer:  mail,
		Avatars: avatars,
		Logger:  logger,
	}, c)

	opts := httpapi.Options{
		Users:    us,
		Verifier: issuer,
		Catalog:  catalog,
		Limiter:  limiter,
		Health:   app.repos,
		Logger:   logger,
	}
	if !c.S3Enabled() {
		opts.AvatarDir = c.AvatarDir
		opts.AvatarURLPrefix = c.AvatarURLPrefix
	}
	app.handler = httpapi.NewRouter(opts)

	return app, nil
}

func newAvatarStore(ctx context.Context, c *config.Config) (services.AvatarStore, error) {
	if c.S3Enabled() {
		return storage.NewS3Store(ctx, storage.S3Options{
			AccessKey:     c.S3AccessKey,
			SecretKey:     c.S3SecretKey,
			Bucket:        c.S3Bucket,
			Region:        c.S3Region,
			BaseEndpoint:  c.S3BaseEndpoint,
			PublicBaseURL: c.S3PublicBaseURL,
		})
	}
	return storage.NewDiskStore(c.AvatarDir, c.AvatarURLPrefix)
}

// Handler exposes the HTTP handler, mostly for tests.
func (app *App) Handler() http.Handler {
	return app.handler
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	srv := &http.Server{
		Addr:              app.config.HTTPAddr,
		Handler:           app.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil {
			app.logger.Error(ctx, "http shutdown failed", "error", err)
		}
	}()

	app.logger.Info(ctx, "http server listening", "addr", app.config.HTTPAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.GRPCAddr, app.logger, app.repos, healthInterval)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until a signal arrives or one of the servers fails, then
// releases the key and the storage handles.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.Close(); err != nil {
		app.logger.Error(context.Background(), "shutdown error", "error", err)
	}
	app.logger.Info(context.Background(), "App stopped")
}

// Close zeroes the symmetric key and closes the storage handles.
func (app *App) Close() error {
	var errs []error
	if app.key != nil {
		app.key.Destroy()
	}
	if app.repos != nil {
		errs = append(errs, app.repos.Close())
	}
	if app.redis != nil {
		errs = append(errs, app.redis.Close())
	}
	return errors.Join(errs...)
}
