// Package httpapi is the HTTP surface of the server: a chi router, the
// bearer-token guard, request logging, login rate limiting and the JSON
// handlers for accounts, sessions and the TMDB proxy.
package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nickk-eng/Serialboxd/internal/logging"
	"github.com/nickk-eng/Serialboxd/internal/server/services"
)

// Catalog proxies TMDB. *tmdb.Client implements it.
type Catalog interface {
	Discover(ctx context.Context, page string) ([]byte, error)
	Search(ctx context.Context, query, page string) ([]byte, error)
	TV(ctx context.Context, id string) ([]byte, error)
	Recent(ctx context.Context) ([]byte, error)
}

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures NewRouter. Limiter, Catalog and Health are optional.
// AvatarDir, when set, is served under AvatarURLPrefix.
type Options struct {
	Users           *services.UserService
	Verifier        AccessVerifier
	Catalog         Catalog
	Limiter         Limiter
	Health          Pinger
	AvatarDir       string
	AvatarURLPrefix string
	Logger          logging.Logger
}

type API struct {
	users   *services.UserService
	catalog Catalog
	health  Pinger
	log     logging.Logger
}

func NewRouter(o Options) http.Handler {
	log := o.Logger
	if log == nil {
		log = logging.Nop{}
	}
	a := &API{
		users:   o.Users,
		catalog: o.Catalog,
		health:  o.Health,
		log:     log.With("module", "http"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(a.log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.handleHealth)

	loginLimit := func(next http.Handler) http.Handler { return next }
	if o.Limiter != nil {
		loginLimit = RateLimit(o.Limiter, a.log)
	}
	r.With(loginLimit).Post("/login", a.handle(a.login))
	r.Post("/forgot-password", a.handle(a.forgotPassword))
	r.Post("/reset-password", a.handle(a.resetPassword))

	r.Route("/api", func(r chi.Router) {
		r.Post("/register", a.handle(a.register))
		r.Post("/auth/refresh", a.handle(a.refresh))
		r.Post("/logout", a.logout)

		r.Group(func(r chi.Router) {
			r.Use(RequireAccessToken(o.Verifier))
			r.Post("/user/change-password", a.handle(a.changePassword))
			r.Post("/user/avatar", a.handle(a.uploadAvatar))
		})

		r.Route("/tmdb", func(r chi.Router) {
			r.Get("/discover", a.handle(a.tmdbDiscover))
			r.Get("/search", a.handle(a.tmdbSearch))
			r.Get("/tv/{id}", a.handle(a.tmdbTV))
			r.Get("/recent", a.handle(a.tmdbRecent))
		})
	})

	if o.AvatarDir != "" && o.AvatarURLPrefix != "" {
		prefix := "/" + strings.Trim(o.AvatarURLPrefix, "/") + "/"
		fs := http.StripPrefix(prefix, http.FileServer(http.Dir(o.AvatarDir)))
		r.Get(prefix+"*", fs.ServeHTTP)
	}

	return r
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if a.health != nil {
		if err := a.health.Ping(r.Context()); err != nil {
			a.log.Warn(r.Context(), "health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
