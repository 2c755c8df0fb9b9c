package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/nickk-eng/Serialboxd/internal/server/tmdb"
)

const msgTMDBFailed = "Falha ao buscar dados do TMDB."

func (a *API) tmdbDiscover(w http.ResponseWriter, r *http.Request) error {
	return a.proxy(w, r, false, func() ([]byte, error) {
		return a.catalog.Discover(r.Context(), r.URL.Query().Get("page"))
	})
}

func (a *API) tmdbSearch(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	if q.Get("query") == "" {
		return badRequest("O parâmetro 'query' é obrigatório.")
	}
	return a.proxy(w, r, false, func() ([]byte, error) {
		return a.catalog.Search(r.Context(), q.Get("query"), q.Get("page"))
	})
}

func (a *API) tmdbTV(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "id")
	return a.proxy(w, r, true, func() ([]byte, error) {
		return a.catalog.TV(r.Context(), id)
	})
}

func (a *API) tmdbRecent(w http.ResponseWriter, r *http.Request) error {
	return a.proxy(w, r, false, func() ([]byte, error) {
		return a.catalog.Recent(r.Context())
	})
}

// proxy writes the upstream JSON verbatim. When forwardStatus is set an
// upstream error status is passed on to the client.
func (a *API) proxy(w http.ResponseWriter, r *http.Request, forwardStatus bool, call func() ([]byte, error)) error {
	if a.catalog == nil {
		return &httpError{status: http.StatusInternalServerError, msg: "Chave da API do TMDB não configurada no servidor."}
	}

	body, err := call()
	if err != nil {
		if errors.Is(err, tmdb.ErrNoAPIKey) {
			return &httpError{status: http.StatusInternalServerError, msg: "Chave da API do TMDB não configurada no servidor."}
		}
		a.log.Error(r.Context(), "tmdb request failed", "path", r.URL.Path, "error", err)

		var serr *tmdb.StatusError
		if forwardStatus && errors.As(err, &serr) {
			return &httpError{status: serr.StatusCode, msg: msgTMDBFailed}
		}
		return &httpError{status: http.StatusInternalServerError, msg: msgTMDBFailed}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
	return nil
}
