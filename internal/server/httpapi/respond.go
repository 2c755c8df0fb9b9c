package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/nickk-eng/Serialboxd/internal/common"
)

const maxJSONBody = 1 << 20

// httpError carries a status and a client-facing message chosen by a handler.
type httpError struct {
	status int
	msg    string
}

func (e *httpError) Error() string { return e.msg }

func badRequest(msg string) error { return &httpError{status: http.StatusBadRequest, msg: msg} }

const msgInternal = "Erro interno do servidor."

// classify maps an error returned by a handler to the response status and
// message. Anything unrecognized is an internal failure.
func classify(err error) (int, string) {
	var he *httpError
	switch {
	case errors.As(err, &he):
		return he.status, he.msg
	case errors.Is(err, common.ErrEmailTaken):
		return http.StatusBadRequest, "E-mail já cadastrado."
	case errors.Is(err, common.ErrInvalidResetToken):
		return http.StatusBadRequest, "Token inválido ou expirado."
	case errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest, "Dados inválidos."
	case errors.Is(err, common.ErrInvalidCredentials):
		return http.StatusUnauthorized, "E-mail ou senha inválidos."
	case errors.Is(err, common.ErrorUnauthorized):
		return http.StatusUnauthorized, "Token não fornecido."
	case errors.Is(err, common.ErrTokenExpired), errors.Is(err, common.ErrInvalidToken):
		return http.StatusForbidden, "Token inválido ou expirado."
	case errors.Is(err, common.ErrWrongPassword):
		return http.StatusForbidden, "A senha atual está incorreta."
	case errors.Is(err, common.ErrSessionRevoked):
		return http.StatusForbidden, "Sessão inválida ou revogada."
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, "Usuário não encontrado."
	case errors.Is(err, common.ErrRateLimited):
		return http.StatusTooManyRequests, "Muitas tentativas. Tente novamente mais tarde."
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

type errorBody struct {
	Erro string `json:"erro"`
}

type messageBody struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Erro: msg})
}

// handlerFunc is an http handler that reports failures as errors. The
// adapter in API.handle turns them into responses.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

func (a *API) handle(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := h(w, r)
		if err == nil {
			return
		}

		status, msg := classify(err)
		if status >= http.StatusInternalServerError {
			a.log.Error(r.Context(), "request failed",
				"path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
		} else {
			a.log.Debug(r.Context(), "request rejected", "path", r.URL.Path, "status", status, "error", err)
		}
		writeError(w, status, msg)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return badRequest("Requisição inválida.")
	}
	return nil
}
