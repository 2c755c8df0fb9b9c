package httpapi

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nickk-eng/Serialboxd/internal/logging"
	"github.com/nickk-eng/Serialboxd/internal/server/tmdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_Validation(t *testing.T) {
	ts := newTestServer(t)

	res := ts.do(t, http.MethodPost, "/api/register", map[string]string{"nome": "Ana", "email": "a@x.com"}, "")
	assert.Equal(t, http.StatusBadRequest, res.status)
	assert.Equal(t, "Todos os campos são obrigatórios.", res.body["erro"])

	ts.registerAndLogin(t, "Ana", "a@x.com", "secret123")
	res = ts.do(t, http.MethodPost, "/api/register", map[string]string{"nome": "Bia", "email": "a@x.com", "senha": "x"}, "")
	assert.Equal(t, http.StatusBadRequest, res.status)
	assert.Equal(t, "E-mail já cadastrado.", res.body["erro"])
}

func TestLogin_MissingFieldsAndBadJSON(t *testing.T) {
	ts := newTestServer(t)

	res := ts.do(t, http.MethodPost, "/login", map[string]string{"email": "a@x.com"}, "")
	assert.Equal(t, http.StatusBadRequest, res.status)

	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/login", strings.NewReader("{not json"))
	require.NoError(t, err)
	res = ts.send(t, req)
	assert.Equal(t, http.StatusBadRequest, res.status)
	assert.Equal(t, "Requisição inválida.", res.body["erro"])
}

func TestRefresh_Statuses(t *testing.T) {
	ts := newTestServer(t)
	access, _ := ts.registerAndLogin(t, "Ana", "a@x.com", "secret123")

	res := ts.do(t, http.MethodPost, "/api/auth/refresh", map[string]string{}, "")
	assert.Equal(t, http.StatusUnauthorized, res.status)

	res = ts.do(t, http.MethodPost, "/api/auth/refresh", map[string]string{"refreshToken": "garbage"}, "")
	assert.Equal(t, http.StatusForbidden, res.status)

	res = ts.do(t, http.MethodPost, "/api/auth/refresh", map[string]string{"refreshToken": access}, "")
	assert.Equal(t, http.StatusForbidden, res.status, "access tokens are not refresh tokens")
}

func TestLogout_IdempotentStatuses(t *testing.T) {
	ts := newTestServer(t)
	_, refresh := ts.registerAndLogin(t, "Ana", "a@x.com", "secret123")

	res := ts.do(t, http.MethodPost, "/api/logout", map[string]string{"refreshToken": refresh}, "")
	assert.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, "Logout bem-sucedido.", res.body["message"])

	res = ts.do(t, http.MethodPost, "/api/logout", map[string]string{"refreshToken": refresh}, "")
	assert.Equal(t, http.StatusNoContent, res.status)

	res = ts.do(t, http.MethodPost, "/api/logout", nil, "")
	assert.Equal(t, http.StatusNoContent, res.status)

	res = ts.do(t, http.MethodPost, "/api/logout", map[string]string{"refreshToken": "x.y.z"}, "")
	assert.Equal(t, http.StatusNoContent, res.status)

	res = ts.do(t, http.MethodPost, "/api/auth/refresh", map[string]string{"refreshToken": refresh}, "")
	assert.Equal(t, http.StatusForbidden, res.status)
}

func TestGuard(t *testing.T) {
	ts := newTestServer(t)
	access, refresh := ts.registerAndLogin(t, "Ana", "a@x.com", "secret123")
	body := map[string]string{"currentPassword": "secret123", "newPassword": "another-pass"}

	res := ts.do(t, http.MethodPost, "/api/user/change-password", body, "")
	assert.Equal(t, http.StatusUnauthorized, res.status)

	res = ts.do(t, http.MethodPost, "/api/user/change-password", body, "not-a-token")
	assert.Equal(t, http.StatusForbidden, res.status)

	res = ts.do(t, http.MethodPost, "/api/user/change-password", body, refresh)
	assert.Equal(t, http.StatusForbidden, res.status, "refresh token is not accepted as access token")

	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/api/user/change-password", strings.NewReader(`{"currentPassword":"secret123","newPassword":"another-pass"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "bearer "+access)
	res = ts.send(t, req)
	assert.Equal(t, http.StatusOK, res.status, "scheme is case-insensitive")

	req, err = http.NewRequest(http.MethodPost, ts.srv.URL+"/api/user/change-password", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Basic abc")
	res = ts.send(t, req)
	assert.Equal(t, http.StatusUnauthorized, res.status)
}

func TestChangePassword_UnknownUser(t *testing.T) {
	ts := newTestServer(t)
	token, err := ts.issuer.IssueAccessToken(999, "ghost")
	require.NoError(t, err)

	res := ts.do(t, http.MethodPost, "/api/user/change-password",
		map[string]string{"currentPassword": "whatever", "newPassword": "long-enough"}, token)
	assert.Equal(t, http.StatusNotFound, res.status)
}

func TestForgotAndResetPassword_Endpoints(t *testing.T) {
	ts := newTestServer(t)
	ts.registerAndLogin(t, "Ana", "a@x.com", "secret123")

	res := ts.do(t, http.MethodPost, "/forgot-password", map[string]string{}, "")
	assert.Equal(t, http.StatusBadRequest, res.status)

	known := ts.do(t, http.MethodPost, "/forgot-password", map[string]string{"email": "a@x.com"}, "")
	unknown := ts.do(t, http.MethodPost, "/forgot-password", map[string]string{"email": "z@x.com"}, "")
	assert.Equal(t, http.StatusOK, known.status)
	assert.Equal(t, known.body, unknown.body)

	res = ts.do(t, http.MethodPost, "/reset-password", map[string]string{"token": "nope", "password": "long-enough"}, "")
	assert.Equal(t, http.StatusBadRequest, res.status)
	assert.Equal(t, "Token inválido ou expirado.", res.body["erro"])

	res = ts.do(t, http.MethodPost, "/reset-password", map[string]string{"token": "nope", "password": "short"}, "")
	assert.Equal(t, http.StatusBadRequest, res.status)
}

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01")

func multipartRequest(t *testing.T, url, field string, data []byte, bearer string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, "avatar.png")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+bearer)
	return req
}

func TestAvatarUploadAndServe(t *testing.T) {
	ts := newTestServer(t)
	access, _ := ts.registerAndLogin(t, "Ana", "a@x.com", "secret123")

	res := ts.send(t, multipartRequest(t, ts.srv.URL+"/api/user/avatar", "avatar", pngBytes, access))
	require.Equal(t, http.StatusOK, res.status, string(res.raw))
	url, _ := res.body["avatarUrl"].(string)
	require.True(t, strings.HasPrefix(url, "/uploads/avatars/1-"), url)

	entries, err := os.ReadDir(ts.avatars)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	stored, err := os.ReadFile(filepath.Join(ts.avatars, entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, pngBytes, stored)

	get, err := http.Get(ts.srv.URL + url)
	require.NoError(t, err)
	served, _ := io.ReadAll(get.Body)
	get.Body.Close()
	assert.Equal(t, http.StatusOK, get.StatusCode)
	assert.Equal(t, pngBytes, served)

	res = ts.do(t, http.MethodPost, "/login", map[string]string{"email": "a@x.com", "senha": "secret123"}, "")
	assert.Equal(t, url, res.body["avatarUrl"])
}

func TestAvatarUpload_Rejects(t *testing.T) {
	ts := newTestServer(t)
	access, _ := ts.registerAndLogin(t, "Ana", "a@x.com", "secret123")

	res := ts.send(t, multipartRequest(t, ts.srv.URL+"/api/user/avatar", "other", pngBytes, access))
	assert.Equal(t, http.StatusBadRequest, res.status)

	res = ts.send(t, multipartRequest(t, ts.srv.URL+"/api/user/avatar", "avatar", []byte("just text"), access))
	assert.Equal(t, http.StatusBadRequest, res.status)

	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/api/user/avatar", strings.NewReader("x"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+access)
	res = ts.send(t, req)
	assert.Equal(t, http.StatusBadRequest, res.status)
}

type fakeCatalog struct {
	body []byte
	err  error
	got  []string
}

func (f *fakeCatalog) record(parts ...string) ([]byte, error) {
	f.got = append(f.got, strings.Join(parts, "|"))
	return f.body, f.err
}

func (f *fakeCatalog) Discover(_ context.Context, page string) ([]byte, error) {
	return f.record("discover", page)
}
func (f *fakeCatalog) Search(_ context.Context, query, page string) ([]byte, error) {
	return f.record("search", query, page)
}
func (f *fakeCatalog) TV(_ context.Context, id string) ([]byte, error) { return f.record("tv", id) }
func (f *fakeCatalog) Recent(context.Context) ([]byte, error)          { return f.record("recent") }

func TestTMDBProxy(t *testing.T) {
	cat := &fakeCatalog{body: []byte(`{"results":[1,2]}`)}
	ts := newTestServer(t, func(o *Options) { o.Catalog = cat })

	for _, path := range []string{"/api/tmdb/discover?page=3", "/api/tmdb/search?query=dark&page=2", "/api/tmdb/tv/42", "/api/tmdb/recent"} {
		res := ts.do(t, http.MethodGet, path, nil, "")
		require.Equal(t, http.StatusOK, res.status, path)
		assert.JSONEq(t, `{"results":[1,2]}`, string(res.raw))
	}
	assert.Equal(t, []string{"discover|3", "search|dark|2", "tv|42", "recent"}, cat.got)

	res := ts.do(t, http.MethodGet, "/api/tmdb/search", nil, "")
	assert.Equal(t, http.StatusBadRequest, res.status)
}

func TestTMDBProxy_Errors(t *testing.T) {
	cat := &fakeCatalog{err: &tmdb.StatusError{StatusCode: http.StatusNotFound}}
	ts := newTestServer(t, func(o *Options) { o.Catalog = cat })

	res := ts.do(t, http.MethodGet, "/api/tmdb/tv/0", nil, "")
	assert.Equal(t, http.StatusNotFound, res.status, "details forward the upstream status")

	res = ts.do(t, http.MethodGet, "/api/tmdb/discover", nil, "")
	assert.Equal(t, http.StatusInternalServerError, res.status)
	assert.Equal(t, "Falha ao buscar dados do TMDB.", res.body["erro"])

	cat.err = tmdb.ErrNoAPIKey
	res = ts.do(t, http.MethodGet, "/api/tmdb/recent", nil, "")
	assert.Equal(t, http.StatusInternalServerError, res.status)
	assert.Equal(t, "Chave da API do TMDB não configurada no servidor.", res.body["erro"])
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestTMDBProxy_UpstreamDownKeepsKeyOutOfLogs(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	base := upstream.URL
	upstream.Close()

	var logs lockedBuffer
	ts := newTestServer(t, func(o *Options) {
		o.Logger = logging.NewLogger(&logs, "debug")
		o.Catalog = tmdb.NewClient(tmdb.Options{
			APIKey:     "SUPERSECRETKEY",
			BaseURL:    base,
			MaxElapsed: 50 * time.Millisecond,
		})
	})

	res := ts.do(t, http.MethodGet, "/api/tmdb/discover", nil, "")
	assert.Equal(t, http.StatusInternalServerError, res.status)
	assert.NotContains(t, string(res.raw), "SUPERSECRETKEY")

	out := logs.String()
	assert.Contains(t, out, "tmdb request failed")
	assert.NotContains(t, out, "SUPERSECRETKEY")
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("db down") }

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	res := ts.do(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, "ok", res.body["status"])

	down := newTestServer(t, func(o *Options) { o.Health = failingPinger{} })
	res = down.do(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, res.status)
}
