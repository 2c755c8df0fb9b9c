package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nickk-eng/Serialboxd/internal/common"
	"github.com/nickk-eng/Serialboxd/internal/cryptox"
	"github.com/nickk-eng/Serialboxd/internal/server/auth"
	"github.com/nickk-eng/Serialboxd/internal/server/config"
	"github.com/nickk-eng/Serialboxd/internal/server/repositories/repomanager"
	"github.com/nickk-eng/Serialboxd/internal/server/services"
	"github.com/nickk-eng/Serialboxd/internal/server/storage"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	srv     *httptest.Server
	issuer  *auth.Issuer
	repos   *repomanager.MemoryRepositoryManager
	avatars string
}

func newTestServer(t *testing.T, mutate ...func(*Options)) *testServer {
	t.Helper()
	cfg := &config.Config{
		AccessTokenValidityDuration:   15 * time.Minute,
		RefreshTokenValidityDuration:  7 * 24 * time.Hour,
		PasswordResetValidityDuration: time.Hour,
		PublicBaseURL:                 "http://localhost:3000",
	}

	h, err := cryptox.NewKeyHandle(common.GenerateRandByteArray(cryptox.KeySize))
	require.NoError(t, err)
	t.Cleanup(h.Destroy)
	cipher, err := cryptox.NewCipher(h)
	require.NoError(t, err)

	issuer, err := auth.NewIssuer([]byte("access"), []byte("refresh"), cfg.AccessTokenValidityDuration, cfg.RefreshTokenValidityDuration)
	require.NoError(t, err)

	dir := t.TempDir()
	store, err := storage.NewDiskStore(dir, "/uploads/avatars/")
	require.NoError(t, err)

	repos := repomanager.NewMemoryRepositoryManager()
	users := services.NewUserService(services.Deps{
		Repos:   repos,
		Issuer:  issuer,
		Cipher:  cipher,
		Avatars: store,
	}, cfg)

	o := Options{
		Users:           users,
		Verifier:        issuer,
		Health:          repos,
		AvatarDir:       dir,
		AvatarURLPrefix: "/uploads/avatars/",
	}
	for _, m := range mutate {
		m(&o)
	}

	srv := httptest.NewServer(NewRouter(o))
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, issuer: issuer, repos: repos, avatars: dir}
}

type response struct {
	status int
	header http.Header
	body   map[string]any
	raw    []byte
}

func (ts *testServer) do(t *testing.T, method, path string, body any, bearer string) response {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, ts.srv.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return ts.send(t, req)
}

func (ts *testServer) send(t *testing.T, req *http.Request) response {
	t.Helper()
	res, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(res.Body)
	require.NoError(t, err)

	out := response{status: res.StatusCode, header: res.Header, raw: buf.Bytes()}
	if buf.Len() > 0 && res.Header.Get("Content-Type") != "" {
		_ = json.Unmarshal(buf.Bytes(), &out.body)
	}
	return out
}

func (ts *testServer) registerAndLogin(t *testing.T, name, email, password string) (access, refresh string) {
	t.Helper()
	res := ts.do(t, http.MethodPost, "/api/register", map[string]string{"nome": name, "email": email, "senha": password}, "")
	require.Equal(t, http.StatusCreated, res.status, string(res.raw))

	res = ts.do(t, http.MethodPost, "/login", map[string]string{"email": email, "senha": password}, "")
	require.Equal(t, http.StatusOK, res.status, string(res.raw))
	return res.body["accessToken"].(string), res.body["refreshToken"].(string)
}
