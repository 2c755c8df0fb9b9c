package services

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/nickk-eng/Serialboxd/internal/common"
	"github.com/nickk-eng/Serialboxd/internal/cryptox"
	"github.com/nickk-eng/Serialboxd/internal/server/auth"
	"github.com/nickk-eng/Serialboxd/internal/server/config"
	"github.com/nickk-eng/Serialboxd/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/require"
)

type sentMail struct {
	to, subject, body string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (f *fakeMailer) Send(_ context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

type fakeAvatarStore struct {
	key         string
	contentType string
	data        []byte
	err         error
}

func (f *fakeAvatarStore) Save(_ context.Context, key, contentType string, body io.Reader, _ int64) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	f.key, f.contentType, f.data = key, contentType, b
	return "/uploads/avatars/" + key, nil
}

func testConfig() *config.Config {
	return &config.Config{
		AccessTokenSecret:             "access-secret",
		RefreshTokenSecret:            "refresh-secret",
		AccessTokenValidityDuration:   15 * time.Minute,
		RefreshTokenValidityDuration:  7 * 24 * time.Hour,
		PasswordResetValidityDuration: time.Hour,
		PublicBaseURL:                 "http://localhost:3000/",
	}
}

func newTestCipher(t *testing.T) *cryptox.Cipher {
	t.Helper()
	h, err := cryptox.NewKeyHandle(common.GenerateRandByteArray(cryptox.KeySize))
	require.NoError(t, err)
	t.Cleanup(h.Destroy)
	c, err := cryptox.NewCipher(h)
	require.NoError(t, err)
	return c
}

func newTestIssuer(t *testing.T, cfg *config.Config) *auth.Issuer {
	t.Helper()
	iss, err := auth.NewIssuer([]byte(cfg.AccessTokenSecret), []byte(cfg.RefreshTokenSecret),
		cfg.AccessTokenValidityDuration, cfg.RefreshTokenValidityDuration)
	require.NoError(t, err)
	return iss
}

type testEnv struct {
	svc     *UserService
	repos   repomanager.RepositoryManager
	mailer  *fakeMailer
	avatars *fakeAvatarStore
	cipher  *cryptox.Cipher
	issuer  *auth.Issuer
}

func newMemoryService(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(cfg)
	}
	env := &testEnv{
		repos:   repomanager.NewMemoryRepositoryManager(),
		mailer:  &fakeMailer{},
		avatars: &fakeAvatarStore{},
		cipher:  newTestCipher(t),
		issuer:  newTestIssuer(t, cfg),
	}
	env.svc = NewUserService(Deps{
		Repos:   env.repos,
		Issuer:  env.issuer,
		Cipher:  env.cipher,
		Mailer:  env.mailer,
		Avatars: env.avatars,
	}, cfg)
	return env
}

func (e *testEnv) register(t *testing.T, name, email, password string) int64 {
	t.Helper()
	u, err := e.svc.Register(context.Background(), name, email, password)
	require.NoError(t, err)
	return u.ID
}

func (e *testEnv) login(t *testing.T, email, password string) *TokenPair {
	t.Helper()
	_, pair, err := e.svc.Login(context.Background(), email, password)
	require.NoError(t, err)
	return pair
}
