// Package memory provides in-process implementations of the users and
// sessions repositories. It backs the server when no database DSN is
// configured and the service tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/nickk-eng/Serialboxd/internal/common"
	"github.com/nickk-eng/Serialboxd/internal/server/models"
)

type record struct {
	user         models.User
	session      *string
	resetHash    string
	resetExpires time.Time
}

// Store holds every user row. Both repositories in this package operate on
// the same Store so that a session belongs to exactly one user record.
type Store struct {
	mu      sync.Mutex
	nextID  int64
	rows    map[int64]*record
	byEmail map[string]int64
	now     func() time.Time
}

func NewStore() *Store {
	return &Store{
		rows:    make(map[int64]*record),
		byEmail: make(map[string]int64),
		now:     time.Now,
	}
}

func (s *Store) Users() *UsersRepository       { return &UsersRepository{s: s} }
func (s *Store) Sessions() *SessionsRepository { return &SessionsRepository{s: s} }

func (s *Store) find(id int64) (*record, error) {
	rec, ok := s.rows[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return rec, nil
}

func cloneUser(u models.User) *models.User {
	if u.AvatarURL != nil {
		a := *u.AvatarURL
		u.AvatarURL = &a
	}
	return &u
}

type UsersRepository struct {
	s *Store
}

func (r *UsersRepository) Create(_ context.Context, user *models.User) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, taken := r.s.byEmail[user.Email]; taken {
		return nil, common.ErrorAlreadyExists
	}

	r.s.nextID++
	user.ID = r.s.nextID
	user.CreatedAt = r.s.now().UTC()

	r.s.rows[user.ID] = &record{user: *cloneUser(*user)}
	r.s.byEmail[user.Email] = user.ID
	return user, nil
}

func (r *UsersRepository) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	id, ok := r.s.byEmail[email]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return cloneUser(r.s.rows[id].user), nil
}

func (r *UsersRepository) GetByID(_ context.Context, id int64) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rec, err := r.s.find(id)
	if err != nil {
		return nil, err
	}
	return cloneUser(rec.user), nil
}

func (r *UsersRepository) UpdatePassword(_ context.Context, id int64, passwordHash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rec, err := r.s.find(id)
	if err != nil {
		return err
	}
	rec.user.PasswordHash = passwordHash
	return nil
}

func (r *UsersRepository) UpdateAvatarURL(_ context.Context, id int64, avatarURL string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rec, err := r.s.find(id)
	if err != nil {
		return err
	}
	rec.user.AvatarURL = &avatarURL
	return nil
}

func (r *UsersRepository) SetPasswordReset(_ context.Context, id int64, tokenHash string, expires time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rec, err := r.s.find(id)
	if err != nil {
		return err
	}
	rec.resetHash = tokenHash
	rec.resetExpires = expires
	return nil
}

func (r *UsersRepository) GetByPasswordReset(_ context.Context, tokenHash string, now time.Time) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, rec := range r.s.rows {
		if rec.resetHash != "" && rec.resetHash == tokenHash && rec.resetExpires.After(now) {
			return cloneUser(rec.user), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *UsersRepository) ResetPassword(_ context.Context, id int64, tokenHash, passwordHash string, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rec, err := r.s.find(id)
	if err != nil {
		return err
	}
	if rec.resetHash == "" || rec.resetHash != tokenHash || !rec.resetExpires.After(now) {
		return common.ErrorNotFound
	}
	rec.user.PasswordHash = passwordHash
	rec.resetHash = ""
	rec.resetExpires = time.Time{}
	return nil
}

type SessionsRepository struct {
	s *Store
}

func (r *SessionsRepository) Get(_ context.Context, userID int64) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rec, err := r.s.find(userID)
	if err != nil {
		return "", err
	}
	if rec.session == nil {
		return "", common.ErrorNotFound
	}
	return *rec.session, nil
}

// GetForUpdate is Get. Row locking is provided by Manager.WithTx, which
// serializes transactions.
func (r *SessionsRepository) GetForUpdate(ctx context.Context, userID int64) (string, error) {
	return r.Get(ctx, userID)
}

func (r *SessionsRepository) Set(_ context.Context, userID int64, envelope string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rec, err := r.s.find(userID)
	if err != nil {
		return err
	}
	rec.session = &envelope
	return nil
}

func (r *SessionsRepository) Rotate(_ context.Context, userID int64, old, next string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rec, err := r.s.find(userID)
	if err != nil {
		return false, nil
	}
	if rec.session == nil || *rec.session != old {
		return false, nil
	}
	rec.session = &next
	return true, nil
}

func (r *SessionsRepository) Clear(_ context.Context, userID int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rec, err := r.s.find(userID)
	if err != nil {
		return false, nil
	}
	had := rec.session != nil
	rec.session = nil
	return had, nil
}
