package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/nickk-eng/Serialboxd/internal/common"
	"github.com/nickk-eng/Serialboxd/internal/dbx"
	"github.com/nickk-eng/Serialboxd/internal/server/models"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique constraint failures.
const uniqueViolation = "23505"

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts user and fills in its ID and CreatedAt. A duplicate email
// yields common.ErrorAlreadyExists.
func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query :=
		`INSERT INTO users (username, email, password_hash)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		user.Username, user.Email, user.PasswordHash).Scan(&user.ID, &user.CreatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query :=
		`SELECT id, username, email, password_hash, avatar_url, created_at FROM users
		 WHERE email = $1
		 `
	return r.getOne(ctx, query, email)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query :=
		`SELECT id, username, email, password_hash, avatar_url, created_at FROM users
		 WHERE id = $1
		 `
	return r.getOne(ctx, query, id)
}

func (r *PostgresRepository) GetByPasswordReset(ctx context.Context, tokenHash string, now time.Time) (*models.User, error) {
	query :=
		`SELECT id, username, email, password_hash, avatar_url, created_at FROM users
		 WHERE password_reset_token = $1 AND password_reset_expires > $2
		 `
	return r.getOne(ctx, query, tokenHash, now)
}

func (r *PostgresRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	query :=
		`UPDATE users SET password_hash = $1
		 WHERE id = $2
		 `
	return r.execOne(ctx, query, passwordHash, id)
}

func (r *PostgresRepository) UpdateAvatarURL(ctx context.Context, id int64, avatarURL string) error {
	query :=
		`UPDATE users SET avatar_url = $1
		 WHERE id = $2
		 `
	return r.execOne(ctx, query, avatarURL, id)
}

func (r *PostgresRepository) SetPasswordReset(ctx context.Context, id int64, tokenHash string, expires time.Time) error {
	query :=
		`UPDATE users SET password_reset_token = $1, password_reset_expires = $2
		 WHERE id = $3
		 `
	return r.execOne(ctx, query, tokenHash, expires, id)
}

func (r *PostgresRepository) ResetPassword(ctx context.Context, id int64, tokenHash, passwordHash string, now time.Time) error {
	query :=
		`UPDATE users SET password_hash = $1, password_reset_token = NULL, password_reset_expires = NULL
		 WHERE id = $2 AND password_reset_token = $3 AND password_reset_expires > $4
		 `
	return r.execOne(ctx, query, passwordHash, id, tokenHash, now)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*models.User, error) {
	user := &models.User{}
	var avatar sql.NullString

	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash, &avatar, &user.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if avatar.Valid {
		user.AvatarURL = &avatar.String
	}
	return user, nil
}

// execOne runs an UPDATE that must touch exactly one user row.
func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
