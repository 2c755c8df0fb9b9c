package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nickk-eng/Serialboxd/internal/common"
	"github.com/nickk-eng/Serialboxd/internal/dbx"
)

// PostgresRepository stores sessions in the users.refresh_token column.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, userID int64) (string, error) {
	query :=
		`SELECT refresh_token FROM users
		 WHERE id = $1
		 `
	return r.getOne(ctx, query, userID)
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, userID int64) (string, error) {
	query :=
		`SELECT refresh_token FROM users
		 WHERE id = $1
		 FOR UPDATE
		 `
	return r.getOne(ctx, query, userID)
}

func (r *PostgresRepository) Set(ctx context.Context, userID int64, envelope string) error {
	query :=
		`UPDATE users SET refresh_token = $1
		 WHERE id = $2
		 `
	n, err := r.exec(ctx, query, envelope, userID)
	if err != nil {
		return err
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) Rotate(ctx context.Context, userID int64, old, next string) (bool, error) {
	query :=
		`UPDATE users SET refresh_token = $1
		 WHERE id = $2 AND refresh_token = $3
		 `
	n, err := r.exec(ctx, query, next, userID, old)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PostgresRepository) Clear(ctx context.Context, userID int64) (bool, error) {
	query :=
		`UPDATE users SET refresh_token = NULL
		 WHERE id = $1 AND refresh_token IS NOT NULL
		 `
	n, err := r.exec(ctx, query, userID)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, userID int64) (string, error) {
	var envelope sql.NullString
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&envelope); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", common.ErrorNotFound
		}
		return "", fmt.Errorf("db error: %w", err)
	}
	if !envelope.Valid {
		return "", common.ErrorNotFound
	}
	return envelope.String, nil
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
