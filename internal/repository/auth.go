package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/atinyakov/kosync/internal/common"
)

// SQLAuthRepository implements credential storage on a SQL database.
// The queries run unchanged on PostgreSQL and SQLite.
type SQLAuthRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewSQLAuthRepository creates a new SQLAuthRepository with the given database connection.
func NewSQLAuthRepository(db *sql.DB) *SQLAuthRepository {
	return &SQLAuthRepository{DB: db}
}

// UserExists checks whether a user with the specified username exists.
func (r *SQLAuthRepository) UserExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(
		ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`,
		username,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("UserExists: %w", err)
	}
	return exists, nil
}

// CreateUser inserts a new user. The insert is a no-op on conflict; zero
// affected rows means the username was taken and common.ErrAlreadyExists is returned.
func (r *SQLAuthRepository) CreateUser(ctx context.Context, username, passwordHash string) error {
	res, err := r.DB.ExecContext(
		ctx,
		`INSERT INTO users (username, password_hash) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		username, passwordHash,
	)
	if err != nil {
		return fmt.Errorf("CreateUser: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("CreateUser: %w", err)
	}
	if n == 0 {
		return common.ErrAlreadyExists
	}
	return nil
}

// PasswordHash returns the stored hash for username or common.ErrNotFound.
func (r *SQLAuthRepository) PasswordHash(ctx context.Context, username string) (string, error) {
	var hash string
	err := r.DB.QueryRowContext(
		ctx,
		`SELECT password_hash FROM users WHERE username = $1`,
		username,
	).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", common.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("PasswordHash: %w", err)
	}
	return hash, nil
}

// EnsureIdentity inserts a credential-less user row if none exists. It backs
// the anonymous identity, which never authenticates against its hash.
func (r *SQLAuthRepository) EnsureIdentity(ctx context.Context, username string) error {
	_, err := r.DB.ExecContext(
		ctx,
		`INSERT INTO users (username, password_hash) VALUES ($1, '') ON CONFLICT DO NOTHING`,
		username,
	)
	if err != nil {
		return fmt.Errorf("EnsureIdentity: %w", err)
	}
	return nil
}
