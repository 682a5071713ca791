// Package service provides the credential and progress business logic,
// delegating persistence to repository interfaces.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/atinyakov/kosync/internal/common"
	"github.com/atinyakov/kosync/internal/models"
	"github.com/atinyakov/kosync/internal/password"
	"go.uber.org/zap"
)

// AuthRepository defines the persistence operations
// required by the authentication service.
type AuthRepository interface {
	// UserExists returns true if a complete identity record exists.
	UserExists(ctx context.Context, username string) (bool, error)
	// CreateUser stores a new identity with its encoded password hash.
	// Returns common.ErrAlreadyExists if the username is taken.
	CreateUser(ctx context.Context, username, passwordHash string) error
	// PasswordHash returns the encoded hash or common.ErrNotFound.
	PasswordHash(ctx context.Context, username string) (string, error)
	// EnsureIdentity creates a credential-less namespace if missing.
	EnsureIdentity(ctx context.Context, username string) error
}

// Service implements the credential store. In anonymous mode every caller is
// the models.AnonymousIdentity, which always exists and always authenticates.
type Service struct {
	repo      AuthRepository
	hasher    password.Hasher
	anonymous bool
	log       *zap.Logger
}

// AuthOption configures a Service.
type AuthOption func(*Service)

// WithHasher sets the hasher used for new registrations.
func WithHasher(h password.Hasher) AuthOption {
	return func(s *Service) { s.hasher = h }
}

// WithAnonymous enables anonymous identity mode.
func WithAnonymous(enabled bool) AuthOption {
	return func(s *Service) { s.anonymous = enabled }
}

// WithLogger sets the logger for storage failures hidden from callers.
func WithLogger(log *zap.Logger) AuthOption {
	return func(s *Service) { s.log = log }
}

// NewAuthService constructs a new Service using the provided repository.
// By default passwords are stored as unsalted SHA-256 hex and anonymous mode is off.
func NewAuthService(repo AuthRepository, opts ...AuthOption) *Service {
	s := &Service{repo: repo, hasher: password.SHA256{}, log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Anonymous reports whether anonymous identity mode is enabled.
func (s *Service) Anonymous() bool { return s.anonymous }

// Identity maps the username a caller presented to the identity its data is
// stored under.
func (s *Service) Identity(username string) string {
	if s.anonymous {
		return models.AnonymousIdentity
	}
	return username
}

// Bootstrap prepares the storage namespace of the anonymous identity.
// It does nothing when anonymous mode is off.
func (s *Service) Bootstrap(ctx context.Context) error {
	if !s.anonymous {
		return nil
	}
	return s.repo.EnsureIdentity(ctx, models.AnonymousIdentity)
}

// UserExists checks whether an identity exists. A username that cannot be a
// storage key never exists.
func (s *Service) UserExists(ctx context.Context, username string) (bool, error) {
	if s.anonymous {
		return true, nil
	}
	if !models.ValidKey(username) {
		return false, nil
	}
	return s.repo.UserExists(ctx, username)
}

// RegisterUser creates an identity. It returns common.ErrAlreadyExists if the
// username is taken and common.ErrInvalidKey if it cannot be stored. In
// anonymous mode it succeeds without doing anything.
func (s *Service) RegisterUser(ctx context.Context, username, pass string) error {
	if s.anonymous {
		return nil
	}
	if !models.ValidKey(username) {
		return fmt.Errorf("%w: username %q", common.ErrInvalidKey, username)
	}

	exists, err := s.repo.UserExists(ctx, username)
	if err != nil {
		return err
	}
	if exists {
		return common.ErrAlreadyExists
	}

	hash, err := s.hasher.Hash(pass)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.repo.CreateUser(ctx, username, hash)
}

// Authenticate reports whether pass matches the stored credential of
// username. Absence, mismatch and storage failures all yield false.
func (s *Service) Authenticate(ctx context.Context, username, pass string) bool {
	if s.anonymous {
		return true
	}
	if !models.ValidKey(username) {
		return false
	}

	exists, err := s.repo.UserExists(ctx, username)
	if err != nil {
		s.log.Error("authenticate: lookup failed", zap.String("user", username), zap.Error(err))
		return false
	}
	if !exists {
		return false
	}

	hash, err := s.repo.PasswordHash(ctx, username)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			s.log.Error("authenticate: read credential failed", zap.String("user", username), zap.Error(err))
		}
		return false
	}

	ok, err := password.Verify(hash, pass)
	if err != nil {
		s.log.Warn("authenticate: stored credential unreadable", zap.String("user", username), zap.Error(err))
		return false
	}
	return ok
}
