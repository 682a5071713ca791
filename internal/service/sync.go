package service

import (
	"context"
	"fmt"
	"time"

	"github.com/atinyakov/kosync/internal/common"
	"github.com/atinyakov/kosync/internal/models"
)

// ProgressRepository defines the persistence operations needed by the SyncService.
type ProgressRepository interface {
	// SaveProgress replaces the record stored under
	// (username, p.DeviceID, p.Document).
	SaveProgress(ctx context.Context, username string, p models.Progress) error
	// DeviceProgress returns the record of every device of username that has
	// one for document. Corrupt records are left out.
	DeviceProgress(ctx context.Context, username, document string) ([]models.Progress, error)
}

// UserChecker reports whether an identity exists.
type UserChecker interface {
	UserExists(ctx context.Context, username string) (bool, error)
}

// SyncService implements the progress store: per-device upserts and a
// last-write-wins read across devices.
type SyncService struct {
	repo  ProgressRepository
	users UserChecker
	now   func() time.Time
	locks *keyedMutex
}

// NewSyncService constructs a SyncService with the provided repository and
// identity checker.
func NewSyncService(repo ProgressRepository, users UserChecker) *SyncService {
	return &SyncService{
		repo:  repo,
		users: users,
		now:   time.Now,
		locks: newKeyedMutex(),
	}
}

// WithClock replaces the clock used for server timestamps.
func (s *SyncService) WithClock(now func() time.Time) *SyncService {
	s.now = now
	return s
}

func (s *SyncService) requireUser(ctx context.Context, username string) error {
	ok, err := s.users.UserExists(ctx, username)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: user %q", common.ErrNotFound, username)
	}
	return nil
}

// Put stores in as the latest snapshot of its device for its document and
// returns the stored record. Any client timestamp is replaced by the server
// clock. Timestamp assignment and the write happen under one lock per
// (identity, device, document), so the newest timestamp is also the last write.
func (s *SyncService) Put(ctx context.Context, username string, in models.Progress) (models.Progress, error) {
	if err := s.requireUser(ctx, username); err != nil {
		return models.Progress{}, err
	}
	if !models.ValidKey(in.DeviceID) || !models.ValidKey(in.Document) {
		return models.Progress{}, fmt.Errorf("%w: device %q document %q", common.ErrInvalidKey, in.DeviceID, in.Document)
	}

	unlock := s.locks.Lock(username + "\x00" + in.DeviceID + "\x00" + in.Document)
	defer unlock()

	in.Timestamp = s.now().Unix()
	if err := s.repo.SaveProgress(ctx, username, in); err != nil {
		return models.Progress{}, err
	}
	return in, nil
}

// Get returns the most recent record any device of username pushed for
// document, or nil if there is none.
func (s *SyncService) Get(ctx context.Context, username, document string) (*models.Progress, error) {
	if err := s.requireUser(ctx, username); err != nil {
		return nil, err
	}
	if !models.ValidKey(document) {
		return nil, nil
	}

	records, err := s.repo.DeviceProgress(ctx, username, document)
	if err != nil {
		return nil, err
	}
	return Latest(records), nil
}

// Latest picks the record with the greatest timestamp. Equal timestamps go to
// the lexicographically smallest device id so the answer does not depend on
// enumeration order. It returns nil for an empty slice.
func Latest(records []models.Progress) *models.Progress {
	var best *models.Progress
	for i := range records {
		r := &records[i]
		if best == nil ||
			r.Timestamp > best.Timestamp ||
			(r.Timestamp == best.Timestamp && r.DeviceID < best.DeviceID) {
			best = r
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}
