package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/atinyakov/kosync/internal/common"
	"github.com/atinyakov/kosync/internal/models"
	"go.uber.org/zap"
)

// FileAuthRepository stores credentials as files under a Layout.
type FileAuthRepository struct {
	layout Layout
}

// NewFileAuthRepository creates a FileAuthRepository over layout.
func NewFileAuthRepository(layout Layout) *FileAuthRepository {
	return &FileAuthRepository{layout: layout}
}

// UserExists reports whether the identity directory, its passwd file and its
// devices directory are all present. A missing identity is not an error.
func (r *FileAuthRepository) UserExists(_ context.Context, username string) (bool, error) {
	dir, err := r.layout.identityDir(username)
	if err != nil {
		return false, nil
	}
	for _, check := range []struct {
		path string
		fn   func(string) (bool, error)
	}{
		{dir, isDir},
		{filepath.Join(dir, passwdFile), isFile},
		{filepath.Join(dir, devicesDir), isDir},
	} {
		ok, err := check.fn(check.path)
		if err != nil {
			return false, fmt.Errorf("stat %s: %w", filepath.Base(check.path), err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// CreateUser creates the identity's devices directory and then its passwd
// file. The passwd file is created exclusively, so of two concurrent
// creations of the same username exactly one succeeds and the other gets
// common.ErrAlreadyExists.
func (r *FileAuthRepository) CreateUser(ctx context.Context, username, passwordHash string) error {
	exists, err := r.UserExists(ctx, username)
	if err != nil {
		return err
	}
	if exists {
		return common.ErrAlreadyExists
	}

	dir, err := r.layout.identityDir(username)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(dir, devicesDir), dirPerm); err != nil {
		return fmt.Errorf("create devices dir: %w", err)
	}

	return installPasswd(dir, []byte(passwordHash))
}

// linkFile is os.Link, replaceable in tests.
var linkFile = os.Link

// installPasswd places the passwd file in dir. It hard-links a complete temp
// file into place. Filesystems
// without hard links fall back to an exclusive create of an empty placeholder
// that the complete temp file is then renamed over.
func installPasswd(dir string, hash []byte) error {
	tmp, err := writeTemp(dir, hash, passwordPerm)
	if err != nil {
		return fmt.Errorf("write passwd: %w", err)
	}
	defer os.Remove(tmp)

	target := filepath.Join(dir, passwdFile)
	err = linkFile(tmp, target)
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrExist) {
		return common.ErrAlreadyExists
	}

	f, cerr := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, passwordPerm)
	if cerr != nil {
		if errors.Is(cerr, fs.ErrExist) {
			return common.ErrAlreadyExists
		}
		return fmt.Errorf("install passwd: %w", errors.Join(err, cerr))
	}
	if cerr := f.Close(); cerr != nil {
		_ = os.Remove(target)
		return fmt.Errorf("install passwd: %w", cerr)
	}
	if rerr := os.Rename(tmp, target); rerr != nil {
		_ = os.Remove(target)
		return fmt.Errorf("install passwd: %w", rerr)
	}
	return nil
}

// PasswordHash returns the stored hash or common.ErrNotFound.
func (r *FileAuthRepository) PasswordHash(_ context.Context, username string) (string, error) {
	path, err := r.layout.passwdFile(username)
	if err != nil {
		return "", common.ErrNotFound
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", common.ErrNotFound
		}
		return "", fmt.Errorf("read passwd: %w", err)
	}
	return string(data), nil
}

// EnsureIdentity creates the identity's device container if missing.
func (r *FileAuthRepository) EnsureIdentity(_ context.Context, username string) error {
	dir, err := r.layout.devicesDir(username)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("create devices dir: %w", err)
	}
	return nil
}

// FileProgressRepository stores one JSON file per device and document.
type FileProgressRepository struct {
	layout Layout
	log    *zap.Logger
}

// NewFileProgressRepository creates a FileProgressRepository over layout.
// A nil logger disables logging of skipped records.
func NewFileProgressRepository(layout Layout, log *zap.Logger) *FileProgressRepository {
	if log == nil {
		log = zap.NewNop()
	}
	return &FileProgressRepository{layout: layout, log: log}
}

// SaveProgress replaces the record stored for (username, p.DeviceID, p.Document).
func (r *FileProgressRepository) SaveProgress(_ context.Context, username string, p models.Progress) error {
	path, err := r.layout.recordFile(username, p.DeviceID, p.Document)
	if err != nil {
		return err
	}
	identity, err := r.layout.identityDir(username)
	if err != nil {
		return err
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return fmt.Errorf("create device dir: %w", err)
	}

	tmp, err := writeTemp(identity, data, recordPerm)
	if err != nil {
		return fmt.Errorf("write progress: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("install progress: %w", err)
	}
	return nil
}

// DeviceProgress returns the record every device of username holds for
// document. Unreadable or corrupt records are logged and skipped.
func (r *FileProgressRepository) DeviceProgress(_ context.Context, username, document string) ([]models.Progress, error) {
	devices, err := r.layout.devicesDir(username)
	if err != nil {
		return nil, err
	}
	doc, err := segment(document)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(devices)
	if err != nil {
		if os.IsNotExist(err) {
			return []models.Progress{}, nil
		}
		return nil, fmt.Errorf("list devices: %w", err)
	}

	records := make([]models.Progress, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(devices, e.Name(), doc)
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				r.log.Error("skipping unreadable progress record",
					zap.String("device", e.Name()), zap.Error(err))
			}
			continue
		}

		var p models.Progress
		if err := json.Unmarshal(data, &p); err != nil {
			r.log.Warn("skipping corrupt progress record",
				zap.String("device", e.Name()), zap.Error(err))
			continue
		}
		if err := p.Validate(); err != nil {
			r.log.Warn("skipping invalid progress record",
				zap.String("device", e.Name()), zap.Error(err))
			continue
		}
		records = append(records, p)
	}
	return records, nil
}

// Stats counts identities and stored records.
func (r *FileProgressRepository) Stats(_ context.Context) (models.Stats, error) {
	var st models.Stats
	var roots []string

	if r.layout.anonymous {
		st.Users = 1
		roots = []string{filepath.Join(r.layout.root, models.AnonymousIdentity, devicesDir)}
	} else {
		entries, err := os.ReadDir(filepath.Join(r.layout.root, usersDir))
		if err != nil && !os.IsNotExist(err) {
			return st, fmt.Errorf("list users: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() {
				st.Users++
				roots = append(roots, filepath.Join(r.layout.root, usersDir, e.Name(), devicesDir))
			}
		}
	}

	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			if d.Type().IsRegular() && !strings.HasPrefix(d.Name(), ".write-") {
				st.Records++
			}
			return nil
		})
		if err != nil {
			return st, fmt.Errorf("walk devices: %w", err)
		}
	}
	return st, nil
}
