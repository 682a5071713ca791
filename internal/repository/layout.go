// Package repository provides storage backends for identities and device
// progress records.
//
// Every backend exposes the same two-level namespace: an identity holds a
// credential and a set of devices, and each device holds one record per
// document. The filesystem backend maps it onto directories, the SQL
// backends onto a users and a progress table.
package repository

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/atinyakov/kosync/internal/common"
	"github.com/atinyakov/kosync/internal/models"
)

const (
	usersDir     = "users"
	devicesDir   = "devices"
	passwdFile   = "passwd"
	tempPattern  = ".write-*"
	dirPerm      = 0o755
	recordPerm   = 0o644
	passwordPerm = 0o600
)

// Layout resolves identities, devices and documents to paths under a data root.
//
//	<root>/users/<username>/passwd
//	<root>/users/<username>/devices/<device_id>/<document>
//
// In anonymous mode every identity resolves to <root>/noauth.
type Layout struct {
	root      string
	anonymous bool
}

// InitFilesystem creates the data root and the namespace the mode needs and
// returns its Layout.
func InitFilesystem(root string, anonymous bool) (Layout, error) {
	l := Layout{root: root, anonymous: anonymous}

	dir := filepath.Join(root, usersDir)
	if anonymous {
		dir = filepath.Join(root, models.AnonymousIdentity, devicesDir)
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return Layout{}, fmt.Errorf("create data directory: %w", err)
	}
	return l, nil
}

// Root returns the data root.
func (l Layout) Root() string { return l.root }

// segment turns a caller supplied key into a single safe path element.
// Keys made of unreserved characters map to themselves.
func segment(key string) (string, error) {
	if !models.ValidKey(key) {
		return "", fmt.Errorf("%w: %q", common.ErrInvalidKey, key)
	}
	return url.PathEscape(key), nil
}

func (l Layout) identityDir(username string) (string, error) {
	if l.anonymous {
		return filepath.Join(l.root, models.AnonymousIdentity), nil
	}
	name, err := segment(username)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.root, usersDir, name), nil
}

func (l Layout) devicesDir(username string) (string, error) {
	dir, err := l.identityDir(username)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, devicesDir), nil
}

func (l Layout) passwdFile(username string) (string, error) {
	dir, err := l.identityDir(username)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, passwdFile), nil
}

func (l Layout) recordFile(username, deviceID, document string) (string, error) {
	devices, err := l.devicesDir(username)
	if err != nil {
		return "", err
	}
	device, err := segment(deviceID)
	if err != nil {
		return "", err
	}
	doc, err := segment(document)
	if err != nil {
		return "", err
	}
	return filepath.Join(devices, device, doc), nil
}

// writeTemp writes data to a fresh temporary file in dir and returns its path.
// Callers move it into place, so readers never see a partial file.
func writeTemp(dir string, data []byte, perm os.FileMode) (string, error) {
	f, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return "", err
	}
	name := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(name)
		return "", err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(name)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", err
	}
	if err := os.Chmod(name, perm); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}

func isDir(path string) (bool, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return fi.IsDir(), nil
}

func isFile(path string) (bool, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return fi.Mode().IsRegular(), nil
}
