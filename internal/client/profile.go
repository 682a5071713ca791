package client

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Profile is the client's persisted state: where to sync and as whom.
type Profile struct {
	Server   string `yaml:"server"`
	Username string `yaml:"username,omitempty"`
	// Key is the derived x-auth-key, never the password itself.
	Key      string `yaml:"key,omitempty"`
	Device   string `yaml:"device,omitempty"`
	DeviceID string `yaml:"device_id,omitempty"`
	CAFile   string `yaml:"ca_file,omitempty"`
}

// DefaultServer is used when a profile names no server.
const DefaultServer = "http://127.0.0.1:8778"

// DefaultProfilePath returns <user config dir>/kosync/profile.yaml.
func DefaultProfilePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "kosync-profile.yaml"
	}
	return filepath.Join(dir, "kosync", "profile.yaml")
}

// LoadProfile reads path. A missing file yields an empty profile with the
// default server.
func LoadProfile(path string) (*Profile, error) {
	p := &Profile{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, p); err != nil {
			return nil, fmt.Errorf("parse profile %s: %w", path, err)
		}
	}
	if p.Server == "" {
		p.Server = DefaultServer
	}
	return p, nil
}

// Save writes the profile to path, readable by the owner only.
func (p *Profile) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".profile-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// EnsureDevice fills in a device id and name if missing and reports whether
// anything changed.
func (p *Profile) EnsureDevice() bool {
	changed := false
	if p.DeviceID == "" {
		p.DeviceID = uuid.NewString()
		changed = true
	}
	if p.Device == "" {
		name, err := os.Hostname()
		if err != nil || name == "" {
			name = "kosync-cli"
		}
		p.Device = name
		changed = true
	}
	return changed
}

// LoggedIn reports whether credentials are stored.
func (p *Profile) LoggedIn() bool {
	return p.Username != "" && p.Key != ""
}
