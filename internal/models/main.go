// Package models defines the core data structures for identities and
// reading progress, plus the request and response bodies of the sync protocol.
package models

import (
	"encoding/json"
	"fmt"
)

// AnonymousIdentity is the single identity every caller is mapped to when the
// server runs without authentication.
const AnonymousIdentity = "noauth"

// User represents a registered identity with its stored credential.
type User struct {
	// Username is the login name, also used as a storage key.
	Username string
	// PasswordHash is the encoded one-way hash of the password.
	PasswordHash string
}

// Progress is one device's latest reported reading position for one document.
// Field order matches the persisted and wire representation.
type Progress struct {
	// DeviceID identifies the reporting device and keys its namespace.
	DeviceID string `json:"device_id"`
	// Percentage is stored and returned verbatim.
	Percentage json.Number `json:"percentage"`
	// Document is the opaque document identifier.
	Document string `json:"document"`
	// Progress is the reader's opaque cursor.
	Progress string `json:"progress"`
	// Device is a human readable device name.
	Device string `json:"device"`
	// Timestamp is assigned by the server at write time, seconds since epoch.
	Timestamp int64 `json:"timestamp"`
}

// Validate reports whether a decoded record is usable. Records that fail are
// treated as corrupt by readers.
func (p Progress) Validate() error {
	if p.DeviceID == "" || p.Document == "" {
		return fmt.Errorf("progress record without key")
	}
	if _, err := p.Percentage.Float64(); err != nil {
		return fmt.Errorf("progress percentage %q: %w", p.Percentage, err)
	}
	if p.Timestamp < 0 {
		return fmt.Errorf("negative progress timestamp %d", p.Timestamp)
	}
	return nil
}

// Stats summarises the contents of a store.
type Stats struct {
	Users   int64
	Records int64
}

// ValidKey reports whether s may be used as a username, device id or document
// id. Backends may still encode the key before using it.
func ValidKey(s string) bool {
	return s != "" && s != "." && s != ".."
}
