// Package common defines the sentinel errors shared by the storage, service
// and HTTP layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Storage-level outcomes.
	ErrAlreadyExists = errors.New("already exists")
	ErrNotFound      = errors.New("not found")

	// Request-level outcomes.
	ErrUnauthorized     = errors.New("unauthorized")
	ErrMalformedRequest = errors.New("malformed request")

	// ErrInvalidKey is returned when a username, device id or document id
	// cannot be used as a storage key.
	ErrInvalidKey = errors.New("invalid storage key")
)
