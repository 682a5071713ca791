package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CreateUserRequest is the body of POST /users/create.
// Pointer fields distinguish a missing field from an empty one.
type CreateUserRequest struct {
	Password *string `json:"password"`
	Username *string `json:"username"`
}

// Validate checks that every field is present.
func (r CreateUserRequest) Validate() error {
	if r.Username == nil || r.Password == nil {
		return fmt.Errorf("missing field in user body")
	}
	return nil
}

// CreateUserResponse is returned after a successful registration.
type CreateUserResponse struct {
	Username string `json:"username"`
}

// AuthResponse is returned by GET /users/auth.
type AuthResponse struct {
	Authorized string `json:"authorized"`
}

// ProgressPutRequest is the body of PUT /syncs/progress.
type ProgressPutRequest struct {
	DeviceID   *string      `json:"device_id"`
	Percentage *json.Number `json:"percentage"`
	Document   *string      `json:"document"`
	Progress   *string      `json:"progress"`
	Device     *string      `json:"device"`
}

// UnmarshalJSON decodes the body like the default decoder but only accepts a
// bare JSON number for percentage. A quoted number is rejected.
func (r *ProgressPutRequest) UnmarshalJSON(data []byte) error {
	type plain ProgressPutRequest
	var aux struct {
		plain
		Percentage json.RawMessage `json:"percentage"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = ProgressPutRequest(aux.plain)
	r.Percentage = nil

	raw := bytes.TrimSpace(aux.Percentage)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if c := raw[0]; c != '-' && (c < '0' || c > '9') {
		return fmt.Errorf("percentage must be a JSON number, got %s", raw)
	}
	n := json.Number(raw)
	r.Percentage = &n
	return nil
}

// Validate checks that every field is present and percentage is numeric.
func (r ProgressPutRequest) Validate() error {
	if r.DeviceID == nil || r.Percentage == nil || r.Document == nil || r.Progress == nil || r.Device == nil {
		return fmt.Errorf("missing field in progress body")
	}
	if _, err := r.Percentage.Float64(); err != nil {
		return fmt.Errorf("percentage: %w", err)
	}
	return nil
}

// Record converts a validated request into a progress record without a timestamp.
func (r ProgressPutRequest) Record() Progress {
	return Progress{
		DeviceID:   *r.DeviceID,
		Percentage: *r.Percentage,
		Document:   *r.Document,
		Progress:   *r.Progress,
		Device:     *r.Device,
	}
}

// ProgressPutResponse echoes the server-assigned timestamp.
type ProgressPutResponse struct {
	Timestamp int64  `json:"timestamp"`
	Document  string `json:"document"`
}

// HealthResponse is returned by GET /healthcheck.
type HealthResponse struct {
	State string `json:"state"`
}

// ErrorResponse is the body of every protocol error.
type ErrorResponse struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}
