// Package render writes the JSON bodies of the sync protocol.
package render

import (
	"encoding/json"
	"net/http"

	"github.com/atinyakov/kosync/internal/models"
)

// ContentType is set on every protocol response.
const ContentType = "application/json"

// Protocol error codes.
const (
	CodeInvalidAccept = 101
	CodeBadJSON       = 103
	CodeNotFound      = 404
	CodeInternal      = 2000
	CodeUnauthorized  = 2001
	CodeUserExists    = 2002
)

// Protocol error messages, paired with the codes above.
const (
	MsgInvalidAccept = "Invalid Accept header format."
	MsgBadJSON       = "Could not parse JSON in body."
	MsgNotFound      = "404 not found."
	MsgInternal      = "Unknown server error."
	MsgUnauthorized  = "Unauthorized"
	MsgUserExists    = "Username is already registered."
)

// JSON writes v as a compact JSON document with the given status.
// A nil v is written as an empty object.
func JSON(w http.ResponseWriter, status int, v any) {
	body := []byte("{}")
	if v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			status = http.StatusInternalServerError
			b, _ = json.Marshal(models.ErrorResponse{Message: MsgInternal, Code: CodeInternal})
		}
		body = b
	}
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Error writes a protocol error body.
func Error(w http.ResponseWriter, status, code int, msg string) {
	JSON(w, status, models.ErrorResponse{Message: msg, Code: code})
}
