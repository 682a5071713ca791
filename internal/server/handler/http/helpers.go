package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/atinyakov/kosync/internal/common"
	"github.com/atinyakov/kosync/internal/server/render"
	"go.uber.org/zap"
)

// maxBodyBytes bounds request bodies. Protocol bodies are a few hundred bytes.
const maxBodyBytes = 64 << 10

type validator interface {
	Validate() error
}

// decodeBody reads the whole body and decodes it into dst. Any read, syntax
// or validation failure is reported as common.ErrMalformedRequest.
func decodeBody(w http.ResponseWriter, r *http.Request, dst validator) error {
	if r.Body == nil {
		return fmt.Errorf("%w: empty body", common.ErrMalformedRequest)
	}
	defer func() { _ = r.Body.Close() }()

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrMalformedRequest, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", common.ErrMalformedRequest, err)
	}
	if err := dst.Validate(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrMalformedRequest, err)
	}
	return nil
}

func badJSON(w http.ResponseWriter) {
	render.Error(w, http.StatusBadRequest, render.CodeBadJSON, render.MsgBadJSON)
}

// internalError hides err from the client and logs it.
func internalError(w http.ResponseWriter, log *zap.Logger, r *http.Request, err error) {
	if log != nil {
		log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	render.Error(w, http.StatusInternalServerError, render.CodeInternal, render.MsgInternal)
}
