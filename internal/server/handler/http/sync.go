package http

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/atinyakov/kosync/internal/common"
	"github.com/atinyakov/kosync/internal/metrics"
	"github.com/atinyakov/kosync/internal/middleware"
	"github.com/atinyakov/kosync/internal/models"
	"github.com/atinyakov/kosync/internal/server/render"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// SyncService defines the interface for progress operations
// required by the SyncHandler.
type SyncService interface {
	// Put stores the record for its device and document and returns it with
	// the server-assigned timestamp.
	Put(ctx context.Context, identity string, in models.Progress) (models.Progress, error)
	// Get returns the winning record for document, or nil if none exists.
	Get(ctx context.Context, identity, document string) (*models.Progress, error)
}

// SyncHandler handles HTTP requests for reading progress.
type SyncHandler struct {
	SyncService SyncService
	Log         *zap.Logger
	Metrics     *metrics.Metrics
}

// Push handles PUT /syncs/progress.
// It decodes a record body, stores it under the authenticated identity and
// echoes the server timestamp and the document id.
func (h *SyncHandler) Push(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentityFromContext(r.Context())

	var req models.ProgressPutRequest
	if err := decodeBody(w, r, &req); err != nil {
		badJSON(w)
		return
	}

	stored, err := h.SyncService.Put(r.Context(), identity, req.Record())
	switch {
	case err == nil:
	case errors.Is(err, common.ErrInvalidKey):
		badJSON(w)
		return
	default:
		internalError(w, h.Log, r, err)
		return
	}

	h.Metrics.Pushed()
	render.JSON(w, http.StatusOK, models.ProgressPutResponse{
		Timestamp: stored.Timestamp,
		Document:  stored.Document,
	})
}

// Pull handles GET /syncs/progress/{document}.
// It answers with the most recent record of any device, or {} if no device
// has pushed progress for the document.
func (h *SyncHandler) Pull(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentityFromContext(r.Context())
	document, err := documentParam(r)
	if err != nil {
		badJSON(w)
		return
	}

	rec, err := h.SyncService.Get(r.Context(), identity, document)
	if err != nil {
		internalError(w, h.Log, r, err)
		return
	}
	if rec == nil {
		render.JSON(w, http.StatusOK, nil)
		return
	}
	render.JSON(w, http.StatusOK, rec)
}

// documentParam returns the decoded {document} segment. chi matches on
// r.URL.RawPath when the request carried escapes such as %2F, and the
// parameter is then still escaped.
func documentParam(r *http.Request) (string, error) {
	document := chi.URLParam(r, "document")
	if r.URL.RawPath == "" {
		return document, nil
	}
	return url.PathUnescape(document)
}
