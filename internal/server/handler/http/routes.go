package http

import (
	"net/http"

	"github.com/atinyakov/kosync/internal/metrics"
	"github.com/atinyakov/kosync/internal/middleware"
	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
)

// NewRouter constructs and returns an HTTP handler that serves
// the sync protocol.
//
// Routes:
//
//	POST /users/create              → authHandler.Create
//	GET  /users/auth                → authHandler.Authorize (HeaderAuth)
//	PUT  /syncs/progress            → syncHandler.Push (HeaderAuth)
//	GET  /syncs/progress/{document} → syncHandler.Pull (HeaderAuth)
//	GET  /healthcheck               → Health
//
// Middleware chain (applied in order):
//  1. WithRequestLogging(logger) logs every request, rejected ones included
//  2. Instrument(m) records per-route metrics; m may be nil
//  3. RequireAccept rejects requests without the protocol media type,
//     unmatched routes included
//
// Unmatched routes and methods answer 404 with the protocol error body.
func NewRouter(
	authHandler *AuthHandler,
	syncHandler *SyncHandler,
	logger *zap.Logger,
	m *metrics.Metrics,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.WithRequestLogging(logger))
	r.Use(middleware.Instrument(m))
	r.Use(middleware.RequireAccept)

	r.NotFound(NotFound)
	r.MethodNotAllowed(NotFound)

	r.Get("/healthcheck", Health)
	r.Post("/users/create", authHandler.Create)

	// Protected group: requires the credential header pair
	r.Group(func(r chi.Router) {
		r.Use(middleware.HeaderAuth(authHandler.AuthService))
		r.Get("/users/auth", authHandler.Authorize)
		r.Put("/syncs/progress", syncHandler.Push)
		r.Get("/syncs/progress/{document}", syncHandler.Pull)
	})

	return r
}
