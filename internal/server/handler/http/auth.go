// Package http provides the HTTP handlers and router of the sync protocol.
package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/atinyakov/kosync/internal/common"
	"github.com/atinyakov/kosync/internal/metrics"
	"github.com/atinyakov/kosync/internal/middleware"
	"github.com/atinyakov/kosync/internal/models"
	"github.com/atinyakov/kosync/internal/server/render"
	"go.uber.org/zap"
)

// AuthService defines the interface for credential operations
// required by the HTTP handlers and the authentication middleware.
type AuthService interface {
	middleware.Authenticator
	// RegisterUser creates an identity. Returns common.ErrAlreadyExists if
	// the username is taken and common.ErrInvalidKey if it cannot be stored.
	RegisterUser(ctx context.Context, username, password string) error
}

// AuthHandler handles HTTP requests for user registration and credential checks.
type AuthHandler struct {
	// AuthService performs the underlying credential operations.
	AuthService AuthService
	Log         *zap.Logger
	Metrics     *metrics.Metrics
}

// Create handles POST /users/create.
// It expects a JSON body with "username" and "password" and answers 201 with
// the username, 402 if it is taken, or 400 if the body cannot be used.
func (h *AuthHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateUserRequest
	if err := decodeBody(w, r, &req); err != nil {
		badJSON(w)
		return
	}

	err := h.AuthService.RegisterUser(r.Context(), *req.Username, *req.Password)
	switch {
	case err == nil:
	case errors.Is(err, common.ErrAlreadyExists):
		render.Error(w, http.StatusPaymentRequired, render.CodeUserExists, render.MsgUserExists)
		return
	case errors.Is(err, common.ErrInvalidKey):
		badJSON(w)
		return
	default:
		internalError(w, h.Log, r, err)
		return
	}

	h.Metrics.Registered()
	render.JSON(w, http.StatusCreated, models.CreateUserResponse{Username: *req.Username})
}

// Authorize handles GET /users/auth. The credential check itself is done by
// middleware.HeaderAuth; reaching this handler means it passed.
func (h *AuthHandler) Authorize(w http.ResponseWriter, _ *http.Request) {
	render.JSON(w, http.StatusOK, models.AuthResponse{Authorized: "OK"})
}

// Health handles GET /healthcheck.
func Health(w http.ResponseWriter, _ *http.Request) {
	render.JSON(w, http.StatusOK, models.HealthResponse{State: "OK"})
}

// NotFound answers every unmatched route or method.
func NotFound(w http.ResponseWriter, _ *http.Request) {
	render.Error(w, http.StatusNotFound, render.CodeNotFound, render.MsgNotFound)
}
