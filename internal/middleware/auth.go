// Package middleware provides the HTTP middlewares of the sync protocol:
// the Accept header gate, header-pair authentication, request logging and
// instrumentation.
package middleware

import (
	"context"
	"net/http"

	"github.com/atinyakov/kosync/internal/server/render"
)

type ctxKey string

const (
	userKey      ctxKey = "user"
	requestIDKey ctxKey = "request_id"
)

// Credential headers sent by e-reader clients.
const (
	HeaderAuthUser = "X-Auth-User"
	HeaderAuthKey  = "X-Auth-Key"
)

// Authenticator checks a credential pair and maps the presented username to
// the identity whose data the request operates on.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) bool
	Identity(username string) string
}

// HeaderAuth is a middleware that enforces the x-auth-user / x-auth-key
// header pair.
//
// Both headers must be present, even in anonymous mode where their values are
// ignored by the Authenticator. On failure it answers 401 with the protocol
// error body. On success the identity is stored in the request context and
// can be read downstream with GetIdentityFromContext.
func HeaderAuth(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			users := r.Header.Values(HeaderAuthUser)
			keys := r.Header.Values(HeaderAuthKey)
			if len(users) == 0 || len(keys) == 0 {
				render.Error(w, http.StatusUnauthorized, render.CodeUnauthorized, render.MsgUnauthorized)
				return
			}
			if !auth.Authenticate(r.Context(), users[0], keys[0]) {
				render.Error(w, http.StatusUnauthorized, render.CodeUnauthorized, render.MsgUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), userKey, auth.Identity(users[0]))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetIdentityFromContext extracts the authenticated identity from the request
// context. Returns an empty string if not found.
func GetIdentityFromContext(ctx context.Context) string {
	val := ctx.Value(userKey)
	if s, ok := val.(string); ok {
		return s
	}
	return ""
}
