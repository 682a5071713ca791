package middleware

import (
	"net/http"

	"github.com/atinyakov/kosync/internal/server/render"
)

// AcceptKOReader is the media type every protocol request must accept.
const AcceptKOReader = "application/vnd.koreader.v1+json"

// RequireAccept rejects requests that carry no Accept header equal to
// AcceptKOReader with 412 and code 101. The comparison is exact.
func RequireAccept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, v := range r.Header.Values("Accept") {
			if v == AcceptKOReader {
				next.ServeHTTP(w, r)
				return
			}
		}
		render.Error(w, http.StatusPreconditionFailed, render.CodeInvalidAccept, render.MsgInvalidAccept)
	})
}
