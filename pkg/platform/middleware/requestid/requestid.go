// Package requestid tags every request with an identifier that is echoed back
// in the response and attached to log lines.
package requestid

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"

	"pawnval/pkg/requestcontext"
)

// Header carries the request ID in both directions.
const Header = "X-Request-ID"

var inboundRe = regexp.MustCompile(`^[A-Za-z0-9._-]{8,128}$`)

// Middleware reuses a well-formed inbound request ID or generates a new one.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(Header)
		if !inboundRe.MatchString(id) {
			id = uuid.NewString()
		}
		w.Header().Set(Header, id)
		next.ServeHTTP(w, r.WithContext(requestcontext.WithRequestID(r.Context(), id)))
	})
}
