// Package correlation implements C1: minting, propagating and restoring the
// request correlation id described in spec.md §4.1 across HTTP hops and
// message publication.
package correlation

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Header is the HTTP header carrying the correlation id on requests and
// responses.
const Header = "X-Correlation-ID"

// MaxLen is the wire-level cap on correlation id length (spec.md §6).
const MaxLen = 64

type contextKey struct{}

// New mints a new unguessable 128-bit id formatted as 32 lowercase hex
// characters, matching spec.md §4.1.
func New() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// WithContext returns a copy of ctx carrying id.
func WithContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the correlation id stored in ctx, or "" if absent.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

// Middleware reads Header from the inbound request, minting a fresh id when
// missing or blank, pushes it into the request context, echoes it back on
// the response header, and forwards it on the outbound request so downstream
// proxying inherits it verbatim.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(Header))
		if id == "" || len(id) > MaxLen {
			id = New()
		}

		r.Header.Set(Header, id)
		ctx := WithContext(r.Context(), id)
		r = r.WithContext(ctx)

		w.Header().Set(Header, id)
		next.ServeHTTP(w, r)
	})
}
