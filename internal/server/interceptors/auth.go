package interceptors

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

const bearerPrefix = "bearer "

// ErrMissingBearer is passed to the error writer when the request has no usable Bearer token.
var ErrMissingBearer = errors.New("missing or invalid authorization")

// Authenticator validates an access token and returns its user id.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (string, error)
}

// ErrorWriter renders an authentication failure.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Bearer returns HTTP middleware that validates the Bearer (access) token from the Authorization
// header and sets user_id in the request context. Failures go to onError and stop the chain.
func Bearer(auth Authenticator, onError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearer(r.Header.Get("Authorization"))
			if token == "" {
				onError(w, r, ErrMissingBearer)
				return
			}
			userID, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				onError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// extractBearer returns the Bearer token from an Authorization header value, or "" if missing or malformed.
func extractBearer(header string) string {
	v := strings.TrimSpace(header)
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
