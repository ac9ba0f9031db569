package handler

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	refreshCookie = "refresh_token"
	csrfCookie    = "csrf_token"
	csrfHeader    = "X-CSRF-Token"
	cookiePath    = "/api/auth"
)

// setSessionCookies stores the refresh token in an HttpOnly cookie and a fresh CSRF token in a
// script-readable one. The CSRF value is returned for the response body.
func (h *AuthHandler) setSessionCookies(w http.ResponseWriter, refreshToken string, expires time.Time) string {
	csrf := uuid.NewString()
	maxAge := int(time.Until(expires).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    refreshToken,
		Path:     cookiePath,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookie,
		Value:    csrf,
		Path:     cookiePath,
		MaxAge:   maxAge,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
	return csrf
}

func (h *AuthHandler) clearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{refreshCookie, csrfCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     cookiePath,
			MaxAge:   -1,
			HttpOnly: name == refreshCookie,
			Secure:   h.cookieSecure,
			SameSite: http.SameSiteStrictMode,
		})
	}
}

// sessionRefreshToken runs the double-submit CSRF check and returns the refresh cookie.
// It writes the failure response itself and returns ok=false.
func sessionRefreshToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	header := r.Header.Get(csrfHeader)
	cookie, err := r.Cookie(csrfCookie)
	if header == "" || err != nil || cookie.Value == "" {
		writeDetail(w, http.StatusForbidden, "Missing CSRF tokens")
		return "", false
	}
	if subtle.ConstantTimeCompare([]byte(header), []byte(cookie.Value)) != 1 {
		writeDetail(w, http.StatusForbidden, "CSRF validation failed")
		return "", false
	}
	refresh, err := r.Cookie(refreshCookie)
	if err != nil || refresh.Value == "" {
		writeDetail(w, http.StatusUnauthorized, "Missing refresh token")
		return "", false
	}
	return refresh.Value, true
}
