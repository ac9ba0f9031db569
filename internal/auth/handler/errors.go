package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"expenses-tracker/backend/internal/auth/service"
	"expenses-tracker/backend/internal/email"
	"expenses-tracker/backend/internal/security"
	"expenses-tracker/backend/internal/server/interceptors"
)

type errorResponse struct {
	Detail string `json:"detail"`
}

// statusFor maps a service error to its HTTP status. Unknown errors are 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrUserAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, security.ErrTokenExpired),
		errors.Is(err, security.ErrInvalidToken),
		errors.Is(err, interceptors.ErrMissingBearer):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrEmailAlreadyVerified):
		return http.StatusBadRequest
	case errors.Is(err, email.ErrSending):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (h *AuthHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	detail := err.Error()
	switch code {
	case http.StatusInternalServerError:
		h.log.Error("request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		detail = "internal server error"
	case http.StatusBadGateway:
		detail = "email could not be sent"
	case http.StatusUnauthorized:
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	writeDetail(w, code, detail)
}

func writeDetail(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, errorResponse{Detail: detail})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
