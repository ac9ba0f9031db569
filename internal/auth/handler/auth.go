// Package handler is the HTTP boundary of the auth service: JSON requests, session cookies and
// error-to-status mapping.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"expenses-tracker/backend/internal/auth/service"
	"expenses-tracker/backend/internal/server/interceptors"
)

const maxBodyBytes = 1 << 20

// Service is the subset of *service.AuthService used over HTTP.
type Service interface {
	interceptors.Authenticator
	Register(ctx context.Context, username, email, password string) (*service.TokenPair, error)
	Login(ctx context.Context, username, password string) (*service.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*service.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	RequestVerifyEmail(ctx context.Context, userID string) error
	VerifyEmail(ctx context.Context, token string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	GetUser(ctx context.Context, userID string) (*service.UserView, error)
	DeleteAccount(ctx context.Context, userID string) error
	SetAvatar(ctx context.Context, userID, url string) (*service.UserView, error)
	UpdateUser(ctx context.Context, userID string, upd service.UserUpdate) (*service.UserView, error)
}

// AuthHandler serves /api/auth and /api/users/me.
type AuthHandler struct {
	svc          Service
	log          *slog.Logger
	cookieSecure bool
}

// NewAuthHandler returns an AuthHandler. cookieSecure sets the Secure flag on session cookies.
func NewAuthHandler(svc Service, log *slog.Logger, cookieSecure bool) *AuthHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AuthHandler{svc: svc, log: log, cookieSecure: cookieSecure}
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type PasswordResetRequest struct {
	Email string `json:"email"`
}

type NewPasswordRequest struct {
	NewPassword string `json:"new_password"`
}

// UpdateUserRequest changes the fields that are present.
type UpdateUserRequest struct {
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

type AvatarRequest struct {
	AvatarURL string `json:"avatar_url"`
}

// TokenResponse is returned by register, login and refresh. The refresh token travels only in its cookie.
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	CSRFToken   string    `json:"csrf_token"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decode(w, r, &req) {
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeDetail(w, http.StatusBadRequest, "username and password are required")
		return
	}
	if req.Email != "" {
		if _, err := mail.ParseAddress(req.Email); err != nil {
			writeDetail(w, http.StatusBadRequest, "invalid email address")
			return
		}
	}

	pair, err := h.svc.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeTokens(w, http.StatusCreated, pair)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decode(w, r, &req) {
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeDetail(w, http.StatusBadRequest, "username and password are required")
		return
	}

	pair, err := h.svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeTokens(w, http.StatusOK, pair)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	token, ok := sessionRefreshToken(w, r)
	if !ok {
		return
	}
	pair, err := h.svc.Refresh(r.Context(), token)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeTokens(w, http.StatusOK, pair)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := sessionRefreshToken(w, r)
	if !ok {
		return
	}
	if err := h.svc.Logout(r.Context(), token); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.clearSessionCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) RequestVerifyEmail(w http.ResponseWriter, r *http.Request) {
	userID, _ := interceptors.GetUserID(r.Context())
	if err := h.svc.RequestVerifyEmail(r.Context(), userID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("email_token")
	if token == "" {
		writeDetail(w, http.StatusBadRequest, "email_token is required")
		return
	}
	if err := h.svc.VerifyEmail(r.Context(), token); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetRequest
	if !decode(w, r, &req) {
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid email address")
		return
	}
	if err := h.svc.RequestPasswordReset(r.Context(), req.Email); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("password_token")
	if token == "" {
		writeDetail(w, http.StatusBadRequest, "password_token is required")
		return
	}
	var req NewPasswordRequest
	if !decode(w, r, &req) {
		return
	}
	if req.NewPassword == "" {
		writeDetail(w, http.StatusBadRequest, "new_password is required")
		return
	}
	if err := h.svc.ResetPassword(r.Context(), token, req.NewPassword); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, _ := interceptors.GetUserID(r.Context())
	view, err := h.svc.GetUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *AuthHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := interceptors.GetUserID(r.Context())
	if err := h.svc.DeleteAccount(r.Context(), userID); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.clearSessionCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

// UpdateMe changes the current user's email and/or password. A password change ends the session,
// so its cookies are cleared.
func (h *AuthHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := interceptors.GetUserID(r.Context())
	var req UpdateUserRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Email == nil && req.Password == nil {
		writeDetail(w, http.StatusBadRequest, "email or password is required")
		return
	}
	if req.Email != nil {
		if _, err := mail.ParseAddress(*req.Email); err != nil {
			writeDetail(w, http.StatusBadRequest, "invalid email address")
			return
		}
	}
	if req.Password != nil && *req.Password == "" {
		writeDetail(w, http.StatusBadRequest, "password must not be empty")
		return
	}

	view, err := h.svc.UpdateUser(r.Context(), userID, service.UserUpdate{Email: req.Email, Password: req.Password})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Password != nil {
		h.clearSessionCookies(w)
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *AuthHandler) SetAvatar(w http.ResponseWriter, r *http.Request) {
	userID, _ := interceptors.GetUserID(r.Context())
	var req AvatarRequest
	if !decode(w, r, &req) {
		return
	}
	view, err := h.svc.SetAvatar(r.Context(), userID, req.AvatarURL)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *AuthHandler) writeTokens(w http.ResponseWriter, code int, pair *service.TokenPair) {
	csrf := h.setSessionCookies(w, pair.RefreshToken, pair.RefreshExpiresAt)
	writeJSON(w, code, TokenResponse{
		AccessToken: pair.AccessToken,
		TokenType:   "bearer",
		ExpiresAt:   pair.AccessExpiresAt,
		CSRFToken:   csrf,
	})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
