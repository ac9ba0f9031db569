package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"expenses-tracker/backend/internal/ratelimit"
	"expenses-tracker/backend/internal/server/interceptors"
)

// NewRouter mounts the auth and user routes. ready, if non-nil, answers /readyz. limiter, if
// non-nil, throttles the public auth endpoints per client IP.
func NewRouter(h *AuthHandler, log *slog.Logger, ready http.Handler, limiter *ratelimit.Limiter) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(interceptors.RequestLogger(log))
	r.Use(chiMiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	if ready != nil {
		r.Method(http.MethodGet, "/readyz", ready)
	}

	bearer := interceptors.Bearer(h.svc, h.writeError)
	limit := func(scope string) func(http.Handler) http.Handler {
		if limiter == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return limiter.Middleware(scope)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(limit(ratelimit.ScopeRegister)).Post("/register", h.Register)
			r.With(limit(ratelimit.ScopeLogin)).Post("/login", h.Login)
			r.With(limit(ratelimit.ScopeRefresh)).Post("/refresh", h.Refresh)
			r.With(limit(ratelimit.ScopeLogout)).Post("/logout", h.Logout)
			r.Put("/verify-email", h.VerifyEmail)
			r.With(limit(ratelimit.ScopeRequestReset)).Post("/request-reset-password", h.RequestPasswordReset)
			r.Put("/reset-password", h.ResetPassword)

			r.With(limit(ratelimit.ScopeRequestVerifyEmail), bearer).Post("/request-verify-email", h.RequestVerifyEmail)
		})

		r.Route("/users/me", func(r chi.Router) {
			r.Use(bearer)
			r.Get("/", h.Me)
			r.Put("/", h.UpdateMe)
			r.Delete("/", h.DeleteMe)
			r.Put("/avatar", h.SetAvatar)
		})
	})

	return r
}
