package httpapi

import (
	"net/http"
	"time"

	"github.com/dascribs/authcore/internal/common"
	"github.com/dascribs/authcore/internal/server/rbac"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router returns the full route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", common.SessionTokenHeaderName},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/auth", func(r chi.Router) {
		// Unauthenticated entry points, limited per client address.
		r.Group(func(r chi.Router) {
			if s.cfg.PublicRatePerMinute > 0 {
				r.Use(httprate.LimitByIP(s.cfg.PublicRatePerMinute, time.Minute))
			}
			r.Post("/register", s.handleRegister)
			r.Post("/login", s.handleLogin)
			r.Post("/logout", s.handleLogout)
			r.Post("/password/forgot", s.handleForgotPassword)
			r.Get("/password/validate", s.handleValidateResetToken)
			r.Post("/password/reset", s.handleResetPassword)
			r.Post("/email/verify", s.handleVerifyEmail)
			r.Post("/email/resend", s.handleResendVerification)
			r.Post("/email/change/confirm", s.handleConfirmEmailChange)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)
			r.Post("/logout-all", s.handleLogoutAll)
			r.Get("/me", s.handleMe)
			r.Get("/sessions", s.handleListSessions)
			r.Delete("/sessions/{id}", s.handleTerminateSession)
			r.Post("/password/change", s.handleChangePassword)
			r.Post("/email/change", s.handleInitiateEmailChange)
			r.Get("/email/cooldown", s.handleResendCooldown)
		})
	})

	r.With(s.authenticate, requirePermission(rbac.RoleRead)).Get("/api/roles", s.handleRoles)

	r.Route("/api/principals/{id}", func(r chi.Router) {
		r.Use(s.authenticate)
		r.With(requirePermission(rbac.UserWrite)).Post("/activate", s.handleSetActive(true))
		r.With(requirePermission(rbac.UserDelete)).Post("/deactivate", s.handleSetActive(false))
	})

	return r
}
