// Package httpapi exposes the auth core over HTTP. It owns request decoding,
// the bearer/session authentication middleware and the mapping of service
// outcomes to status codes; every decision is made by the services package.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dascribs/authcore/internal/logging"
	"github.com/dascribs/authcore/internal/server/config"
	"github.com/dascribs/authcore/internal/server/rbac"
	"github.com/dascribs/authcore/internal/server/services"
	"github.com/prometheus/client_golang/prometheus"
)

const shutdownTimeout = 10 * time.Second

// Services bundles the collaborators the handlers call into.
type Services struct {
	Auth         *services.AuthService
	Sessions     *services.SessionService
	Verification *services.EmailVerificationFlow
	Reset        *services.PasswordResetFlow
	Roles        *rbac.Registry
}

type Server struct {
	address  string
	cfg      *config.Config
	svc      Services
	gatherer prometheus.Gatherer
	logger   logging.Logger
}

// NewServer builds the HTTP server. A nil gatherer disables /metrics.
func NewServer(cfg *config.Config, svc Services, gatherer prometheus.Gatherer, l logging.Logger) *Server {
	if l == nil {
		l = logging.Nop()
	}
	return &Server{
		address:  cfg.HTTPAddr,
		cfg:      cfg,
		svc:      svc,
		gatherer: gatherer,
		logger:   l.With("module", "http_server"),
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(shutdownCtx, "http shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
