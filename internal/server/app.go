// Package server wires the authentication core together. It opens storage,
// applies migrations, selects the message dispatcher and login throttle,
// builds the services and runs the HTTP server plus the expiry sweeper until
// the process is signalled.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dascribs/authcore/internal/logging"
	"github.com/dascribs/authcore/internal/server/auth"
	"github.com/dascribs/authcore/internal/server/config"
	"github.com/dascribs/authcore/internal/server/httpapi"
	"github.com/dascribs/authcore/internal/server/metrics"
	"github.com/dascribs/authcore/internal/server/notify"
	"github.com/dascribs/authcore/internal/server/password"
	"github.com/dascribs/authcore/internal/server/rbac"
	"github.com/dascribs/authcore/internal/server/repositories/memory"
	"github.com/dascribs/authcore/internal/server/repositories/repomanager"
	"github.com/dascribs/authcore/internal/server/services"
	"github.com/dascribs/authcore/internal/server/throttle"
	"github.com/dascribs/authcore/internal/timex"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	registry *prometheus.Registry
	services httpapi.Services
	sweeper  *services.Sweeper
	closers  []io.Closer
}

// NewApp opens every backend named by c and builds the services on top.
// On error, whatever was already opened is closed again.
func NewApp(ctx context.Context, c *config.Config) (_ *App, err error) {
	logger, err := logging.New(os.Stdout, c.LogFormat, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	app := &App{config: c, logger: logger, registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	app.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(app.registry)

	repos, err := app.openStorage(ctx)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	hasher, err := password.New(c.PasswordHasher)
	if err != nil {
		return nil, err
	}
	roles, err := rbac.LoadFile(c.RolesFile)
	if err != nil {
		return nil, fmt.Errorf("roles: %w", err)
	}
	dispatcher, err := app.openDispatcher()
	if err != nil {
		return nil, fmt.Errorf("dispatcher init error: %w", err)
	}
	limiter := app.openLimiter(ctx)

	clock := timex.SystemClock{}
	deps := services.Deps{Repos: repos, Config: c, Clock: clock, Log: logger, Metrics: m}
	notifier := services.NewNotifier(dispatcher, notify.NewLinks(c.FrontendURL), clock, logger, m)

	sessions := services.NewSessionService(deps)
	tokens := services.NewOneTimeTokenService(deps)
	verification := services.NewEmailVerificationFlow(deps, tokens, notifier)
	reset := services.NewPasswordResetFlow(deps, tokens, notifier, hasher)
	codec := auth.NewCodec([]byte(c.SecretKey), c.BearerTokenTTL, clock)

	authService, err := services.NewAuthService(deps, codec, hasher, roles, limiter, sessions, verification)
	if err != nil {
		return nil, err
	}

	app.services = httpapi.Services{
		Auth:         authService,
		Sessions:     sessions,
		Verification: verification,
		Reset:        reset,
		Roles:        roles,
	}
	app.sweeper = services.NewSweeper(sessions, tokens, c.SweepInterval, clock, logger)
	return app, nil
}

func (app *App) openStorage(ctx context.Context) (repomanager.RepositoryManager, error) {
	if app.config.DatabaseDSN == config.MemoryDSN {
		app.logger.Warn(ctx, "using in-memory storage, state is lost on exit")
		return memory.NewManager(), nil
	}

	db, err := sql.Open("pgx", app.config.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, db)

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	rm, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		return nil, err
	}
	if err := rm.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return rm, nil
}

func (app *App) openDispatcher() (notify.Dispatcher, error) {
	c := app.config

	var (
		d   notify.Dispatcher
		err error
	)
	switch c.Dispatcher {
	case config.DispatcherFile:
		d, err = notify.NewFileDispatcher(c.DispatcherFilePath)
	case config.DispatcherAMQP:
		d, err = notify.DialAMQP(c.AMQPURL, c.AMQPQueue)
	case config.DispatcherNATS:
		d, err = notify.ConnectNATS(c.NATSURL, c.NATSSubject)
	case config.DispatcherMemory:
		d = notify.NewMemoryDispatcher()
	default:
		d = notify.NewLogDispatcher(app.logger.With("module", "dispatcher"))
	}
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, d)
	return d, nil
}

// openLimiter prefers the shared redis throttle. An unreachable redis is not
// fatal: the limiter fails open and logins keep working.
func (app *App) openLimiter(ctx context.Context) throttle.Limiter {
	cfg := throttle.Config{MaxAttempts: app.config.LoginMaxAttempts, Window: app.config.LoginLockout}
	if app.config.RedisAddr == "" {
		return throttle.NewMemoryLimiter(cfg, timex.SystemClock{})
	}

	rdb := redis.NewClient(&redis.Options{Addr: app.config.RedisAddr})
	app.closers = append(app.closers, rdb)
	if err := rdb.Ping(ctx).Err(); err != nil {
		app.logger.Warn(ctx, "redis unreachable, login throttle will fail open", "addr", app.config.RedisAddr, "error", err)
	}
	return throttle.NewRedisLimiter(rdb, cfg)
}

func (app *App) Services() httpapi.Services { return app.services }

func (app *App) Sweeper() *services.Sweeper { return app.sweeper }

func (app *App) Logger() logging.Logger { return app.logger }

// Close releases backends in reverse order of opening.
func (app *App) Close() error {
	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	app.closers = nil
	return errors.Join(errs...)
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.NewServer(app.config, app.services, app.registry, app.logger)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, "http server", "error", err)
		cancelFunc()
	}
}

// Run blocks until ctx is cancelled or a signal arrives, then waits for the
// server and sweeper to stop and closes the backends.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	if app.config.SweepInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.sweeper.Run(ctx)
		}()
	}

	wg.Wait()

	if err := app.Close(); err != nil {
		app.logger.Error(context.Background(), "close backends", "error", err)
	}
	app.logger.Info(context.Background(), "App stopped")
}
