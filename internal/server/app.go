// Package server wires the authkeeper components together and runs them:
// the HTTP API, the expired-token sweeper and the admin bootstrap.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	userService *services.UserService
	sweeper     *services.Sweeper
	httpServer  *httpapi.Server
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.NewJSONLogger(os.Stdout, slog.LevelInfo)

	db, err := repomanager.Open(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	keys, err := newKeyRing(c)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("key ring error: %w", err)
	}
	access := auth.NewAccessTokens(keys, c.Issuer)

	m := metrics.NewAuth()
	ta := services.NewTokenAuthority(db, rm, access, m, logger)
	us := services.NewUserService(db, rm, ta, services.NewLogMailer(logger), m, logger)
	resolver := services.NewIdentityResolver(db, rm, access, m, logger)
	gate := services.NewAuthorizationGate(db, rm)

	router := httpapi.NewRouter(
		httpapi.NewHandler(us, gate, logger),
		httpapi.NewMiddleware(resolver, gate, logger),
		m.Handler(),
		logger,
	)

	return &App{
		config:      c,
		logger:      logger,
		db:          db,
		userService: us,
		sweeper:     services.NewSweeper(db, rm, m, logger),
		httpServer:  httpapi.NewServer(c.EndpointAddrHTTP, router, c.ShutdownTimeout, logger),
	}, nil
}

// newKeyRing builds the signing key ring: the configured key signs, the
// verify keys are accepted for tokens signed before a rotation.
func newKeyRing(c *config.Config) (*auth.KeyRing, error) {
	ring, err := auth.NewKeyRing(c.SecretKeyID, []byte(c.SecretKey))
	if err != nil {
		return nil, err
	}
	for id, secret := range c.VerifyKeys {
		if err := ring.AddVerificationKey(id, []byte(secret)); err != nil {
			return nil, err
		}
	}
	return ring, nil
}

// Run blocks until a termination signal arrives or a component fails.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()
	defer app.db.Close()

	app.logger.Info(ctx, "Starting app...")

	if app.config.AdminMail != "" {
		if err := app.userService.EnsureAdmin(ctx, app.config.AdminMail, app.config.AdminPassword); err != nil {
			return fmt.Errorf("admin bootstrap: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return app.httpServer.Run(gctx)
	})

	g.Go(func() error {
		return app.sweeper.Run(gctx, app.config.CleanupSchedule)
	})

	err := g.Wait()
	app.logger.Info(context.Background(), "App stopped")
	return err
}
