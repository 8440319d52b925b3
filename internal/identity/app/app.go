package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/harborcrm/identity/internal/identity/http"
	"github.com/harborcrm/identity/internal/identity/obs"
	"github.com/harborcrm/identity/internal/identity/service"
	"github.com/harborcrm/identity/internal/identity/store"
	"github.com/harborcrm/identity/internal/identity/store/drivers/sqlite"
	"github.com/harborcrm/identity/pkg/cryptox"
	"github.com/harborcrm/identity/pkg/jwtx"
	"github.com/harborcrm/identity/pkg/slogx"
)

// BuildVersion should be set at build time via ldflags.
const BuildVersion = "v0.1.0"

// Application wires the identity service together: store, token engine,
// flows, HTTP surface, housekeeping.
type Application struct {
	cfg     Config
	logger  *slog.Logger
	metrics *obs.Metrics

	db store.Store

	authService      *service.AuthService
	whitelistService *service.WhitelistService
	housekeeping     *service.Housekeeping

	server *http.Server
	router *httpapi.Router

	stopHousekeeping context.CancelFunc
}

func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg:     cfg,
		metrics: obs.New(),
		logger: slogx.New(slogx.Config{
			Service: "identity",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	cryptox.SetPepperPath(cfg.PepperFile)

	if cfg.JWTSecret == "" {
		return nil, errors.New("IDENTITY_JWT_SECRET is required")
	}
	codec, err := jwtx.NewHS256([]byte(cfg.JWTSecret), cfg.Issuer, cfg.ClockSkew)
	if err != nil {
		return nil, err
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	app.initServices(codec)
	app.initHTTP(codec)

	return app, nil
}

func (app *Application) initDatabase() error {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(dsn)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

func (app *Application) initServices(codec *jwtx.HS256) {
	app.whitelistService = &service.WhitelistService{Store: app.db}

	tokens := &service.TokenService{
		Signer:     codec,
		Verifier:   codec,
		Store:      app.db,
		Whitelist:  app.whitelistService,
		Metrics:    app.metrics,
		Issuer:     app.cfg.Issuer,
		AccessTTL:  app.cfg.AccessTTL,
		RefreshTTL: app.cfg.RefreshTTL,
	}

	verifications := &service.VerificationService{
		Store:            app.db,
		Metrics:          app.metrics,
		EmailVerifyTTL:   app.cfg.EmailVerifyTTL,
		PasswordResetTTL: app.cfg.PasswordResetTTL,
	}

	oauth := &service.OAuthService{
		Store:     app.db,
		Providers: map[string]service.OAuthProvider{},
		Metrics:   app.metrics,
		StateTTL:  app.cfg.OAuthStateTTL,
	}

	app.authService = &service.AuthService{
		Store:                app.db,
		Tokens:               tokens,
		Verifications:        verifications,
		OAuth:                oauth,
		Notifier:             service.NopNotifier{},
		Metrics:              app.metrics,
		RequireVerifiedEmail: app.cfg.RequireVerifiedEmail,
	}

	app.housekeeping = &service.Housekeeping{
		Store:    app.db,
		Interval: app.cfg.HousekeepingInterval,
	}
}

// RegisterProvider plugs an external identity provider into the OAuth flow.
// Call before Run.
func (app *Application) RegisterProvider(p service.OAuthProvider) {
	app.authService.OAuth.Providers[p.Name()] = p
}

// SetNotifier replaces the notification collaborator. Call before Run.
func (app *Application) SetNotifier(n service.Notifier) {
	app.authService.Notifier = n
}

func (app *Application) initHTTP(codec *jwtx.HS256) {
	router := httpapi.NewRouter(codec, app.db, app.logger, app.metrics)
	router.AuthService = app.authService
	router.WhitelistService = app.whitelistService
	router.ApplyRoutes()
	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	hkCtx, cancel := context.WithCancel(slogx.WithContext(context.Background(), app.logger))
	app.stopHousekeeping = cancel
	go app.housekeeping.Run(hkCtx)

	app.logger.Info("identity service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			// Nothing to drain; the listener never came up or just died.
			// Background work and the store still need releasing.
			_ = app.close()
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown drains in-flight requests and releases resources.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down identity service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	return app.close()
}

// close stops the housekeeping loop and releases the store.
func (app *Application) close() error {
	if app.stopHousekeeping != nil {
		app.stopHousekeeping()
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("identity service stopped")
	return nil
}
