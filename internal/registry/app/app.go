package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/skillchain/registry/internal/registry/cache"
	httpapi "github.com/skillchain/registry/internal/registry/http"
	"github.com/skillchain/registry/internal/registry/service"
	"github.com/skillchain/registry/internal/registry/store"
	"github.com/skillchain/registry/internal/registry/store/drivers/sqlite"
	"github.com/skillchain/registry/pkg/httpx"
	"github.com/skillchain/registry/pkg/jwtx"
	"github.com/skillchain/registry/pkg/metricsx"
	"github.com/skillchain/registry/pkg/slogx"
)

// BuildVersion is overridden at build time via ldflags.
var BuildVersion = "v0.1.0"

// Application encapsulates the registry service with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db   store.Store
	rdb  *redis.Client
	keys *jwtx.Keyring
	sink *metricsx.Sink
	csrf *httpx.CsrfGuard

	// Services
	tokenService    *service.TokenService
	adminKeyService *service.AdminKeyService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "registry",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		sink: metricsx.NewSink(0),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	app.initRedis()

	keys, err := buildKeyring(cfg, app.logger)
	if err != nil {
		return nil, err
	}
	app.keys = keys

	app.csrf = &httpx.CsrfGuard{SecureCookies: cfg.SecureCookies}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.logger.Info("registry service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
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

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down registry service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	if err := app.rdb.Close(); err != nil {
		app.logger.Error("error closing redis client", "error", err)
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("registry service stopped")
	return nil
}

// initDatabase initializes the database and applies migrations
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initRedis connects the Redis client. A down Redis is not fatal at boot:
// the rate limiter and credential cache both degrade without it.
func (app *Application) initRedis() {
	app.rdb = redis.NewClient(&redis.Options{
		Addr: app.cfg.RedisAddr,
		DB:   app.cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := app.rdb.Ping(ctx).Err(); err != nil {
		app.logger.Warn("redis unreachable at boot, running degraded", "addr", app.cfg.RedisAddr, "error", err)
	}
}

// initServices initializes all business logic services
func (app *Application) initServices() {
	adminAddresses := make(map[string]bool, len(app.cfg.AdminAddresses))
	for _, addr := range app.cfg.AdminAddresses {
		adminAddresses[addr] = true
	}

	app.tokenService = &service.TokenService{
		Keys:           app.keys,
		Sink:           app.sink,
		Issuer:         app.cfg.Issuer,
		Audience:       []string{app.cfg.Audience},
		AccessTTL:      app.cfg.AccessTTL,
		RefreshTTL:     app.cfg.RefreshTTL,
		AdminAddresses: adminAddresses,
	}

	app.adminKeyService = &service.AdminKeyService{
		Store:        app.db,
		Cache:        cache.NewKeySet(app.rdb, app.db.APIKeys(), app.sink),
		Sink:         app.sink,
		LegacySecret: app.cfg.LegacyAdminKey,
	}

	if app.cfg.LegacyAdminKey != "" {
		app.logger.Warn("legacy shared admin secret is enabled, migrate to prefixed api keys")
	}
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.keys,
		app.sink,
		app.csrf,
		BuildVersion,
		app.db,
		app.rdb,
		app.cfg.CORSOrigins,
		app.logger,
	)

	router.TokenService = app.tokenService
	router.AdminKeyService = app.adminKeyService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
