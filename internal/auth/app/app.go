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

	"github.com/aussiebroadwan/gatekeeper/internal/auth/events"
	httpapi "github.com/aussiebroadwan/gatekeeper/internal/auth/http"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/service"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/store"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/store/drivers/postgres"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/gatekeeper/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application encapsulates the auth service application with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db         store.Store
	sealer     *cryptox.Sealer
	keyManager *jwtx.KeyManager
	events     events.Publisher
	mqtt       *events.MQTTPublisher

	// Services
	credentials         *service.CredentialService
	devices             *service.DeviceRegistry
	tokenService        *service.TokenService
	authService         *service.AuthService
	bootstrapService    *service.BootstrapService
	housekeepingService *service.HousekeepingService
	keyRotationService  *service.KeyRotationService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config, logger *slog.Logger) (*Application, error) {
	app := &Application{cfg: cfg, logger: logger}
	ctx := slogx.WithContext(context.Background(), logger)

	if err := cryptox.LoadPepper(cfg.PepperPath); err != nil {
		return nil, fmt.Errorf("failed to load pepper: %w", err)
	}

	sealer, ephemeral, err := cryptox.LoadSealer(cfg.MasterKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load master key: %w", err)
	}
	if ephemeral {
		logger.Warn("no master key configured: TOTP secrets enrolled now will not open after a restart")
	}
	app.sealer = sealer

	// Database first, persistent keys live in it
	if err := app.initDatabase(ctx); err != nil {
		return nil, err
	}

	keyManager, err := InitAuthKeys(ctx, cfg, app.db, sealer, logger)
	if err != nil {
		_ = app.db.Close()
		return nil, fmt.Errorf("failed to initialize JWT keys: %w", err)
	}
	app.keyManager = keyManager

	app.initEvents()
	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("auth service starting", "addr", app.cfg.HTTPAddr, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.closeBackground()
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
	app.logger.Info("shutting down auth service...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	return app.closeBackground()
}

func (app *Application) closeBackground() error {
	app.housekeepingService.Stop()

	if app.mqtt != nil {
		app.mqtt.Close()
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

// initDatabase opens the configured driver and applies migrations
func (app *Application) initDatabase(ctx context.Context) error {
	var (
		db  store.Store
		err error
	)
	switch app.cfg.DBDriver {
	case "postgres":
		db, err = postgres.NewStore(ctx, app.cfg.DBDSN)
	default:
		db, err = sqlite.NewStore(app.cfg.DBDSN)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize %s database: %w", app.cfg.DBDriver, err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully", "driver", app.cfg.DBDriver)
	return nil
}

// initEvents always logs security events and also publishes them to MQTT
// when a broker is configured. A broker that cannot be reached only warns.
func (app *Application) initEvents() {
	pubs := events.FanOut{events.SlogPublisher{}}

	if app.cfg.MQTT.Broker != "" {
		p, err := events.ConnectMQTT(events.MQTTConfig{
			Broker:      app.cfg.MQTT.Broker,
			ClientID:    app.cfg.MQTT.ClientID,
			Username:    app.cfg.MQTT.Username,
			Password:    app.cfg.MQTT.Password,
			TopicPrefix: app.cfg.MQTT.TopicPrefix,
		}, app.logger)
		if err != nil {
			app.logger.Warn("mqtt event bus unavailable, events are logged only",
				"broker", app.cfg.MQTT.Broker, "error", err)
		} else {
			app.mqtt = p
			pubs = append(pubs, p)
			app.logger.Info("publishing security events to mqtt", "broker", app.cfg.MQTT.Broker)
		}
	}

	app.events = pubs
}

// initServices initializes all business logic services
func (app *Application) initServices() {
	app.credentials = &service.CredentialService{
		Store:  app.db,
		Events: app.events,
	}
	app.devices = &service.DeviceRegistry{
		Store:  app.db,
		Sealer: app.sealer,
		Events: app.events,
		Issuer: app.cfg.TOTPIssuer,
	}
	app.tokenService = &service.TokenService{
		KeyManager:    app.keyManager,
		Store:         app.db,
		Events:        app.events,
		Issuer:        app.cfg.Issuer,
		Audience:      app.cfg.Audience,
		AccessTTL:     app.cfg.AccessTokenTTL,
		PendingTTL:    app.cfg.PendingTokenTTL,
		RefreshTTL:    app.cfg.RefreshTokenTTL,
		RotateRefresh: app.cfg.RefreshRotation,
	}
	app.authService = &service.AuthService{
		Store:       app.db,
		Credentials: app.credentials,
		Devices:     app.devices,
		Tokens:      app.tokenService,
		Events:      app.events,
		Policy:      service.MFAPolicy(app.cfg.MFAPolicy),
		MaxAttempts: app.cfg.MFAMaxAttempts,
	}
	app.bootstrapService = &service.BootstrapService{
		Store:       app.db,
		Credentials: app.credentials,
		Token:       app.cfg.BootstrapToken,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)

	// Rotation works in both modes; only persistent mode writes keys to the store
	rotation := &service.KeyRotationService{
		KeyManager:  app.keyManager,
		GracePeriod: app.cfg.KeyGracePeriod,
	}
	if app.cfg.KeyMode == "persistent" {
		rotation.Store = app.db
		rotation.Sealer = app.sealer
	}
	app.keyRotationService = rotation
	app.logger.Info("key rotation service enabled", "mode", app.cfg.KeyMode)
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.keyManager.KeySet,
		app.keyManager.Verifier,
		BuildVersion,
		app.db,
		app.logger,
	)

	router.Auth = app.authService
	router.Credentials = app.credentials
	router.BootstrapService = app.bootstrapService
	router.KeyRotationService = app.keyRotationService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              app.cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
