package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"flatex_bot/internal/broker"
	"flatex_bot/internal/broker/flatex"
	"flatex_bot/internal/broker/onvista"
	"flatex_bot/internal/cache"
	"flatex_bot/internal/chat"
	"flatex_bot/internal/commands"
	"flatex_bot/internal/config"
	"flatex_bot/internal/database"
	"flatex_bot/internal/services"
	"flatex_bot/internal/session"
)

// App holds the application dependencies.
type App struct {
	config  *config.Config
	logger  *zap.Logger
	db      *database.DB
	cache   *cache.Cache
	store   *session.Store
	manager *session.Manager
	audit   *services.AuditService
	quotes  *onvista.Client
	pins    *commands.PinPrompt
	router  *commands.Router
	matrix  *chat.Matrix
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// newApp wires storage, the brokerage session and the command router.
// The Matrix transport is created only when withChat is set and configured.
func newApp(cfg *config.Config, logger *zap.Logger, withChat bool) (*App, error) {
	db, err := database.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := db.RunMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("database migrations completed", zap.String("path", cfg.DBPath))

	var enc *broker.Encryptor
	if cfg.EncryptionEnabled() {
		if enc, err = broker.NewEncryptor(cfg.EncryptionSecret); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating encryptor: %w", err)
		}
	} else {
		logger.Warn("ENCRYPTION_SECRET not set, session values are stored in plain text")
	}

	client, err := flatex.NewClient(flatex.Options{
		BaseURL:    cfg.FlatexBaseURL,
		Provider:   cfg.FlatexProvider,
		Platform:   cfg.FlatexPlatform,
		Timeout:    cfg.FlatexTimeout,
		RatePerSec: cfg.FlatexRate,
		Logger:     logger,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	c, err := cache.New(1000, 10*time.Minute)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache: %w", err)
	}

	app := &App{
		config: cfg,
		logger: logger,
		db:     db,
		cache:  c,
		store:  session.NewStore(db, enc),
		audit:  services.NewAuditService(db, logger),
		quotes: onvista.NewClient(cfg.OnvistaBaseURL, c, logger),
	}
	app.manager = session.NewManager(client, app.store, session.Options{
		Principal:   cfg.FlatexPrincipal,
		Credential:  cfg.FlatexCredential,
		Interval:    cfg.PingInterval,
		AuthTimeout: cfg.AuthTimeout,
		AuthMethod:  cfg.AuthMethod,
		Logger:      logger,
	})

	var room chat.Replier
	if withChat && cfg.MatrixEnabled() {
		app.matrix = chat.NewMatrix(chat.MatrixConfig{
			HomeServerURL: cfg.MatrixHomeServerURL,
			AccessToken:   cfg.MatrixAccessToken,
			RoomID:        cfg.MatrixRoomID,
		}, app.store, func(ctx context.Context, sender, body string) {
			app.router.Execute(ctx, sender, body, app.matrix)
		}, logger)
		room = app.matrix
	}

	app.pins = commands.NewPinPrompt(room, logger)
	app.manager.SetCodeFunc(app.pins.Collect)
	app.router = commands.NewRouter(commands.Options{
		Trader: app.manager,
		Pins:   app.pins,
		Audit:  app.audit,
		Quotes: app.quotes,
		Status: app.manager,
		Cache:  c,
		Logger: logger,
	})
	return app, nil
}

// Close stops the chat transport and the session loop and releases storage.
func (app *App) Close(ctx context.Context) {
	if app.matrix != nil {
		if err := app.matrix.Disconnect(ctx); err != nil {
			app.logger.Warn("disconnecting matrix", zap.Error(err))
		}
	}
	app.manager.Disconnect()
	app.cache.Close()
	if err := app.db.Close(); err != nil {
		app.logger.Warn("closing database", zap.Error(err))
	}
}
