package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/itsupport/helpdesk/internal/api/http"
	"github.com/itsupport/helpdesk/internal/api/http/handlers"
	"github.com/itsupport/helpdesk/internal/config"
	"github.com/itsupport/helpdesk/internal/events"
	"github.com/itsupport/helpdesk/internal/identity"
	"github.com/itsupport/helpdesk/internal/observability"
	"github.com/itsupport/helpdesk/internal/persistence"
	"github.com/itsupport/helpdesk/internal/repository"
	"github.com/itsupport/helpdesk/internal/service"
	"github.com/itsupport/helpdesk/internal/session"
	"github.com/itsupport/helpdesk/internal/storage"
	"github.com/itsupport/helpdesk/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, cleanup, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer cleanup()

	if err := store.Init(ctx); err != nil {
		logger.Fatal("failed to initialize schema", zap.Error(err))
	}

	var redis *persistence.Redis
	var sessions session.Store
	if cfg.Redis.Addr != "" {
		redis = persistence.NewRedis(cfg.Redis, logger)
		defer redis.Close()
		sessions = session.NewRedisStore(redis.Client, cfg.Auth.SessionTTL())
	} else {
		memory := session.NewMemoryStore(cfg.Auth.SessionTTL())
		defer memory.Close()
		sessions = memory
	}

	gateway, err := identity.NewGateway(cfg.Auth, logger)
	if err != nil {
		logger.Fatal("failed to init identity gateway", zap.Error(err))
	}

	files, err := storage.NewManager(cfg.Uploads, logger)
	if err != nil {
		logger.Fatal("failed to init upload storage", zap.Error(err))
	}

	dispatcher := events.NewInMemoryDispatcher()
	worker.StartNotifier(dispatcher, logger)
	worker.StartSweeper(ctx, files, time.Hour, logger)

	tokens := session.NewTokenManager(cfg.Auth.SessionSecret, cfg.Auth.SessionTTL())
	authService := service.NewAuthService(gateway, store, sessions, tokens, logger)
	ticketService := service.NewTicketService(store, files, dispatcher, logger)
	directoryService := service.NewDirectoryService(store)

	metrics := observability.NewMetrics()
	app := fiber.New(fiber.Config{
		AppName:   cfg.App.Name,
		BodyLimit: int(cfg.Uploads.MaxBatchSize) + 1<<20,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout(), cfg.App.Development())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, store, redis),
		Auth:           handlers.NewAuthHandler(authService, cfg.Auth.SessionTTL(), !cfg.App.Development()),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Admin:          handlers.NewAdminHandler(ticketService, directoryService),
		Directory:      handlers.NewDirectoryHandler(directoryService),
		PublicAPI:      handlers.NewPublicAPIHandler(ticketService, directoryService),
		Session:        handlers.NewSessionMiddleware(authService),
		APISecret:      cfg.API.Secret,
		TicketFilesDir: filepath.Join(cfg.Uploads.PublicDir, "tickets"),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

// openStore builds the configured repository backend and its cleanup.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.Store, func(), error) {
	switch cfg.Database.Backend {
	case config.BackendPostgres:
		pg, err := persistence.NewPostgres(ctx, cfg.Database, logger)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewPostgresStore(pg.Pool), pg.Close, nil
	default:
		db, err := persistence.NewSQLite(cfg.Database, logger)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewSQLiteStore(db), func() { _ = db.Close() }, nil
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
