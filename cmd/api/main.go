package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/assetdesk/ticket-lifecycle/internal/api/http"
	"github.com/assetdesk/ticket-lifecycle/internal/api/http/handlers"
	"github.com/assetdesk/ticket-lifecycle/internal/auth"
	"github.com/assetdesk/ticket-lifecycle/internal/cache"
	"github.com/assetdesk/ticket-lifecycle/internal/config"
	"github.com/assetdesk/ticket-lifecycle/internal/events"
	"github.com/assetdesk/ticket-lifecycle/internal/notify"
	"github.com/assetdesk/ticket-lifecycle/internal/observability"
	"github.com/assetdesk/ticket-lifecycle/internal/persistence"
	"github.com/assetdesk/ticket-lifecycle/internal/repository"
	"github.com/assetdesk/ticket-lifecycle/internal/repository/memory"
	"github.com/assetdesk/ticket-lifecycle/internal/service"
	"github.com/assetdesk/ticket-lifecycle/internal/worker"
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

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	var checks []handlers.DependencyCheck
	var store repository.Store
	if pool := pg.PoolHandle(); pool != nil {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pool, logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		store = repository.NewStore(pool)
		checks = append(checks, handlers.DependencyCheck{Name: "postgres", Pinger: pg})
	} else {
		logger.Warn("POSTGRES_DSN not set; using in-memory store with serialized transactions")
		store = memory.NewStore()
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()
	if redis.Client != nil {
		checks = append(checks, handlers.DependencyCheck{Name: "redis", Pinger: redis})
	}

	dispatcher := events.NewInMemoryDispatcher()
	feed := service.NewNotificationFeed(service.FeedDependencies{
		Store:      store,
		Unread:     cache.NewRedisUnreadCounter(redis.Client, cfg.Feed.UnreadCacheTTL),
		Dispatcher: dispatcher,
		Logger:     logger,
		Config:     cfg.Feed,
	})
	engine := service.NewAssignmentEngine(store, service.DepartmentMatcher{}, cfg.Assignment, logger)
	lifecycle := service.NewLifecycleService(service.LifecycleDependencies{
		Store:               store,
		Thread:              service.NewThreadLog(store, 0),
		Feed:                feed,
		Engine:              engine,
		Dispatcher:          dispatcher,
		Logger:              logger,
		Policy:              cfg.Lifecycle,
		DefaultDispatcherID: cfg.Assignment.DefaultDispatcherID,
	})

	var channels []notify.Channel
	if webhook := notify.NewWebhookChannel(cfg.Notification.WebhookURL, cfg.Notification.WebhookTimeout); webhook != nil {
		channels = append(channels, webhook)
	}
	if email := notify.NewEmailChannel(cfg.Notification.SendGridAPIKey, cfg.Notification.EmailFrom); email != nil {
		channels = append(channels, email)
	}
	notificationService := service.NewNotificationService(dispatcher, store, logger, channels...)

	staffService := service.NewStaffService(store, cfg.Auth.BcryptCost, logger)
	if err := staffService.EnsureAdmin(ctx, cfg.Auth.BootstrapAdminName, cfg.Auth.BootstrapAdminEmail, cfg.Auth.BootstrapAdminPassword); err != nil {
		logger.Fatal("failed to bootstrap admin", zap.Error(err))
	}
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authService := service.NewAuthService(store.Engineers(), tokens, logger)
	authMiddleware := auth.NewAuthMiddleware(tokens, store.Engineers())

	bg := worker.NewWorker(notificationService, lifecycle, cfg.Lifecycle, logger,
		worker.WithDeliveryQueue(cfg.Notification.QueueSize, cfg.Notification.DeliveryTimeout))
	if err := bg.Start(ctx); err != nil {
		logger.Fatal("failed to start worker", zap.Error(err))
	}

	metrics := observability.NewMetrics()
	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	binder := handlers.NewBinder()
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, metrics, checks...),
		Staff:          handlers.NewStaffHandler(authService, staffService, binder),
		PublicTickets:  handlers.NewTicketsHandler(lifecycle, binder),
		StaffTickets:   handlers.NewStaffTicketsHandler(lifecycle, binder),
		Notifications:  handlers.NewNotificationsHandler(feed),
		Assignment:     handlers.NewAssignmentHandler(engine, lifecycle, binder),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	cancel()
	bg.Stop()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
