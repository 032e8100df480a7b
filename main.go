package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"billing-service/internal/cache"
	"billing-service/internal/config"
	"billing-service/internal/database"
	"billing-service/internal/handlers"
	"billing-service/internal/health"
	"billing-service/internal/middleware"
	natsClient "billing-service/internal/nats"
	"billing-service/internal/repository"
	"billing-service/internal/scheduler"
	"billing-service/internal/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	// Invalid proration policy or tenancy settings must stop the boot
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}

	logger := newLogger(cfg.App)

	db, err := database.Open(cfg.Database, cfg.App.LogLevel)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	if err := database.Migrate(db); err != nil {
		logger.WithError(err).Fatal("Failed to migrate database")
	}
	if err := database.SeedSettings(db, logger); err != nil {
		logger.WithError(err).Warn("Failed to seed default settings")
	}

	// Settings cache: Redis when reachable, in-process otherwise
	var (
		store       cache.Store = cache.NewMemoryStore()
		cachePinger health.Pinger
	)
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedisClient(cfg.Redis, logger)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, settings cache is in-process only")
		} else {
			redisStore := cache.NewRedisStore(redisClient, "billing:")
			store, cachePinger = redisStore, redisStore
		}
	}
	defer store.Close()

	var (
		publisher  services.EventPublisher = services.NoopPublisher()
		eventsConn health.ConnectionChecker
	)
	if cfg.NATS.Enabled {
		nc, err := natsClient.NewClient(natsClient.Config{URL: cfg.NATS.URL, Name: "billing-service"}, logger)
		if err != nil {
			logger.WithError(err).Warn("Failed to connect to NATS, event publishing is disabled")
		} else {
			defer nc.Close()
			publisher, eventsConn = nc, nc
		}
	}

	app := buildApp(db, store, publisher, cfg, logger)

	checker := health.NewChecker(db, cachePinger, eventsConn, cfg.App.Version)
	router := setupRouter(cfg, checker, app.handlers, logger)

	planChanges := scheduler.NewPlanChangeScheduler(app.subscriptions, cfg.Scheduler, logger)
	if err := planChanges.Start(); err != nil {
		logger.WithError(err).Fatal("Failed to start plan change scheduler")
	}

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithField("addr", server.Addr).Info("Starting billing-service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()
	checker.SetReady(true)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")
	checker.SetReady(false)

	planChanges.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	logger.Info("Server exited")
}

type application struct {
	subscriptions *services.SubscriptionService
	handlers      handlers.Handlers
}

func buildApp(db *gorm.DB, store cache.Store, publisher services.EventPublisher, cfg *config.Config, logger *logrus.Logger) application {
	tenantRepo := repository.NewTenantRepository(db)
	userRepo := repository.NewUserRepository(db)
	planRepo := repository.NewPlanRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	assignmentRepo := repository.NewTenantAddonRepository(db)

	settingsService := services.NewSettingsService(db, repository.NewSettingRepository(db), store,
		cfg.Settings.CacheKey, cfg.Settings.CacheTTL, publisher, logger)
	ownership := services.OwnershipPolicy{AllowMultiple: cfg.Tenancy.AllowMultiple}
	invitationService := services.NewInvitationService(db, repository.NewInvitationRepository(db), tenantRepo, userRepo,
		ownership, cfg.Billing.InvitationTTL, publisher, logger)
	tenantService := services.NewTenantService(db, tenantRepo, userRepo, invitationService,
		ownership, cfg.Tenancy.CodeLength, publisher, logger)
	addonService := services.NewAddonService(db, repository.NewAddonRepository(db), assignmentRepo, tenantRepo, planRepo,
		cfg.Billing.DefaultCurrency, publisher, logger)
	entitlementService := services.NewEntitlementService(subscriptionRepo, planRepo, assignmentRepo, logger)
	subscriptionService := services.NewSubscriptionService(db, subscriptionRepo, planRepo, tenantRepo,
		settingsService, cfg.Billing.Proration, publisher, logger)
	planService := services.NewPlanService(planRepo, logger)
	paymentService := services.NewPaymentService(repository.NewPaymentRepository(db), tenantRepo, cfg.Billing.DefaultCurrency, publisher, logger)
	userService := services.NewUserService(userRepo, publisher, logger)

	return application{
		subscriptions: subscriptionService,
		handlers: handlers.Handlers{
			Tenants:       handlers.NewTenantHandler(tenantService, invitationService),
			Addons:        handlers.NewAddonHandler(addonService, entitlementService),
			Plans:         handlers.NewPlanHandler(planService),
			Subscriptions: handlers.NewSubscriptionHandler(subscriptionService),
			Payments:      handlers.NewPaymentHandler(paymentService),
			Settings:      handlers.NewSettingsHandler(settingsService),
			Users:         handlers.NewUserHandler(userService),
		},
	}
}

func setupRouter(cfg *config.Config, checker *health.Checker, h handlers.Handlers, logger *logrus.Logger) *gin.Engine {
	if cfg.Server.Mode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.StructuredLogger(logger))
	router.Use(health.MetricsMiddleware())
	router.Use(middleware.TenantExtraction())
	router.Use(middleware.UserIdentity())

	router.GET("/health", checker.HealthHandler)
	router.GET("/livez", checker.LivezHandler)
	router.GET("/readyz", checker.ReadyzHandler)
	router.GET("/ready", checker.ReadyzHandler)
	router.GET("/metrics", health.MetricsHandler())

	handlers.RegisterRoutes(router.Group("/api/v1"), h)
	return router
}

// newLogger configures the standard logrus logger so package-level calls
// share its level and format
func newLogger(cfg config.AppConfig) *logrus.Logger {
	logger := logrus.StandardLogger()
	if cfg.Environment == "production" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}
