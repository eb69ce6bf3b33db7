package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appallocation "github.com/channelsync/backend/internal/application/allocation"
	appconflict "github.com/channelsync/backend/internal/application/conflict"
	appsync "github.com/channelsync/backend/internal/application/sync"
	"github.com/channelsync/backend/internal/domain/conflict"
	"github.com/channelsync/backend/internal/infrastructure/cache"
	"github.com/channelsync/backend/internal/infrastructure/config"
	"github.com/channelsync/backend/internal/infrastructure/connector"
	"github.com/channelsync/backend/internal/infrastructure/event"
	"github.com/channelsync/backend/internal/infrastructure/forecast"
	"github.com/channelsync/backend/internal/infrastructure/logger"
	"github.com/channelsync/backend/internal/infrastructure/persistence"
	"github.com/channelsync/backend/internal/infrastructure/queue"
	"github.com/channelsync/backend/internal/infrastructure/registry"
	"github.com/channelsync/backend/internal/infrastructure/telemetry"
	"github.com/channelsync/backend/internal/interfaces/http/handler"
	"github.com/channelsync/backend/internal/interfaces/http/middleware"
	"github.com/channelsync/backend/internal/interfaces/http/router"
	"github.com/shopspring/decimal"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting ChannelSync Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Metrics pipeline; a disabled config yields the no-op global meter
	meterProvider, err := telemetry.NewMeterProvider(context.Background(), cfg.Telemetry, cfg.App.Name, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		if err := meterProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down telemetry", zap.Error(err))
		}
	}()

	// Initialize database connection
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, logger.MapGormLogLevel(cfg.Log.Level))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	if cfg.Telemetry.Enabled {
		if err := telemetry.RegisterDBTracing(db.DB, log); err != nil {
			log.Fatal("Failed to register database tracing", zap.Error(err))
		}
	}

	// Initialize repositories
	channelRepo := persistence.NewGormChannelRepository(db.DB)
	mappingRepo := persistence.NewGormProductMappingRepository(db.DB)
	allocationRepo := persistence.NewGormAllocationRepository(db.DB)
	conflictRepo := persistence.NewGormConflictRepository(db.DB)
	jobRepo := persistence.NewGormSyncJobRepository(db.DB)
	statusRepo := persistence.NewGormSyncStatusRepository(db.DB)
	webhookRecordRepo := persistence.NewGormWebhookRecordRepository(db.DB)

	// Webhook dedupe store: Redis, falling back to in-memory for single
	// instance deployments
	storeFactory := cache.NewIdempotencyStoreFactory(cfg.Redis, cache.WithLogger(log))
	dedupeStore, err := storeFactory.CreateStore()
	if err != nil {
		log.Fatal("Failed to create idempotency store", zap.Error(err))
	}
	defer func() {
		if err := dedupeStore.Close(); err != nil {
			log.Error("Error closing idempotency store", zap.Error(err))
		}
	}()

	var redisClient *redis.Client
	if rs, ok := dedupeStore.(*cache.RedisIdempotencyStore); ok {
		redisClient = rs.GetClient()
		log.Info("Redis connected successfully")
	} else {
		log.Warn("Running with in-memory webhook dedupe; duplicates possible across instances")
	}

	// Channel registry: connectors, rate limits, circuit breakers
	credStore := registry.NewEnvCredentialStore()
	channelRegistry := registry.NewChannelRegistry(channelRepo, credStore, cfg.Sync, log)
	channelRegistry.Register(connector.NewShopifyConnector())
	channelRegistry.Register(connector.NewSquareConnector())
	channelRegistry.Register(connector.NewAmazonConnector())
	channelRegistry.Register(connector.NewGenericRESTConnector())

	// Durable job queue
	jobQueue := queue.NewQueue(jobRepo, cfg.Queue, log)

	// Instrument the hot paths: job outcomes, channel calls, breaker
	// transitions, webhook dispositions and sampled queue depth
	syncMetrics, err := telemetry.NewSyncMetrics(telemetry.SyncMetricsConfig{
		Meter:  meterProvider.Meter("channelsync"),
		Logger: log,
		Queue:  jobQueue,
	})
	if err != nil {
		log.Fatal("Failed to initialize sync metrics", zap.Error(err))
	}
	jobQueue.SetMetrics(syncMetrics)
	channelRegistry.SetMetrics(syncMetrics)

	// Event bus for domain events
	eventBus := event.NewInMemoryEventBus(log)
	if err := eventBus.Start(context.Background()); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	// Conflict detection
	detector := conflict.NewDetector(conflict.DetectorConfig{
		AbsoluteThreshold: decimal.NewFromFloat(cfg.Conflict.DetectionThreshold),
	})

	// Application services
	allocationService := appallocation.NewAllocationService(allocationRepo, channelRepo, log)
	allocationService.SetEventPublisher(eventBus)

	var forecastClient *forecast.Client
	if cfg.Forecast.Enabled {
		forecastClient = forecast.NewClient(cfg.Forecast, redisClient, log)
		allocationService.SetForecaster(forecastClient)
		log.Info("Demand forecast client enabled", zap.String("base_url", cfg.Forecast.BaseURL))
	}

	conflictService := appconflict.NewConflictService(conflictRepo, channelRepo, mappingRepo, channelRegistry, detector, log)
	conflictService.SetEventPublisher(eventBus)

	syncService := appsync.NewSyncService(
		jobRepo, statusRepo, channelRepo, mappingRepo, allocationRepo,
		channelRegistry, jobQueue, detector, conflictService, allocationService,
		cfg.Conflict, cfg.Allocation, log,
	)
	webhookService := appsync.NewWebhookService(
		channelRepo, webhookRecordRepo, channelRegistry, dedupeStore, jobQueue, cfg.Sync, log,
	)
	webhookService.SetMetrics(syncMetrics)
	monitor := appsync.NewMonitor(jobRepo, statusRepo, channelRepo, channelRegistry, log)

	// Start queue workers after all handlers are registered
	if cfg.Queue.Enabled {
		if err := jobQueue.Start(context.Background()); err != nil {
			log.Fatal("Failed to start job queue", zap.Error(err))
		}
		defer func() {
			if err := jobQueue.Stop(context.Background()); err != nil {
				log.Error("Error stopping job queue", zap.Error(err))
			}
		}()
		log.Info("Job queue started",
			zap.Int("sync_workers", cfg.Queue.SyncWorkers),
			zap.Int("webhook_workers", cfg.Queue.WebhookWorkers),
		)

		if meterProvider.IsEnabled() {
			syncMetrics.StartCollection(context.Background())
			defer syncMetrics.Stop()
		}
	}

	// HTTP handlers
	syncHandler := handler.NewSyncHandler(syncService, monitor)
	conflictHandler := handler.NewConflictHandler(conflictService)
	allocationHandler := handler.NewAllocationHandler(allocationService)
	webhookHandler := handler.NewWebhookHandler(webhookService)
	systemHandler := handler.NewSystemHandler(db.DB, redisClient, forecastClient, monitor)

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup validation
	middleware.SetupValidator()

	engine := gin.New()

	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Middleware stack, outermost first
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Tracing(middleware.TracingConfig{
		ServiceName: cfg.App.Name,
		Enabled:     cfg.Telemetry.Enabled,
	}))
	engine.Use(middleware.Secure())

	corsConfig := middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))

	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	if cfg.HTTP.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		engine.Use(middleware.RateLimit(rateLimiter))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	// Store scoping; webhook and health routes resolve without the header
	engine.Use(middleware.StoreMiddleware())
	engine.Use(middleware.SpanEnricher())

	// Liveness endpoint outside API versioning
	engine.GET("/health", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Register(syncHandler).
		Register(conflictHandler).
		Register(allocationHandler).
		Register(webhookHandler).
		Register(systemHandler)
	r.Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
