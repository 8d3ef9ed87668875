package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	inventoryapp "github.com/meatco/stockledger/internal/application/inventory"
	"github.com/meatco/stockledger/internal/domain/inventory"
	"github.com/meatco/stockledger/internal/infrastructure/cache"
	"github.com/meatco/stockledger/internal/infrastructure/config"
	"github.com/meatco/stockledger/internal/infrastructure/event"
	"github.com/meatco/stockledger/internal/infrastructure/lock"
	"github.com/meatco/stockledger/internal/infrastructure/logger"
	"github.com/meatco/stockledger/internal/infrastructure/persistence"
	"github.com/meatco/stockledger/internal/infrastructure/scheduler"
	"github.com/meatco/stockledger/internal/infrastructure/telemetry"
	"github.com/meatco/stockledger/internal/interfaces/http/handler"
	"github.com/meatco/stockledger/internal/interfaces/http/middleware"
	"github.com/meatco/stockledger/internal/interfaces/http/router"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
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

	rootCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	// Telemetry: traces, metrics, log export and profiling
	serviceName := cfg.Telemetry.ServiceName
	if serviceName == "" {
		serviceName = cfg.App.Name
	}
	tracerProvider, err := telemetry.NewTracerProvider(rootCtx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       serviceName,
		ServiceVersion:    cfg.App.Version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(rootCtx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       serviceName,
		ServiceVersion:    cfg.App.Version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	loggerProvider, err := telemetry.NewLoggerProvider(rootCtx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       serviceName,
		ServiceVersion:    cfg.App.Version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize logger provider", zap.Error(err))
	}
	if loggerProvider.IsEnabled() {
		level, _ := logger.ParseLevel(cfg.Log.Level)
		log = telemetry.Bridge(log, loggerProvider, serviceName, level)
	}

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Profiling.Enabled,
		ServerAddress:     cfg.Profiling.ServerAddress,
		ApplicationName:   cfg.Profiling.ApplicationName,
		BasicAuthUser:     cfg.Profiling.BasicAuthUser,
		BasicAuthPassword: cfg.Profiling.BasicAuthPassword,
		ProfileTypes:      cfg.Profiling.ProfileTypes,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if cfg.Profiling.Enabled && cfg.Profiling.SpanProfiles && tracerProvider.IsEnabled() {
		if err := tracerProvider.EnableSpanProfiles(); err != nil {
			log.Warn("Span profiles not enabled", zap.Error(err))
		}
	}

	log.Info("Starting stock ledger",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("database", cfg.Database.Driver),
	)

	meter := meterProvider.Meter(serviceName)

	// Database with zap statement logging and optional instrumentation
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))
	dbOpts := []persistence.Option{persistence.WithGormLogger(gormLog)}

	var dbInstrumentation *telemetry.DBInstrumentation
	if cfg.Telemetry.Enabled && (cfg.Telemetry.DBTraceEnabled || cfg.Telemetry.MetricsEnabled) {
		dbSystem := "postgresql"
		if cfg.Database.Driver == config.DriverSQLite {
			dbSystem = "sqlite"
		}
		dbInstrumentation, err = telemetry.NewDBInstrumentation(telemetry.DBInstrumentationConfig{
			Tracing:            cfg.Telemetry.DBTraceEnabled,
			Metrics:            cfg.Telemetry.MetricsEnabled,
			LogFullSQL:         cfg.Telemetry.DBLogFullSQL,
			DBSystem:           dbSystem,
			SlowQueryThreshold: cfg.Telemetry.DBSlowQueryThresh,
		}, meter, log)
		if err != nil {
			log.Fatal("Failed to create database instrumentation", zap.Error(err))
		}
		dbOpts = append(dbOpts, persistence.WithPlugins(dbInstrumentation))
	}

	db, err := persistence.NewDatabase(&cfg.Database, dbOpts...)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(rootCtx, &cfg.Database, log); err != nil {
			log.Fatal("Failed to apply migrations", zap.Error(err))
		}
	}
	if dbInstrumentation != nil && cfg.Telemetry.MetricsEnabled {
		sqlDB, err := db.DB.DB()
		if err != nil {
			log.Fatal("Failed to access connection pool", zap.Error(err))
		}
		dbInstrumentation.StartPoolStatsCollection(rootCtx, sqlDB)
		defer dbInstrumentation.Stop()
	}

	// Redis backs the distributed lock and the idempotency store
	var redisClient redis.UniversalClient
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedisClient(rootCtx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Error("Error closing Redis client", zap.Error(err))
			}
		}()
		log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
	}

	var locker inventoryapp.ProductLocker
	switch cfg.Ledger.LockBackend {
	case config.BackendRedis:
		locker = lock.NewRedisLocker(redisClient, lock.RedisLockerConfig{
			KeyPrefix:   "stockledger:lock:",
			TTL:         cfg.Ledger.LockTTL,
			WaitTimeout: cfg.Ledger.LockWaitTimeout,
		}, log)
	default:
		locker = lock.NewKeyedMutex()
	}

	idempotencyStore, err := cache.NewIdempotencyStoreFactory(cfg.Ledger,
		cache.WithLogger(log),
		cache.WithRedisClient(redisClient),
		cache.WithKeyPrefix("stockledger:idem:"),
		cache.WithInMemoryFallback(!cfg.App.IsProduction()),
	).CreateStore()
	if err != nil {
		log.Fatal("Failed to create idempotency store", zap.Error(err))
	}
	defer func() {
		if err := idempotencyStore.Close(); err != nil {
			log.Error("Error closing idempotency store", zap.Error(err))
		}
	}()

	// Event bus: stock alerts are delivered at most once per event id
	eventBus := event.NewInMemoryEventBus(log)
	alertHandler := inventoryapp.NewStockAlertHandler(log).
		WithNotifier(inventoryapp.NewLoggingStockAlertNotifier(log))
	eventBus.Subscribe(event.NewIdempotentHandler(alertHandler, idempotencyStore, cfg.Ledger.IdempotencyTTL, log),
		alertHandler.EventTypes()...)
	if err := eventBus.Start(rootCtx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	// Application services
	txScope := persistence.NewGormTransactionScope(db.DB)
	defaults := inventory.TrackingSettings{
		SafetyStock: cfg.Ledger.DefaultSafetyStock,
		Location:    inventory.StorageLocation(cfg.Ledger.DefaultLocation),
	}

	monitorService := inventoryapp.NewStockMonitorService(txScope, log)
	ledgerMetrics, err := telemetry.NewLedgerMetrics(telemetry.LedgerMetricsConfig{
		Meter:         meter,
		Logger:        log,
		StatusCounter: monitorService,
	})
	if err != nil {
		log.Fatal("Failed to create ledger metrics", zap.Error(err))
	}
	if meterProvider.IsEnabled() {
		ledgerMetrics.StartPeriodicCollection(rootCtx, cfg.Ledger.MetricsInterval)
	}
	defer ledgerMetrics.Stop()

	lotService := inventoryapp.NewLotService(txScope, locker, log)
	receiptService := inventoryapp.NewReceiptService(txScope, locker, log)
	ledgerService := inventoryapp.NewLedgerService(txScope, locker, log)
	allocationService := inventoryapp.NewAllocationService(txScope, locker, log)
	projectionService := inventoryapp.NewProjectionService(txScope, locker, log)
	expirySweeper := inventoryapp.NewExpirySweeper(txScope, locker, log)

	receiptService.SetDefaults(defaults)
	if err := projectionService.SetDefaults(defaults); err != nil {
		log.Fatal("Invalid ledger defaults", zap.Error(err))
	}
	allocationService.SetIdempotencyStore(idempotencyStore, cfg.Ledger.IdempotencyTTL)

	lotService.SetMetrics(ledgerMetrics)
	receiptService.SetMetrics(ledgerMetrics)
	ledgerService.SetMetrics(ledgerMetrics)
	allocationService.SetMetrics(ledgerMetrics)
	projectionService.SetMetrics(ledgerMetrics)
	expirySweeper.SetMetrics(ledgerMetrics)

	lotService.SetEventPublisher(eventBus)
	receiptService.SetEventPublisher(eventBus)
	ledgerService.SetEventPublisher(eventBus)
	allocationService.SetEventPublisher(eventBus)
	projectionService.SetEventPublisher(eventBus)
	expirySweeper.SetEventPublisher(eventBus)

	// Background expiry sweep
	if cfg.Expiry.SweeperEnabled {
		triggerCfg := scheduler.DefaultExpirySweepTriggerConfig()
		if cfg.Expiry.CheckInterval > 0 {
			triggerCfg.CheckInterval = cfg.Expiry.CheckInterval
		}
		triggerCfg.RunOnStart = cfg.Expiry.RunOnStart
		trigger, err := scheduler.NewExpirySweepTrigger(triggerCfg, expirySweeper, log)
		if err != nil {
			log.Fatal("Failed to create expiry sweep trigger", zap.Error(err))
		}
		if err := trigger.Start(rootCtx); err != nil {
			log.Fatal("Failed to start expiry sweep trigger", zap.Error(err))
		}
		defer func() {
			if err := trigger.Stop(context.Background()); err != nil {
				log.Error("Error stopping expiry sweep trigger", zap.Error(err))
			}
		}()
		log.Info("Expiry sweeper started", zap.Duration("interval", triggerCfg.CheckInterval))
	}

	// HTTP
	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Fatal("Invalid trusted proxies", zap.Error(err))
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.GinMiddleware(log))
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.HTTP.CORSAllowOrigins,
		AllowMethods: cfg.HTTP.CORSAllowMethods,
		AllowHeaders: cfg.HTTP.CORSAllowHeaders,
	}))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))
	engine.Use(middleware.Tracing(middleware.TracingConfig{
		ServiceName: serviceName,
		Enabled:     tracerProvider.IsEnabled(),
	}))
	engine.Use(middleware.SpanEnricher())
	engine.Use(middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
		MeterProvider: meterProvider,
		Enabled:       meterProvider.IsEnabled(),
	}))
	profilingCfg := middleware.DefaultProfilingConfig()
	profilingCfg.Enabled = profiler.IsEnabled()
	engine.Use(middleware.Profiling(profilingCfg))

	var rateLimiter *middleware.RateLimiter
	if cfg.HTTP.RateLimit > 0 {
		rateLimiter = middleware.NewRateLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateWindow)
		engine.Use(middleware.RateLimit(rateLimiter))
	}
	engine.Use(middleware.Timeout(cfg.HTTP.RequestTimeout))

	checks := map[string]handler.Pinger{"database": db}
	if redisClient != nil {
		checks["redis"] = handler.PingerFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	router.Mount(engine, router.Handlers{
		Lots:        handler.NewLotHandler(lotService, receiptService, expirySweeper, cfg.Expiry.ExpiringDays, log),
		Movements:   handler.NewMovementHandler(ledgerService, log),
		Allocations: handler.NewAllocationHandler(allocationService, log),
		Inventory:   handler.NewInventoryHandler(projectionService, monitorService, log),
		System:      handler.NewSystemHandler(cfg.App.Name, cfg.App.Version, checks, log),
	})

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
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if rateLimiter != nil {
		rateLimiter.Stop()
	}
	stopBackground()

	if err := tracerProvider.Shutdown(ctx); err != nil {
		log.Error("Error shutting down tracer provider", zap.Error(err))
	}
	if err := meterProvider.Shutdown(ctx); err != nil {
		log.Error("Error shutting down meter provider", zap.Error(err))
	}
	if err := loggerProvider.Shutdown(ctx); err != nil {
		log.Error("Error shutting down logger provider", zap.Error(err))
	}
	if err := profiler.Stop(); err != nil {
		log.Error("Error stopping profiler", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
