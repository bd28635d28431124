package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/amirphl/mspace-dashboard/app/handlers"
	"github.com/amirphl/mspace-dashboard/app/middleware"
	"github.com/amirphl/mspace-dashboard/app/router"
	"github.com/amirphl/mspace-dashboard/app/scheduler"
	"github.com/amirphl/mspace-dashboard/app/services"
	businessflow "github.com/amirphl/mspace-dashboard/business_flow"
	"github.com/amirphl/mspace-dashboard/config"
	"github.com/amirphl/mspace-dashboard/repository"
	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Application represents the main application structure
type Application struct {
	router    router.Router
	config    *config.ProductionConfig
	server    *fiber.App
	sender    businessflow.CampaignSender
	campaigns repository.CampaignRepository
	stopFuncs []func()
}

// setupLogging routes the standard logger to stdout, a rotating file, or both
func setupLogging(cfg config.LoggingConfig) io.Writer {
	var fileWriter io.Writer
	if cfg.Output == "file" || cfg.Output == "both" {
		if dir := filepath.Dir(cfg.FilePath); dir != "" {
			_ = os.MkdirAll(dir, 0o755)
		}
		fileWriter = &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
	}

	var out io.Writer = os.Stdout
	switch cfg.Output {
	case "file":
		out = fileWriter
	case "both":
		out = io.MultiWriter(os.Stdout, fileWriter)
	}

	log.SetOutput(out)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.LUTC)
	return out
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}

// initializeCache initializes the Redis client. A nil client means the cache is disabled.
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established (db=%d)", cfg.RedisDB)
	return rc, nil
}

// startCacheHealthMonitor periodically pings Redis. The returned function stops the monitor.
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					log.Printf("Redis healthcheck failed: %v", err)
				}
				c()
			}
		}
	}()
	return cancel
}

// initializeEventPublisher connects to the broker when messaging is enabled.
// A broker that cannot be reached downgrades to the no-op publisher.
func initializeEventPublisher(cfg config.MessagingConfig) services.EventPublisher {
	if !cfg.Enabled {
		return services.NoopEventPublisher{}
	}
	publisher, err := services.NewAMQPEventPublisher(cfg.AMQPURL, cfg.Exchange, cfg.RoutingKey)
	if err != nil {
		log.Printf("Event publisher disabled: %v", err)
		return services.NoopEventPublisher{}
	}
	log.Printf("Event publisher connected (exchange=%s)", cfg.Exchange)
	return publisher
}

func newTokenService(cfg *config.ProductionConfig) (services.TokenService, error) {
	tokenService, err := services.NewTokenService(cfg.JWT.SecretKey, cfg.JWT.Issuer, cfg.JWT.Audience)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}
	return tokenService, nil
}

func initializeMspaceClient(cfg *config.MspaceConfig) services.MspaceClient {
	if cfg.IsMock() {
		log.Println("Mspace client running in mock mode")
		return services.NewMockMspaceClient(100000)
	}
	return services.NewMspaceClient(cfg)
}

// newRedisServices builds the balance cache and campaign locker, falling back to
// in-process implementations when redis is unavailable
func newRedisServices(rc *redis.Client, cfg *config.ProductionConfig) (services.BalanceCache, services.CampaignLocker) {
	if rc == nil {
		return services.NoopBalanceCache{}, services.NewLocalCampaignLocker()
	}
	return services.NewRedisBalanceCache(rc, cfg.Cache.RedisPrefix, cfg.Mspace.BalanceCacheTTL),
		services.NewRedisCampaignLocker(rc, cfg.Cache.RedisPrefix)
}

// initializeApplication wires repositories, services, flows and the HTTP layer
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	var stopFuncs []func()

	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		log.Printf("Cache disabled: %v", err)
	}

	if rc != nil {
		stopFuncs = append(stopFuncs, startCacheHealthMonitor(context.Background(), rc, cfg.Cache.HealthCheckInterval))
	}
	balanceCache, locker := newRedisServices(rc, cfg)

	cipher, err := services.NewCredentialCipher(cfg.Security.CredentialKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credential cipher: %w", err)
	}

	tokenService, err := newTokenService(cfg)
	if err != nil {
		return nil, err
	}
	log.Printf("Token service initialized with issuer: %s, audience: %s", cfg.JWT.Issuer, cfg.JWT.Audience)

	events := initializeEventPublisher(cfg.Messaging)
	stopFuncs = append(stopFuncs, func() {
		if err := events.Close(); err != nil {
			log.Printf("Event publisher close failed: %v", err)
		}
	})

	// Repositories
	campaignRepo := repository.NewCampaignRepository(db)
	dataModelRepo := repository.NewDataModelRepository(db)
	recordRepo := repository.NewRecordRepository(db)
	deliveryRepo := repository.NewCampaignDeliveryRepository(db)
	historyRepo := repository.NewMessageHistoryRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)
	credentialRepo := repository.NewProviderCredentialRepository(db)
	settingRepo := repository.NewPlatformSettingRepository(db)
	accountRepo := repository.NewCreditAccountRepository(db)
	txRepo := repository.NewCreditTransactionRepository(db)
	transact := repository.NewTransactor(db)

	// Services
	provider := initializeMspaceClient(&cfg.Mspace)
	throttle := services.NewSendThrottle(cfg.Mspace.RequestsPerSecond, cfg.Mspace.Burst)

	// Flows
	credentials := businessflow.NewCredentialStore(credentialRepo, settingRepo, cipher)
	resolver := businessflow.NewRecipientResolver(recordRepo)
	ledgerFlow := businessflow.NewLedgerFlow(accountRepo, txRepo, auditRepo, transact, credentials, provider)
	sendFlow := businessflow.NewCampaignSendFlow(
		campaignRepo,
		recordRepo,
		deliveryRepo,
		historyRepo,
		auditRepo,
		transact,
		resolver,
		credentials,
		provider,
		ledgerFlow,
		locker,
		throttle,
		events,
		cfg.Mspace,
	)
	campaignFlow := businessflow.NewCampaignFlow(campaignRepo, dataModelRepo, auditRepo, sendFlow)
	providerFlow := businessflow.NewProviderFlow(credentials, provider, ledgerFlow, historyRepo, auditRepo, balanceCache, throttle, cfg.Mspace)
	dataModelFlow := businessflow.NewDataModelFlow(dataModelRepo, recordRepo, resolver, cfg.Mspace)
	historyFlow := businessflow.NewMessageHistoryFlow(historyRepo, campaignRepo)

	authMiddleware := middleware.NewAuthMiddleware(tokenService)
	appRouter := router.NewFiberRouter(cfg, router.Handlers{
		Provider:  handlers.NewProviderHandler(providerFlow),
		Campaign:  handlers.NewCampaignHandler(campaignFlow),
		DataModel: handlers.NewDataModelHandler(dataModelFlow),
		Ledger:    handlers.NewLedgerHandler(ledgerFlow),
		Message:   handlers.NewMessageHandler(historyFlow),
	}, authMiddleware)

	application := &Application{
		router:    appRouter,
		config:    cfg,
		server:    appRouter.GetApp(),
		sender:    sendFlow,
		campaigns: campaignRepo,
		stopFuncs: stopFuncs,
	}

	return application, nil
}

// startScheduler starts the cron jobs when enabled and registers their stop function
func (a *Application) startScheduler(logOutput io.Writer) error {
	if !a.config.Scheduler.Enabled {
		return nil
	}
	logger := log.New(logOutput, "scheduler ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
	sched := scheduler.NewCampaignScheduler(a.campaigns, a.sender, a.config.Scheduler, logger)
	stop, err := sched.Start(context.Background())
	if err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	// Stop the scheduler before anything it depends on
	a.stopFuncs = append([]func(){stop}, a.stopFuncs...)
	return nil
}

func (a *Application) shutdown() {
	for _, fn := range a.stopFuncs {
		fn()
	}
}
