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

	"notiflow/internal/api"
	"notiflow/internal/config"
	"notiflow/internal/metrics"
	"notiflow/internal/model"
	"notiflow/internal/provider"
	"notiflow/internal/ratelimit"
	"notiflow/internal/repository"
	"notiflow/internal/service"
	"notiflow/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()

	// Initialize logger
	logger.InitLogger(cfg.Server.Environment)
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.Error("application startup failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	// 2. Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Initialize Infrastructure
	rdb, err := initRedis(cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	db, err := initDB(cfg.MySQL)
	if err != nil {
		return err
	}

	// 4. Initialize Repositories
	jobRepo := repository.NewJobRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	businessRepo := repository.NewBusinessRepository(db)
	contactRepo := repository.NewContactRepository(db)

	// 5. Initialize Providers & Rate Limiter
	registry := provider.NewRegistry(
		provider.NewSMSGateway(provider.GatewayConfig{
			Name:          cfg.Providers.SMS.Name,
			Endpoint:      cfg.Providers.SMS.Endpoint,
			APIKey:        cfg.Providers.SMS.APIKey,
			WebhookSecret: cfg.Providers.SMS.WebhookSecret,
			SendTimeout:   cfg.Providers.SMS.SendTimeout,
		}),
		provider.NewMailGateway(provider.MailConfig{
			Name:          cfg.Providers.Email.Name,
			Endpoint:      cfg.Providers.Email.Endpoint,
			APIKey:        cfg.Providers.Email.APIKey,
			FromAddress:   cfg.Providers.Email.FromAddress,
			WebhookSecret: cfg.Providers.Email.WebhookSecret,
			SendTimeout:   cfg.Providers.Email.SendTimeout,
		}),
	)

	limiter := ratelimit.NewLimiter(rdb)
	limiter.SetRate(cfg.Providers.SMS.Name, ratelimit.Rate{
		PerSecond: cfg.Providers.SMS.RatePerSecond,
		Burst:     cfg.Providers.SMS.Burst,
	})
	limiter.SetRate(cfg.Providers.Email.Name, ratelimit.Rate{
		PerSecond: cfg.Providers.Email.RatePerSecond,
		Burst:     cfg.Providers.Email.Burst,
	})

	// 6. Initialize Services
	observer := metrics.NewPrometheusObserver()
	queueSvc := service.NewQueueService(db, jobRepo, observer)
	notifySvc := service.NewNotificationService(messageRepo, businessRepo, observer)
	ingestSvc := service.NewIngestService(messageRepo, contactRepo, queueSvc, rdb, observer, cfg.Queue.SendDelay)

	policy := service.RetryPolicy{
		MaxRetries: cfg.Dispatcher.MaxRetries,
		Backoff:    cfg.Dispatcher.BackoffSchedule,
	}
	dispatcher := service.NewDispatcher(
		db, messageRepo, contactRepo, registry, limiter, policy, observer,
		cfg.Dispatcher.PollInterval, cfg.Dispatcher.BatchSize,
	)
	sweeper := service.NewSweeper(db, jobRepo, messageRepo, cfg.Queue.SweepInterval, cfg.Queue.SweepBatch)

	// 7. Start background routines
	go func() {
		logger.Info("starting dispatcher")
		dispatcher.Run(ctx)
	}()
	go func() {
		logger.Info("starting job sweeper")
		sweeper.Run(ctx)
	}()

	// 8. Setup HTTP Server
	r := api.RegisterRoutes(
		api.NewMessageHandler(notifySvc, queueSvc),
		api.NewWebhookHandler(ingestSvc, registry, businessRepo),
		api.NewHealthHandler(db, rdb),
		cfg.Auth.JWTSecret,
		cfg.Server.Environment,
	)

	srv := &http.Server{
		Addr:    cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", cfg.Server.Port),
			zap.String("env", cfg.Server.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen failed", zap.Error(err))
		}
	}()

	// 9. Graceful Shutdown Signal Wait
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Signal workers to stop
	cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exited properly")
	return nil
}

// -- Infrastructure Initializers --

func initRedis(cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

func initDB(cfg config.MySQLConfig) (*gorm.DB, error) {
	// TranslateError maps driver duplicate-key errors to gorm.ErrDuplicatedKey,
	// which the queue relies on for racing enqueues.
	db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mysql: %w", err)
	}

	// Simple auto-migrate for dev convenience
	err = db.AutoMigrate(
		&model.Business{},
		&model.OrderContact{},
		&model.QueuedJob{},
		&model.OutboxMessage{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}
