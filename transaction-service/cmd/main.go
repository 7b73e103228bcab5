package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/eaglebank/wallet/shared/config"
	"github.com/eaglebank/wallet/shared/database"
	"github.com/eaglebank/wallet/shared/events"
	"github.com/eaglebank/wallet/shared/logging"
	"github.com/eaglebank/wallet/shared/middleware"
	redisClient "github.com/eaglebank/wallet/shared/redis"
	"github.com/eaglebank/wallet/transaction-service/internal/client"
	txcmd "github.com/eaglebank/wallet/transaction-service/internal/command"
	"github.com/eaglebank/wallet/transaction-service/internal/handler"
	"github.com/eaglebank/wallet/transaction-service/internal/metrics"
	txqry "github.com/eaglebank/wallet/transaction-service/internal/query"
	"github.com/eaglebank/wallet/transaction-service/internal/repository"
	"github.com/eaglebank/wallet/transaction-service/internal/service"
	"github.com/eaglebank/wallet/transaction-service/migrations"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadTransactionService()
	if err != nil {
		panic(err)
	}
	logger := logging.Must("transaction-service", cfg.Env, cfg.LogLevel)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database connection (sagas and transfer history)
	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if cfg.MigrateOnStart {
		if err := database.Migrate(db, migrations.FS, "."); err != nil {
			logger.Fatal("failed to migrate database", zap.Error(err))
		}
	}

	// Redis connection (identity cache, saga locks, event streaming)
	redis, err := redisClient.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redis.Close()

	// --- collaborators ---
	breaker := client.DefaultBreakerSettings()
	ledgers := client.NewLedgerClient(cfg.LedgerServiceURL, cfg.CallTimeout, breaker, logger)
	identity := client.NewIdentityClient(cfg.UserServiceURL, cfg.CallTimeout, breaker, redis.Client, cfg.IdentityCacheTTL, logger)

	lockOpts := redisClient.DefaultLockOptions()
	lockOpts.Expiry = cfg.LockTTL
	locker := redisClient.NewLocker(redis.Client, lockOpts, logger)
	publisher := events.NewPublisher(redis.Client)
	walletMetrics := metrics.New(prometheus.DefaultRegisterer)

	// --- CQRS wiring ---
	sagaRepo := repository.NewSagaRepository(db)
	writeRepo := repository.NewTransferWriteRepository(db)
	readRepo := repository.NewTransferReadRepository(db, redis.Client, logger)
	history := service.NewTransferHistory(writeRepo, readRepo)

	opts := txcmd.DefaultOptions()
	opts.InlineCompensationAttempts = cfg.InlineCompensationAttempts
	opts.MaxCompensationAttempts = cfg.MaxCompensationAttempts
	opts.StaleAfter = cfg.StaleAfter

	commandSvc := txcmd.NewTransferCommandService(txcmd.Dependencies{
		Ledgers:   ledgers,
		Identity:  identity,
		Sagas:     sagaRepo,
		History:   history,
		Locker:    locker,
		Publisher: publisher,
		Metrics:   walletMetrics,
	}, opts, logger)
	querySvc := txqry.NewTransferQueryService(ledgers, readRepo, sagaRepo)

	recovery := txcmd.NewRecoveryWorker(sagaRepo, commandSvc, walletMetrics, txcmd.RecoveryOptions{
		Interval:  cfg.RecoveryInterval,
		BatchSize: cfg.RecoveryBatchSize,
		Lease:     cfg.StaleAfter,
	}, logger)

	hostname, _ := os.Hostname()
	userEvents := events.NewSubscriber(redis.Client, events.SubscriberConfig{
		Group:    "transaction-service",
		Consumer: "transaction-service-" + hostname,
		Stream:   events.UserEventsStream,
		Handler:  identity.HandleUserEvent,
	}, logger)

	var workers sync.WaitGroup
	workers.Add(2)
	go func() {
		defer workers.Done()
		recovery.Start(ctx)
	}()
	go func() {
		defer workers.Done()
		if err := userEvents.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("user event subscriber stopped", zap.Error(err))
		}
	}()

	transferHandler := handler.NewTransferHandler(commandSvc, querySvc)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.LoggingMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": err.Error()})
			return
		}
		if err := redis.Healthy(c.Request.Context(), time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "redis": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	transferHandler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("transaction service starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	workers.Wait()
}
