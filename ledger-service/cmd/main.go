package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	ledgercmd "github.com/eaglebank/wallet/ledger-service/internal/command"
	"github.com/eaglebank/wallet/ledger-service/internal/handler"
	ledgerqry "github.com/eaglebank/wallet/ledger-service/internal/query"
	"github.com/eaglebank/wallet/ledger-service/internal/repository"
	"github.com/eaglebank/wallet/ledger-service/migrations"
	"github.com/eaglebank/wallet/shared/config"
	"github.com/eaglebank/wallet/shared/database"
	"github.com/eaglebank/wallet/shared/events"
	"github.com/eaglebank/wallet/shared/logging"
	"github.com/eaglebank/wallet/shared/middleware"
	redisClient "github.com/eaglebank/wallet/shared/redis"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadLedgerService()
	if err != nil {
		panic(err)
	}
	logger := logging.Must("ledger-service", cfg.Env, cfg.LogLevel)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database connection (source of truth for balances)
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

	// Redis connection (event streaming)
	redis, err := redisClient.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redis.Close()

	// --- CQRS wiring ---
	publisher := events.NewPublisher(redis.Client)

	writeRepo := repository.NewLedgerWriteRepository(db)
	readRepo := repository.NewLedgerReadRepository(db)

	commandSvc := ledgercmd.NewLedgerCommandService(writeRepo, publisher, logger)
	querySvc := ledgerqry.NewLedgerQueryService(readRepo)

	ledgerHandler := handler.NewLedgerHandler(commandSvc, querySvc)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.LoggingMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	ledgerHandler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("ledger service starting", zap.String("port", cfg.Port))
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
}
