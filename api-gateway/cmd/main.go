package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/eaglebank/wallet/api-gateway/internal/proxy"
	"github.com/eaglebank/wallet/shared/config"
	"github.com/eaglebank/wallet/shared/logging"
	"github.com/eaglebank/wallet/shared/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadGateway()
	if err != nil {
		panic(err)
	}
	logger := logging.Must("api-gateway", cfg.Env, cfg.LogLevel)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	upstream := proxy.New(cfg.UpstreamTimeout, logger)
	// Money-moving writes wait out the transaction service's full saga.
	writes := proxy.New(cfg.TransferTimeout, logger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.LoggingMiddleware(logger))

	router.GET("/health", upstream.Health(map[string]string{
		"transaction-service": cfg.TransactionServiceURL,
		"ledger-service":      cfg.LedgerServiceURL,
		"user-service":        cfg.UserServiceURL,
	}, 2*time.Second))

	v1 := router.Group("/v1", middleware.AuthMiddleware([]byte(cfg.JWTSecret)))
	{
		// Transfer routes
		v1.POST("/transfers", writes.To(cfg.TransactionServiceURL, "/transfers"))
		v1.GET("/transfers", upstream.To(cfg.TransactionServiceURL, "/transfers"))
		v1.GET("/transfers/:transferId", upstream.To(cfg.TransactionServiceURL, "/transfers/:transferId"))
		v1.POST("/topups", writes.To(cfg.TransactionServiceURL, "/topups"))

		// Wallet routes
		v1.GET("/wallet", upstream.To(cfg.LedgerServiceURL, "/ledgers/me"))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("api gateway starting", zap.String("port", cfg.Port))
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
