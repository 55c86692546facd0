package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meridian-his/meridian/internal/app"
	"github.com/meridian-his/meridian/internal/audit"
	"github.com/meridian-his/meridian/internal/auth"
	"github.com/meridian-his/meridian/internal/observability"
	"github.com/meridian-his/meridian/internal/platform/cache"
	"github.com/meridian-his/meridian/internal/platform/db"
	"github.com/meridian-his/meridian/internal/rbac"
	"github.com/meridian-his/meridian/internal/shared"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		// Covers the missing signing secret; the process must not serve
		// requests in that state.
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, permission cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)

	tokens, err := auth.NewTokenService(cfg.TokenSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	if err != nil {
		logger.Error("init token service", slog.Any("error", err))
		os.Exit(1)
	}

	rbacService := rbac.NewService(rbac.NewRepository(pool), redisClient, logger)
	gate := &rbac.Gate{Tokens: tokens, Service: rbacService, Logger: logger, Metrics: metrics}

	authService := auth.NewService(
		auth.NewRepository(pool),
		tokens,
		auth.LockoutPolicy{Threshold: cfg.LockoutThreshold, Window: cfg.LockoutWindow},
		rbacService,
		auditLogger,
		logger,
	).WithMetrics(metrics)

	router := app.NewRouter(app.RouterParams{
		Logger:       logger,
		Config:       cfg,
		AuthHandler:  auth.NewHandler(logger, authService),
		RBACHandler:  rbac.NewHandler(logger, rbacService),
		AuditHandler: audit.NewHandler(logger, audit.NewService(audit.NewRepository(pool))),
		Gate:         gate,
		Metrics:      metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
