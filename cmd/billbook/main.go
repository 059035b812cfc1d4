package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/billbook-app/billbook/internal/app"
	"github.com/billbook-app/billbook/internal/billing"
	"github.com/billbook-app/billbook/internal/challans"
	"github.com/billbook-app/billbook/internal/masterdata"
	"github.com/billbook-app/billbook/internal/observability"
	"github.com/billbook-app/billbook/internal/platform/cache"
	"github.com/billbook-app/billbook/internal/platform/db"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
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
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	masterdataRepo := masterdata.NewRepository(pool)
	masterdataHandler := masterdata.NewHandler(logger, masterdataRepo)

	billingCache := billing.NewCache(logger, redisClient, cfg.UnbilledCacheTTL)

	challanRepo := challans.NewRepository(pool)
	challanService := challans.NewService(logger, challanRepo, billingCache)
	challanHandler := challans.NewHandler(logger, challanService)

	billingRepo := billing.NewRepository(pool, challanRepo)
	billingService := billing.NewService(logger, billingRepo, billingCache)
	billingHandler := billing.NewHandler(logger, billingService, metrics)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		MasterDataHandler: masterdataHandler,
		ChallanHandler:    challanHandler,
		BillingHandler:    billingHandler,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}
