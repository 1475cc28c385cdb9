// Package main запускает HTTP-сервер биллинга гостиницы.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/hotel-billing/internal/billing"
	"github.com/mmeshcher/hotel-billing/internal/config"
	"github.com/mmeshcher/hotel-billing/internal/handler"
	"github.com/mmeshcher/hotel-billing/internal/metrics"
	"github.com/mmeshcher/hotel-billing/internal/middleware"
	"github.com/mmeshcher/hotel-billing/internal/repository"
	"github.com/mmeshcher/hotel-billing/internal/store"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	var records store.RecordStore
	if cfg.DatabaseURI != "" {
		repo, err := repository.NewPostgresStore(cfg.DatabaseURI)
		if err != nil {
			sugar.Fatalw("database initialization error", "error", err.Error())
		}
		defer repo.Close()
		records = repo
	} else {
		sugar.Warn("DATABASE_URI is empty, using in-memory store")
		records = store.NewMemory(store.WithUnique(billing.Table, billing.InvoiceNumberField))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	billingMetrics, err := metrics.NewBilling(registry)
	if err != nil {
		sugar.Fatalw("metrics initialization error", "error", err.Error())
	}

	engine := billing.NewEngine(records, logger,
		billing.WithDefaultTaxRate(cfg.DefaultTaxRate),
		billing.WithStrictReports(cfg.StrictTaxReports),
		billing.WithMetrics(billingMetrics),
	)

	auth := middleware.NewAdminAuth(cfg.AdminToken)
	if !auth.Enabled() {
		sugar.Warn("ADMIN_TOKEN is empty, admin API is not protected")
	}

	h := handler.NewHandler(engine, logger, auth, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: h.SetupRouter(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sugar.Infow("starting hotel billing server",
			"addr", cfg.RunAddress,
			"defaultTaxRate", cfg.DefaultTaxRate.String(),
			"strictTaxReports", cfg.StrictTaxReports,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
