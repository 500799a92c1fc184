package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agenciamidas/capi-gateway/internal/api"
	"github.com/agenciamidas/capi-gateway/internal/config"
	"github.com/agenciamidas/capi-gateway/internal/dispatch"
	"github.com/agenciamidas/capi-gateway/internal/idempotency"
	"github.com/agenciamidas/capi-gateway/internal/normalizer"
	"github.com/agenciamidas/capi-gateway/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if cfg.SharedSecret == "" {
		logger.Warn("SHARED_SECRET not set: signature verification is DISABLED on /webhook")
	}
	if cfg.FluxlabsSecret == "" {
		logger.Warn("FLUXLABS_SECRET not set: signature verification is DISABLED on /webhook/fluxlabs")
	}

	ctx := context.Background()

	// One connection attempt; on failure the process runs on memory until
	// restart.
	idemStore := idempotency.Select(ctx, cfg.RedisURL, logger)

	// Dispatch audit log is optional.
	var audit dispatch.AuditLog
	if cfg.DatabaseURL != "" {
		pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pgStore.Close()
		audit = pgStore
		logger.Info("dispatch audit log enabled")
	}

	norm := normalizer.New(idemStore, normalizer.Options{
		SpecialReferrer:     cfg.SpecialReferrer,
		DropRedeposits:      cfg.DropRedeposits,
		DefaultCurrency:     cfg.DefaultCurrency,
		AllowedEvents:       cfg.AllowedEvents,
		ExtraDepositAliases: cfg.DepositAliases,
	}, logger)

	client := dispatch.NewClient(cfg.CAPIBaseURL, cfg.TestEventCode)
	dispatcher := dispatch.New(client, cfg.Pixels, audit, logger)

	webhook := api.NewWebhookHandler(cfg, norm, dispatcher, logger)
	router := api.NewRouter(webhook, api.HealthHandler(cfg.Pixels))

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			"port", cfg.Port,
			"pixels_configured", len(cfg.Pixels),
			"idempotency_backend", idemStore.Name(),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
