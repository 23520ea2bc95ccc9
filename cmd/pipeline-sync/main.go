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

	"dealership_portal/internal/board"
	"dealership_portal/internal/crm"
	apphttp "dealership_portal/internal/http"
	"dealership_portal/internal/http/router"
	"dealership_portal/internal/pipeline/realtime"
	"dealership_portal/platform/config"
	"dealership_portal/platform/events"
	"dealership_portal/platform/logger"
	"dealership_portal/platform/validator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting pipeline sync server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	crmClient, err := crm.New(cfg, log)
	if err != nil {
		log.Error("failed to create CRM client", "error", err)
		panic("failed to create CRM client: " + err.Error())
	}

	if err := withRetry(ctx, log, "CRM reachability", 5, 2*time.Second, func() error {
		return crmClient.Ping(ctx)
	}); err != nil {
		log.Error("CRM unreachable", "error", err)
		panic("CRM unreachable: " + err.Error())
	}
	log.Info("CRM reachable", "baseUrl", cfg.GetCRMBaseURL())

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()

	sources, closeSources, err := realtime.SourcesFromConfig(cfg, cfg.GetCRMAPIToken(), log)
	if err != nil {
		log.Error("failed to configure realtime sources", "error", err)
		panic("failed to configure realtime sources: " + err.Error())
	}
	defer closeSources()

	bridge := realtime.NewBridge(eventBus, log, sources...)
	go func() {
		if err := bridge.Run(ctx); err != nil {
			log.Error("realtime bridge stopped", "error", err)
		}
	}()

	// ========================================================================
	// Domain Modules
	// ========================================================================

	boardModule := board.NewModule(crmClient, eventBus, cfg, val, log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   crmClient,
		EventBus: eventBus,
		Modules: []apphttp.Module{
			boardModule,
		},
	}

	waitWorkers := app.StartWorkers(ctx)

	engine := router.New(app)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
		waitWorkers()
		eventBus.Wait()
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
