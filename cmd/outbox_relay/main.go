package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/chilli-trade-ledger/internal/config"
	"github.com/chilli-trade-ledger/internal/data/postgres"
	"github.com/chilli-trade-ledger/internal/logger"
	"github.com/chilli-trade-ledger/internal/outbox_relay"
	"github.com/chilli-trade-ledger/internal/platform/messaging/producers"
	"github.com/chilli-trade-ledger/internal/platform/metrics"
	"github.com/chilli-trade-ledger/internal/platform/persistence"
)

func main() {
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("outbox_relay")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)

	log.Info("Starting Outbox Relay",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

	m := metrics.New("chilli_outbox_relay")

	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	outboxRepo := postgres.NewOutboxRepository(log, postgresDB)

	changeProducer, err := producers.NewSessionChangeProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize session change producer", "error", err)
		os.Exit(1)
	}

	publisher := outbox_relay.NewChangePublisher(outboxRepo, changeProducer, log)
	poller := outbox_relay.NewPoller(&cfg.Outbox, outboxRepo, publisher, m, log)

	metricsServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      m.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errChan := make(chan error, 1)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Start(appCtx)
	}()

	go func() {
		log.Info("Serving metrics", "port", cfg.Server.Port)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	var serviceErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Service error occurred", "error", err)
		serviceErr = err
	}

	cancelAppCtx()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	if err = metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Error stopping metrics server", "error", err)
	}

	wgChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(wgChan)
	}()

	select {
	case <-wgChan:
		log.Info("Outbox poller stopped")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}

	if err = changeProducer.Close(); err != nil {
		log.Error("Error closing session change producer", "error", err)
	}

	postgresDB.Close()

	if serviceErr != nil {
		log.Error("Outbox Relay shutdown with errors", "error", serviceErr)
	}
	if err != nil {
		log.Error("Outbox Relay shutdown completed with errors")
	} else {
		log.Info("Outbox Relay shutdown completed successfully")
	}
}
