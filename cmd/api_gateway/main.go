package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/chilli-trade-ledger/internal/api_gateway"
	"github.com/chilli-trade-ledger/internal/api_gateway/handler"
	"github.com/chilli-trade-ledger/internal/api_gateway/idle_watcher"
	"github.com/chilli-trade-ledger/internal/api_gateway/notifier"
	"github.com/chilli-trade-ledger/internal/api_gateway/service"
	"github.com/chilli-trade-ledger/internal/config"
	"github.com/chilli-trade-ledger/internal/data/mongo"
	"github.com/chilli-trade-ledger/internal/data/postgres"
	redisstore "github.com/chilli-trade-ledger/internal/data/redis"
	"github.com/chilli-trade-ledger/internal/logger"
	"github.com/chilli-trade-ledger/internal/platform/auth"
	"github.com/chilli-trade-ledger/internal/platform/messaging/consumers"
	"github.com/chilli-trade-ledger/internal/platform/messaging/producers"
	"github.com/chilli-trade-ledger/internal/platform/metrics"
	"github.com/chilli-trade-ledger/internal/platform/persistence"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("api_gateway")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)
	m := metrics.New("chilli_api_gateway")

	// Initialize stores with app context
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB, cfg.Application.Name)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	redisDB, err := persistence.NewRedisDB(appCtx, log, &cfg.Redis)
	if err != nil {
		log.Error("Failed to initialize Redis", "error", err)
		os.Exit(1)
	}

	// Initialize repositories
	sessionRepo := postgres.NewSessionRepository(log, postgresDB)
	outboxRepo := postgres.NewOutboxRepository(log, postgresDB)
	userRepo := mongo.NewUserRepository(log, mongoDB.Database())
	if err := userRepo.EnsureIndexes(appCtx); err != nil {
		log.Error("Failed to create user indexes", "error", err)
		os.Exit(1)
	}

	workspaceStore := redisstore.NewWorkspaceStore(log, redisDB.Client())
	authSessionStore := redisstore.NewAuthSessionStore(log, redisDB.Client())
	listCache := redisstore.NewSessionListCache(log, redisDB.Client(), cfg.Redis.ListCacheTTL)
	saveLock := redisstore.NewSaveLock(redisDB.Client(), cfg.Redis.SaveLockTTL)

	// Change feed: Kafka -> worker pool -> websocket hub
	hub := notifier.NewHub(log, m)

	// Initialize services
	authService := service.NewAuthService(log, userRepo, authSessionStore, workspaceStore, hub, auth.NewTokenService(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL)
	workspaceService := service.NewWorkspaceService(log, workspaceStore)
	sessionService := service.NewSessionService(log, postgresDB, sessionRepo, outboxRepo, workspaceStore, listCache, saveLock, m)

	// Every launch starts signed out
	if _, err := authService.RevokeAllSessions(appCtx); err != nil {
		log.Error("Failed to revoke auth sessions at launch", "error", err)
		os.Exit(1)
	}

	dlqProducer, err := producers.NewDLQProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize DLQ Kafka producer", "error", err)
		os.Exit(1)
	}
	var dlq producers.DeadLetterPublisher
	if dlqProducer != nil {
		dlq = dlqProducer
	}

	changeHandler, err := notifier.NewChangeEventHandler(log, sessionService, hub, handler.RenderSessionChange, dlq, cfg.WorkerPool.Size, m)
	if err != nil {
		log.Error("Failed to initialize change event handler", "error", err)
		os.Exit(1)
	}

	// Each gateway instance pushes to its own websocket clients, so every
	// instance needs every change: one consumer group per host.
	groupID := cfg.Kafka.ConsumerGroup
	if hostname, err := os.Hostname(); err == nil {
		groupID = groupID + "-" + hostname
	}
	kafkaConsumer := consumers.NewKafkaConsumer(log, &cfg.Kafka)
	if err := kafkaConsumer.Subscribe(appCtx, cfg.Kafka.SessionChangeTopic, groupID, changeHandler.HandleMessage); err != nil {
		log.Error("Failed to subscribe to session changes", "error", err)
		os.Exit(1)
	}

	watcher := idle_watcher.NewWatcher(&cfg.Auth, authSessionStore, hub, m, log)
	go watcher.Start(appCtx)

	server := api_gateway.NewServer(log, cfg, api_gateway.Services{
		Auth:      authService,
		Workspace: workspaceService,
		Sessions:  sessionService,
		Feed:      hub,
	}, m)
	log.Info("REST server initialized")

	errChan := make(chan error, 1)

	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	// Stops the consumer loop and the idle watcher
	cancelAppCtx()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	if err = server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
	}
	hub.Close()

	select {
	case <-kafkaConsumer.Done():
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached before consumer stopped")
	}
	changeHandler.Shutdown()

	if dlqProducer != nil {
		if err = dlqProducer.Close(); err != nil {
			log.Error("Error closing DLQ Kafka producer", "error", err)
		}
	}
	if err = kafkaConsumer.Close(); err != nil {
		log.Error("Error closing Kafka consumer", "error", err)
	}

	if err = redisDB.Close(); err != nil {
		log.Error("Error closing Redis connection", "error", err)
	}
	postgresDB.Close()
	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	if serverErr != nil {
		log.Error("HTTP server shutdown with errors", "error", serverErr)
	}
	if err != nil {
		log.Error("Server shutdown completed with errors")
	} else {
		log.Info("Server shutdown completed successfully")
	}
}
