package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/panjf2000/ants/v2"

	"github.com/payflow-orchestrator/internal/api_gateway"
	gatewayservice "github.com/payflow-orchestrator/internal/api_gateway/service"
	"github.com/payflow-orchestrator/internal/config"
	"github.com/payflow-orchestrator/internal/data/mongo"
	"github.com/payflow-orchestrator/internal/data/postgres"
	"github.com/payflow-orchestrator/internal/logger"
	"github.com/payflow-orchestrator/internal/payment_processor/gateway"
	"github.com/payflow-orchestrator/internal/payment_processor/notifier"
	processorservice "github.com/payflow-orchestrator/internal/payment_processor/service"
	"github.com/payflow-orchestrator/internal/payment_processor/statemachine"
	"github.com/payflow-orchestrator/internal/platform/locking"
	"github.com/payflow-orchestrator/internal/platform/messaging/producers"
	"github.com/payflow-orchestrator/internal/platform/persistence"
	"github.com/payflow-orchestrator/internal/platform/queue"
)

func main() {
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("orchestrator")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)

	log.Info("Starting Payment Orchestrator",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

	// Initialize storage backends
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	redisClient, err := persistence.NewRedisClient(appCtx, log, &cfg.Redis)
	if err != nil {
		log.Error("Failed to initialize Redis", "error", err)
		os.Exit(1)
	}

	// Initialize repositories
	transactionRepo := postgres.NewTransactionRepository(log, postgresDB)
	attemptRepo := mongo.NewAttemptRepository(log, mongoDB.Database())

	// Optional Kafka producers; nil when brokers are not configured
	eventProducer, err := producers.NewPaymentEventProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize payment event Kafka producer", "error", err)
		os.Exit(1)
	}
	dlqProducer, err := producers.NewDLQProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize DLQ Kafka producer", "error", err)
		os.Exit(1)
	}

	// One worker pool bounds concurrency for both queues
	pool, err := ants.NewPool(cfg.WorkerPool.Size)
	if err != nil {
		log.Error("Failed to initialize worker pool", "error", err)
		os.Exit(1)
	}

	paymentQueue := queue.New("payments", queue.Config{
		DefaultMaxAttempts: cfg.PaymentQueue.MaxAttempts,
		Backoff:            queue.Backoff{Base: cfg.PaymentQueue.BackoffBase, Max: cfg.PaymentQueue.BackoffMax},
	}, pool, log)
	webhookQueue := queue.New("webhooks", queue.Config{
		DefaultMaxAttempts: cfg.WebhookQueue.MaxAttempts,
		Backoff:            queue.Backoff{Base: cfg.WebhookQueue.BackoffBase, Max: cfg.WebhookQueue.BackoffMax},
	}, pool, log)

	// Wire the processing pipeline
	lockService := locking.NewRedisLockService(log, redisClient)
	stateMachine := statemachine.New(log, transactionRepo)
	chargeSimulator := gateway.NewSimulator(log, &cfg.Gateway)
	webhookSimulator := notifier.NewSimulator(log, &cfg.Webhook)

	var events processorservice.EventPublisher
	var gatewayEvents gatewayservice.EventPublisher
	if eventProducer != nil {
		events = eventProducer
		gatewayEvents = eventProducer
	}
	var dlq processorservice.DeadLetterPublisher
	if dlqProducer != nil {
		dlq = dlqProducer
	}

	paymentWorker := processorservice.NewPaymentWorker(log, transactionRepo, stateMachine,
		lockService, chargeSimulator, attemptRepo, webhookQueue, events, dlq, &cfg.Lock)
	webhookWorker := processorservice.NewWebhookWorker(log, transactionRepo, webhookSimulator, dlq)

	paymentQueue.Start(appCtx, paymentWorker.Handle)
	webhookQueue.Start(appCtx, webhookWorker.Handle)

	// Wire the HTTP API
	paymentService := gatewayservice.NewPaymentService(log, transactionRepo, attemptRepo, paymentQueue, gatewayEvents)
	server := api_gateway.NewServer(log, cfg, paymentService)

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("http server error: %w", err)
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

	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping HTTP server", "error", err)
	}

	// Let in-flight jobs finish before tearing down their dependencies
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); paymentQueue.Wait() }()
	go func() { defer wg.Done(); webhookQueue.Wait() }()

	wgChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(wgChan)
	}()

	select {
	case <-wgChan:
		log.Info("All in-flight jobs finished")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}

	pool.Release()

	if eventProducer != nil {
		if err := eventProducer.Close(); err != nil {
			log.Error("Error closing payment event Kafka producer", "error", err)
		}
	}
	if dlqProducer != nil {
		if err := dlqProducer.Close(); err != nil {
			log.Error("Error closing DLQ Kafka producer", "error", err)
		}
	}

	if err := redisClient.Close(); err != nil {
		log.Error("Error closing Redis client", "error", err)
	}

	postgresDB.Close()

	if err := mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	if serviceErr != nil {
		log.Error("Payment Orchestrator shutdown with errors", "error", serviceErr)
		os.Exit(1)
	}
	log.Info("Payment Orchestrator shutdown completed successfully")
}
