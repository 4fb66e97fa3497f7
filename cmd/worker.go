// Package cmd provides command-line interface functionality for the billevents application.
package cmd

import (
	inboundmessaging "billevents/internal/adapter/inbound/messaging"
	"billevents/internal/adapter/outbound/anthropic"
	"billevents/internal/adapter/outbound/embeddings/simple"
	"billevents/internal/adapter/outbound/gemini"
	outboundmessaging "billevents/internal/adapter/outbound/messaging"
	"billevents/internal/adapter/outbound/repository"
	"billevents/internal/adapter/outbound/scheduler"
	"billevents/internal/application/common/slogger"
	"billevents/internal/application/service"
	"billevents/internal/application/worker"
	"billevents/internal/config"
	"billevents/internal/port/inbound"
	"billevents/internal/port/outbound"
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

const (
	defaultHost = "localhost"

	// workerDurableName identifies the shared JetStream pull consumer.
	workerDurableName = "bill-worker"

	healthCheckInterval = 30 * time.Second
)

// newWorkerCmd creates and returns the worker command.
func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Start the background worker service",
		Long: `Start the background worker service that drives the batch extraction lifecycle from NATS JetStream.

The worker service:
- Consumes extract jobs and submits bill text as inference batches
- Consumes recurring retrieve jobs and polls batch status until a batch ends
- Demultiplexes ended batches into per-bill policy events with embeddings
- Resubmits failed records until the retry ceiling, then dead letters them

Configuration is loaded from config files and environment variables.`,
		Run: func(_ *cobra.Command, _ []string) {
			runWorkerService()
		},
	}
}

// runWorkerService starts and runs the worker service.
func runWorkerService() {
	cfg := GetConfig()

	slogger.InfoNoCtx("Starting worker service", slogger.Fields{
		"queue_group":   cfg.Worker.QueueGroup,
		"poll_interval": cfg.Extraction.PollInterval.String(),
		"max_retries":   cfg.Extraction.MaxRetries,
	})

	dbPool, err := setupDatabaseConnection(cfg)
	if err != nil {
		slogger.ErrorNoCtx("Failed to create database connection pool", slogger.Fields{"error": err.Error()})
		return
	}
	defer dbPool.Close()

	publisher, err := setupMessagePublisher(cfg)
	if err != nil {
		slogger.ErrorNoCtx("Failed to connect message publisher", slogger.Fields{"error": err.Error()})
		return
	}
	defer func() {
		if err := publisher.Disconnect(); err != nil {
			slogger.ErrorNoCtx("Error disconnecting message publisher", slogger.Fields{"error": err.Error()})
		}
	}()

	workerService, err := createWorkerService(cfg, dbPool, publisher)
	if err != nil {
		slogger.ErrorNoCtx("Failed to create worker service", slogger.Fields{"error": err.Error()})
		return
	}

	if err := startWorkerService(workerService); err != nil {
		slogger.ErrorNoCtx("Failed to start worker service", slogger.Fields{"error": err.Error()})
		return
	}

	waitForShutdownAndStop(workerService)
}

// setupDatabaseConnection initializes the database connection with defaults.
func setupDatabaseConnection(cfg *config.Config) (*pgxpool.Pool, error) {
	dbConfig := repository.DatabaseConfig{
		Host:           cfg.Database.Host,
		Port:           cfg.Database.Port,
		Database:       cfg.Database.Name,
		Username:       cfg.Database.User,
		Password:       cfg.Database.Password,
		Schema:         cfg.Database.Schema,
		MaxConnections: cfg.Database.MaxConnections,
		SSLMode:        cfg.Database.SSLMode,
	}

	// Set defaults if not configured
	if dbConfig.Host == "" {
		dbConfig.Host = defaultHost
	}
	if dbConfig.Port == 0 {
		dbConfig.Port = 5432
	}
	if dbConfig.Schema == "" {
		dbConfig.Schema = "billevents"
	}
	if dbConfig.MaxConnections == 0 {
		dbConfig.MaxConnections = 10
	}
	if dbConfig.SSLMode == "" {
		dbConfig.SSLMode = "disable"
	}

	return repository.NewDatabaseConnection(dbConfig)
}

// setupMessagePublisher connects to NATS and ensures the jobs stream exists.
func setupMessagePublisher(cfg *config.Config) (*outboundmessaging.NATSMessagePublisher, error) {
	publisher, err := outboundmessaging.NewNATSMessagePublisher(cfg.NATS)
	if err != nil {
		return nil, err
	}
	if err := publisher.Connect(); err != nil {
		return nil, err
	}
	if err := publisher.EnsureStream(); err != nil {
		return nil, err
	}
	return publisher, nil
}

// createWorkerService creates and configures the worker service with all dependencies.
func createWorkerService(
	cfg *config.Config,
	dbPool *pgxpool.Pool,
	publisher *outboundmessaging.NATSMessagePublisher,
) (inbound.WorkerService, error) {
	// Create repository implementations
	billRepository := repository.NewPostgreSQLBillRepository(dbPool)
	eventRepository := repository.NewPostgreSQLPolicyEventRepository(dbPool)
	jobRepository := repository.NewPostgreSQLBatchJobRepository(dbPool)

	inferenceClient, err := createInferenceClient(cfg)
	if err != nil {
		slogger.ErrorNoCtx("Failed to create inference batch client", slogger.Fields{"error": err.Error()})
		return nil, err
	}

	pollScheduler, err := scheduler.NewTriggerScheduler(publisher, cfg.Extraction.PollInterval)
	if err != nil {
		return nil, err
	}

	builder, err := service.NewBatchRequestBuilder(&cfg.Extraction)
	if err != nil {
		return nil, err
	}

	decoder, err := service.NewEventDecoder()
	if err != nil {
		return nil, err
	}

	enricher, err := service.NewEventEnricher(createEmbeddingService(cfg), cfg.Gemini.Dimensions)
	if err != nil {
		return nil, err
	}

	retryCoordinator, err := service.NewRetryCoordinator(jobRepository, publisher, cfg.Extraction.MaxRetries)
	if err != nil {
		return nil, err
	}

	submissionService, err := service.NewSubmissionService(
		billRepository,
		eventRepository,
		jobRepository,
		inferenceClient,
		pollScheduler,
		builder,
	)
	if err != nil {
		return nil, err
	}

	retrievalService, err := service.NewRetrievalService(
		billRepository,
		eventRepository,
		jobRepository,
		inferenceClient,
		pollScheduler,
		decoder,
		enricher,
		retryCoordinator,
	)
	if err != nil {
		return nil, err
	}

	handler, err := service.NewLifecycleHandler(submissionService, retrievalService)
	if err != nil {
		return nil, err
	}

	instrumented, err := instrumentHandler(handler)
	if err != nil {
		return nil, err
	}

	jobTimeout := cfg.Worker.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = 10 * time.Minute
	}

	// Create consumer
	consumerConfig := inboundmessaging.ConsumerConfig{
		Subject:     outboundmessaging.SubjectJobs,
		QueueGroup:  cfg.Worker.QueueGroup,
		DurableName: workerDurableName,
		// AckWait covers the job dispatch timeout so a slow batch
		// submission is not redelivered while still running.
		AckWait:       jobTimeout,
		MaxDeliver:    3,
		MaxAckPending: 100,
	}

	consumer, err := inboundmessaging.NewNATSConsumer(consumerConfig, cfg.NATS, instrumented)
	if err != nil {
		return nil, err
	}

	return service.NewBatchWorkerService(consumer, pollScheduler, jobRepository, healthCheckInterval)
}

// instrumentHandler wraps the lifecycle handler with OpenTelemetry metrics.
// The worker ID defaults to the hostname so per-instance series stay stable
// across restarts.
func instrumentHandler(handler inbound.JobHandler) (inbound.JobHandler, error) {
	workerID, err := os.Hostname()
	if err != nil || workerID == "" {
		workerID = "bill-worker"
	}

	metrics, err := worker.NewLifecycleMetrics(workerID)
	if err != nil {
		return nil, err
	}

	return worker.NewInstrumentedHandler(handler, metrics)
}

// createInferenceClient creates the Anthropic batch client, reading the API
// key from configuration or the ANTHROPIC_API_KEY environment variable.
func createInferenceClient(cfg *config.Config) (*anthropic.Client, error) {
	return anthropic.NewClientFromEnv(&anthropic.ClientConfig{
		APIKey:            cfg.Anthropic.APIKey,
		BaseURL:           cfg.Anthropic.BaseURL,
		Timeout:           cfg.Anthropic.Timeout,
		RequestsPerSecond: cfg.Anthropic.RequestsPerSecond,
		Burst:             cfg.Anthropic.Burst,
	})
}

// createEmbeddingService creates an embedding service, preferring Gemini but
// falling back to the deterministic generator.
func createEmbeddingService(cfg *config.Config) outbound.EmbeddingService {
	// Try to create Gemini client first using Viper configuration
	geminiAPIKey := cfg.Gemini.APIKey

	// Fallback to environment variables for backward compatibility
	if geminiAPIKey == "" {
		geminiAPIKey = os.Getenv("GEMINI_API_KEY")
		if geminiAPIKey == "" {
			geminiAPIKey = os.Getenv("GOOGLE_API_KEY")
		}
	}

	if geminiAPIKey != "" {
		clientConfig := &gemini.ClientConfig{
			APIKey:            geminiAPIKey,
			Model:             cfg.Gemini.Model,
			Dimensions:        cfg.Gemini.Dimensions,
			Timeout:           cfg.Gemini.Timeout,
			RequestsPerSecond: cfg.Gemini.RequestsPerSecond,
			Burst:             cfg.Gemini.Burst,
		}

		client, err := gemini.NewClient(clientConfig)
		if err != nil {
			slogger.ErrorNoCtx("Failed to create Gemini client, falling back to deterministic generator", slogger.Fields{
				"error": err.Error(),
			})
		} else {
			slogger.InfoNoCtx("Using Gemini embedding service", slogger.Fields{
				"model": clientConfig.Model,
			})
			return client
		}
	} else {
		slogger.WarnNoCtx("No Gemini API key found in configuration or environment (BILLEVENTS_GEMINI_API_KEY, GEMINI_API_KEY, or GOOGLE_API_KEY), falling back to deterministic generator", nil)
	}

	// Fall back to the deterministic generator
	slogger.InfoNoCtx("Using deterministic embedding generator (fallback)", nil)
	return simple.New()
}

// startWorkerService starts the worker service.
func startWorkerService(workerService inbound.WorkerService) error {
	ctx := context.Background()
	if err := workerService.Start(ctx); err != nil {
		return err
	}

	slogger.InfoNoCtx("Worker service started successfully", nil)
	return nil
}

// waitForShutdownAndStop waits for shutdown signal and stops the service gracefully.
func waitForShutdownAndStop(workerService inbound.WorkerService) {
	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	sig := <-sigChan
	slogger.InfoNoCtx("Received shutdown signal, initiating graceful shutdown", slogger.Fields{
		"signal": sig.String(),
	})

	// Create context with timeout for graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop worker service gracefully
	if err := workerService.Stop(shutdownCtx); err != nil {
		slogger.ErrorNoCtx("Error during worker service shutdown", slogger.Fields{"error": err.Error()})
	} else {
		slogger.InfoNoCtx("Worker service shutdown completed successfully", nil)
	}
}

func init() { //nolint:gochecknoinits // Standard Cobra CLI pattern for command registration
	rootCmd.AddCommand(newWorkerCmd())
}
