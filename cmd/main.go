package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jittakal/kafavrosink/internal/avro"
	"github.com/jittakal/kafavrosink/internal/codec"
	"github.com/jittakal/kafavrosink/internal/config"
	"github.com/jittakal/kafavrosink/internal/config/dto"
	"github.com/jittakal/kafavrosink/internal/kafka"
	"github.com/jittakal/kafavrosink/internal/observability"
	"github.com/jittakal/kafavrosink/internal/pipeline"
	"github.com/jittakal/kafavrosink/internal/schema"
	"github.com/jittakal/kafavrosink/internal/server"
	"github.com/jittakal/kafavrosink/internal/storage"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}

func run() error {
	// Parse command-line flags
	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	// Priority: CLI flag > CONFIG_PATH env var > default path
	var cfgPath string
	if *configPath != "" {
		cfgPath = *configPath
	} else if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		cfgPath = envPath
	} else {
		cfgPath = "config/application.yaml"
	}

	loader := config.NewLoader()
	cfg, err := loader.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize observability
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
		Output: cfg.Observability.Logging.Output,
	})
	logger.Info("starting avro container sink",
		"version", cfg.Application.Version,
		"environment", cfg.Application.Environment,
		"backend", cfg.Storage.Backend,
		"codec", cfg.Serializer.CompressionCodec,
	)

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	// Cleanups run in reverse registration order.
	var cleanups []cleanup
	addCleanup := func(name string, fn func() error) {
		cleanups = append(cleanups, cleanup{name: name, fn: fn})
		logger.Debug("registered cleanup", "component", name)
	}
	defer runCleanups(&cleanups, logger)

	setupCtx, setupCancel := context.WithTimeout(context.Background(), cfg.Shutdown.ForceTimeout())
	defer setupCancel()

	// Storage backends serve both schema reads and file writes.
	mux, err := newStorageMux(setupCtx, cfg, logger, metrics, addCleanup)
	if err != nil {
		return err
	}

	resolver := schema.NewResolver(mux, logger)
	selector := codec.NewSelector(logger, metrics)
	builder := avro.NewBuilder(resolver, selector, logger, metrics)

	// Fail fast on a bad schema or sync interval instead of at the first event.
	if err := checkSerializer(setupCtx, builder, cfg.Serializer); err != nil {
		return err
	}

	router := storage.NewRouter(cfg.Storage.Protocol(), cfg.Storage.Bucket(), cfg.Storage.BasePath(), cfg.Storage.Version)
	policy := storage.NewPolicy(storage.PolicyConfig{
		MaxFileSizeMB:      cfg.FileRotation.MaxFileSizeMB,
		MaxRecordsPerFile:  cfg.FileRotation.MaxRecordsPerFile,
		MaxDurationSeconds: cfg.FileRotation.MaxDurationSeconds,
		Strategy:           cfg.FileRotation.Strategy,
	})

	// Initialize Kafka
	consumerConfig := kafka.ConsumerConfig{
		BootstrapServers:      cfg.Kafka.BootstrapServers,
		GroupID:               cfg.Kafka.Consumer.GroupID,
		SecurityProtocol:      cfg.Kafka.SecurityProtocol,
		SASLMechanism:         cfg.Kafka.SASLMechanism,
		SASLUsername:          cfg.Kafka.SASLUsername,
		SASLPassword:          cfg.Kafka.SASLPassword,
		AWSRegion:             cfg.Kafka.AWSRegion,
		TLSInsecureSkipVerify: cfg.Kafka.TLSInsecureSkipVerify,
		AutoOffsetReset:       cfg.Kafka.Consumer.AutoOffsetReset,
		EnableAutoCommit:      cfg.Kafka.Consumer.EnableAutoCommit,
		MaxPollIntervalMS:     cfg.Kafka.Consumer.MaxPollIntervalMS,
		SessionTimeoutMS:      cfg.Kafka.Consumer.SessionTimeoutMS,
		HeartbeatIntervalMS:   cfg.Kafka.Consumer.HeartbeatIntervalMS,
	}
	consumer, err := kafka.NewSaramaConsumer(consumerConfig, logger, metrics)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}
	addCleanup("kafka-consumer", consumer.Close)

	dlqConfig := kafka.DLQConfig{
		Enabled:     cfg.Kafka.DLQ.Enabled,
		TopicSuffix: cfg.Kafka.DLQ.TopicSuffix,
		MaxRetries:  cfg.Kafka.DLQ.MaxRetries,
	}
	dlqPublisher, err := kafka.NewDLQPublisher(cfg.Kafka.BootstrapServers, consumerConfig, dlqConfig, logger, metrics, cfg.Application.Name)
	if err != nil {
		return fmt.Errorf("failed to create DLQ publisher: %w", err)
	}
	addCleanup("dlq-publisher", dlqPublisher.Close)

	pipe := pipeline.New(
		pipeline.Config{
			Serializer:    cfg.Serializer.Values(),
			FlushInterval: cfg.Processing.FlushInterval(),
		},
		mux,
		router,
		policy,
		builder,
		dlqPublisher,
		logger,
		metrics,
	)

	// Start HTTP server
	checker := server.NewChecker(consumer, pipe)
	httpServer := server.NewServer(
		server.Config{
			HealthPort:    cfg.Observability.Health.Port,
			MetricsPort:   cfg.Observability.Metrics.Port,
			LivenessPath:  cfg.Observability.Health.LivenessPath,
			ReadinessPath: cfg.Observability.Health.ReadinessPath,
			MetricsPath:   cfg.Observability.Metrics.Path,
		},
		checker,
		registry,
		logger,
	)
	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	addCleanup("http-server", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.GracePeriod())
		defer cancel()
		return httpServer.Shutdown(ctx)
	})

	if err := consumer.Subscribe(context.Background(), cfg.Kafka.Consumer.Topics); err != nil {
		return fmt.Errorf("failed to subscribe to topics: %w", err)
	}

	// The consumer outlives the pipeline so offsets of files closed during
	// shutdown can still be committed.
	consumeCtx, consumeCancel := context.WithCancel(context.Background())
	defer consumeCancel()

	eventChan, errorChan, err := consumer.Consume(consumeCtx)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	runErrChan := make(chan error, 1)
	go func() {
		runErrChan <- pipe.Run(runCtx, eventChan, errorChan)
	}()

	logger.Info("application started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info("received termination signal", "signal", sig.String())
		runCancel()
		runErr = <-runErrChan
	case runErr = <-runErrChan:
		if runErr != nil {
			checker.MarkFailed()
			logger.Error("pipeline stopped", "error", runErr)
		}
	}

	logger.Info("initiating graceful shutdown", "open_files", pipe.OpenFiles())

	closeCtx, closeCancel := context.WithTimeout(context.Background(), cfg.Shutdown.GracePeriod())
	defer closeCancel()
	if err := pipe.Close(closeCtx); err != nil {
		logger.Error("failed to close open files", "error", err)
		if runErr == nil {
			runErr = err
		}
	}

	consumeCancel()

	if runErr != nil {
		return runErr
	}
	logger.Info("application stopped successfully")
	return nil
}

type cleanup struct {
	name string
	fn   func() error
}

func runCleanups(cleanups *[]cleanup, logger *slog.Logger) {
	for i := len(*cleanups) - 1; i >= 0; i-- {
		c := (*cleanups)[i]
		if err := c.fn(); err != nil {
			logger.Error("cleanup failed", "component", c.name, "error", err)
		}
	}
}

// newStorageMux registers the local filesystem and HTTP sources always,
// and the configured cloud backend.
func newStorageMux(
	ctx context.Context,
	cfg *dto.ApplicationConfig,
	logger *slog.Logger,
	metrics *observability.Metrics,
	addCleanup func(string, func() error),
) (*storage.Mux, error) {
	mux := storage.NewMux()

	fileStore, err := storage.NewFileStore(storage.FileConfig{BasePath: cfg.Storage.File.BasePath}, logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem store: %w", err)
	}
	mux.Register(storage.SchemeFile, fileStore)

	httpSource := storage.NewHTTPSource(cfg.Storage.HTTPTimeout(), logger, metrics)
	mux.RegisterSource(storage.SchemeHTTP, httpSource)
	mux.RegisterSource(storage.SchemeHTTPS, httpSource)

	switch cfg.Storage.Backend {
	case "s3":
		s3Store, err := storage.NewS3Store(ctx, storage.S3Config{
			Bucket:       cfg.Storage.S3.Bucket,
			Region:       cfg.Storage.S3.Region,
			Endpoint:     cfg.Storage.S3.Endpoint,
			UsePathStyle: cfg.Storage.S3.UsePathStyle,
			SSEEnabled:   cfg.Storage.S3.SSEEnabled,
			SSEKMSKeyID:  cfg.Storage.S3.SSEKMSKeyID,
		}, logger, metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 store: %w", err)
		}
		mux.Register(storage.SchemeS3, s3Store)
	case "azure":
		accountKey := cfg.Storage.Azure.AccountKey
		if accountKey == "" {
			accountKey = os.Getenv("AZURE_STORAGE_ACCOUNT_KEY")
		}
		azureStore, err := storage.NewAzureStore(storage.AzureConfig{
			AccountName:   cfg.Storage.Azure.AccountName,
			AccountKey:    accountKey,
			ContainerName: cfg.Storage.Azure.Container,
			Endpoint:      cfg.Storage.Azure.Endpoint,
		}, logger, metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure Blob store: %w", err)
		}
		mux.Register(storage.SchemeAzure, azureStore)
	case "gcs":
		credentialsJSON := cfg.Storage.GCS.CredentialsJSON
		if credentialsJSON == "" {
			credentialsJSON = os.Getenv("GCP_CREDENTIALS_JSON")
		}
		gcsStore, err := storage.NewGCSStore(ctx, storage.GCSConfig{
			Bucket:               cfg.Storage.GCS.Bucket,
			ProjectID:            cfg.Storage.GCS.ProjectID,
			CredentialsFile:      cfg.Storage.GCS.CredentialsFile,
			CredentialsJSON:      credentialsJSON,
			Endpoint:             cfg.Storage.GCS.Endpoint,
			UseDefaultCredential: cfg.Storage.GCS.UseDefaultCredential,
		}, logger, metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to create GCS store: %w", err)
		}
		mux.Register(storage.SchemeGCS, gcsStore)
		addCleanup("gcs-store", gcsStore.Close)
	}

	return mux, nil
}

// checkSerializer configures a throwaway serializer so configuration errors
// surface at startup. Nothing is created, so there is nothing to close.
func checkSerializer(ctx context.Context, builder *avro.Builder, cfg dto.SerializerConfig) error {
	if _, err := builder.BuildFor(ctx, cfg.Values(), io.Discard, "startup check"); err != nil {
		return fmt.Errorf("invalid serializer configuration: %w", err)
	}
	return nil
}
