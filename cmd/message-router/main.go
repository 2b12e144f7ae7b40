package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aescanero/dago-adapters/pkg/llm"
	"github.com/aescanero/dago-libs/pkg/ports"
	"github.com/aescanero/dago-message-router/internal/analytics"
	"github.com/aescanero/dago-message-router/internal/analyzer"
	"github.com/aescanero/dago-message-router/internal/api"
	"github.com/aescanero/dago-message-router/internal/config"
	"github.com/aescanero/dago-message-router/internal/migration"
	"github.com/aescanero/dago-message-router/internal/responder"
	"github.com/aescanero/dago-message-router/internal/router"
	"github.com/aescanero/dago-message-router/internal/service"
	"github.com/aescanero/dago-message-router/internal/store"
	"github.com/aescanero/dago-message-router/internal/worker"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Version is set at build time
	Version = "dev"
	// BuildTime is set at build time
	BuildTime = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting message router",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("worker_id", cfg.WorkerID),
	)

	// Log configuration (without sensitive data)
	logger.Info("configuration loaded", zap.String("config", cfg.String()))

	redisClient := redis.NewClient(&redis.Options{
		Addr:       cfg.RedisAddr,
		Password:   cfg.RedisPassword,
		DB:         cfg.RedisDB,
		MaxRetries: cfg.MaxRetries,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))

	// The AI route is unavailable without an LLM client; the other routes still work
	var llmClient ports.LLMClient
	if cfg.LLMAPIKey != "" {
		llmClient, err = initLLMClient(cfg, logger)
		if err != nil {
			logger.Warn("failed to initialize llm client (ai responses will not be available)",
				zap.Error(err),
			)
		} else {
			logger.Info("llm client initialized",
				zap.String("provider", cfg.LLMProvider),
				zap.String("model", cfg.LLMModel),
			)
		}
	} else {
		logger.Warn("llm api key not provided (ai responses will not be available)")
	}

	executor, err := initExecutor(cfg, redisClient, llmClient, logger)
	if err != nil {
		logger.Fatal("failed to initialize executor", zap.Error(err))
	}

	messageAnalyzer, err := analyzer.NewAnalyzer(cfg.AnalysisCacheSize, logger)
	if err != nil {
		logger.Fatal("failed to initialize analyzer", zap.Error(err))
	}

	policy, variants, err := router.LoadPolicies(cfg.PolicyFile, logger)
	if err != nil {
		logger.Fatal("failed to load routing policies", zap.Error(err))
	}
	logger.Info("routing policies loaded", zap.Int("variants", len(variants)))

	// Tracking records go to a Redis stream, optionally mirrored to Kafka
	recordStore := store.NewRedisRecordStore(redisClient, cfg.TrackingStream, logger)
	var mirror analytics.Mirror
	if cfg.KafkaEnabled() {
		mirror = store.NewKafkaMirror(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		logger.Info("kafka mirror enabled",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaTopic),
		)
	}

	trackerCfg := analytics.DefaultTrackerConfig()
	trackerCfg.QueueSize = cfg.TrackingQueueSize
	trackerCfg.MaxRetries = cfg.TrackingRetries
	trackerCfg.InitialBackoff = cfg.TrackingBackoff
	trackerCfg.DeadLetterCapacity = cfg.DeadLetterCapacity
	tracker := analytics.NewTracker(recordStore, mirror, trackerCfg, logger)
	tracker.Start()

	experiments := analytics.NewExperiments(logger)

	redisCheck := func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	}

	controller := migration.NewController(
		store.NewRedisStateStore(redisClient, cfg.MigrationKey, logger),
		migration.Probes{
			SystemHealth: redisCheck,
			Dependencies: func(ctx context.Context) error {
				if llmClient == nil {
					return fmt.Errorf("llm client is not configured")
				}
				return nil
			},
			Configuration: func(ctx context.Context) error {
				return cfg.Validate()
			},
			Resources: func(ctx context.Context) error {
				if n := len(tracker.DeadLetters()); n >= cfg.DeadLetterCapacity {
					return fmt.Errorf("tracking dead-letter buffer is full (%d records)", n)
				}
				return nil
			},
		},
		logger,
	)
	if err := controller.Restore(ctx); err != nil {
		logger.Fatal("failed to restore migration state", zap.Error(err))
	}
	logger.Info("migration state restored", zap.String("stage", string(controller.Current())))

	svc, err := service.New(service.Dependencies{
		Analyzer:        messageAnalyzer,
		Policy:          policy,
		Variants:        variants,
		Executor:        executor,
		Tracker:         tracker,
		History:         recordStore,
		Experiments:     experiments,
		Stages:          controller,
		FallbackOnError: cfg.FallbackOnError,
	}, logger)
	if err != nil {
		logger.Fatal("failed to initialize service", zap.Error(err))
	}

	w := worker.NewWorker(cfg, redisClient, svc, logger)
	if err := w.Start(); err != nil {
		logger.Fatal("failed to start worker", zap.Error(err))
	}

	server := api.NewServer(cfg.HTTPPort, api.Dependencies{
		Service:     svc,
		Tracker:     tracker,
		Experiments: experiments,
		Migration:   controller,
		Auth:        api.NewTokenAuthenticator(cfg.OperatorToken),
		Checks:      map[string]api.Check{"redis": redisCheck},
	}, logger)
	if err := server.Start(); err != nil {
		logger.Fatal("failed to start http server", zap.Error(err))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("message router running, press Ctrl+C to stop")
	<-sigChan

	logger.Info("shutdown signal received, stopping message router")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Stop(); err != nil {
		logger.Error("failed to stop http server", zap.Error(err))
	}

	if err := w.Stop(); err != nil {
		logger.Error("failed to stop worker", zap.Error(err))
	}

	// Drain queued tracking records before the store goes away
	if err := tracker.Stop(shutdownCtx); err != nil {
		logger.Error("failed to drain tracking queue", zap.Error(err))
	}
	if mirror != nil {
		if err := mirror.Close(); err != nil {
			logger.Error("failed to close kafka mirror", zap.Error(err))
		}
	}

	if err := redisClient.Close(); err != nil {
		logger.Error("failed to close redis connection", zap.Error(err))
	}

	select {
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout exceeded, forcing exit")
	default:
		logger.Info("message router stopped gracefully")
	}
}

// initExecutor wires the route collaborators
func initExecutor(cfg *config.Config, redisClient *redis.Client, llmClient ports.LLMClient, logger *zap.Logger) (*router.Executor, error) {
	catalog, err := responder.LoadCatalog(cfg.TemplateFile)
	if err != nil {
		return nil, err
	}
	templates, err := responder.NewTemplateMatcher(catalog, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build template matcher: %w", err)
	}

	fallback, err := responder.NewFallback(cfg.FallbackMessage)
	if err != nil {
		return nil, fmt.Errorf("failed to build fallback responder: %w", err)
	}

	collab := router.Collaborators{
		Templates:   templates,
		Escalations: responder.NewRedisEscalationQueue(redisClient, cfg.EscalationStream, logger),
		Fallback:    fallback,
	}

	if llmClient != nil {
		generator, err := responder.NewLLMGenerator(llmClient, cfg.LLMModel, "", logger)
		if err != nil {
			return nil, fmt.Errorf("failed to build llm generator: %w", err)
		}
		collab.Generator = generator.WithTimeout(cfg.LLMTimeout)
	}

	return router.NewExecutor(collab, cfg.ExecutionTimeout, logger), nil
}

// initLogger initializes the logger
func initLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return config.Build()
}

// initLLMClient initializes the LLM client using dago-adapters
func initLLMClient(cfg *config.Config, logger *zap.Logger) (ports.LLMClient, error) {
	return llm.NewClient(&llm.Config{
		Provider: cfg.LLMProvider,
		APIKey:   cfg.LLMAPIKey,
		Logger:   logger.Named("llm"),
	})
}
