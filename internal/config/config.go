package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all configuration for the message router
type Config struct {
	// Worker configuration
	WorkerID string `env:"WORKER_ID" envDefault:"message-router-1"`

	// Redis configuration
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASS" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Stream configuration
	StreamKey        string        `env:"STREAM_KEY" envDefault:"routing.work"`
	ConsumerGroup    string        `env:"CONSUMER_GROUP" envDefault:"message-routers"`
	ResultStream     string        `env:"RESULT_STREAM" envDefault:"routing.decided"`
	EscalationStream string        `env:"ESCALATION_STREAM" envDefault:"routing.escalations"`
	TrackingStream   string        `env:"TRACKING_STREAM" envDefault:"routing.tracking"`
	MigrationKey     string        `env:"MIGRATION_KEY" envDefault:"routing:migration"`
	BlockTime        time.Duration `env:"BLOCK_TIME" envDefault:"1s"`
	MaxRetries       int           `env:"MAX_RETRIES" envDefault:"3"`

	// LLM configuration
	LLMProvider string        `env:"LLM_PROVIDER" envDefault:"anthropic"`
	LLMAPIKey   string        `env:"LLM_API_KEY"`
	LLMModel    string        `env:"LLM_MODEL" envDefault:"claude-sonnet-4-20250514"`
	LLMTimeout  time.Duration `env:"LLM_TIMEOUT" envDefault:"30s"`

	// Routing configuration
	ExecutionTimeout  time.Duration `env:"EXECUTION_TIMEOUT" envDefault:"10s"`
	FallbackOnError   bool          `env:"FALLBACK_ON_ERROR" envDefault:"true"`
	PolicyFile        string        `env:"POLICY_FILE"`
	TemplateFile      string        `env:"TEMPLATE_FILE"`
	FallbackMessage   string        `env:"FALLBACK_MESSAGE" envDefault:"Thanks for your message. A member of our team will get back to you shortly."`
	AnalysisCacheSize int           `env:"ANALYSIS_CACHE_SIZE" envDefault:"1024"`

	// Tracking configuration
	TrackingQueueSize  int           `env:"TRACKING_QUEUE_SIZE" envDefault:"1024"`
	TrackingRetries    int           `env:"TRACKING_RETRIES" envDefault:"3"`
	TrackingBackoff    time.Duration `env:"TRACKING_BACKOFF" envDefault:"100ms"`
	DeadLetterCapacity int           `env:"DEAD_LETTER_CAPACITY" envDefault:"256"`

	// Kafka mirror configuration (disabled when no brokers are set)
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"routing.tracking"`

	// HTTP configuration
	HTTPPort      int    `env:"HTTP_PORT" envDefault:"8082"`
	OperatorToken string `env:"OPERATOR_TOKEN"`

	// Logging configuration
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.WorkerID == "" {
		return fmt.Errorf("WORKER_ID is required")
	}

	if c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required")
	}

	if c.StreamKey == "" {
		return fmt.Errorf("STREAM_KEY is required")
	}

	if c.ConsumerGroup == "" {
		return fmt.Errorf("CONSUMER_GROUP is required")
	}

	if c.ResultStream == "" {
		return fmt.Errorf("RESULT_STREAM is required")
	}

	if c.EscalationStream == "" {
		return fmt.Errorf("ESCALATION_STREAM is required")
	}

	if c.TrackingStream == "" {
		return fmt.Errorf("TRACKING_STREAM is required")
	}

	if c.LLMProvider == "" {
		return fmt.Errorf("LLM_PROVIDER is required")
	}

	// LLM_API_KEY is optional; without it ai_response routes fail and fall back

	if c.LLMModel == "" {
		return fmt.Errorf("LLM_MODEL is required")
	}

	if c.LLMTimeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT must be positive")
	}

	if c.ExecutionTimeout <= 0 {
		return fmt.Errorf("EXECUTION_TIMEOUT must be positive")
	}

	if c.BlockTime <= 0 {
		return fmt.Errorf("BLOCK_TIME must be positive")
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("MAX_RETRIES must be non-negative")
	}

	if c.TrackingQueueSize <= 0 {
		return fmt.Errorf("TRACKING_QUEUE_SIZE must be positive")
	}

	if c.TrackingRetries < 0 {
		return fmt.Errorf("TRACKING_RETRIES must be non-negative")
	}

	if c.DeadLetterCapacity <= 0 {
		return fmt.Errorf("DEAD_LETTER_CAPACITY must be positive")
	}

	if c.AnalysisCacheSize < 0 {
		return fmt.Errorf("ANALYSIS_CACHE_SIZE must be non-negative")
	}

	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return fmt.Errorf("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}

	if !isValidLogLevel(c.LogLevel) {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error")
	}

	return nil
}

// isValidLogLevel checks if the log level is valid
func isValidLogLevel(level string) bool {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	return validLevels[level]
}

// KafkaEnabled reports whether tracking records are mirrored to Kafka
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// String returns a string representation of the config (without sensitive data)
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{WorkerID=%s, RedisAddr=%s, RedisDB=%d, StreamKey=%s, ConsumerGroup=%s, "+
			"LLMProvider=%s, LLMModel=%s, ExecutionTimeout=%s, FallbackOnError=%v, "+
			"KafkaEnabled=%v, HTTPPort=%d, LogLevel=%s}",
		c.WorkerID,
		c.RedisAddr,
		c.RedisDB,
		c.StreamKey,
		c.ConsumerGroup,
		c.LLMProvider,
		c.LLMModel,
		c.ExecutionTimeout,
		c.FallbackOnError,
		c.KafkaEnabled(),
		c.HTTPPort,
		c.LogLevel,
	)
}
