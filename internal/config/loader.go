// Package config loads the application configuration from YAML and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/viper"

	"github.com/jittakal/kafavrosink/internal/avro"
	"github.com/jittakal/kafavrosink/internal/config/dto"
	"github.com/jittakal/kafavrosink/internal/storage"
)

var (
	securityProtocols  = []string{"PLAINTEXT", "SSL", "SASL_PLAINTEXT", "SASL_SSL"}
	saslMechanisms     = []string{"PLAIN", "SCRAM-SHA-256", "SCRAM-SHA-512", "AWS_MSK_IAM"}
	rotationStrategies = []string{
		string(storage.StrategyComposite),
		string(storage.StrategySizeOnly),
		string(storage.StrategyTimeOnly),
		string(storage.StrategyCount),
	}
)

// Loader handles configuration loading and validation
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// Load loads configuration from file and environment variables
func (l *Loader) Load(path string) (*dto.ApplicationConfig, error) {
	l.setDefaults()

	if path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	// Only expand values containing a ${...} pattern.
	for _, key := range l.v.AllKeys() {
		value := l.v.GetString(key)
		if strings.Contains(value, "${") {
			l.v.Set(key, os.ExpandEnv(value))
		}
	}

	var config dto.ApplicationConfig
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func (l *Loader) setDefaults() {
	// Application defaults
	l.v.SetDefault("application.name", "kafavrosink")
	l.v.SetDefault("application.version", "1.0.0")
	l.v.SetDefault("application.environment", "development")

	// Kafka defaults
	l.v.SetDefault("kafka.security_protocol", "SASL_SSL")
	l.v.SetDefault("kafka.sasl_mechanism", "PLAIN")
	l.v.SetDefault("kafka.tls_insecure_skip_verify", false)
	l.v.SetDefault("kafka.consumer.auto_offset_reset", "earliest")
	l.v.SetDefault("kafka.consumer.enable_auto_commit", false)
	l.v.SetDefault("kafka.consumer.max_poll_interval_ms", 300000)
	l.v.SetDefault("kafka.consumer.session_timeout_ms", 30000)
	l.v.SetDefault("kafka.consumer.heartbeat_interval_ms", 10000)
	l.v.SetDefault("kafka.dlq.enabled", true)
	l.v.SetDefault("kafka.dlq.topic_suffix", "-dlq")
	l.v.SetDefault("kafka.dlq.max_retries", 3)

	// Serializer defaults
	l.v.SetDefault("serializer.sync_interval_bytes", avro.DefaultSyncIntervalBytes)
	l.v.SetDefault("serializer.compression_codec", avro.DefaultCompressionCodec)

	// Storage defaults
	l.v.SetDefault("storage.backend", "file")
	l.v.SetDefault("storage.version", "v1")
	l.v.SetDefault("storage.http_timeout_seconds", 10)
	l.v.SetDefault("storage.s3.use_path_style", false)
	l.v.SetDefault("storage.s3.sse_enabled", true)

	// File rotation defaults
	l.v.SetDefault("file_rotation.max_file_size_mb", 128)
	l.v.SetDefault("file_rotation.max_records_per_file", 100000)
	l.v.SetDefault("file_rotation.max_duration_seconds", 300)
	l.v.SetDefault("file_rotation.strategy", string(storage.StrategyComposite))

	// Processing defaults
	l.v.SetDefault("processing.flush_interval_seconds", 30)

	// Observability defaults
	l.v.SetDefault("observability.logging.level", "info")
	l.v.SetDefault("observability.logging.format", "json")
	l.v.SetDefault("observability.logging.output", "stdout")
	l.v.SetDefault("observability.metrics.enabled", true)
	l.v.SetDefault("observability.metrics.port", 9090)
	l.v.SetDefault("observability.metrics.path", "/metrics")
	l.v.SetDefault("observability.health.port", 8080)
	l.v.SetDefault("observability.health.liveness_path", "/health/live")
	l.v.SetDefault("observability.health.readiness_path", "/health/ready")

	// Shutdown defaults
	l.v.SetDefault("shutdown.grace_period_seconds", 30)
	l.v.SetDefault("shutdown.force_timeout_seconds", 60)
}

// Validate validates the configuration
func (l *Loader) Validate(config *dto.ApplicationConfig) error {
	// Kafka validation
	if len(config.Kafka.BootstrapServers) == 0 {
		return errors.New("kafka.bootstrap_servers is required")
	}
	if len(config.Kafka.Consumer.Topics) == 0 {
		return errors.New("kafka.consumer.topics is required")
	}
	if config.Kafka.Consumer.GroupID == "" {
		return errors.New("kafka.consumer.group_id is required")
	}
	if !slices.Contains(securityProtocols, config.Kafka.SecurityProtocol) {
		return fmt.Errorf("unsupported kafka.security_protocol: %s", config.Kafka.SecurityProtocol)
	}
	if strings.HasPrefix(config.Kafka.SecurityProtocol, "SASL_") && !slices.Contains(saslMechanisms, config.Kafka.SASLMechanism) {
		return fmt.Errorf("unsupported kafka.sasl_mechanism: %s", config.Kafka.SASLMechanism)
	}
	if config.Kafka.DLQ.Enabled && config.Kafka.DLQ.TopicSuffix == "" {
		return errors.New("kafka.dlq.topic_suffix is required when the DLQ is enabled")
	}

	// Serializer validation; the codec name is checked when the first
	// file is built so unknown names can fall back with a warning.
	if strings.TrimSpace(config.Serializer.SchemaPath) == "" {
		return errors.New("serializer.schema_path is required")
	}
	if config.Serializer.SyncIntervalBytes < 1 || config.Serializer.SyncIntervalBytes > avro.MaxSyncIntervalBytes {
		return fmt.Errorf("serializer.sync_interval_bytes must be between 1 and %d: %d",
			avro.MaxSyncIntervalBytes, config.Serializer.SyncIntervalBytes)
	}

	// Storage validation
	var err error
	switch config.Storage.Backend {
	case "s3":
		err = config.Storage.S3.Validate()
	case "azure":
		err = config.Storage.Azure.Validate()
	case "gcs":
		err = config.Storage.GCS.Validate()
	case "file":
		err = config.Storage.File.Validate()
	default:
		return fmt.Errorf("unsupported storage backend: %s", config.Storage.Backend)
	}
	if err != nil {
		return fmt.Errorf("storage.%s: %w", config.Storage.Backend, err)
	}

	// File rotation validation
	if !slices.Contains(rotationStrategies, config.FileRotation.Strategy) {
		return fmt.Errorf("unsupported rotation strategy: %s", config.FileRotation.Strategy)
	}
	if config.Processing.FlushIntervalSeconds < 1 {
		return fmt.Errorf("processing.flush_interval_seconds must be positive: %d", config.Processing.FlushIntervalSeconds)
	}

	// Port validation
	if config.Observability.Metrics.Port < 1 || config.Observability.Metrics.Port > 65535 {
		return fmt.Errorf("invalid metrics port: %d", config.Observability.Metrics.Port)
	}
	if config.Observability.Health.Port < 1 || config.Observability.Health.Port > 65535 {
		return fmt.Errorf("invalid health port: %d", config.Observability.Health.Port)
	}
	if config.Observability.Metrics.Port == config.Observability.Health.Port {
		return fmt.Errorf("metrics and health ports must differ: %d", config.Observability.Metrics.Port)
	}

	return nil
}
