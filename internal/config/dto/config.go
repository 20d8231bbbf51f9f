// Package dto holds the configuration structures unmarshalled by the loader.
package dto

import (
	"fmt"
	"time"

	"github.com/jittakal/kafavrosink/internal/avro"
	"github.com/jittakal/kafavrosink/pkg/serializer"
)

// ApplicationConfig is the root configuration structure
type ApplicationConfig struct {
	Application   ApplicationInfo     `mapstructure:"application"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Serializer    SerializerConfig    `mapstructure:"serializer"`
	Storage       StorageConfig       `mapstructure:"storage"`
	FileRotation  FileRotationConfig  `mapstructure:"file_rotation"`
	Processing    ProcessingConfig    `mapstructure:"processing"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Shutdown      ShutdownConfig      `mapstructure:"shutdown"`
}

// ApplicationInfo contains application metadata
type ApplicationInfo struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// KafkaConfig contains Kafka-related configuration
type KafkaConfig struct {
	BootstrapServers      []string       `mapstructure:"bootstrap_servers"`
	SecurityProtocol      string         `mapstructure:"security_protocol"`
	SASLMechanism         string         `mapstructure:"sasl_mechanism"`
	SASLUsername          string         `mapstructure:"sasl_username"`
	SASLPassword          string         `mapstructure:"sasl_password"`
	AWSRegion             string         `mapstructure:"aws_region"`
	TLSInsecureSkipVerify bool           `mapstructure:"tls_insecure_skip_verify"`
	Consumer              ConsumerConfig `mapstructure:"consumer"`
	DLQ                   DLQConfig      `mapstructure:"dlq"`
}

// ConsumerConfig contains Kafka consumer configuration
type ConsumerConfig struct {
	GroupID             string   `mapstructure:"group_id"`
	Topics              []string `mapstructure:"topics"`
	AutoOffsetReset     string   `mapstructure:"auto_offset_reset"`
	EnableAutoCommit    bool     `mapstructure:"enable_auto_commit"`
	MaxPollIntervalMS   int      `mapstructure:"max_poll_interval_ms"`
	SessionTimeoutMS    int      `mapstructure:"session_timeout_ms"`
	HeartbeatIntervalMS int      `mapstructure:"heartbeat_interval_ms"`
}

// DLQConfig contains dead letter queue configuration
type DLQConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	TopicSuffix string `mapstructure:"topic_suffix"`
	MaxRetries  int    `mapstructure:"max_retries"`
}

// SerializerConfig contains the container writer options applied to every
// file.
type SerializerConfig struct {
	SchemaPath        string `mapstructure:"schema_path"`
	SyncIntervalBytes int    `mapstructure:"sync_interval_bytes"`
	CompressionCodec  string `mapstructure:"compression_codec"`
}

// Values returns the options under the keys the serializer reads.
func (c SerializerConfig) Values() serializer.Config {
	return serializer.Config{
		avro.ContextSchemaPath:        c.SchemaPath,
		avro.ContextSyncIntervalBytes: c.SyncIntervalBytes,
		avro.ContextCompressionCodec:  c.CompressionCodec,
	}
}

// StorageConfig contains storage backend configuration
type StorageConfig struct {
	Backend            string      `mapstructure:"backend"`
	Version            string      `mapstructure:"version"`
	HTTPTimeoutSeconds int         `mapstructure:"http_timeout_seconds"`
	S3                 S3Config    `mapstructure:"s3"`
	Azure              AzureConfig `mapstructure:"azure"`
	GCS                GCSConfig   `mapstructure:"gcs"`
	File               FileConfig  `mapstructure:"file"`
}

// Protocol returns the location scheme files are written under.
func (c StorageConfig) Protocol() string {
	switch c.Backend {
	case "s3":
		return "s3"
	case "azure":
		return "wasbs"
	case "gcs":
		return "gs"
	default:
		return "file"
	}
}

// Bucket returns the bucket or container files are written to.
// The file backend has none; the base path is applied by the file store.
func (c StorageConfig) Bucket() string {
	switch c.Backend {
	case "s3":
		return c.S3.Bucket
	case "azure":
		return c.Azure.Container
	case "gcs":
		return c.GCS.Bucket
	default:
		return ""
	}
}

// BasePath returns the key prefix inside the bucket.
func (c StorageConfig) BasePath() string {
	switch c.Backend {
	case "s3":
		return c.S3.BasePath
	case "gcs":
		return c.GCS.BasePath
	case "azure":
		return c.Azure.BasePath
	default:
		return ""
	}
}

// HTTPTimeout returns the timeout for schemas fetched over HTTP.
func (c StorageConfig) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// S3Config contains AWS S3 configuration
type S3Config struct {
	Bucket       string `mapstructure:"bucket"`
	Region       string `mapstructure:"region"`
	BasePath     string `mapstructure:"base_path"`
	Endpoint     string `mapstructure:"endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
	SSEEnabled   bool   `mapstructure:"sse_enabled"`
	SSEKMSKeyID  string `mapstructure:"sse_kms_key_id"`
}

// AzureConfig contains Azure Blob Storage configuration
type AzureConfig struct {
	AccountName string `mapstructure:"account_name"`
	AccountKey  string `mapstructure:"account_key"`
	Container   string `mapstructure:"container"`
	BasePath    string `mapstructure:"base_path"`
	Endpoint    string `mapstructure:"endpoint"`
}

// GCSConfig contains Google Cloud Storage configuration
type GCSConfig struct {
	Bucket               string `mapstructure:"bucket"`
	ProjectID            string `mapstructure:"project_id"`
	BasePath             string `mapstructure:"base_path"`
	Endpoint             string `mapstructure:"endpoint"`
	CredentialsFile      string `mapstructure:"credentials_file"`
	CredentialsJSON      string `mapstructure:"credentials_json"`
	UseDefaultCredential bool   `mapstructure:"use_default_credential"`
}

// FileConfig contains local filesystem configuration
type FileConfig struct {
	BasePath string `mapstructure:"base_path"`
}

// FileRotationConfig contains file rotation settings
type FileRotationConfig struct {
	MaxFileSizeMB      int64  `mapstructure:"max_file_size_mb"`
	MaxRecordsPerFile  int    `mapstructure:"max_records_per_file"`
	MaxDurationSeconds int    `mapstructure:"max_duration_seconds"`
	Strategy           string `mapstructure:"strategy"`
}

// ProcessingConfig contains processing settings
type ProcessingConfig struct {
	FlushIntervalSeconds int `mapstructure:"flush_interval_seconds"`
}

// FlushInterval returns how often open files are flushed.
func (c ProcessingConfig) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalSeconds) * time.Second
}

// ObservabilityConfig contains observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Health  HealthConfig  `mapstructure:"health"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MetricsConfig contains metrics settings
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// HealthConfig contains health check settings
type HealthConfig struct {
	Port          int    `mapstructure:"port"`
	LivenessPath  string `mapstructure:"liveness_path"`
	ReadinessPath string `mapstructure:"readiness_path"`
}

// ShutdownConfig contains shutdown settings
type ShutdownConfig struct {
	GracePeriodSeconds  int `mapstructure:"grace_period_seconds"`
	ForceTimeoutSeconds int `mapstructure:"force_timeout_seconds"`
}

// GracePeriod bounds how long open files get to close on shutdown.
func (c ShutdownConfig) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodSeconds) * time.Second
}

// ForceTimeout bounds the whole shutdown.
func (c ShutdownConfig) ForceTimeout() time.Duration {
	return time.Duration(c.ForceTimeoutSeconds) * time.Second
}

// Validate validates S3 configuration.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("s3 bucket is required")
	}
	if c.Region == "" {
		return fmt.Errorf("s3 region is required")
	}
	return nil
}

// Validate validates Azure configuration.
func (c *AzureConfig) Validate() error {
	if c.AccountName == "" {
		return fmt.Errorf("azure account name is required")
	}
	if c.Container == "" {
		return fmt.Errorf("azure container is required")
	}
	return nil
}

// Validate validates GCS configuration.
func (c *GCSConfig) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("gcs bucket is required")
	}
	return nil
}

// Validate validates file configuration.
func (c *FileConfig) Validate() error {
	if c.BasePath == "" {
		return fmt.Errorf("file base path is required")
	}
	return nil
}
