package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Consumer metrics
	MessagesConsumed   *prometheus.CounterVec
	OffsetCommits      *prometheus.CounterVec
	Rebalances         *prometheus.CounterVec
	RebalanceDuration  *prometheus.HistogramVec
	PartitionsAssigned *prometheus.GaugeVec
	CommitLatency      *prometheus.HistogramVec
	DLQMessages        *prometheus.CounterVec

	// Container writer metrics
	RecordsWritten *prometheus.CounterVec
	BlocksWritten  *prometheus.CounterVec
	BytesWritten   *prometheus.CounterVec
	CodecFallbacks *prometheus.CounterVec

	// File and storage metrics
	Files         *prometheus.CounterVec
	OpenFiles     prometheus.Gauge
	FileSize      *prometheus.HistogramVec
	StorageErrors *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		// Consumer metrics
		MessagesConsumed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_messages_consumed_total",
				Help: "Total number of messages consumed from Kafka",
			},
			[]string{"topic", "partition"},
		),
		OffsetCommits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_offset_commit_total",
				Help: "Total number of offset commits",
			},
			[]string{"topic", "partition", "status"},
		),
		Rebalances: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_rebalance_total",
				Help: "Total number of consumer group rebalances",
			},
			[]string{"group"},
		),
		RebalanceDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kafka_rebalance_duration_seconds",
				Help:    "Duration of consumer group sessions between rebalances",
				Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"group"},
		),
		PartitionsAssigned: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kafka_partitions_assigned",
				Help: "Number of partitions currently assigned to this consumer",
			},
			[]string{"topic"},
		),
		CommitLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kafka_commit_latency_seconds",
				Help:    "Latency of offset commit operations",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
			[]string{"topic", "partition"},
		),
		DLQMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_dlq_messages_total",
				Help: "Total number of events published to dead letter queues",
			},
			[]string{"topic", "status"},
		),

		// Container writer metrics
		RecordsWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "avro_records_written_total",
				Help: "Total number of records sealed into container blocks",
			},
			[]string{"codec"},
		),
		BlocksWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "avro_blocks_written_total",
				Help: "Total number of container blocks written",
			},
			[]string{"codec"},
		),
		BytesWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "avro_bytes_written_total",
				Help: "Total number of container bytes written, headers included",
			},
			[]string{"codec"},
		),
		CodecFallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "avro_codec_fallbacks_total",
				Help: "Total number of requested codecs replaced by the null codec",
			},
			[]string{"requested"},
		),

		// File and storage metrics
		Files: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "avro_files_total",
				Help: "Total number of container files finished",
			},
			[]string{"topic", "status"},
		),
		OpenFiles: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "avro_open_files",
				Help: "Number of container files currently open",
			},
		),
		FileSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "avro_file_size_bytes",
				Help:    "Size of committed container files",
				Buckets: prometheus.ExponentialBuckets(64*1024, 2, 14), // 64KB to 512MB
			},
			[]string{"topic"},
		),
		StorageErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storage_errors_total",
				Help: "Total number of storage errors",
			},
			[]string{"backend", "error_type"},
		),
	}
}

// IncMessagesConsumed increments messages consumed counter.
func (m *Metrics) IncMessagesConsumed(topic string, partition int32) {
	m.MessagesConsumed.WithLabelValues(topic, fmt.Sprintf("%d", partition)).Inc()
}

// IncRebalances increments rebalances counter.
func (m *Metrics) IncRebalances(groupID string) {
	m.Rebalances.WithLabelValues(groupID).Inc()
}

// IncOffsetCommits increments offset commits counter.
func (m *Metrics) IncOffsetCommits(topic string, partition int32, status string) {
	m.OffsetCommits.WithLabelValues(topic, fmt.Sprintf("%d", partition), status).Inc()
}

// ObserveRebalanceDuration observes rebalance duration.
func (m *Metrics) ObserveRebalanceDuration(groupID string, duration float64) {
	m.RebalanceDuration.WithLabelValues(groupID).Observe(duration)
}

// ObserveCommitLatency observes commit latency.
func (m *Metrics) ObserveCommitLatency(topic string, partition int32, duration float64) {
	m.CommitLatency.WithLabelValues(topic, fmt.Sprintf("%d", partition)).Observe(duration)
}

// SetPartitionsAssigned sets partitions assigned gauge.
func (m *Metrics) SetPartitionsAssigned(topic string, count float64) {
	m.PartitionsAssigned.WithLabelValues(topic).Set(count)
}

// IncDLQMessages increments the DLQ counter.
func (m *Metrics) IncDLQMessages(topic, status string) {
	m.DLQMessages.WithLabelValues(topic, status).Inc()
}

// AddRecordsWritten adds n sealed records.
func (m *Metrics) AddRecordsWritten(codec string, n int) {
	m.RecordsWritten.WithLabelValues(codec).Add(float64(n))
}

// IncBlocksWritten increments the sealed block counter.
func (m *Metrics) IncBlocksWritten(codec string) {
	m.BlocksWritten.WithLabelValues(codec).Inc()
}

// AddBytesWritten adds n container bytes.
func (m *Metrics) AddBytesWritten(codec string, n int) {
	m.BytesWritten.WithLabelValues(codec).Add(float64(n))
}

// IncCodecFallbacks counts a codec name that fell back to null.
func (m *Metrics) IncCodecFallbacks(requested string) {
	m.CodecFallbacks.WithLabelValues(requested).Inc()
}

// IncFiles increments finished files counter.
func (m *Metrics) IncFiles(topic, status string) {
	m.Files.WithLabelValues(topic, status).Inc()
}

// ObserveFileSize observes file size.
func (m *Metrics) ObserveFileSize(topic string, bytes float64) {
	m.FileSize.WithLabelValues(topic).Observe(bytes)
}

// SetOpenFiles sets the open files gauge.
func (m *Metrics) SetOpenFiles(count float64) {
	m.OpenFiles.Set(count)
}

// IncStorageErrors increments storage errors counter.
func (m *Metrics) IncStorageErrors(backend string, operation string) {
	m.StorageErrors.WithLabelValues(backend, operation).Inc()
}
