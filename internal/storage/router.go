package storage

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jittakal/kafavrosink/pkg/event"
	"github.com/jittakal/kafavrosink/pkg/storage"
)

// Ensure implementations satisfy interfaces.
var (
	_ storage.Router         = (*DefaultRouter)(nil)
	_ storage.RotationPolicy = (*CompositePolicy)(nil)
)

// FileExtension is appended to every container file name.
const FileExtension = ".avro"

// DefaultRouter implements Hive-style partitioning for storage paths.
type DefaultRouter struct {
	protocol string
	bucket   string
	basePath string
	version  string
	now      func() time.Time

	mu            sync.Mutex
	fileSequence  int
	lastTimestamp string
}

// NewRouter creates a new storage router. An empty version omits the
// version segment.
func NewRouter(protocol, bucket, basePath, version string) *DefaultRouter {
	return &DefaultRouter{
		protocol: protocol,
		bucket:   bucket,
		basePath: strings.Trim(basePath, "/"),
		version:  version,
		now:      time.Now,
	}
}

// Route returns the directory for a partition at the given event time.
// Format: protocol://bucket/basePath/topic[/version]/dt=YYYY-MM-DD/pid=N/
func (r *DefaultRouter) Route(partitionID event.PartitionID, timestamp int64) string {
	date := time.Unix(timestamp, 0).UTC().Format("2006-01-02")

	segments := make([]string, 0, 6)
	if r.bucket != "" {
		segments = append(segments, r.bucket)
	}
	if r.basePath != "" {
		segments = append(segments, r.basePath)
	}
	segments = append(segments, partitionID.Topic)
	if r.version != "" {
		segments = append(segments, r.version)
	}
	segments = append(segments,
		"dt="+date,
		fmt.Sprintf("pid=%d", partitionID.Partition),
	)

	return fmt.Sprintf("%s://%s/", r.protocol, strings.Join(segments, "/"))
}

// FileName returns events_YYYYMMDD_HHMMSS_NNN.avro, where NNN counts files
// started within the same second.
func (r *DefaultRouter) FileName(_ event.PartitionID) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	timestamp := r.now().UTC().Format("20060102_150405")
	if timestamp == r.lastTimestamp {
		r.fileSequence++
	} else {
		r.fileSequence = 1
		r.lastTimestamp = timestamp
	}

	return fmt.Sprintf("events_%s_%03d%s", timestamp, r.fileSequence, FileExtension)
}

// NewPolicy creates a rotation policy honouring config.Strategy.
func NewPolicy(config PolicyConfig) *CompositePolicy {
	switch RotationStrategy(config.Strategy) {
	case StrategySizeOnly:
		config.MaxRecordsPerFile, config.MaxDurationSeconds = 0, 0
	case StrategyTimeOnly:
		config.MaxFileSizeMB, config.MaxRecordsPerFile = 0, 0
	case StrategyCount:
		config.MaxFileSizeMB, config.MaxDurationSeconds = 0, 0
	}
	return NewCompositePolicy(config)
}

// RotationStrategy determines when to rotate files.
type RotationStrategy string

const (
	StrategyComposite RotationStrategy = "composite"
	StrategySizeOnly  RotationStrategy = "size"
	StrategyTimeOnly  RotationStrategy = "time"
	StrategyCount     RotationStrategy = "count"
)

// PolicyConfig configures rotation behavior.
type PolicyConfig struct {
	MaxFileSizeMB      int64
	MaxRecordsPerFile  int
	MaxDurationSeconds int
	Strategy           string
}

// CompositePolicy rotates based on multiple criteria.
type CompositePolicy struct {
	maxSizeBytes int64
	maxRecords   int
	maxDuration  time.Duration
}

// NewCompositePolicy creates a new composite rotation policy.
func NewCompositePolicy(config PolicyConfig) *CompositePolicy {
	return &CompositePolicy{
		maxSizeBytes: config.MaxFileSizeMB * 1024 * 1024,
		maxRecords:   config.MaxRecordsPerFile,
		maxDuration:  time.Duration(config.MaxDurationSeconds) * time.Second,
	}
}

// ShouldRotate returns true if any rotation condition is met.
func (p *CompositePolicy) ShouldRotate(stats event.FileStats) bool {
	if p.maxSizeBytes > 0 && stats.SizeBytes >= p.maxSizeBytes {
		return true
	}

	if p.maxRecords > 0 && stats.RecordCount >= p.maxRecords {
		return true
	}

	if p.maxDuration > 0 && !stats.FirstWriteTime.IsZero() {
		if time.Since(stats.FirstWriteTime) >= p.maxDuration {
			return true
		}
	}

	return false
}
