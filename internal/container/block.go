package container

import (
	"time"

	"github.com/jittakal/kafavrosink/pkg/event"
)

// maxPrealloc caps the up-front allocation for large sync intervals.
const maxPrealloc = 1 << 20

// Block accumulates encoded records until the writer seals it.
// Records are stored back to back in arrival order.
type Block struct {
	data           []byte
	count          int
	firstWriteTime time.Time
	lastWriteTime  time.Time
}

// NewBlock creates an empty block sized for capacity bytes.
func NewBlock(capacity int) *Block {
	return &Block{
		data: make([]byte, 0, min(max(capacity, 0), maxPrealloc)),
	}
}

// Add copies payload into the block.
func (b *Block) Add(payload []byte) {
	b.data = append(b.data, payload...)
	b.count++

	now := time.Now()
	if b.firstWriteTime.IsZero() {
		b.firstWriteTime = now
	}
	b.lastWriteTime = now
}

// Bytes returns the concatenated records. The slice is only valid until
// the next Add or Reset.
func (b *Block) Bytes() []byte {
	return b.data
}

// Count returns the number of buffered records.
func (b *Block) Count() int {
	return b.count
}

// Size returns the number of buffered bytes.
func (b *Block) Size() int {
	return len(b.data)
}

// IsEmpty returns true if the block holds no records.
func (b *Block) IsEmpty() bool {
	return b.count == 0
}

// Stats returns current block statistics.
func (b *Block) Stats() event.FileStats {
	return event.FileStats{
		RecordCount:    b.count,
		SizeBytes:      int64(len(b.data)),
		FirstWriteTime: b.firstWriteTime,
		LastWriteTime:  b.lastWriteTime,
	}
}

// Reset clears the block, keeping its storage.
func (b *Block) Reset() {
	b.data = b.data[:0]
	b.count = 0
	b.firstWriteTime = time.Time{}
	b.lastWriteTime = time.Time{}
}
