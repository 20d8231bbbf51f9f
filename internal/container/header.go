package container

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"github.com/linkedin/goavro/v2"
)

const (
	// Magic opens every Avro object container file.
	Magic = "Obj\x01"

	// SyncSize is the length of the per-file sync marker.
	SyncSize = 16

	// Metadata keys written to the header.
	MetaSchema = "avro.schema"
	MetaCodec  = "avro.codec"

	metadataSchema = `{"type":"map","values":"bytes"}`
)

// SyncMarker separates blocks; it is unique per file.
type SyncMarker [SyncSize]byte

var metadataCodec *goavro.Codec

func init() {
	var err error
	metadataCodec, err = goavro.NewCodec(metadataSchema)
	if err != nil {
		panic(fmt.Sprintf("container: metadata codec: %v", err))
	}
}

// NewSyncMarker returns a random sync marker.
func NewSyncMarker() (SyncMarker, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return SyncMarker{}, fmt.Errorf("failed to generate sync marker: %w", err)
	}
	return SyncMarker(id), nil
}

// appendHeader appends magic, the metadata map and the sync marker.
func appendHeader(dst []byte, schemaText, codecName string, sync SyncMarker) ([]byte, error) {
	dst = append(dst, Magic...)

	meta := map[string]interface{}{
		MetaSchema: []byte(schemaText),
		MetaCodec:  []byte(codecName),
	}
	dst, err := metadataCodec.BinaryFromNative(dst, meta)
	if err != nil {
		return nil, fmt.Errorf("failed to encode header metadata: %w", err)
	}

	return append(dst, sync[:]...), nil
}

// appendBlock appends one framed block: record count, byte length, data,
// sync marker. Counts are Avro longs (zig-zag varints).
func appendBlock(dst []byte, count int, data []byte, sync SyncMarker) []byte {
	dst = binary.AppendVarint(dst, int64(count))
	dst = binary.AppendVarint(dst, int64(len(data)))
	dst = append(dst, data...)
	return append(dst, sync[:]...)
}
