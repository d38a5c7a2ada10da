package volume

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/dVol/lib/fault"
)

// FormatVersion is the container format version written by this package.
const FormatVersion uint16 = 1

// MaxChunkBytes bounds the stored and raw length of a single chunk.
const MaxChunkBytes = 1 << 30

// --------------------------------------------------------------------------
// Compression
// --------------------------------------------------------------------------

// Compression defines how each stored chunk is encoded.
type Compression uint8

const (
	CompressionNone   Compression = iota // raw sample bytes
	CompressionZstd                      // zstd frame per chunk
	CompressionSnappy                    // snappy block per chunk
)

// String returns the string representation of a Compression.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionSnappy:
		return "snappy"
	default:
		return "unknown"
	}
}

// ParseCompression converts a string to a Compression.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	case "snappy":
		return CompressionSnappy, nil
	default:
		return CompressionNone, fmt.Errorf("unknown compression: %s (expected one of none, zstd, snappy)", s)
	}
}

// MarshalJSON implements the json.Marshaller interface for Compression.
func (c Compression) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for Compression.
func (c *Compression) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseCompression(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// --------------------------------------------------------------------------
// Manifest
// --------------------------------------------------------------------------

// ChunkRef locates a stored chunk inside the payload.
type ChunkRef struct {
	Offset    uint64 `json:"offset"`    // relative to the first payload byte
	Length    uint64 `json:"length"`    // stored (possibly compressed) length
	RawLength uint64 `json:"rawLength"` // length after decompression
}

// Manifest is the preprocessed description of a chunked dataset.
// It is produced once by the encoder and read-only afterwards.
type Manifest struct {
	FormatVersion uint16       `json:"formatVersion"`
	DatasetID     string       `json:"datasetId"`
	Compression   Compression  `json:"compression"`
	Volumes       []Descriptor `json:"volumes"`
	Chunks        []ChunkRef   `json:"chunks"`
	TotalBytes    uint64       `json:"totalBytes"` // sum of stored chunk lengths
}

// RawBytes returns the sum of all volume byte lengths.
func (m *Manifest) RawBytes() uint64 {
	var total uint64
	for _, d := range m.Volumes {
		total += d.ByteLength()
	}
	return total
}

// ContainerBytes returns the size of the complete container (header + payload).
func (m *Manifest) ContainerBytes() uint64 {
	return uint64(m.HeaderSize()) + m.TotalBytes
}

// Validate checks the manifest invariants:
//   - the format version is supported
//   - every volume descriptor is valid and the volumes fit MaxVolumeBytes
//   - no chunk exceeds MaxChunkBytes
//   - chunk offsets are contiguous and in emission order
//   - the sum of chunk lengths equals TotalBytes
//   - the sum of raw chunk lengths equals the sum of volume byte lengths
func (m *Manifest) Validate() error {
	if m.FormatVersion == 0 || m.FormatVersion > FormatVersion {
		return fault.NewValidation("manifest.formatVersion", "unsupported version %d", m.FormatVersion)
	}
	if m.Compression > CompressionSnappy {
		return fault.NewValidation("manifest.compression", "unknown compression %d", m.Compression)
	}
	if len(m.Volumes) == 0 {
		return fault.NewValidation("manifest.volumes", "at least one volume is required")
	}
	var need uint64
	for i, d := range m.Volumes {
		if err := d.Validate(fmt.Sprintf("manifest.volumes[%d]", i)); err != nil {
			return err
		}
		if need += d.ByteLength(); need > MaxVolumeBytes {
			return fault.NewValidation("manifest.volumes", "volumes exceed %d bytes", uint64(MaxVolumeBytes))
		}
	}

	var offset, raw uint64
	for i, c := range m.Chunks {
		if c.Offset != offset {
			return fault.NewValidation(fmt.Sprintf("manifest.chunks[%d].offset", i), "expected %d, got %d", offset, c.Offset)
		}
		if c.RawLength == 0 {
			return fault.NewValidation(fmt.Sprintf("manifest.chunks[%d].rawLength", i), "must be greater than zero")
		}
		if c.RawLength > MaxChunkBytes {
			return fault.NewValidation(fmt.Sprintf("manifest.chunks[%d].rawLength", i), "%d exceeds %d bytes", c.RawLength, MaxChunkBytes)
		}
		if c.Length > MaxChunkBytes {
			return fault.NewValidation(fmt.Sprintf("manifest.chunks[%d].length", i), "%d exceeds %d bytes", c.Length, MaxChunkBytes)
		}
		offset += c.Length
		raw += c.RawLength
	}
	if offset != m.TotalBytes {
		return fault.NewValidation("manifest.totalBytes", "expected %d (sum of chunk lengths), got %d", offset, m.TotalBytes)
	}
	if raw != need {
		return fault.NewValidation("manifest.chunks", "raw chunk lengths sum to %d, volumes need %d", raw, need)
	}
	return nil
}
