package volume

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ValentinKolb/dVol/lib/fault"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	headerMagic = "DVOLSET\x00" // container format identifier

	// HeaderPrefixSize is the number of bytes needed to learn the header size:
	// 8 bytes magic + 4 bytes body length.
	HeaderPrefixSize = len(headerMagic) + 4

	// maxHeaderBody bounds the body length accepted from untrusted input.
	maxHeaderBody = 64 * 1024 * 1024

	descriptorSize = 4*4 + 1 + 4 // width, height, depth, channels, dtype, index
	chunkRefSize   = 3 * 8       // offset, length, raw length
)

// HeaderSize returns the encoded size of the manifest header in bytes.
// The size depends only on the dataset id length and the number of volumes
// and chunks, so it is known before any chunk is encoded.
func (m *Manifest) HeaderSize() int {
	return HeaderPrefixSize + bodySize(len(m.DatasetID), len(m.Volumes), len(m.Chunks))
}

// bodySize calculates the body size of the header
func bodySize(idLen, volumes, chunks int) int {
	return 2 + // format version
		1 + // compression
		2 + idLen + // dataset id
		4 + volumes*descriptorSize +
		4 + chunks*chunkRefSize +
		8 // total bytes
}

// --------------------------------------------------------------------------
// Marshal
// --------------------------------------------------------------------------

// MarshalHeader encodes the manifest as a container header.
func (m *Manifest) MarshalHeader() ([]byte, error) {
	if len(m.DatasetID) > 0xFFFF {
		return nil, fault.NewValidation("manifest.datasetId", "too long (%d bytes)", len(m.DatasetID))
	}

	size := m.HeaderSize()
	result := make([]byte, size)

	// Write magic and body length
	copy(result, headerMagic)
	pos := len(headerMagic)
	binary.BigEndian.PutUint32(result[pos:pos+4], uint32(size-HeaderPrefixSize))
	pos += 4

	// Write version and compression
	binary.BigEndian.PutUint16(result[pos:pos+2], m.FormatVersion)
	pos += 2
	result[pos] = byte(m.Compression)
	pos += 1

	// Write dataset id
	binary.BigEndian.PutUint16(result[pos:pos+2], uint16(len(m.DatasetID)))
	pos += 2
	copy(result[pos:], m.DatasetID)
	pos += len(m.DatasetID)

	// Write volume descriptors
	binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(m.Volumes)))
	pos += 4
	for _, d := range m.Volumes {
		binary.BigEndian.PutUint32(result[pos:pos+4], d.Width)
		binary.BigEndian.PutUint32(result[pos+4:pos+8], d.Height)
		binary.BigEndian.PutUint32(result[pos+8:pos+12], d.Depth)
		binary.BigEndian.PutUint32(result[pos+12:pos+16], d.Channels)
		result[pos+16] = byte(d.DataType)
		binary.BigEndian.PutUint32(result[pos+17:pos+21], d.Index)
		pos += descriptorSize
	}

	// Write chunk table
	binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(m.Chunks)))
	pos += 4
	for _, c := range m.Chunks {
		binary.BigEndian.PutUint64(result[pos:pos+8], c.Offset)
		binary.BigEndian.PutUint64(result[pos+8:pos+16], c.Length)
		binary.BigEndian.PutUint64(result[pos+16:pos+24], c.RawLength)
		pos += chunkRefSize
	}

	// Write total payload length
	binary.BigEndian.PutUint64(result[pos:pos+8], m.TotalBytes)

	return result, nil
}

// --------------------------------------------------------------------------
// Unmarshal
// --------------------------------------------------------------------------

// ParseHeaderPrefix checks the magic and returns the total header size
// (prefix + body). The input must hold at least HeaderPrefixSize bytes.
func ParseHeaderPrefix(prefix []byte) (int, error) {
	if len(prefix) < HeaderPrefixSize {
		return 0, fault.NewStream(nil, "data too short for header prefix")
	}
	if !bytes.Equal(prefix[:len(headerMagic)], []byte(headerMagic)) {
		return 0, fault.NewValidation("header.magic", "not a dVol container")
	}
	bodyLen := binary.BigEndian.Uint32(prefix[len(headerMagic):HeaderPrefixSize])
	if bodyLen > maxHeaderBody {
		return 0, fault.NewValidation("header.length", "header body of %d bytes exceeds limit", bodyLen)
	}
	if int(bodyLen) < bodySize(0, 0, 0) {
		return 0, fault.NewValidation("header.length", "header body of %d bytes is too short", bodyLen)
	}
	return HeaderPrefixSize + int(bodyLen), nil
}

// UnmarshalHeader decodes a complete header (prefix + body) and validates the
// resulting manifest.
func UnmarshalHeader(data []byte) (*Manifest, error) {
	size, err := ParseHeaderPrefix(data)
	if err != nil {
		return nil, err
	}
	if len(data) < size {
		return nil, fault.NewStream(nil, "data too short for header body: %d < %d", len(data), size)
	}
	body := data[HeaderPrefixSize:size]

	m := &Manifest{}
	pos := 0

	// Read version, compression and dataset id length
	if pos+5 > len(body) {
		return nil, fault.NewValidation("header", "data too short for version")
	}
	m.FormatVersion = binary.BigEndian.Uint16(body[pos : pos+2])
	m.Compression = Compression(body[pos+2])
	idLen := int(binary.BigEndian.Uint16(body[pos+3 : pos+5]))
	pos += 5

	// Read dataset id
	if pos+idLen+4 > len(body) {
		return nil, fault.NewValidation("header.datasetId", "data too short for dataset id")
	}
	m.DatasetID = string(body[pos : pos+idLen])
	pos += idLen

	// Read volume descriptors
	volCount := int(binary.BigEndian.Uint32(body[pos : pos+4]))
	pos += 4
	if volCount < 0 || volCount > (len(body)-pos)/descriptorSize {
		return nil, fault.NewValidation("header.volumes", "volume count %d does not fit the header", volCount)
	}
	m.Volumes = make([]Descriptor, volCount)
	for i := range m.Volumes {
		m.Volumes[i] = Descriptor{
			Width:    binary.BigEndian.Uint32(body[pos : pos+4]),
			Height:   binary.BigEndian.Uint32(body[pos+4 : pos+8]),
			Depth:    binary.BigEndian.Uint32(body[pos+8 : pos+12]),
			Channels: binary.BigEndian.Uint32(body[pos+12 : pos+16]),
			DataType: DataType(body[pos+16]),
			Index:    binary.BigEndian.Uint32(body[pos+17 : pos+21]),
		}
		pos += descriptorSize
	}

	// Read chunk table
	if pos+4 > len(body) {
		return nil, fault.NewValidation("header.chunks", "data too short for chunk count")
	}
	chunkCount := int(binary.BigEndian.Uint32(body[pos : pos+4]))
	pos += 4
	if chunkCount < 0 || chunkCount > (len(body)-pos)/chunkRefSize {
		return nil, fault.NewValidation("header.chunks", "chunk count %d does not fit the header", chunkCount)
	}
	m.Chunks = make([]ChunkRef, chunkCount)
	for i := range m.Chunks {
		m.Chunks[i] = ChunkRef{
			Offset:    binary.BigEndian.Uint64(body[pos : pos+8]),
			Length:    binary.BigEndian.Uint64(body[pos+8 : pos+16]),
			RawLength: binary.BigEndian.Uint64(body[pos+16 : pos+24]),
		}
		pos += chunkRefSize
	}

	// Read total payload length
	if pos+8 != len(body) {
		return nil, fault.NewValidation("header.totalBytes", "expected 8 trailing bytes, got %d", len(body)-pos)
	}
	m.TotalBytes = binary.BigEndian.Uint64(body[pos : pos+8])

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// ReadHeader reads and decodes a header from r. It returns the manifest and
// the number of bytes consumed.
func ReadHeader(r io.Reader) (*Manifest, int, error) {
	prefix := make([]byte, HeaderPrefixSize)
	if _, err := io.ReadFull(r, prefix); err != nil {
		return nil, 0, fault.NewStream(err, "reading header prefix")
	}
	size, err := ParseHeaderPrefix(prefix)
	if err != nil {
		return nil, 0, err
	}
	data := make([]byte, size)
	copy(data, prefix)
	if _, err := io.ReadFull(r, data[HeaderPrefixSize:]); err != nil {
		return nil, 0, fault.NewStream(err, "reading header body")
	}
	m, err := UnmarshalHeader(data)
	if err != nil {
		return nil, 0, err
	}
	return m, size, nil
}

// String returns a formatted string representation of the manifest
func (m *Manifest) String() string {
	var sb bytes.Buffer
	fmt.Fprintf(&sb, "\nMANIFEST\n")
	fmt.Fprintf(&sb, "  %-22s: %d\n", "Format Version", m.FormatVersion)
	fmt.Fprintf(&sb, "  %-22s: %s\n", "Dataset ID", m.DatasetID)
	fmt.Fprintf(&sb, "  %-22s: %s\n", "Compression", m.Compression)
	fmt.Fprintf(&sb, "  %-22s: %d bytes\n", "Header Size", m.HeaderSize())
	fmt.Fprintf(&sb, "  %-22s: %d bytes\n", "Payload Size", m.TotalBytes)
	fmt.Fprintf(&sb, "  %-22s: %d bytes\n", "Raw Size", m.RawBytes())
	fmt.Fprintf(&sb, "\nVOLUMES\n")
	for i, d := range m.Volumes {
		fmt.Fprintf(&sb, "  %-22d: %s\n", i, d)
	}
	fmt.Fprintf(&sb, "\nCHUNKS\n")
	fmt.Fprintf(&sb, "  %-22s: %d\n", "Count", len(m.Chunks))
	return sb.String()
}
