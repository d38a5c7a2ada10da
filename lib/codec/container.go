package codec

import (
	"fmt"
	"io"
	"math"

	"github.com/ValentinKolb/dVol/lib/fault"
	"github.com/ValentinKolb/dVol/lib/volume"
)

// ReadManifest parses the header of a container without touching its payload.
func ReadManifest(r io.ReaderAt) (*volume.Manifest, error) {
	m, _, err := volume.ReadHeader(io.NewSectionReader(r, 0, math.MaxInt64))
	return m, err
}

// ReadChunkAt returns the raw bytes of chunk i of a container. Only the header
// (already parsed into m) and the chunk itself are read.
func ReadChunkAt(r io.ReaderAt, m *volume.Manifest, i int) ([]byte, error) {
	if i < 0 || i >= len(m.Chunks) {
		return nil, fault.NewValidation("chunk", "index %d out of range [0, %d)", i, len(m.Chunks))
	}
	ref := m.Chunks[i]
	if ref.Length > volume.MaxChunkBytes {
		return nil, fault.NewValidation(fmt.Sprintf("manifest.chunks[%d].length", i), "%d exceeds %d bytes", ref.Length, volume.MaxChunkBytes)
	}

	stored := make([]byte, ref.Length)
	off := int64(m.HeaderSize()) + int64(ref.Offset)
	if n, err := r.ReadAt(stored, off); n < len(stored) {
		return nil, fault.NewStream(err, "reading chunk %d at offset %d", i, off)
	}

	cc, err := newChunkCodec(m.Compression)
	if err != nil {
		return nil, fault.NewValidation("manifest.compression", "%v", err)
	}
	defer cc.Close()

	raw, err := cc.Decode(stored, ref.RawLength)
	if err != nil {
		return nil, fault.NewStream(err, "decoding chunk %d", i)
	}
	return raw, nil
}
