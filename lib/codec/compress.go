package codec

import (
	"fmt"

	"github.com/ValentinKolb/dVol/lib/volume"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// chunkCodec converts between raw chunk bytes and their stored form.
type chunkCodec interface {
	// Encode returns the stored form of raw. The result never aliases raw
	// unless the codec is the identity.
	Encode(raw []byte) ([]byte, error)
	// Decode returns the raw form of stored, which must be exactly rawLen bytes long.
	Decode(stored []byte, rawLen uint64) ([]byte, error)
	// Close releases codec resources.
	Close()
}

// newChunkCodec creates the codec for the given compression
func newChunkCodec(c volume.Compression) (chunkCodec, error) {
	switch c {
	case volume.CompressionNone:
		return identityCodec{}, nil
	case volume.CompressionZstd:
		return newZstdCodec()
	case volume.CompressionSnappy:
		return snappyCodec{}, nil
	default:
		return nil, fmt.Errorf("unsupported compression: %s", c)
	}
}

// ----- none -----

type identityCodec struct{}

func (identityCodec) Encode(raw []byte) ([]byte, error) { return raw, nil }

func (identityCodec) Decode(stored []byte, rawLen uint64) ([]byte, error) {
	if uint64(len(stored)) != rawLen {
		return nil, fmt.Errorf("chunk is %d bytes, expected %d", len(stored), rawLen)
	}
	return stored, nil
}

func (identityCodec) Close() {}

// ----- zstd -----

type zstdCodec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func newZstdCodec() (*zstdCodec, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(volume.MaxChunkBytes))
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &zstdCodec{encoder: encoder, decoder: decoder}, nil
}

func (c *zstdCodec) Encode(raw []byte) ([]byte, error) {
	return c.encoder.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
}

func (c *zstdCodec) Decode(stored []byte, rawLen uint64) ([]byte, error) {
	if rawLen > volume.MaxChunkBytes {
		return nil, fmt.Errorf("zstd chunk claims %d bytes, limit is %d", rawLen, volume.MaxChunkBytes)
	}
	// rawLen is untrusted, the output grows with the data actually decoded
	out, err := c.decoder.DecodeAll(stored, make([]byte, 0, min(rawLen, DefaultChunkSize)))
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	if uint64(len(out)) != rawLen {
		return nil, fmt.Errorf("zstd chunk decoded to %d bytes, expected %d", len(out), rawLen)
	}
	return out, nil
}

func (c *zstdCodec) Close() {
	_ = c.encoder.Close()
	c.decoder.Close()
}

// ----- snappy -----

type snappyCodec struct{}

func (snappyCodec) Encode(raw []byte) ([]byte, error) { return snappy.Encode(nil, raw), nil }

func (snappyCodec) Decode(stored []byte, rawLen uint64) ([]byte, error) {
	n, err := snappy.DecodedLen(stored)
	if err != nil {
		return nil, fmt.Errorf("snappy: %w", err)
	}
	if uint64(n) != rawLen {
		return nil, fmt.Errorf("snappy chunk decodes to %d bytes, expected %d", n, rawLen)
	}
	out, err := snappy.Decode(nil, stored)
	if err != nil {
		return nil, fmt.Errorf("snappy: %w", err)
	}
	return out, nil
}

func (snappyCodec) Close() {}
