package codec

import (
	"context"
	"io"
)

// DefaultPieceSize is the size of the pieces produced by buffer and reader sources.
const DefaultPieceSize = 1024 * 1024

// ChunkSource is a pull-based, strictly ordered source of byte pieces.
// Pieces may have any size. Next returns io.EOF after the last piece.
// Ownership of a returned piece moves to the caller.
type ChunkSource interface {
	Next(ctx context.Context) ([]byte, error)
}

// SizedSource is a ChunkSource that knows its total length up front.
type SizedSource interface {
	ChunkSource
	Size() int64
}

// ChunkSourceFunc adapts a function to the ChunkSource interface.
type ChunkSourceFunc func(ctx context.Context) ([]byte, error)

// Next calls f(ctx).
func (f ChunkSourceFunc) Next(ctx context.Context) ([]byte, error) {
	return f(ctx)
}

// ----- buffer source -----

type bufferSource struct {
	data  []byte
	pos   int
	piece int
}

// NewBufferSource returns a sized source over data that yields pieces of at
// most pieceSize bytes (DefaultPieceSize if <= 0). The pieces alias data.
func NewBufferSource(data []byte, pieceSize int) SizedSource {
	if pieceSize <= 0 {
		pieceSize = DefaultPieceSize
	}
	return &bufferSource{data: data, piece: pieceSize}
}

func (s *bufferSource) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.data) {
		return nil, io.EOF
	}
	end := s.pos + s.piece
	if end > len(s.data) {
		end = len(s.data)
	}
	out := s.data[s.pos:end:end]
	s.pos = end
	return out, nil
}

func (s *bufferSource) Size() int64 {
	return int64(len(s.data))
}

// ----- reader source -----

type readerSource struct {
	r     io.Reader
	piece int
}

// NewReaderSource returns a source reading pieces of at most pieceSize bytes
// (DefaultPieceSize if <= 0) from r.
func NewReaderSource(r io.Reader, pieceSize int) ChunkSource {
	if pieceSize <= 0 {
		pieceSize = DefaultPieceSize
	}
	return &readerSource{r: r, piece: pieceSize}
}

func (s *readerSource) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	buf := make([]byte, s.piece)
	n, err := io.ReadFull(s.r, buf)
	if n > 0 {
		return buf[:n], nil
	}
	return nil, err
}
