package codec

import (
	"context"
	"io"

	"github.com/ValentinKolb/dVol/lib/fault"
	"github.com/ValentinKolb/dVol/lib/volume"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/segmentio/ksuid"
)

// DefaultChunkSize is the raw size of a payload chunk when none is configured.
const DefaultChunkSize = 4 * 1024 * 1024

// MaxChunkSize is the largest accepted ChunkSize. Stored chunks may grow
// beyond their raw size and must still fit volume.MaxChunkBytes.
const MaxChunkSize = volume.MaxChunkBytes / 2

var (
	log = logger.GetLogger("codec")

	encodedBytes  = metrics.NewCounter("dvol_codec_encoded_bytes_total")
	encodedChunks = metrics.NewCounter("dvol_codec_encoded_chunks_total")
)

// EncodeOptions configures an export.
type EncodeOptions struct {
	ChunkSize   int                // raw bytes per chunk, DefaultChunkSize if <= 0, at most MaxChunkSize
	Compression volume.Compression // per-chunk compression
	DatasetID   string             // generated (ksuid) if empty
}

// ChunkSink receives encoded chunks in order. Ownership of the chunk moves to
// the sink. Returning an error aborts the export.
type ChunkSink func(chunk *volume.Chunk) error

// Result is the outcome of an export. Data holds the complete container
// (header + payload) and is only set when no ChunkSink was given.
type Result struct {
	Manifest *volume.Manifest
	Data     []byte
}

// Encode serializes volumes into a manifest and an ordered sequence of chunks.
//
// With a non-nil sink, every chunk is delivered to the sink and the next chunk
// is not encoded before the sink returns; the returned Result then carries
// only the manifest. Without a sink, the complete container is returned.
//
// The collection is validated before any byte is produced.
func Encode(ctx context.Context, volumes []volume.Volume, opts EncodeOptions, sink ChunkSink) (*Result, error) {
	m, err := Plan(volumes, opts)
	if err != nil {
		return nil, err
	}

	// Whole-buffer mode: reserve the header and append the payload behind it
	var data []byte
	if sink == nil {
		data = make([]byte, m.HeaderSize(), m.HeaderSize()+int(m.RawBytes()))
		sink = func(chunk *volume.Chunk) error {
			data = append(data, chunk.Take()...)
			return nil
		}
	}

	if err := encodeChunks(ctx, volumes, m, opts, sink); err != nil {
		return nil, err
	}

	if data != nil {
		header, err := m.MarshalHeader()
		if err != nil {
			return nil, err
		}
		copy(data, header)
	}

	log.Debugf("encoded dataset %s: %d volumes, %d chunks, %d bytes", m.DatasetID, len(m.Volumes), len(m.Chunks), m.TotalBytes)
	return &Result{Manifest: m, Data: data}, nil
}

// WriteContainer streams the container for volumes to w. The header has a
// fixed size once the chunk count is known, so it is reserved up front and
// written after the last chunk.
func WriteContainer(ctx context.Context, w io.WriterAt, volumes []volume.Volume, opts EncodeOptions) (*volume.Manifest, error) {
	m, err := Plan(volumes, opts)
	if err != nil {
		return nil, err
	}
	base := int64(m.HeaderSize())

	offset := base
	err = encodeChunks(ctx, volumes, m, opts, func(chunk *volume.Chunk) error {
		data := chunk.Take()
		if _, err := w.WriteAt(data, offset); err != nil {
			return fault.NewStream(err, "writing chunk %d", chunk.Seq)
		}
		offset += int64(len(data))
		return nil
	})
	if err != nil {
		return nil, err
	}

	header, err := m.MarshalHeader()
	if err != nil {
		return nil, err
	}
	if _, err := w.WriteAt(header, 0); err != nil {
		return nil, fault.NewStream(err, "writing header")
	}
	return m, nil
}

// Plan validates the collection and returns a manifest whose chunk table has
// the final length but is not yet filled in.
func Plan(volumes []volume.Volume, opts EncodeOptions) (*volume.Manifest, error) {
	if err := volume.ValidateCollection(volumes); err != nil {
		return nil, err
	}
	if opts.Compression > volume.CompressionSnappy {
		return nil, fault.NewValidation("options.compression", "unknown compression %d", opts.Compression)
	}

	if opts.ChunkSize > MaxChunkSize {
		return nil, fault.NewValidation("options.chunkSize", "%d exceeds %d bytes", opts.ChunkSize, MaxChunkSize)
	}
	chunkSize := uint64(opts.ChunkSize)
	if opts.ChunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	id := opts.DatasetID
	if id == "" {
		id = ksuid.New().String()
	}

	m := &volume.Manifest{
		FormatVersion: volume.FormatVersion,
		DatasetID:     id,
		Compression:   opts.Compression,
		Volumes:       make([]volume.Descriptor, len(volumes)),
	}
	for i, v := range volumes {
		m.Volumes[i] = v.Descriptor
	}
	raw := m.RawBytes()
	m.Chunks = make([]volume.ChunkRef, (raw+chunkSize-1)/chunkSize)
	return m, nil
}

// encodeChunks fills the chunk table of m while handing every chunk to sink.
func encodeChunks(ctx context.Context, volumes []volume.Volume, m *volume.Manifest, opts EncodeOptions, sink ChunkSink) error {
	cc, err := newChunkCodec(opts.Compression)
	if err != nil {
		return fault.NewValidation("options.compression", "%v", err)
	}
	defer cc.Close()

	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	remaining := m.RawBytes()

	// position inside the concatenated volume data
	vi, vpos := 0, 0
	var offset uint64

	for seq := range m.Chunks {
		if err := ctx.Err(); err != nil {
			return fault.NewCancelled("export cancelled at chunk %d: %v", seq, err)
		}

		// Gather the raw chunk, which may span volume boundaries
		size := uint64(chunkSize)
		if remaining < size {
			size = remaining
		}
		raw := make([]byte, 0, size)
		for uint64(len(raw)) < size {
			src := volumes[vi].Data[vpos:]
			n := copy(raw[len(raw):size], src)
			raw = raw[:len(raw)+n]
			vpos += n
			if vpos == len(volumes[vi].Data) {
				vi, vpos = vi+1, 0
			}
		}
		remaining -= size

		stored, err := cc.Encode(raw)
		if err != nil {
			return fault.NewWorker("compressing chunk: "+err.Error(), "")
		}

		m.Chunks[seq] = volume.ChunkRef{Offset: offset, Length: uint64(len(stored)), RawLength: size}
		offset += uint64(len(stored))
		encodedBytes.Add(len(stored))
		encodedChunks.Inc()

		if err := sink(&volume.Chunk{Seq: uint32(seq), Data: stored}); err != nil {
			if fault.CodeOf(err) != fault.CodeUnknown {
				return err
			}
			return &fault.Error{Code: fault.CodeWorker, Msg: "chunk sink failed", Err: err}
		}
	}
	m.TotalBytes = offset
	return nil
}
