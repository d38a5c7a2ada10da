package client

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dVol/lib/codec"
	"github.com/ValentinKolb/dVol/lib/fault"
	"github.com/ValentinKolb/dVol/lib/shard"
	"github.com/ValentinKolb/dVol/lib/volume"
	"github.com/ValentinKolb/dVol/rpc/common"
	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
)

var (
	Logger = logger.GetLogger("rpc")
)

// ChunkHandler receives streamed export chunks in order. The chunk data is
// owned by the handler. A returned error aborts the export.
type ChunkHandler func(chunk *volume.Chunk) error

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRegistry records the coordinator timers in r instead of a private registry.
func WithRegistry(r gometrics.Registry) Option {
	return func(c *Coordinator) {
		c.registry = r
	}
}

// lazyWorker is a background context constructed on first use
type lazyWorker struct {
	once   sync.Once
	conn   *workerConn
	inline bool
	err    error
}

// Coordinator runs codec and shard operations in background workers and
// correlates their responses with the waiting calls. It is safe for
// concurrent use. Workers are created on first use and live until Dispose.
type Coordinator struct {
	factory  WorkerFactory
	workers  [workerKinds]lazyWorker
	nextID   uint64 // atomic, the first request gets id 1
	disposed atomic.Bool

	registry    gometrics.Registry
	exportTimer gometrics.Timer
	importTimer gometrics.Timer
	shardTimer  gometrics.Timer
}

// NewCoordinator creates a coordinator starting its workers with factory.
// A nil factory, or a factory reporting ErrWorkerUnavailable, makes the
// affected operations run inline in the calling goroutine with the same
// callback contract.
func NewCoordinator(factory WorkerFactory, opts ...Option) *Coordinator {
	c := &Coordinator{factory: factory}
	for _, opt := range opts {
		opt(c)
	}
	if c.registry == nil {
		c.registry = gometrics.NewRegistry()
	}
	c.exportTimer = gometrics.GetOrRegisterTimer("coordinator.export", c.registry)
	c.importTimer = gometrics.GetOrRegisterTimer("coordinator.import", c.registry)
	c.shardTimer = gometrics.GetOrRegisterTimer("coordinator.shard", c.registry)
	return c
}

// Registry returns the metrics registry of the coordinator.
func (c *Coordinator) Registry() gometrics.Registry {
	return c.registry
}

// Dispose terminates all workers. Pending calls are rejected with a
// cancellation error and every later call fails with ErrDisposed.
func (c *Coordinator) Dispose() {
	if !c.disposed.CompareAndSwap(false, true) {
		return
	}
	for i := range c.workers {
		w := &c.workers[i]
		// waits for a construction in progress and blocks later ones
		w.once.Do(func() {})
		if w.conn != nil {
			w.conn.close(fault.NewCancelled("coordinator disposed"))
		}
	}
	Logger.Infof("Coordinator disposed")
}

// --------------------------------------------------------------------------
// Operations
// --------------------------------------------------------------------------

// Export encodes volumes into a container. With opts.Stream the chunks are
// passed to onChunk as they are produced and the result carries only the
// manifest; otherwise the result holds the whole container. The sample
// buffers of volumes are moved to the worker and must not be modified until
// Export returns.
func (c *Coordinator) Export(ctx context.Context, volumes []volume.Volume, opts common.ExportOptions, onChunk ChunkHandler) (*codec.Result, error) {
	defer c.exportTimer.UpdateSince(time.Now())

	if opts.Stream && onChunk == nil {
		return nil, fault.NewValidation("options.stream", "streamed export needs a chunk handler")
	}
	if err := volume.ValidateCollection(volumes); err != nil {
		return nil, err
	}

	conn, err := c.worker(WorkerDataset)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return exportInline(ctx, volumes, opts, onChunk)
	}

	id := c.newID()
	cl, err := conn.start(id, common.NewExportRequest(id, volumes, opts))
	if err != nil {
		return nil, err
	}

	for {
		msg, err := cl.next(ctx)
		if err != nil {
			conn.abort(cl, err)
			return nil, err
		}

		switch msg.MsgType {
		case common.MsgTChunk:
			chunk := &volume.Chunk{Seq: msg.Seq, Data: msg.Buffer}
			msg.Buffer = nil
			if err := onChunk(chunk); err != nil {
				conn.abort(cl, err)
				return nil, chunkHandlerError(err)
			}
			if err := conn.send(common.NewAckRequest(id, nil)); err != nil {
				conn.finish(cl)
				return nil, err
			}
		case common.MsgTDone:
			conn.finish(cl)
			return &codec.Result{Manifest: msg.Manifest}, nil
		case common.MsgTSuccess:
			conn.finish(cl)
			return &codec.Result{Manifest: msg.Manifest, Data: msg.Buffer}, nil
		case common.MsgTError:
			conn.finish(cl)
			return nil, msg.Error()
		default:
			conn.abort(cl, errors.New("unexpected response"))
			return nil, unexpected(msg)
		}
	}
}

// Import decodes the container read from src. Progress, volume counts and
// milestones are reported through cb as the worker relays them, in the same
// order as an inline decode. When cb.OnVolume is set every volume is handed
// to it as soon as the worker decoded it and is not retained in the returned
// dataset; the worker does not decode the next volume before OnVolume
// returned. Pieces read from src are moved to the worker.
func (c *Coordinator) Import(ctx context.Context, src codec.ChunkSource, cb codec.Callbacks) (*codec.Dataset, error) {
	defer c.importTimer.UpdateSince(time.Now())

	conn, err := c.worker(WorkerDataset)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return codec.Decode(ctx, src, cb)
	}

	var size int64
	if sized, ok := src.(codec.SizedSource); ok {
		size = sized.Size()
	}

	id := c.newID()
	cl, err := conn.start(id, common.NewImportRequest(id, size, cb.OnVolume != nil))
	if err != nil {
		return nil, err
	}

	for {
		msg, err := cl.next(ctx)
		if err != nil {
			conn.abort(cl, err)
			return nil, err
		}

		switch msg.MsgType {
		case common.MsgTPull:
			piece, eof, err := nextPiece(ctx, src)
			if err != nil {
				conn.abort(cl, err)
				return nil, err
			}
			if err := conn.send(common.NewFeedResponse(id, piece, eof)); err != nil {
				conn.finish(cl)
				return nil, err
			}
		case common.MsgTProgress:
			if cb.OnProgress != nil {
				cb.OnProgress(*msg.Progress)
			}
		case common.MsgTVolume:
			if cb.OnVolumeDecoded != nil {
				cb.OnVolumeDecoded(msg.Count, msg.Total)
			}
		case common.MsgTMilestone:
			if cb.OnMilestone != nil {
				cb.OnMilestone(msg.Milestone)
			}
		case common.MsgTVolumeData:
			if cb.OnVolume == nil {
				conn.abort(cl, errors.New("unexpected volume data"))
				return nil, unexpected(msg)
			}
			v := msg.Volumes[0]
			msg.Volumes = nil
			if err := cb.OnVolume(v); err != nil {
				conn.abort(cl, err)
				return nil, volumeSinkError(err)
			}
			if err := conn.send(common.NewAckRequest(id, nil)); err != nil {
				conn.finish(cl)
				return nil, err
			}
		case common.MsgTSuccess:
			conn.finish(cl)
			ds := &codec.Dataset{Manifest: msg.Manifest, Volumes: msg.Volumes}
			if cb.OnVolume != nil {
				ds.Volumes = nil
			}
			return ds, nil
		case common.MsgTError:
			conn.finish(cl)
			return nil, msg.Error()
		default:
			conn.abort(cl, errors.New("unexpected response"))
			return nil, unexpected(msg)
		}
	}
}

// DecodeShardEntry returns a copy of shard[byteStart:byteEnd], clamped to the
// shard. The shard buffer is moved to the worker and must not be modified
// until the call returns.
func (c *Coordinator) DecodeShardEntry(ctx context.Context, shardData []byte, byteStart, byteEnd int64) ([]byte, error) {
	defer c.shardTimer.UpdateSince(time.Now())

	conn, err := c.worker(WorkerShard)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return shard.Extract(shardData, byteStart, byteEnd)
	}

	id := c.newID()
	cl, err := conn.start(id, common.NewDecodeShardEntryRequest(id, shardData, byteStart, byteEnd))
	if err != nil {
		return nil, err
	}

	msg, err := cl.next(ctx)
	if err != nil {
		conn.abort(cl, err)
		return nil, err
	}
	conn.finish(cl)

	switch msg.MsgType {
	case common.MsgTDecoded:
		if msg.Buffer == nil {
			return []byte{}, nil
		}
		return msg.Buffer, nil
	case common.MsgTError:
		return nil, msg.Error()
	default:
		return nil, unexpected(msg)
	}
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (c *Coordinator) newID() uint64 {
	return atomic.AddUint64(&c.nextID, 1)
}

// worker returns the connection for kind, constructing the worker on first
// use. A nil connection means the call runs inline.
func (c *Coordinator) worker(kind WorkerKind) (*workerConn, error) {
	if c.disposed.Load() {
		return nil, ErrDisposed
	}

	w := &c.workers[kind]
	w.once.Do(func() {
		if c.factory == nil {
			w.inline = true
			return
		}
		t, err := c.factory(kind)
		if errors.Is(err, ErrWorkerUnavailable) {
			Logger.Warningf("No %s worker available, running inline: %v", kind, err)
			w.inline = true
			return
		}
		if err != nil {
			w.err = err
			return
		}
		w.conn = newWorkerConn(kind, t, c.registry)
	})

	// Dispose may have won the once
	if c.disposed.Load() {
		return nil, ErrDisposed
	}
	if w.err != nil {
		return nil, w.err
	}
	if w.inline {
		return nil, nil
	}
	return w.conn, nil
}

// exportInline encodes in the calling goroutine
func exportInline(ctx context.Context, volumes []volume.Volume, opts common.ExportOptions, onChunk ChunkHandler) (*codec.Result, error) {
	if !opts.Stream {
		return codec.Encode(ctx, volumes, opts.EncodeOptions(), nil)
	}
	res, err := codec.Encode(ctx, volumes, opts.EncodeOptions(), func(chunk *volume.Chunk) error {
		if err := onChunk(chunk); err != nil {
			return chunkHandlerError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// nextPiece reads the next non-empty piece from src
func nextPiece(ctx context.Context, src codec.ChunkSource) (piece []byte, eof bool, err error) {
	for {
		piece, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil, true, nil
		}
		if err != nil {
			if fault.CodeOf(err) != fault.CodeUnknown {
				return nil, false, err
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, false, fault.NewCancelled("import cancelled: %v", err)
			}
			return nil, false, fault.NewStream(err, "reading source")
		}
		if len(piece) > 0 {
			return piece, false, nil
		}
	}
}

// chunkHandlerError turns a chunk handler failure into a worker fault
func chunkHandlerError(err error) error {
	if fault.CodeOf(err) != fault.CodeUnknown {
		return err
	}
	return &fault.Error{Code: fault.CodeWorker, Msg: "chunk handler failed", Err: err}
}

// volumeSinkError turns an OnVolume failure into a worker fault the same way
// the decoder does
func volumeSinkError(err error) error {
	if fault.CodeOf(err) != fault.CodeUnknown {
		return err
	}
	return &fault.Error{Code: fault.CodeWorker, Msg: "volume sink failed", Err: err}
}

// unexpected rejects a response kind the operation does not know
func unexpected(msg *common.Message) error {
	return fault.NewStream(nil, "unexpected %s response for request %d", msg.MsgType, msg.ID)
}
