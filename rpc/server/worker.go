package server

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/ValentinKolb/dVol/lib/fault"
	"github.com/ValentinKolb/dVol/lib/queue"
	"github.com/ValentinKolb/dVol/rpc/common"
	"github.com/ValentinKolb/dVol/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("worker")

// Worker serves requests arriving on a transport, one at a time.
type Worker struct {
	transport transport.IWorkerTransport
	adapters  map[common.MessageType]IWorkerAdapter
	requests  *queue.MPSC[common.Message]
	inboxes   *xsync.MapOf[uint64, chan *common.Message]
}

// NewWorker creates a worker serving export, import and shard requests
// received on t.
//
// Usage:
//
//	w := server.NewWorker(stream.NewStdio(serializer.NewBinarySerializer()))
//	if err := w.Serve(ctx); err != nil {
//		panic(err)
//	}
func NewWorker(t transport.IWorkerTransport) *Worker {
	return &Worker{
		transport: t,
		adapters: map[common.MessageType]IWorkerAdapter{
			common.MsgTExport:           NewExportAdapter(),
			common.MsgTImport:           NewImportAdapter(),
			common.MsgTDecodeShardEntry: NewShardAdapter(),
		},
		requests: queue.NewMPSC[common.Message](),
		inboxes:  xsync.NewMapOf[uint64, chan *common.Message](),
	}
}

// Serve runs the worker until the transport is closed or ctx ends. Requests
// are handled strictly in arrival order; a request still running when the
// transport closes is cancelled. Serve returns nil after a regular close.
func (w *Worker) Serve(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	readErr := make(chan error, 1)
	go func() {
		readErr <- w.readLoop()
		cancel()
		w.requests.Discard()
	}()

	Logger.Infof("Worker started")

	for {
		select {
		case req, ok := <-w.requests.Recv():
			if !ok {
				err := <-readErr
				Logger.Infof("Worker stopped")
				return err
			}
			w.handle(ctx, req)
		case <-ctx.Done():
			w.transport.Close()
			w.requests.Discard()
			err := <-readErr
			if err == nil {
				err = parent.Err()
			}
			Logger.Infof("Worker stopped")
			return err
		}
	}
}

// readLoop receives messages and distributes them: requests go to the request
// queue, acks and feeds to the inbox of their request.
func (w *Worker) readLoop() error {
	for {
		msg, err := w.transport.Recv()
		if errors.Is(err, transport.ErrClosed) {
			return nil
		}
		if err != nil {
			Logger.Errorf("Failed to receive message: %v", err)
			return err
		}

		if err := msg.Validate(); err != nil {
			Logger.Warningf("Dropping invalid message: %v", err)
			if _, isRequest := w.adapters[msg.MsgType]; isRequest && msg.ID != 0 {
				w.reply(common.NewErrorResponse(msg.ID, fault.NewValidation("message", "%v", err)))
			}
			continue
		}

		switch msg.MsgType {
		case common.MsgTExport, common.MsgTImport, common.MsgTDecodeShardEntry:
			if _, loaded := w.inboxes.LoadOrStore(msg.ID, make(chan *common.Message, inboxSize)); loaded {
				Logger.Warningf("Duplicate request ID %d, dropping %s", msg.ID, msg.MsgType)
				continue
			}
			Logger.Debugf("Queued %s request %d", msg.MsgType, msg.ID)
			w.requests.Push(msg)

		case common.MsgTAck, common.MsgTFeed:
			inbox, ok := w.inboxes.Load(msg.ID)
			if !ok {
				Logger.Warningf("Received %s for unknown request ID %d", msg.MsgType, msg.ID)
				continue
			}
			select {
			case inbox <- msg:
			default:
				Logger.Warningf("Inbox of request %d full, dropping %s", msg.ID, msg.MsgType)
			}

		default:
			Logger.Warningf("Unexpected %s message for request %d", msg.MsgType, msg.ID)
		}
	}
}

// handle runs one request and sends its final response
func (w *Worker) handle(ctx context.Context, req *common.Message) {
	inbox, _ := w.inboxes.Load(req.ID)
	defer w.inboxes.Delete(req.ID)

	s := &Session{id: req.ID, transport: w.transport, inbox: inbox}
	if s.abortedEarly() {
		Logger.Debugf("Request %d aborted before it started", req.ID)
		return
	}

	resp := w.run(ctx, req, s)
	if resp == nil || s.Aborted() {
		Logger.Debugf("Request %d aborted by caller", req.ID)
		return
	}
	w.reply(resp)
}

// run calls the adapter and turns a panic into a worker error
func (w *Worker) run(ctx context.Context, req *common.Message, s *Session) (resp *common.Message) {
	defer func() {
		if r := recover(); r != nil {
			Logger.Errorf("Request %d (%s) panicked: %v", req.ID, req.MsgType, r)
			resp = common.NewErrorResponse(req.ID, fault.NewWorker(fmt.Sprintf("panic: %v", r), string(debug.Stack())))
		}
	}()

	adapter, ok := w.adapters[req.MsgType]
	if !ok {
		return common.NewErrorResponse(req.ID, fault.NewWorker(fmt.Sprintf("unsupported message type: %s", req.MsgType), ""))
	}
	return adapter.Handle(ctx, req, s)
}

// reply sends a final response, logging failures
func (w *Worker) reply(resp *common.Message) {
	if resp.MsgType == common.MsgTError {
		Logger.Warningf("Request %d failed: %s", resp.ID, resp.Err)
	}
	if err := w.transport.Send(resp); err != nil && !errors.Is(err, transport.ErrClosed) {
		Logger.Errorf("Failed to send %s for request %d: %v", resp.MsgType, resp.ID, err)
	}
}
