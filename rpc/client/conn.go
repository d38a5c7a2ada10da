package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/dVol/lib/fault"
	"github.com/ValentinKolb/dVol/rpc/common"
	"github.com/ValentinKolb/dVol/rpc/transport"
	"github.com/puzpuzpuz/xsync/v3"
	gometrics "github.com/rcrowley/go-metrics"
)

// callBuffer bounds the responses queued for one call
const callBuffer = 64

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// call is a single pending request
type call struct {
	id   uint64
	msgs chan *common.Message
	fail chan error    // rejection by dispose or a lost worker
	done chan struct{} // closed when the caller stops listening
}

// next waits for the next response of the call
func (c *call) next(ctx context.Context) (*common.Message, error) {
	select {
	case msg := <-c.msgs:
		return msg, nil
	case err := <-c.fail:
		return nil, err
	case <-ctx.Done():
		return nil, fault.NewCancelled("request %d: %v", c.id, ctx.Err())
	}
}

// reject fails the call unless it already has a rejection pending
func (c *call) reject(err error) {
	select {
	case c.fail <- err:
	default:
	}
}

// workerConn is the coordinator's connection to one worker
type workerConn struct {
	kind      WorkerKind
	transport transport.IWorkerTransport
	pending   *xsync.MapOf[uint64, *call]
	closed    atomic.Pointer[error] // reason the connection ended
	closeOnce sync.Once
	unknown   gometrics.Counter
}

func newWorkerConn(kind WorkerKind, t transport.IWorkerTransport, registry gometrics.Registry) *workerConn {
	c := &workerConn{
		kind:      kind,
		transport: t,
		pending:   xsync.NewMapOf[uint64, *call](),
		unknown:   gometrics.GetOrRegisterCounter("coordinator.unknown_responses", registry),
	}
	go c.readResponses()
	return c
}

// start registers a call for id and sends its request
func (c *workerConn) start(id uint64, req *common.Message) (*call, error) {
	cl := &call{
		id:   id,
		msgs: make(chan *common.Message, callBuffer),
		fail: make(chan error, 1),
		done: make(chan struct{}),
	}
	c.pending.Store(id, cl)

	// close() sets the reason before rejecting pending calls, so either it
	// sees this call or this call sees the reason
	if reason := c.closed.Load(); reason != nil {
		c.pending.Delete(id)
		return nil, *reason
	}

	if err := c.send(req); err != nil {
		c.finish(cl)
		return nil, err
	}
	return cl, nil
}

// finish unregisters a call
func (c *workerConn) finish(cl *call) {
	c.pending.Delete(cl.id)
	close(cl.done)
}

// abort tells the worker to stop working on a call and unregisters it
func (c *workerConn) abort(cl *call, reason error) {
	c.finish(cl)
	if err := c.send(common.NewAckRequest(cl.id, reason)); err != nil {
		Logger.Debugf("Failed to send abort for request %d: %v", cl.id, err)
	}
}

// send sends a message to the worker, mapping transport failures to faults
func (c *workerConn) send(msg *common.Message) error {
	if reason := c.closed.Load(); reason != nil {
		return *reason
	}
	if err := c.transport.Send(msg); err != nil {
		if errors.Is(err, transport.ErrClosed) {
			return fault.NewStream(err, "%s worker connection closed", c.kind)
		}
		return fault.NewStream(err, "sending to %s worker", c.kind)
	}
	return nil
}

// readResponses reads responses in a loop and distributes them to waiting calls
func (c *workerConn) readResponses() {
	for {
		msg, err := c.transport.Recv()
		if err != nil {
			if !errors.Is(err, transport.ErrClosed) {
				Logger.Errorf("Lost connection to %s worker: %v", c.kind, err)
			}
			c.close(fault.NewStream(err, "%s worker terminated", c.kind))
			return
		}

		cl, found := c.pending.Load(msg.ID)
		if !found {
			c.unknown.Inc(1)
			Logger.Warningf("Received response for unknown request ID %d (%s)", msg.ID, msg.MsgType)
			continue
		}

		if err := msg.Validate(); err != nil {
			cl.reject(fault.NewStream(err, "invalid response from %s worker", c.kind))
			continue
		}

		select {
		case cl.msgs <- msg:
		case <-cl.done:
		}
	}
}

// close ends the connection and rejects every pending call with reason
func (c *workerConn) close(reason error) {
	c.closeOnce.Do(func() {
		c.closed.Store(&reason)
		c.pending.Range(func(id uint64, cl *call) bool {
			cl.reject(reason)
			return true
		})
		if err := c.transport.Close(); err != nil {
			Logger.Warningf("Failed to close %s worker: %v", c.kind, err)
		}
	})
}
