package transport

import (
	"errors"

	"github.com/ValentinKolb/dVol/rpc/common"
)

// ErrClosed is returned by Send and Recv once the transport is closed.
var ErrClosed = errors.New("worker transport closed")

// --------------------------------------------------------------------------
// Worker Transport
// --------------------------------------------------------------------------

// IWorkerTransport is one end of a bidirectional message channel between a
// coordinator and a worker. Both ends implement the same interface.
type IWorkerTransport interface {
	// Send delivers a message to the other end. Ownership of the message and
	// every buffer it references passes to the transport: the sender must not
	// read or modify it afterwards. Send may be called concurrently.
	Send(msg *common.Message) error
	// Recv blocks until the next message arrives. It returns ErrClosed after
	// either end closed the transport. Recv must only be called from one
	// goroutine.
	Recv() (*common.Message, error)
	// Close releases the transport. Pending Recv calls on both ends return
	// ErrClosed once the messages already in flight are drained.
	Close() error
}
