package inproc

import (
	"sync"

	"github.com/ValentinKolb/dVol/lib/queue"
	"github.com/ValentinKolb/dVol/rpc/common"
	"github.com/ValentinKolb/dVol/rpc/transport"
)

// pipe holds the two queues shared by both ends
type pipe struct {
	toWorker *queue.MPSC[common.Message]
	toCaller *queue.MPSC[common.Message]
	once     sync.Once
}

// end is one side of a pipe
type end struct {
	p   *pipe
	in  *queue.MPSC[common.Message]
	out *queue.MPSC[common.Message]
}

// NewPipe creates a connected pair of in-process transports. The first is
// used by the coordinator, the second by the worker.
func NewPipe() (caller transport.IWorkerTransport, worker transport.IWorkerTransport) {
	p := &pipe{
		toWorker: queue.NewMPSC[common.Message](),
		toCaller: queue.NewMPSC[common.Message](),
	}
	return &end{p: p, in: p.toCaller, out: p.toWorker},
		&end{p: p, in: p.toWorker, out: p.toCaller}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IWorkerTransport)
// --------------------------------------------------------------------------

func (e *end) Send(msg *common.Message) error {
	if !e.out.Push(msg) {
		return transport.ErrClosed
	}
	return nil
}

func (e *end) Recv() (*common.Message, error) {
	msg, ok := <-e.in.Recv()
	if !ok {
		return nil, transport.ErrClosed
	}
	return msg, nil
}

func (e *end) Close() error {
	e.p.once.Do(func() {
		e.p.toWorker.Close()
		e.p.toCaller.Close()
	})
	return nil
}
