package stream

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/dVol/rpc/common"
	"github.com/ValentinKolb/dVol/rpc/serializer"
	"github.com/ValentinKolb/dVol/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("transport/worker")

// streamTransport frames serialized messages over a byte stream
type streamTransport struct {
	conn       io.ReadWriteCloser
	reader     *bufio.Reader
	serializer serializer.IRPCSerializer

	writeMu sync.Mutex
	scratch []byte // read buffer, only used by Recv
	closed  atomic.Bool
}

// New creates a transport that exchanges messages over conn using ser.
func New(conn io.ReadWriteCloser, ser serializer.IRPCSerializer) transport.IWorkerTransport {
	return &streamTransport{
		conn:       conn,
		reader:     bufio.NewReaderSize(conn, 64*1024),
		serializer: ser,
	}
}

// NewStdio creates the worker end of a process connection: frames are read
// from stdin and written to stdout.
func NewStdio(ser serializer.IRPCSerializer) transport.IWorkerTransport {
	return New(&stdio{in: os.Stdin, out: os.Stdout}, ser)
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IWorkerTransport)
// --------------------------------------------------------------------------

func (t *streamTransport) Send(msg *common.Message) error {
	if t.closed.Load() {
		return transport.ErrClosed
	}

	data, err := t.serializer.Serialize(*msg)
	if err != nil {
		return fmt.Errorf("failed to serialize %s %d: %w", msg.MsgType, msg.ID, err)
	}

	t.writeMu.Lock()
	err = writeFrame(t.conn, msg.ID, data)
	t.writeMu.Unlock()

	if err != nil {
		if t.closed.Load() || isClosedErr(err) {
			return transport.ErrClosed
		}
		return fmt.Errorf("failed to write frame for %s %d: %w", msg.MsgType, msg.ID, err)
	}
	return nil
}

func (t *streamTransport) Recv() (*common.Message, error) {
	requestID, data, scratch, err := readFrame(t.reader, t.scratch)
	t.scratch = scratch
	if err != nil {
		if t.closed.Load() || isClosedErr(err) {
			return nil, transport.ErrClosed
		}
		return nil, fmt.Errorf("failed to read frame: %w", err)
	}

	msg := &common.Message{}
	if err := t.serializer.Deserialize(data, msg); err != nil {
		return nil, fmt.Errorf("failed to deserialize frame for request %d: %w", requestID, err)
	}
	if msg.ID != requestID {
		return nil, fmt.Errorf("frame for request %d carries message %d", requestID, msg.ID)
	}
	return msg, nil
}

func (t *streamTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	return t.conn.Close()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// isClosedErr reports whether err means the peer or this end went away
func isClosedErr(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, os.ErrClosed)
}

// stdio joins stdin and stdout into one connection
type stdio struct {
	in  io.ReadCloser
	out io.WriteCloser
}

func (s *stdio) Read(p []byte) (int, error)  { return s.in.Read(p) }
func (s *stdio) Write(p []byte) (int, error) { return s.out.Write(p) }
func (s *stdio) Close() error {
	return errors.Join(s.out.Close(), s.in.Close())
}
