package server

import (
	"context"
	"errors"

	"github.com/ValentinKolb/dVol/lib/fault"
	"github.com/ValentinKolb/dVol/rpc/common"
	"github.com/ValentinKolb/dVol/rpc/transport"
)

// inboxSize bounds the caller messages buffered for one request. The protocol
// allows at most one outstanding ack or feed plus an abort.
const inboxSize = 4

// Session is the conversation of a single request between worker and caller.
type Session struct {
	id        uint64
	transport transport.IWorkerTransport
	inbox     chan *common.Message
	aborted   bool
}

// ID returns the request id of the session.
func (s *Session) ID() uint64 {
	return s.id
}

// Send sends an intermediate message to the caller. The message is moved.
func (s *Session) Send(msg *common.Message) error {
	if err := s.transport.Send(msg); err != nil {
		if errors.Is(err, transport.ErrClosed) {
			return fault.NewCancelled("caller went away")
		}
		return fault.NewStream(err, "sending %s", msg.MsgType)
	}
	return nil
}

// Await blocks until the caller sends a message of type want for this
// request. An ack carrying an error aborts the request with a cancellation
// error, as does the end of ctx.
func (s *Session) Await(ctx context.Context, want common.MessageType) (*common.Message, error) {
	select {
	case msg := <-s.inbox:
		if msg.MsgType == common.MsgTAck && msg.Err != "" {
			s.aborted = true
			return nil, fault.NewCancelled("aborted by caller: %s", msg.Err)
		}
		if msg.MsgType != want {
			return nil, fault.NewStream(nil, "expected %s, got %s", want, msg.MsgType)
		}
		return msg, nil
	case <-ctx.Done():
		s.aborted = true
		return nil, fault.NewCancelled("worker stopped: %v", ctx.Err())
	}
}

// Aborted reports whether the caller gave up on the request. Responses to an
// aborted request are not sent.
func (s *Session) Aborted() bool {
	return s.aborted
}

// abortedEarly drains an abort that arrived while the request was queued
func (s *Session) abortedEarly() bool {
	select {
	case msg := <-s.inbox:
		if msg.MsgType == common.MsgTAck && msg.Err != "" {
			s.aborted = true
			return true
		}
		// not an abort, keep it for the adapter
		s.inbox <- msg
	default:
	}
	return false
}
