package stream

import (
	"bytes"
	"errors"
	"net"
	"testing"

	"github.com/ValentinKolb/dVol/lib/codec"
	"github.com/ValentinKolb/dVol/rpc/common"
	"github.com/ValentinKolb/dVol/rpc/serializer"
	"github.com/ValentinKolb/dVol/rpc/transport"
)

// TestFrameRoundTrip tests writeFrame/readFrame including buffer reuse
func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payloads := [][]byte{[]byte("hello"), {}, bytes.Repeat([]byte{7}, 10000)}
	for i, p := range payloads {
		if err := writeFrame(&buf, uint64(i+1), p); err != nil {
			t.Fatalf("write frame %d: %v", i, err)
		}
	}

	var scratch []byte
	for i, p := range payloads {
		id, data, s, err := readFrame(&buf, scratch)
		scratch = s
		if err != nil {
			t.Fatalf("read frame %d: %v", i, err)
		}
		if id != uint64(i+1) {
			t.Errorf("frame %d: expected id %d, got %d", i, i+1, id)
		}
		if !bytes.Equal(data, p) {
			t.Errorf("frame %d: payload mismatch (%d vs %d bytes)", i, len(data), len(p))
		}
	}
}

// TestFrameTruncated tests that a cut-off payload is reported
func TestFrameTruncated(t *testing.T) {
	var buf bytes.Buffer
	if err := writeFrame(&buf, 1, []byte("0123456789")); err != nil {
		t.Fatal(err)
	}
	truncated := bytes.NewReader(buf.Bytes()[:buf.Len()-3])
	if _, _, _, err := readFrame(truncated, nil); err == nil {
		t.Error("expected error for truncated frame")
	}
}

// TestTransportOverPipe tests message exchange for every serializer
func TestTransportOverPipe(t *testing.T) {
	for _, name := range []string{"binary", "json", "gob"} {
		t.Run(name, func(t *testing.T) {
			ser, err := serializer.New(name)
			if err != nil {
				t.Fatal(err)
			}
			a, b := net.Pipe()
			caller, worker := New(a, ser), New(b, ser)
			defer caller.Close()
			defer worker.Close()

			sent := []*common.Message{
				common.NewDecodeShardEntryRequest(1, []byte("abcdef"), 1, 4),
				common.NewImportRequest(2, 1024, false),
				common.NewFeedResponse(2, nil, true),
			}
			errCh := make(chan error, 1)
			go func() {
				for _, m := range sent {
					if err := caller.Send(m); err != nil {
						errCh <- err
						return
					}
				}
				errCh <- nil
			}()

			for _, want := range sent {
				got, err := worker.Recv()
				if err != nil {
					t.Fatalf("recv failed: %v", err)
				}
				if got.ID != want.ID || got.MsgType != want.MsgType {
					t.Errorf("expected %s %d, got %s %d", want.MsgType, want.ID, got.MsgType, got.ID)
				}
				if err := got.Validate(); err != nil {
					t.Errorf("received invalid message: %v", err)
				}
			}
			if err := <-errCh; err != nil {
				t.Fatalf("send failed: %v", err)
			}

			// and back
			go func() {
				errCh <- worker.Send(common.NewProgressResponse(2, codec.Progress{BytesProcessed: 10, TotalBytes: 1024, TotalKnown: true}))
			}()
			got, err := caller.Recv()
			if err != nil {
				t.Fatalf("recv failed: %v", err)
			}
			if got.Progress == nil || got.Progress.BytesProcessed != 10 || !got.Progress.TotalKnown {
				t.Errorf("unexpected progress %+v", got.Progress)
			}
			if err := <-errCh; err != nil {
				t.Fatalf("send failed: %v", err)
			}
		})
	}
}

// TestTransportClose tests that both ends report ErrClosed
func TestTransportClose(t *testing.T) {
	a, b := net.Pipe()
	caller, worker := New(a, serializer.NewBinarySerializer()), New(b, serializer.NewBinarySerializer())

	if err := caller.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if _, err := worker.Recv(); !errors.Is(err, transport.ErrClosed) {
		t.Errorf("expected ErrClosed on peer recv, got %v", err)
	}
	if err := caller.Send(common.NewImportRequest(1, 0, false)); !errors.Is(err, transport.ErrClosed) {
		t.Errorf("expected ErrClosed on send after close, got %v", err)
	}
	if err := caller.Close(); err != nil {
		t.Errorf("second close failed: %v", err)
	}
	worker.Close()
}

// TestTransportIDMismatch tests that a frame whose header disagrees with the message is rejected
func TestTransportIDMismatch(t *testing.T) {
	ser := serializer.NewBinarySerializer()
	data, err := ser.Serialize(*common.NewImportRequest(5, 0, false))
	if err != nil {
		t.Fatal(err)
	}

	a, b := net.Pipe()
	worker := New(b, ser)
	defer worker.Close()
	defer a.Close()

	go writeFrame(a, 6, data)

	if _, err := worker.Recv(); err == nil || errors.Is(err, transport.ErrClosed) {
		t.Errorf("expected mismatch error, got %v", err)
	}
}
