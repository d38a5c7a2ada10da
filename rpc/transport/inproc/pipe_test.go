package inproc

import (
	"errors"
	"sync"
	"testing"

	"github.com/ValentinKolb/dVol/rpc/common"
	"github.com/ValentinKolb/dVol/rpc/transport"
)

// TestPipeBothDirections tests message delivery in both directions
func TestPipeBothDirections(t *testing.T) {
	caller, worker := NewPipe()
	defer caller.Close()

	shard := []byte("shard-bytes")
	if err := caller.Send(common.NewDecodeShardEntryRequest(1, shard, 0, 5)); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	req, err := worker.Recv()
	if err != nil {
		t.Fatalf("recv failed: %v", err)
	}
	if req.MsgType != common.MsgTDecodeShardEntry || req.ID != 1 {
		t.Fatalf("unexpected request %s %d", req.MsgType, req.ID)
	}
	// buffers are moved, not copied
	if &req.Buffer[0] != &shard[0] {
		t.Error("buffer was copied")
	}

	if err := worker.Send(common.NewDecodedResponse(1, req.Buffer[:5])); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	resp, err := caller.Recv()
	if err != nil {
		t.Fatalf("recv failed: %v", err)
	}
	if string(resp.Buffer) != "shard" {
		t.Errorf("expected %q, got %q", "shard", resp.Buffer)
	}
}

// TestPipeConcurrentSenders tests that concurrent senders are all delivered
func TestPipeConcurrentSenders(t *testing.T) {
	caller, worker := NewPipe()
	defer caller.Close()

	const senders = 10
	var wg sync.WaitGroup
	wg.Add(senders)
	for i := 1; i <= senders; i++ {
		go func(id uint64) {
			defer wg.Done()
			if err := caller.Send(common.NewImportRequest(id, 0, false)); err != nil {
				t.Errorf("send %d failed: %v", id, err)
			}
		}(uint64(i))
	}
	wg.Wait()

	seen := map[uint64]bool{}
	for i := 0; i < senders; i++ {
		msg, err := worker.Recv()
		if err != nil {
			t.Fatalf("recv failed: %v", err)
		}
		seen[msg.ID] = true
	}
	if len(seen) != senders {
		t.Errorf("expected %d distinct ids, got %d", senders, len(seen))
	}
}

// TestPipeClose tests that closing one end drains and closes both
func TestPipeClose(t *testing.T) {
	caller, worker := NewPipe()

	if err := caller.Send(common.NewImportRequest(7, 0, false)); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if err := worker.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	if err := caller.Send(common.NewImportRequest(8, 0, false)); !errors.Is(err, transport.ErrClosed) {
		t.Errorf("expected ErrClosed on send, got %v", err)
	}

	msg, err := worker.Recv()
	if err != nil || msg.ID != 7 {
		t.Fatalf("queued message should still arrive, got %v, %v", msg, err)
	}
	if _, err := worker.Recv(); !errors.Is(err, transport.ErrClosed) {
		t.Errorf("expected ErrClosed on worker recv, got %v", err)
	}
	if _, err := caller.Recv(); !errors.Is(err, transport.ErrClosed) {
		t.Errorf("expected ErrClosed on caller recv, got %v", err)
	}

	// closing twice is fine
	if err := caller.Close(); err != nil {
		t.Errorf("second close failed: %v", err)
	}
}
