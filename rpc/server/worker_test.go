package server

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ValentinKolb/dVol/lib/codec"
	"github.com/ValentinKolb/dVol/lib/fault"
	"github.com/ValentinKolb/dVol/lib/volume"
	"github.com/ValentinKolb/dVol/rpc/common"
	"github.com/ValentinKolb/dVol/rpc/transport"
	"github.com/ValentinKolb/dVol/rpc/transport/inproc"
)

// startWorker runs a worker on an in-process pipe and returns the caller end
func startWorker(t *testing.T, configure func(w *Worker)) (transport.IWorkerTransport, <-chan error) {
	t.Helper()
	caller, end := inproc.NewPipe()
	w := NewWorker(end)
	if configure != nil {
		configure(w)
	}
	done := make(chan error, 1)
	go func() { done <- w.Serve(context.Background()) }()
	t.Cleanup(func() { caller.Close() })
	return caller, done
}

func recv(t *testing.T, tr transport.IWorkerTransport) *common.Message {
	t.Helper()
	type result struct {
		msg *common.Message
		err error
	}
	ch := make(chan result, 1)
	go func() {
		msg, err := tr.Recv()
		ch <- result{msg, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			t.Fatalf("recv failed: %v", r.err)
		}
		return r.msg
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for worker")
	}
	return nil
}

func send(t *testing.T, tr transport.IWorkerTransport, msg *common.Message) {
	t.Helper()
	if err := tr.Send(msg); err != nil {
		t.Fatalf("send failed: %v", err)
	}
}

func testVolumes() []volume.Volume {
	vols := make([]volume.Volume, 3)
	for i := range vols {
		samples := make([]float32, 4*4*2)
		for j := range samples {
			samples[j] = float32(i*100 + j)
		}
		vols[i] = volume.NewFloat32Volume(4, 4, 2, 1, uint32(i), samples)
	}
	return vols
}

// TestShardRequest tests the decode-shard-entry round trip including clamping
func TestShardRequest(t *testing.T) {
	caller, _ := startWorker(t, nil)

	tests := []struct {
		name       string
		start, end int64
		want       string
	}{
		{"inside", 2, 5, "cde"},
		{"clamped end", 4, 100, "efgh"},
		{"negative start", -3, 2, "ab"},
		{"inverted", 6, 1, ""},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := uint64(i + 1)
			send(t, caller, common.NewDecodeShardEntryRequest(id, []byte("abcdefgh"), tt.start, tt.end))
			resp := recv(t, caller)
			if resp.MsgType != common.MsgTDecoded || resp.ID != id {
				t.Fatalf("expected decoded %d, got %s %d (%s)", id, resp.MsgType, resp.ID, resp.Err)
			}
			if string(resp.Buffer) != tt.want {
				t.Errorf("expected %q, got %q", tt.want, resp.Buffer)
			}
		})
	}
}

// TestExportWhole tests the single-buffer export
func TestExportWhole(t *testing.T) {
	caller, _ := startWorker(t, nil)
	vols := testVolumes()

	send(t, caller, common.NewExportRequest(1, vols, common.ExportOptions{ChunkSize: 50}))
	resp := recv(t, caller)
	if resp.MsgType != common.MsgTSuccess {
		t.Fatalf("expected success, got %s (%s)", resp.MsgType, resp.Err)
	}

	ds, err := codec.DecodeBuffer(context.Background(), resp.Buffer, codec.Callbacks{})
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(ds.Volumes) != len(vols) {
		t.Fatalf("expected %d volumes, got %d", len(vols), len(ds.Volumes))
	}
	for i := range vols {
		if !bytes.Equal(ds.Volumes[i].Data, vols[i].Data) {
			t.Errorf("volume %d differs", i)
		}
	}
}

// TestExportStream tests chunk delivery with acks
func TestExportStream(t *testing.T) {
	caller, _ := startWorker(t, nil)
	vols := testVolumes()

	send(t, caller, common.NewExportRequest(1, vols, common.ExportOptions{ChunkSize: 100, Compression: volume.CompressionZstd, Stream: true}))

	var payload []byte
	var seq uint32
	for {
		resp := recv(t, caller)
		if resp.MsgType == common.MsgTDone {
			header, err := resp.Manifest.MarshalHeader()
			if err != nil {
				t.Fatalf("marshal header: %v", err)
			}
			if len(resp.Manifest.Chunks) != int(seq) {
				t.Errorf("expected %d chunks in manifest, got %d", seq, len(resp.Manifest.Chunks))
			}
			ds, err := codec.DecodeBuffer(context.Background(), append(header, payload...), codec.Callbacks{})
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if len(ds.Volumes) != len(vols) {
				t.Fatalf("expected %d volumes, got %d", len(vols), len(ds.Volumes))
			}
			return
		}
		if resp.MsgType != common.MsgTChunk {
			t.Fatalf("expected chunk, got %s (%s)", resp.MsgType, resp.Err)
		}
		if resp.Seq != seq {
			t.Fatalf("expected chunk %d, got %d", seq, resp.Seq)
		}
		seq++
		payload = append(payload, resp.Buffer...)
		send(t, caller, common.NewAckRequest(1, nil))
	}
}

// TestExportAbort tests that an ack with an error stops the export silently
func TestExportAbort(t *testing.T) {
	caller, _ := startWorker(t, nil)

	send(t, caller, common.NewExportRequest(1, testVolumes(), common.ExportOptions{ChunkSize: 16, Stream: true}))
	if resp := recv(t, caller); resp.MsgType != common.MsgTChunk {
		t.Fatalf("expected chunk, got %s", resp.MsgType)
	}
	send(t, caller, common.NewAckRequest(1, errors.New("disk full")))

	// the next message belongs to the next request
	send(t, caller, common.NewDecodeShardEntryRequest(2, []byte("xyz"), 0, 1))
	resp := recv(t, caller)
	if resp.ID != 2 || resp.MsgType != common.MsgTDecoded {
		t.Fatalf("expected decoded 2, got %s %d", resp.MsgType, resp.ID)
	}
}

// TestExportInvalid tests validation failures
func TestExportInvalid(t *testing.T) {
	caller, _ := startWorker(t, nil)

	vols := testVolumes()
	vols[1].Data = vols[1].Data[:3]
	send(t, caller, common.NewExportRequest(1, vols, common.ExportOptions{}))

	resp := recv(t, caller)
	if resp.MsgType != common.MsgTError {
		t.Fatalf("expected error, got %s", resp.MsgType)
	}
	if !errors.Is(resp.Error(), fault.ErrValidation) {
		t.Errorf("expected validation error, got %v", resp.Error())
	}

	// a request failing Validate() is answered as well
	send(t, caller, &common.Message{ID: 2, MsgType: common.MsgTExport})
	resp = recv(t, caller)
	if resp.MsgType != common.MsgTError || resp.ID != 2 {
		t.Fatalf("expected error for 2, got %s %d", resp.MsgType, resp.ID)
	}
}

// TestImport tests the pull/feed exchange and relayed callbacks
func TestImport(t *testing.T) {
	vols := testVolumes()
	res, err := codec.Encode(context.Background(), vols, codec.EncodeOptions{ChunkSize: 64}, nil)
	if err != nil {
		t.Fatal(err)
	}

	for _, sized := range []bool{true, false} {
		name := "unsized"
		if sized {
			name = "sized"
		}
		t.Run(name, func(t *testing.T) {
			caller, _ := startWorker(t, nil)

			var size int64
			if sized {
				size = int64(len(res.Data))
			}
			send(t, caller, common.NewImportRequest(1, size, false))

			data := res.Data
			var milestones []codec.Milestone
			var counts []int
			var last codec.Progress
			for {
				resp := recv(t, caller)
				switch resp.MsgType {
				case common.MsgTPull:
					if len(data) == 0 {
						send(t, caller, common.NewFeedResponse(1, nil, true))
						continue
					}
					n := 40
					if n > len(data) {
						n = len(data)
					}
					send(t, caller, common.NewFeedResponse(1, data[:n], false))
					data = data[n:]
				case common.MsgTProgress:
					if resp.Progress.BytesProcessed < last.BytesProcessed {
						t.Errorf("progress went backwards")
					}
					if sized && !resp.Progress.TotalKnown {
						t.Errorf("total should be known for a sized import")
					}
					last = *resp.Progress
				case common.MsgTVolume:
					counts = append(counts, resp.Count)
				case common.MsgTMilestone:
					milestones = append(milestones, resp.Milestone)
				case common.MsgTSuccess:
					if len(resp.Volumes) != len(vols) {
						t.Fatalf("expected %d volumes, got %d", len(vols), len(resp.Volumes))
					}
					if last.BytesProcessed != uint64(len(res.Data)) {
						t.Errorf("expected %d bytes processed, got %d", len(res.Data), last.BytesProcessed)
					}
					if len(counts) != 3 || counts[0] != 1 || counts[2] != 3 {
						t.Errorf("unexpected volume counts %v", counts)
					}
					want := []codec.Milestone{codec.MilestoneManifestParsed, codec.MilestoneFirstVolumeReady, codec.MilestoneComplete}
					if len(milestones) != len(want) {
						t.Fatalf("expected milestones %v, got %v", want, milestones)
					}
					for i := range want {
						if milestones[i] != want[i] {
							t.Errorf("milestone %d: expected %s, got %s", i, want[i], milestones[i])
						}
					}
					return
				default:
					t.Fatalf("unexpected %s (%s)", resp.MsgType, resp.Err)
				}
			}
		})
	}
}

// TestImportHandOff tests that handed off volumes are sent one at a time and
// that the next volume waits for the ack of the previous one
func TestImportHandOff(t *testing.T) {
	vols := testVolumes()
	res, err := codec.Encode(context.Background(), vols, codec.EncodeOptions{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	caller, _ := startWorker(t, nil)
	msgs := pump(caller)
	send(t, caller, common.NewImportRequest(1, int64(len(res.Data)), true))

	next := func() *common.Message {
		t.Helper()
		select {
		case msg, ok := <-msgs:
			if !ok {
				t.Fatal("worker transport closed")
			}
			return msg
		case <-time.After(5 * time.Second):
			t.Fatal("timeout waiting for worker")
		}
		return nil
	}

	fed := false
	handed := 0
	for {
		resp := next()
		switch resp.MsgType {
		case common.MsgTPull:
			// the whole container in one piece, so every volume is ready at once
			if fed {
				send(t, caller, common.NewFeedResponse(1, nil, true))
			} else {
				send(t, caller, common.NewFeedResponse(1, res.Data, false))
				fed = true
			}
		case common.MsgTVolumeData:
			v := resp.Volumes[0]
			if v.Descriptor != vols[handed].Descriptor || !bytes.Equal(v.Data, vols[handed].Data) {
				t.Errorf("volume %d differs", handed)
			}
			handed++

			// nothing else arrives before the ack
			select {
			case msg := <-msgs:
				t.Fatalf("worker sent %s before the ack", msg.MsgType)
			case <-time.After(50 * time.Millisecond):
			}
			send(t, caller, common.NewAckRequest(1, nil))
		case common.MsgTSuccess:
			if handed != len(vols) {
				t.Fatalf("expected %d handed off volumes, got %d", len(vols), handed)
			}
			if len(resp.Volumes) != 0 {
				t.Errorf("success should not carry handed off volumes, got %d", len(resp.Volumes))
			}
			return
		case common.MsgTError:
			t.Fatalf("unexpected error: %s", resp.Err)
		}
	}
}

// pump forwards every message received on tr to the returned channel until
// the transport closes
func pump(tr transport.IWorkerTransport) <-chan *common.Message {
	ch := make(chan *common.Message, 64)
	go func() {
		for {
			msg, err := tr.Recv()
			if err != nil {
				close(ch)
				return
			}
			ch <- msg
		}
	}()
	return ch
}

// TestImportHandOffAbort tests that a rejected volume aborts the import silently
func TestImportHandOffAbort(t *testing.T) {
	res, err := codec.Encode(context.Background(), testVolumes(), codec.EncodeOptions{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	caller, _ := startWorker(t, nil)
	send(t, caller, common.NewImportRequest(1, 0, true))
	for {
		resp := recv(t, caller)
		if resp.MsgType == common.MsgTPull {
			send(t, caller, common.NewFeedResponse(1, res.Data, false))
			continue
		}
		if resp.MsgType == common.MsgTVolumeData {
			send(t, caller, common.NewAckRequest(1, errors.New("disk full")))
			break
		}
	}

	// the worker answers the next request, and nothing more for request 1
	send(t, caller, common.NewDecodeShardEntryRequest(2, []byte("abc"), 0, 1))
	for {
		resp := recv(t, caller)
		if resp.ID == 1 && resp.MsgType != common.MsgTProgress && resp.MsgType != common.MsgTVolume && resp.MsgType != common.MsgTMilestone {
			t.Fatalf("aborted import sent %s", resp.MsgType)
		}
		if resp.ID == 2 {
			if resp.MsgType != common.MsgTDecoded {
				t.Fatalf("expected decoded, got %s", resp.MsgType)
			}
			return
		}
	}
}

// TestImportTruncated tests that an early eof is reported as a stream error
func TestImportTruncated(t *testing.T) {
	caller, _ := startWorker(t, nil)
	res, err := codec.Encode(context.Background(), testVolumes(), codec.EncodeOptions{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	send(t, caller, common.NewImportRequest(1, 0, false))
	fed := false
	for {
		resp := recv(t, caller)
		switch resp.MsgType {
		case common.MsgTPull:
			if fed {
				send(t, caller, common.NewFeedResponse(1, nil, true))
			} else {
				send(t, caller, common.NewFeedResponse(1, res.Data[:len(res.Data)-10], false))
				fed = true
			}
		case common.MsgTError:
			if !errors.Is(resp.Error(), fault.ErrStream) {
				t.Errorf("expected stream error, got %v", resp.Error())
			}
			return
		case common.MsgTSuccess:
			t.Fatal("truncated import must not succeed")
		}
	}
}

type panicAdapter struct{}

func (panicAdapter) Handle(context.Context, *common.Message, *Session) *common.Message {
	panic("boom")
}

// TestPanicRecovered tests that an adapter panic becomes a worker error with a stack
func TestPanicRecovered(t *testing.T) {
	caller, _ := startWorker(t, func(w *Worker) {
		w.adapters[common.MsgTDecodeShardEntry] = panicAdapter{}
	})

	send(t, caller, common.NewDecodeShardEntryRequest(1, []byte("a"), 0, 1))
	resp := recv(t, caller)
	if resp.MsgType != common.MsgTError {
		t.Fatalf("expected error, got %s", resp.MsgType)
	}
	if resp.ErrCode != fault.CodeWorker {
		t.Errorf("expected worker code, got %s", resp.ErrCode)
	}
	if resp.Stack == "" {
		t.Error("expected a stack trace")
	}

	// the worker keeps serving
	send(t, caller, common.NewExportRequest(2, testVolumes(), common.ExportOptions{}))
	if resp := recv(t, caller); resp.MsgType != common.MsgTSuccess {
		t.Errorf("expected success, got %s", resp.MsgType)
	}
}

// TestServeStopsOnClose tests that closing the transport ends Serve
func TestServeStopsOnClose(t *testing.T) {
	caller, done := startWorker(t, nil)
	caller.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
}
