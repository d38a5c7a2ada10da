package common

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/ValentinKolb/dVol/lib/codec"
	"github.com/ValentinKolb/dVol/lib/fault"
	"github.com/ValentinKolb/dVol/lib/volume"
)

// TestMessageTypeJSON tests that every message type survives a JSON round trip
func TestMessageTypeJSON(t *testing.T) {
	for msgType := MsgTSuccess; msgType <= msgTLast; msgType++ {
		data, err := json.Marshal(msgType)
		if err != nil {
			t.Fatalf("failed to marshal %s: %v", msgType, err)
		}
		var got MessageType
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("failed to unmarshal %s: %v", data, err)
		}
		if got != msgType {
			t.Errorf("expected %s, got %s", msgType, got)
		}
	}

	var got MessageType
	if err := json.Unmarshal([]byte(`"teleport"`), &got); err == nil {
		t.Errorf("expected error for unknown message type")
	}
}

// TestValidate tests the required fields per message type
func TestValidate(t *testing.T) {
	v := volume.NewFloat32Volume(1, 1, 1, 1, 0, []float32{1})
	m := &volume.Manifest{FormatVersion: volume.FormatVersion}

	testCases := []struct {
		name    string
		msg     *Message
		wantErr bool
	}{
		{"export", NewExportRequest(1, []volume.Volume{v}, ExportOptions{}), false},
		{"export without volumes", NewExportRequest(1, nil, ExportOptions{}), true},
		{"missing id", NewImportRequest(0, 0, false), true},
		{"chunk", NewChunkResponse(1, &volume.Chunk{Seq: 0, Data: []byte{1}}), false},
		{"empty chunk", NewChunkResponse(1, &volume.Chunk{}), true},
		{"done", NewDoneResponse(1, m), false},
		{"done without manifest", NewDoneResponse(1, nil), true},
		{"error", NewErrorResponse(1, errors.New("boom")), false},
		{"feed eof", NewFeedResponse(1, nil, true), false},
		{"empty feed", NewFeedResponse(1, nil, false), true},
		{"progress", NewProgressResponse(1, codec.Progress{}), false},
		{"volume", NewVolumeResponse(1, 2, 3), false},
		{"volume count above total", NewVolumeResponse(1, 4, 3), true},
		{"milestone", NewMilestoneResponse(1, codec.MilestoneComplete), false},
		{"unknown milestone", NewMilestoneResponse(1, codec.MilestoneUnknown), true},
		{"shard", NewDecodeShardEntryRequest(1, nil, -5, 10), false},
		{"unknown type", &Message{ID: 1, MsgType: MessageType(200)}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.msg.Validate()
			if tc.wantErr && err == nil {
				t.Errorf("expected error but got none")
			} else if !tc.wantErr && err != nil {
				t.Errorf("did not expect error but got: %v", err)
			}
		})
	}
}

// TestChunkResponseMovesData tests that building a chunk response clears the chunk
func TestChunkResponseMovesData(t *testing.T) {
	chunk := &volume.Chunk{Seq: 3, Data: []byte{1, 2, 3}}
	msg := NewChunkResponse(7, chunk)
	if chunk.Data != nil {
		t.Errorf("expected the chunk to give up its data")
	}
	if len(msg.Buffer) != 3 || msg.Seq != 3 {
		t.Errorf("unexpected message %+v", msg)
	}
}

// TestErrorResponse tests that fault codes and stacks cross the boundary
func TestErrorResponse(t *testing.T) {
	msg := NewErrorResponse(1, fault.NewWorker("index out of range", "goroutine 7 [running]"))
	err := msg.Error()
	if !errors.Is(err, fault.ErrWorker) {
		t.Errorf("expected worker fault, got %v", err)
	}
	var fe *fault.Error
	if !errors.As(err, &fe) || fe.Stack != "goroutine 7 [running]" {
		t.Errorf("expected stack to be preserved, got %+v", fe)
	}

	msg = NewErrorResponse(1, fault.NewValidation("volumes[1].width", "mismatch"))
	if !errors.Is(msg.Error(), fault.ErrValidation) {
		t.Errorf("expected validation fault, got %v", msg.Error())
	}

	msg = NewErrorResponse(1, errors.New("plain"))
	if !errors.Is(msg.Error(), fault.ErrWorker) {
		t.Errorf("expected unclassified errors to become worker faults, got %v", msg.Error())
	}

	if NewDecodedResponse(1, nil).Error() != nil {
		t.Errorf("expected nil error for non-error message")
	}
}

// TestParseWorkerMode tests worker mode parsing
func TestParseWorkerMode(t *testing.T) {
	for _, s := range []string{"inproc", "process", "none", "INPROC"} {
		if _, err := ParseWorkerMode(s); err != nil {
			t.Errorf("ParseWorkerMode(%q) failed: %v", s, err)
		}
	}
	if _, err := ParseWorkerMode("thread"); err == nil {
		t.Errorf("expected error for unknown mode")
	}
	if _, err := ParseLogLevel("verbose"); err == nil {
		t.Errorf("expected error for unknown log level")
	}
}
