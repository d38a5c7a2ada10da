package common

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ValentinKolb/dVol/lib/codec"
	"github.com/ValentinKolb/dVol/lib/fault"
	"github.com/ValentinKolb/dVol/lib/volume"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message is a single message exchanged between the coordinator and a worker.
// Every message carries the correlation ID of the call it belongs to. Which of
// the other fields are used depends on the type of message.
//
// Buffers are moved, not shared: after a message is sent, the sender must not
// touch Buffer or the volume data any more.
type Message struct {
	// Correlation id and type of message
	ID      uint64      `json:"id"`
	MsgType MessageType `json:"msg_type"`

	// Payload fields
	Buffer    []byte           `json:"buffer,omitempty"`    // Used for: chunk, success (export), decode-shard-entry, decoded, feed
	Seq       uint32           `json:"seq,omitempty"`       // Used for: chunk
	Manifest  *volume.Manifest `json:"manifest,omitempty"`  // Used for: done, success
	Volumes   []volume.Volume  `json:"volumes,omitempty"`   // Used for: export (request), success (import), volume-data
	Options   *ExportOptions   `json:"options,omitempty"`   // Used for: export
	ByteStart int64            `json:"byteStart,omitempty"` // Used for: decode-shard-entry
	ByteEnd   int64            `json:"byteEnd,omitempty"`   // Used for: decode-shard-entry, import (source size, 0 if unknown)
	Progress  *codec.Progress  `json:"progress,omitempty"`  // Used for: progress
	Count     int              `json:"count,omitempty"`     // Used for: volume
	Total     int              `json:"total,omitempty"`     // Used for: volume
	Milestone codec.Milestone  `json:"milestone,omitempty"` // Used for: milestone
	EOF       bool             `json:"eof,omitempty"`       // Used for: feed
	HandOff   bool             `json:"handOff,omitempty"`   // Used for: import (send volumes one by one)

	// Error fields
	Err     string     `json:"err,omitempty"`     // Used for: error, ack (abort reason)
	ErrCode fault.Code `json:"errCode,omitempty"` // Used for: error
	Stack   string     `json:"stack,omitempty"`   // Used for: error
}

// ExportOptions configures an export request.
type ExportOptions struct {
	ChunkSize   int                `json:"chunkSize,omitempty"`
	Compression volume.Compression `json:"compression"`
	DatasetID   string             `json:"datasetId,omitempty"`
	Stream      bool               `json:"stream,omitempty"` // deliver chunks instead of one buffer
}

// EncodeOptions returns the codec options of the export.
func (o ExportOptions) EncodeOptions() codec.EncodeOptions {
	return codec.EncodeOptions{
		ChunkSize:   o.ChunkSize,
		Compression: o.Compression,
		DatasetID:   o.DatasetID,
	}
}

// Validate checks that the fields required by the message type are present.
func (m *Message) Validate() error {
	if m.ID == 0 {
		return fmt.Errorf("%s message without id", m.MsgType)
	}
	switch m.MsgType {
	case MsgTExport:
		if m.Options == nil {
			return fmt.Errorf("export %d: missing options", m.ID)
		}
		if len(m.Volumes) == 0 {
			return fmt.Errorf("export %d: no volumes", m.ID)
		}
	case MsgTChunk:
		if len(m.Buffer) == 0 {
			return fmt.Errorf("chunk %d/%d: empty buffer", m.ID, m.Seq)
		}
	case MsgTDone:
		if m.Manifest == nil {
			return fmt.Errorf("done %d: missing manifest", m.ID)
		}
	case MsgTSuccess:
		if m.Manifest == nil {
			return fmt.Errorf("success %d: missing manifest", m.ID)
		}
	case MsgTError:
		if m.Err == "" {
			return fmt.Errorf("error %d: missing message", m.ID)
		}
	case MsgTFeed:
		if !m.EOF && len(m.Buffer) == 0 {
			return fmt.Errorf("feed %d: neither data nor eof", m.ID)
		}
	case MsgTProgress:
		if m.Progress == nil {
			return fmt.Errorf("progress %d: missing progress", m.ID)
		}
	case MsgTVolume:
		if m.Count < 1 || m.Total < m.Count {
			return fmt.Errorf("volume %d: invalid count %d of %d", m.ID, m.Count, m.Total)
		}
	case MsgTMilestone:
		if m.Milestone == codec.MilestoneUnknown {
			return fmt.Errorf("milestone %d: unknown milestone", m.ID)
		}
	case MsgTVolumeData:
		if len(m.Volumes) != 1 {
			return fmt.Errorf("volume-data %d: expected one volume, got %d", m.ID, len(m.Volumes))
		}
	case MsgTAck, MsgTDecodeShardEntry, MsgTDecoded, MsgTImport, MsgTPull:
		// no required fields
	default:
		return fmt.Errorf("message %d: unknown type %d", m.ID, m.MsgType)
	}
	return nil
}

// Error returns the error carried by an error message as a fault.Error,
// or nil for other messages.
func (m *Message) Error() error {
	if m.MsgType != MsgTError {
		return nil
	}
	code := m.ErrCode
	if code == fault.CodeUnknown {
		code = fault.CodeWorker
	}
	return &fault.Error{Code: code, Msg: m.Err, Stack: m.Stack}
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewExportRequest creates a new Export request
func NewExportRequest(id uint64, volumes []volume.Volume, opts ExportOptions) *Message {
	return &Message{
		ID:      id,
		MsgType: MsgTExport,
		Volumes: volumes,
		Options: &opts,
	}
}

// NewChunkResponse creates a new Chunk response, taking the chunk data
func NewChunkResponse(id uint64, chunk *volume.Chunk) *Message {
	return &Message{
		ID:      id,
		MsgType: MsgTChunk,
		Seq:     chunk.Seq,
		Buffer:  chunk.Take(),
	}
}

// NewAckRequest acknowledges a chunk. A non-nil err aborts the export.
func NewAckRequest(id uint64, err error) *Message {
	msg := &Message{
		ID:      id,
		MsgType: MsgTAck,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewDoneResponse creates a new Done response ending a streamed export
func NewDoneResponse(id uint64, m *volume.Manifest) *Message {
	return &Message{
		ID:       id,
		MsgType:  MsgTDone,
		Manifest: m,
	}
}

// NewExportSuccessResponse creates a new Success response carrying a whole container
func NewExportSuccessResponse(id uint64, m *volume.Manifest, data []byte) *Message {
	return &Message{
		ID:       id,
		MsgType:  MsgTSuccess,
		Manifest: m,
		Buffer:   data,
	}
}

// NewImportSuccessResponse creates a new Success response carrying decoded volumes
func NewImportSuccessResponse(id uint64, ds *codec.Dataset) *Message {
	return &Message{
		ID:       id,
		MsgType:  MsgTSuccess,
		Manifest: ds.Manifest,
		Volumes:  ds.Volumes,
	}
}

// NewErrorResponse creates a new Error response. The fault code and, for
// worker faults, the stack are preserved.
func NewErrorResponse(id uint64, err error) *Message {
	msg := &Message{
		ID:      id,
		MsgType: MsgTError,
		Err:     err.Error(),
		ErrCode: fault.CodeOf(err),
	}
	var fe *fault.Error
	if errors.As(err, &fe) {
		msg.Err = fe.Detail()
		msg.Stack = fe.Stack
	}
	if msg.Err == "" {
		msg.Err = msg.ErrCode.String()
	}
	return msg
}

// NewDecodeShardEntryRequest creates a new DecodeShardEntry request, taking the shard
func NewDecodeShardEntryRequest(id uint64, shard []byte, byteStart, byteEnd int64) *Message {
	return &Message{
		ID:        id,
		MsgType:   MsgTDecodeShardEntry,
		Buffer:    shard,
		ByteStart: byteStart,
		ByteEnd:   byteEnd,
	}
}

// NewDecodedResponse creates a new Decoded response
func NewDecodedResponse(id uint64, data []byte) *Message {
	return &Message{
		ID:      id,
		MsgType: MsgTDecoded,
		Buffer:  data,
	}
}

// NewImportRequest creates a new Import request. size is the total number of
// bytes the caller will feed, or 0 if it is not known in advance. With
// handOff every decoded volume is sent in its own volume-data message and the
// success response carries only the manifest.
func NewImportRequest(id uint64, size int64, handOff bool) *Message {
	return &Message{
		ID:      id,
		MsgType: MsgTImport,
		ByteEnd: size,
		HandOff: handOff,
	}
}

// NewPullRequest asks the caller for the next piece of an import
func NewPullRequest(id uint64) *Message {
	return &Message{
		ID:      id,
		MsgType: MsgTPull,
	}
}

// NewFeedResponse answers a pull with the next piece, or with eof
func NewFeedResponse(id uint64, piece []byte, eof bool) *Message {
	return &Message{
		ID:      id,
		MsgType: MsgTFeed,
		Buffer:  piece,
		EOF:     eof,
	}
}

// NewProgressResponse relays import progress
func NewProgressResponse(id uint64, p codec.Progress) *Message {
	return &Message{
		ID:       id,
		MsgType:  MsgTProgress,
		Progress: &p,
	}
}

// NewVolumeResponse relays a decoded volume count
func NewVolumeResponse(id uint64, count, total int) *Message {
	return &Message{
		ID:      id,
		MsgType: MsgTVolume,
		Count:   count,
		Total:   total,
	}
}

// NewVolumeDataResponse moves a decoded volume to the caller, which answers
// with an ack
func NewVolumeDataResponse(id uint64, v volume.Volume) *Message {
	return &Message{
		ID:      id,
		MsgType: MsgTVolumeData,
		Volumes: []volume.Volume{v},
	}
}

// NewMilestoneResponse relays an import milestone
func NewMilestoneResponse(id uint64, m codec.Milestone) *Message {
	return &Message{
		ID:        id,
		MsgType:   MsgTMilestone,
		Milestone: m,
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in worker communication.
type MessageType uint8

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	switch t {
	case MsgTSuccess:
		return "success"
	case MsgTError:
		return "error"
	case MsgTExport:
		return "export"
	case MsgTChunk:
		return "chunk"
	case MsgTAck:
		return "ack"
	case MsgTDone:
		return "done"
	case MsgTDecodeShardEntry:
		return "decode-shard-entry"
	case MsgTDecoded:
		return "decoded"
	case MsgTImport:
		return "import"
	case MsgTPull:
		return "pull"
	case MsgTFeed:
		return "feed"
	case MsgTProgress:
		return "progress"
	case MsgTVolume:
		return "volume"
	case MsgTMilestone:
		return "milestone"
	case MsgTVolumeData:
		return "volume-data"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	for candidate := MsgTSuccess; candidate <= msgTLast; candidate++ {
		if candidate.String() == s {
			*t = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown message type: %s", s)
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // The operation finished, carries its result
	MsgTError               // The operation failed

	// Export

	MsgTExport // Encode volumes (caller -> worker)
	MsgTChunk  // One encoded chunk (worker -> caller)
	MsgTAck    // Chunk delivered, optionally with an abort reason (caller -> worker)
	MsgTDone   // Streamed export finished, carries the manifest (worker -> caller)

	// Shard range extraction

	MsgTDecodeShardEntry // Extract a byte range from a shard (caller -> worker)
	MsgTDecoded          // The extracted bytes (worker -> caller)

	// Import

	MsgTImport     // Start decoding a pulled stream (caller -> worker)
	MsgTPull       // Request the next piece (worker -> caller)
	MsgTFeed       // The next piece or eof (caller -> worker)
	MsgTProgress   // Cumulative progress (worker -> caller)
	MsgTVolume     // A volume was decoded (worker -> caller)
	MsgTMilestone  // A milestone was reached (worker -> caller)
	MsgTVolumeData // A decoded volume handed off to the caller, acked (worker -> caller)

	msgTLast = MsgTVolumeData
)
