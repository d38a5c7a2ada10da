package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/dVol/lib/codec"
	"github.com/ValentinKolb/dVol/lib/fault"
	"github.com/ValentinKolb/dVol/lib/volume"
	"github.com/ValentinKolb/dVol/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasBuffer    uint16 = 1 << 0
	hasSeq       uint16 = 1 << 1
	hasManifest  uint16 = 1 << 2
	hasVolumes   uint16 = 1 << 3
	hasOptions   uint16 = 1 << 4
	hasRange     uint16 = 1 << 5
	hasProgress  uint16 = 1 << 6
	hasCount     uint16 = 1 << 7
	hasMilestone uint16 = 1 << 8
	hasEOF       uint16 = 1 << 9
	hasErr       uint16 = 1 << 10
	hasStack     uint16 = 1 << 11
	hasHandOff   uint16 = 1 << 12
)

// headerSize is 1 byte MsgType + 2 bytes flags + 8 bytes id
const headerSize = 1 + 2 + 8

// volumeDescriptorSize is width, height, depth, channels, data type, index
const volumeDescriptorSize = 4*4 + 1 + 4

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	// The manifest is encoded with the container header codec
	var manifest []byte
	if msg.Manifest != nil {
		var err error
		if manifest, err = msg.Manifest.MarshalHeader(); err != nil {
			return nil, fmt.Errorf("failed to encode manifest: %w", err)
		}
	}

	result := make([]byte, headerSize, b.sizeBytes(msg, len(manifest)))
	result[0] = byte(msg.MsgType)
	binary.BigEndian.PutUint64(result[3:11], msg.ID)

	var flags uint16 = 0

	// Handle Buffer
	if msg.Buffer != nil {
		flags |= hasBuffer
		result = appendBytes(result, msg.Buffer)
	}

	// Handle Seq
	if msg.Seq > 0 {
		flags |= hasSeq
		result = binary.BigEndian.AppendUint32(result, msg.Seq)
	}

	// Handle Manifest
	if manifest != nil {
		flags |= hasManifest
		result = appendBytes(result, manifest)
	}

	// Handle Volumes
	if msg.Volumes != nil {
		flags |= hasVolumes
		result = binary.BigEndian.AppendUint32(result, uint32(len(msg.Volumes)))
		for _, v := range msg.Volumes {
			d := v.Descriptor
			result = binary.BigEndian.AppendUint32(result, d.Width)
			result = binary.BigEndian.AppendUint32(result, d.Height)
			result = binary.BigEndian.AppendUint32(result, d.Depth)
			result = binary.BigEndian.AppendUint32(result, d.Channels)
			result = append(result, byte(d.DataType))
			result = binary.BigEndian.AppendUint32(result, d.Index)
			result = binary.BigEndian.AppendUint64(result, uint64(len(v.Data)))
			result = append(result, v.Data...)
		}
	}

	// Handle Options
	if msg.Options != nil {
		if msg.Options.ChunkSize < 0 || len(msg.Options.DatasetID) > 0xFFFF {
			return nil, fmt.Errorf("invalid export options")
		}
		flags |= hasOptions
		result = binary.BigEndian.AppendUint32(result, uint32(msg.Options.ChunkSize))
		result = append(result, byte(msg.Options.Compression))
		if msg.Options.Stream {
			result = append(result, 1)
		} else {
			result = append(result, 0)
		}
		result = binary.BigEndian.AppendUint16(result, uint16(len(msg.Options.DatasetID)))
		result = append(result, msg.Options.DatasetID...)
	}

	// Handle ByteStart and ByteEnd
	if msg.ByteStart != 0 || msg.ByteEnd != 0 {
		flags |= hasRange
		result = binary.BigEndian.AppendUint64(result, uint64(msg.ByteStart))
		result = binary.BigEndian.AppendUint64(result, uint64(msg.ByteEnd))
	}

	// Handle Progress
	if msg.Progress != nil {
		flags |= hasProgress
		p := msg.Progress
		result = binary.BigEndian.AppendUint64(result, p.BytesProcessed)
		result = binary.BigEndian.AppendUint64(result, p.TotalBytes)
		result = binary.BigEndian.AppendUint32(result, uint32(p.VolumesDecoded))
		result = binary.BigEndian.AppendUint32(result, uint32(p.TotalVolumes))
		var known byte
		if p.TotalKnown {
			known |= 1
		}
		if p.VolumesKnown {
			known |= 2
		}
		result = append(result, known)
	}

	// Handle Count and Total
	if msg.Count != 0 || msg.Total != 0 {
		flags |= hasCount
		result = binary.BigEndian.AppendUint32(result, uint32(msg.Count))
		result = binary.BigEndian.AppendUint32(result, uint32(msg.Total))
	}

	// Handle Milestone
	if msg.Milestone != codec.MilestoneUnknown {
		flags |= hasMilestone
		result = append(result, byte(msg.Milestone))
	}

	// Handle EOF and HandOff (flags only)
	if msg.EOF {
		flags |= hasEOF
	}
	if msg.HandOff {
		flags |= hasHandOff
	}

	// Handle Err
	if msg.Err != "" || msg.ErrCode != fault.CodeUnknown {
		flags |= hasErr
		result = append(result, byte(msg.ErrCode))
		result = appendBytes(result, []byte(msg.Err))
	}

	// Handle Stack
	if msg.Stack != "" {
		flags |= hasStack
		result = appendBytes(result, []byte(msg.Stack))
	}

	// Set flags after knowing which fields are present
	binary.BigEndian.PutUint16(result[1:3], flags)

	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags + id)
	if len(data) < headerSize {
		return fmt.Errorf("data too short for message header")
	}

	*msg = common.Message{}
	msg.MsgType = common.MessageType(data[0])
	flags := binary.BigEndian.Uint16(data[1:3])
	msg.ID = binary.BigEndian.Uint64(data[3:11])

	r := &reader{data: data, pos: headerSize}

	// Read Buffer if present
	if flags&hasBuffer != 0 {
		msg.Buffer = r.blob("buffer")
	}

	// Read Seq if present
	if flags&hasSeq != 0 {
		msg.Seq = r.u32("seq")
	}

	// Read Manifest if present
	if flags&hasManifest != 0 {
		header := r.blob("manifest")
		if r.err == nil {
			m, err := volume.UnmarshalHeader(header)
			if err != nil {
				return fmt.Errorf("invalid manifest: %w", err)
			}
			msg.Manifest = m
		}
	}

	// Read Volumes if present
	if flags&hasVolumes != 0 {
		count := int(r.u32("volume count"))
		if r.err == nil && count > (len(data)-r.pos)/(volumeDescriptorSize+8) {
			return fmt.Errorf("data too short for %d volumes", count)
		}
		msg.Volumes = make([]volume.Volume, 0, count)
		for i := 0; i < count && r.err == nil; i++ {
			var v volume.Volume
			v.Descriptor.Width = r.u32("width")
			v.Descriptor.Height = r.u32("height")
			v.Descriptor.Depth = r.u32("depth")
			v.Descriptor.Channels = r.u32("channels")
			v.Descriptor.DataType = volume.DataType(r.u8("data type"))
			v.Descriptor.Index = r.u32("index")
			n := r.u64("volume data length")
			v.Data = r.clone(n, "volume data")
			msg.Volumes = append(msg.Volumes, v)
		}
	}

	// Read Options if present
	if flags&hasOptions != 0 {
		opts := &common.ExportOptions{}
		opts.ChunkSize = int(r.u32("chunk size"))
		opts.Compression = volume.Compression(r.u8("compression"))
		opts.Stream = r.u8("stream") != 0
		idLen := r.u16("dataset id length")
		opts.DatasetID = string(r.clone(uint64(idLen), "dataset id"))
		msg.Options = opts
	}

	// Read ByteStart and ByteEnd if present
	if flags&hasRange != 0 {
		msg.ByteStart = int64(r.u64("byte start"))
		msg.ByteEnd = int64(r.u64("byte end"))
	}

	// Read Progress if present
	if flags&hasProgress != 0 {
		p := &codec.Progress{}
		p.BytesProcessed = r.u64("bytes processed")
		p.TotalBytes = r.u64("total bytes")
		p.VolumesDecoded = int(r.u32("volumes decoded"))
		p.TotalVolumes = int(r.u32("total volumes"))
		known := r.u8("known flags")
		p.TotalKnown = known&1 != 0
		p.VolumesKnown = known&2 != 0
		msg.Progress = p
	}

	// Read Count and Total if present
	if flags&hasCount != 0 {
		msg.Count = int(r.u32("count"))
		msg.Total = int(r.u32("total"))
	}

	// Read Milestone if present
	if flags&hasMilestone != 0 {
		msg.Milestone = codec.Milestone(r.u8("milestone"))
	}

	msg.EOF = flags&hasEOF != 0
	msg.HandOff = flags&hasHandOff != 0

	// Read Err if present
	if flags&hasErr != 0 {
		msg.ErrCode = fault.Code(r.u8("error code"))
		msg.Err = string(r.blob("error"))
	}

	// Read Stack if present
	if flags&hasStack != 0 {
		msg.Stack = string(r.blob("stack"))
	}

	return r.err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message, manifestLen int) int {
	size := headerSize

	if msg.Buffer != nil {
		size += 4 + len(msg.Buffer) // 4 bytes for length + data
	}
	if msg.Seq > 0 {
		size += 4
	}
	if msg.Manifest != nil {
		size += 4 + manifestLen
	}
	if msg.Volumes != nil {
		size += 4
		for _, v := range msg.Volumes {
			size += volumeDescriptorSize + 8 + len(v.Data)
		}
	}
	if msg.Options != nil {
		size += 4 + 1 + 1 + 2 + len(msg.Options.DatasetID)
	}
	if msg.ByteStart != 0 || msg.ByteEnd != 0 {
		size += 16
	}
	if msg.Progress != nil {
		size += 8 + 8 + 4 + 4 + 1
	}
	if msg.Count != 0 || msg.Total != 0 {
		size += 8
	}
	if msg.Milestone != codec.MilestoneUnknown {
		size += 1
	}
	if msg.Err != "" || msg.ErrCode != fault.CodeUnknown {
		size += 1 + 4 + len(msg.Err)
	}
	if msg.Stack != "" {
		size += 4 + len(msg.Stack)
	}
	return size
}

// appendBytes appends a 4 byte length followed by data
func appendBytes(dst []byte, data []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(data)))
	return append(dst, data...)
}

// reader reads big endian fields and remembers the first error
type reader struct {
	data []byte
	pos  int
	err  error
}

func (r *reader) take(n uint64, what string) []byte {
	if r.err != nil {
		return nil
	}
	if n > uint64(len(r.data)-r.pos) {
		r.err = fmt.Errorf("data too short for %s", what)
		return nil
	}
	out := r.data[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return out
}

func (r *reader) u8(what string) byte {
	if b := r.take(1, what); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) u16(what string) uint16 {
	if b := r.take(2, what); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (r *reader) u32(what string) uint32 {
	if b := r.take(4, what); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (r *reader) u64(what string) uint64 {
	if b := r.take(8, what); b != nil {
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

// clone returns a copy of the next n bytes (never nil on success)
func (r *reader) clone(n uint64, what string) []byte {
	b := r.take(n, what)
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// blob reads a 4 byte length followed by that many bytes and returns a copy
func (r *reader) blob(what string) []byte {
	n := r.u32(what + " length")
	return r.clone(uint64(n), what)
}
