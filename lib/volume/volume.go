package volume

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"math/bits"

	"github.com/ValentinKolb/dVol/lib/fault"
)

// --------------------------------------------------------------------------
// Data Type
// --------------------------------------------------------------------------

// DataType defines the sample type of a volume.
type DataType uint8

const (
	DataTypeUnknown DataType = iota
	DataTypeFloat32          // 32-bit IEEE 754 float, little endian
)

// String returns the string representation of a DataType.
func (t DataType) String() string {
	switch t {
	case DataTypeFloat32:
		return "float32"
	default:
		return "unknown"
	}
}

// SampleBytes returns the size of a single sample in bytes (0 for unknown types).
func (t DataType) SampleBytes() int {
	switch t {
	case DataTypeFloat32:
		return 4
	default:
		return 0
	}
}

// MarshalJSON implements the json.Marshaller interface for DataType.
func (t DataType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for DataType.
func (t *DataType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	dt, err := ParseDataType(s)
	if err != nil {
		return err
	}
	*t = dt
	return nil
}

// ParseDataType converts a string to a DataType.
func ParseDataType(s string) (DataType, error) {
	switch s {
	case "float32":
		return DataTypeFloat32, nil
	default:
		return DataTypeUnknown, fmt.Errorf("unknown data type: %s", s)
	}
}

// --------------------------------------------------------------------------
// Descriptor
// --------------------------------------------------------------------------

// Descriptor describes the shape of a single volume. It is a value type and
// never modified after construction.
type Descriptor struct {
	Width    uint32   `json:"width"`
	Height   uint32   `json:"height"`
	Depth    uint32   `json:"depth"`
	Channels uint32   `json:"channels"`
	DataType DataType `json:"dataType"`
	Index    uint32   `json:"index"` // ordinal within a multi-volume / time series
}

// MaxVolumeBytes bounds the byte length of a single volume and of a whole
// collection.
const MaxVolumeBytes = math.MaxInt

// ByteLength returns the number of sample bytes described. The result
// saturates at math.MaxUint64 if the product overflows.
func (d Descriptor) ByteLength() uint64 {
	n, ok := d.byteLength()
	if !ok {
		return math.MaxUint64
	}
	return n
}

func (d Descriptor) byteLength() (uint64, bool) {
	n := uint64(d.DataType.SampleBytes())
	for _, f := range [...]uint32{d.Width, d.Height, d.Depth, d.Channels} {
		hi, lo := bits.Mul64(n, uint64(f))
		if hi != 0 {
			return 0, false
		}
		n = lo
	}
	return n, true
}

// Validate checks that every dimension is set and the data type is known.
// The path prefix is used to name offending fields.
func (d Descriptor) Validate(path string) error {
	switch {
	case d.DataType.SampleBytes() == 0:
		return fault.NewValidation(path+".dataType", "unsupported data type %s", d.DataType)
	case d.Width == 0:
		return fault.NewValidation(path+".width", "must be greater than zero")
	case d.Height == 0:
		return fault.NewValidation(path+".height", "must be greater than zero")
	case d.Depth == 0:
		return fault.NewValidation(path+".depth", "must be greater than zero")
	case d.Channels == 0:
		return fault.NewValidation(path+".channels", "must be greater than zero")
	}
	if n, ok := d.byteLength(); !ok || n > MaxVolumeBytes {
		return fault.NewValidation(path+".width", "%dx%dx%dx%d %s exceeds %d bytes",
			d.Width, d.Height, d.Depth, d.Channels, d.DataType, uint64(MaxVolumeBytes))
	}
	return nil
}

// String returns a short representation like "64x64x32x2 float32 #0".
func (d Descriptor) String() string {
	return fmt.Sprintf("%dx%dx%dx%d %s #%d", d.Width, d.Height, d.Depth, d.Channels, d.DataType, d.Index)
}

// --------------------------------------------------------------------------
// Volume
// --------------------------------------------------------------------------

// Volume is a descriptor plus its raw sample bytes.
type Volume struct {
	Descriptor Descriptor `json:"descriptor"`
	Data       []byte     `json:"data"`
}

// Validate checks the descriptor and that the data length matches it.
func (v Volume) Validate(path string) error {
	if err := v.Descriptor.Validate(path); err != nil {
		return err
	}
	if uint64(len(v.Data)) != v.Descriptor.ByteLength() {
		return fault.NewValidation(path+".data", "expected %d bytes, got %d", v.Descriptor.ByteLength(), len(v.Data))
	}
	return nil
}

// NewFloat32Volume creates a volume from float32 samples (channel-interleaved
// order is the caller's choice, dVol treats samples as opaque).
func NewFloat32Volume(width, height, depth, channels, index uint32, samples []float32) Volume {
	data := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(s))
	}
	return Volume{
		Descriptor: Descriptor{
			Width:    width,
			Height:   height,
			Depth:    depth,
			Channels: channels,
			DataType: DataTypeFloat32,
			Index:    index,
		},
		Data: data,
	}
}

// Float32s decodes the sample bytes of a float32 volume.
func (v Volume) Float32s() ([]float32, error) {
	if v.Descriptor.DataType != DataTypeFloat32 {
		return nil, fmt.Errorf("volume is %s, not float32", v.Descriptor.DataType)
	}
	if len(v.Data)%4 != 0 {
		return nil, fmt.Errorf("data length %d is not a multiple of 4", len(v.Data))
	}
	out := make([]float32, len(v.Data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(v.Data[i*4:]))
	}
	return out, nil
}

// ValidateCollection checks a collection of volumes before encoding: the
// collection must not be empty, every volume must be valid and width, height
// and channel count must be equal across all volumes.
func ValidateCollection(volumes []Volume) error {
	if len(volumes) == 0 {
		return fault.NewValidation("volumes", "at least one volume is required")
	}
	first := volumes[0].Descriptor
	for i, v := range volumes {
		path := fmt.Sprintf("volumes[%d]", i)
		if err := v.Validate(path); err != nil {
			return err
		}
		d := v.Descriptor
		if d.Width != first.Width {
			return fault.NewValidation(path+".width", "expected %d (volumes[0]), got %d", first.Width, d.Width)
		}
		if d.Height != first.Height {
			return fault.NewValidation(path+".height", "expected %d (volumes[0]), got %d", first.Height, d.Height)
		}
		if d.Channels != first.Channels {
			return fault.NewValidation(path+".channels", "expected %d (volumes[0]), got %d", first.Channels, d.Channels)
		}
		if d.DataType != first.DataType {
			return fault.NewValidation(path+".dataType", "expected %s (volumes[0]), got %s", first.DataType, d.DataType)
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Chunk
// --------------------------------------------------------------------------

// Chunk is an opaque contiguous binary segment with a sequence number.
type Chunk struct {
	Seq  uint32
	Data []byte
}

// Take returns the chunk data and clears the chunk's own reference.
// After Take the chunk no longer holds usable data.
func (c *Chunk) Take() []byte {
	data := c.Data
	c.Data = nil
	return data
}
