package codec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/ValentinKolb/dVol/lib/fault"
	"github.com/ValentinKolb/dVol/lib/volume"
	"github.com/VictoriaMetrics/metrics"
)

var (
	decodedBytes   = metrics.NewCounter("dvol_codec_decoded_bytes_total")
	decodedVolumes = metrics.NewCounter("dvol_codec_decoded_volumes_total")
)

// --------------------------------------------------------------------------
// Milestones
// --------------------------------------------------------------------------

// Milestone is a semantic checkpoint of a decode, independent of byte counts.
type Milestone uint8

const (
	MilestoneUnknown          Milestone = iota
	MilestoneManifestParsed             // the header is parsed, totals are known
	MilestoneFirstVolumeReady           // the first volume is fully reconstructed
	MilestoneComplete                   // every volume is decoded and the stream ended cleanly
)

// String returns the string representation of a Milestone.
func (m Milestone) String() string {
	switch m {
	case MilestoneManifestParsed:
		return "manifest-parsed"
	case MilestoneFirstVolumeReady:
		return "first-volume-ready"
	case MilestoneComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// ParseMilestone converts a string to a Milestone.
func ParseMilestone(s string) (Milestone, error) {
	switch s {
	case "manifest-parsed":
		return MilestoneManifestParsed, nil
	case "first-volume-ready":
		return MilestoneFirstVolumeReady, nil
	case "complete":
		return MilestoneComplete, nil
	default:
		return MilestoneUnknown, fmt.Errorf("unknown milestone: %s", s)
	}
}

// MarshalJSON implements the json.Marshaller interface for Milestone.
func (m Milestone) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for Milestone.
func (m *Milestone) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseMilestone(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// --------------------------------------------------------------------------
// Progress and Callbacks
// --------------------------------------------------------------------------

// Progress is the cumulative state of a decode. BytesProcessed and
// VolumesDecoded never decrease. The totals are only meaningful once the
// matching Known flag is set.
type Progress struct {
	BytesProcessed uint64 `json:"bytesProcessed"`
	TotalBytes     uint64 `json:"totalBytes"`
	TotalKnown     bool   `json:"totalKnown"`
	VolumesDecoded int    `json:"volumesDecoded"`
	TotalVolumes   int    `json:"totalVolumes"`
	VolumesKnown   bool   `json:"volumesKnown"`
}

// Callbacks are invoked synchronously from the decoding goroutine. Every
// field is optional.
type Callbacks struct {
	// OnProgress is called after every consumed piece of the source.
	OnProgress func(p Progress)
	// OnVolumeDecoded is called once per fully reconstructed volume.
	OnVolumeDecoded func(count, total int)
	// OnMilestone is called at each Milestone.
	OnMilestone func(m Milestone)
	// OnVolume takes ownership of every decoded volume. When set, volumes are
	// not retained in the returned Dataset. Returning an error aborts the decode.
	OnVolume func(v volume.Volume) error
}

// Dataset is the result of a decode.
type Dataset struct {
	Manifest *volume.Manifest
	Volumes  []volume.Volume
}

// --------------------------------------------------------------------------
// Decoder
// --------------------------------------------------------------------------

// decoder holds the state of a single decode operation
type decoder struct {
	cb       Callbacks
	progress Progress
	size     int64 // declared source size, -1 if unknown

	pending    []byte // received bytes not yet consumed
	headerSize int
	manifest   *volume.Manifest
	codec      chunkCodec

	chunk   int    // next chunk to decode
	vol     int    // volume being assembled
	cur     []byte // sample buffer of the volume being assembled
	curLen  int    // byte length of the volume being assembled
	volumes []volume.Volume
}

// Decode reconstructs a dataset from src. The manifest header is parsed
// first, then every volume is rebuilt from the payload bytes in arrival order.
// The source must end exactly at the end of the container; missing or
// trailing bytes are a stream error. No partial output is returned on error.
func Decode(ctx context.Context, src ChunkSource, cb Callbacks) (*Dataset, error) {
	d := &decoder{cb: cb, size: -1}
	if sized, ok := src.(SizedSource); ok {
		d.size = sized.Size()
		d.progress.TotalBytes = uint64(d.size)
		d.progress.TotalKnown = true
	}
	defer func() {
		if d.codec != nil {
			d.codec.Close()
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return nil, fault.NewCancelled("import cancelled after %d bytes: %v", d.progress.BytesProcessed, err)
		}

		piece, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, fault.NewCancelled("import cancelled after %d bytes: %v", d.progress.BytesProcessed, err)
			}
			if fault.CodeOf(err) != fault.CodeUnknown {
				return nil, err
			}
			return nil, fault.NewStream(err, "reading source after %d bytes", d.progress.BytesProcessed)
		}

		if err := d.feed(piece); err != nil {
			return nil, err
		}
		if d.cb.OnProgress != nil {
			d.cb.OnProgress(d.progress)
		}
	}

	if err := d.finish(); err != nil {
		return nil, err
	}
	return &Dataset{Manifest: d.manifest, Volumes: d.volumes}, nil
}

// DecodeBuffer decodes a complete container held in memory. The total size
// is known from the start.
func DecodeBuffer(ctx context.Context, data []byte, cb Callbacks) (*Dataset, error) {
	return Decode(ctx, NewBufferSource(data, 0), cb)
}

// feed consumes one piece of the source
func (d *decoder) feed(piece []byte) error {
	d.progress.BytesProcessed += uint64(len(piece))
	if d.progress.TotalKnown && d.progress.BytesProcessed > d.progress.TotalBytes {
		return fault.NewStream(nil, "trailing bytes: received %d, container has %d", d.progress.BytesProcessed, d.progress.TotalBytes)
	}

	if len(d.pending) == 0 {
		d.pending = piece
	} else {
		d.pending = append(d.pending, piece...)
	}

	for {
		if d.manifest == nil {
			ok, err := d.parseHeader()
			if err != nil || !ok {
				return err
			}
			continue
		}

		if d.chunk == len(d.manifest.Chunks) {
			return nil
		}
		ref := d.manifest.Chunks[d.chunk]
		if uint64(len(d.pending)) < ref.Length {
			return nil
		}
		stored := d.pending[:ref.Length]
		d.pending = d.pending[ref.Length:]

		raw, err := d.codec.Decode(stored, ref.RawLength)
		if err != nil {
			return fault.NewStream(err, "decoding chunk %d", d.chunk)
		}
		d.chunk++
		decodedBytes.Add(len(raw))

		if err := d.assemble(raw); err != nil {
			return err
		}
	}
}

// parseHeader parses the manifest once enough bytes are pending. It returns
// false if more bytes are needed.
func (d *decoder) parseHeader() (bool, error) {
	if d.headerSize == 0 {
		if len(d.pending) < volume.HeaderPrefixSize {
			return false, nil
		}
		size, err := volume.ParseHeaderPrefix(d.pending)
		if err != nil {
			return false, err
		}
		d.headerSize = size
	}
	if len(d.pending) < d.headerSize {
		return false, nil
	}

	m, err := volume.UnmarshalHeader(d.pending[:d.headerSize])
	if err != nil {
		return false, err
	}
	d.pending = d.pending[d.headerSize:]

	total := m.ContainerBytes()
	if d.size >= 0 && uint64(d.size) != total {
		return false, fault.NewStream(nil, "source has %d bytes, container needs %d", d.size, total)
	}
	if d.progress.BytesProcessed > total {
		return false, fault.NewStream(nil, "trailing bytes: received %d, container has %d", d.progress.BytesProcessed, total)
	}

	cc, err := newChunkCodec(m.Compression)
	if err != nil {
		return false, fault.NewValidation("manifest.compression", "%v", err)
	}

	d.manifest = m
	d.codec = cc
	d.progress.TotalBytes = total
	d.progress.TotalKnown = true
	d.progress.TotalVolumes = len(m.Volumes)
	d.progress.VolumesKnown = true
	d.volumes = make([]volume.Volume, 0, len(m.Volumes))

	log.Debugf("parsed manifest of dataset %s: %d volumes, %d chunks", m.DatasetID, len(m.Volumes), len(m.Chunks))
	d.milestone(MilestoneManifestParsed)
	return true, nil
}

// assemble copies raw payload bytes into the volumes being rebuilt
func (d *decoder) assemble(raw []byte) error {
	for len(raw) > 0 {
		if d.cur == nil {
			// bounded by MaxVolumeBytes, but only grown as payload arrives
			d.curLen = int(d.manifest.Volumes[d.vol].ByteLength())
			d.cur = make([]byte, 0, min(d.curLen, DefaultChunkSize))
		}
		n := min(d.curLen-len(d.cur), len(raw))
		d.cur = append(d.cur, raw[:n]...)
		raw = raw[n:]

		if len(d.cur) == d.curLen {
			if err := d.emit(); err != nil {
				return err
			}
		}
	}
	return nil
}

// emit hands off the completed volume
func (d *decoder) emit() error {
	v := volume.Volume{Descriptor: d.manifest.Volumes[d.vol], Data: d.cur}
	d.cur = nil
	d.vol++
	d.progress.VolumesDecoded = d.vol
	decodedVolumes.Inc()

	if d.cb.OnVolume != nil {
		if err := d.cb.OnVolume(v); err != nil {
			if fault.CodeOf(err) != fault.CodeUnknown {
				return err
			}
			return &fault.Error{Code: fault.CodeWorker, Msg: "volume sink failed", Err: err}
		}
	} else {
		d.volumes = append(d.volumes, v)
	}

	if d.cb.OnVolumeDecoded != nil {
		d.cb.OnVolumeDecoded(d.vol, len(d.manifest.Volumes))
	}
	if d.vol == 1 {
		d.milestone(MilestoneFirstVolumeReady)
	}
	return nil
}

// finish checks that the stream ended exactly at the end of the container
func (d *decoder) finish() error {
	if d.manifest == nil {
		return fault.NewStream(nil, "stream ended after %d bytes, before the manifest was complete", d.progress.BytesProcessed)
	}
	if d.chunk < len(d.manifest.Chunks) {
		return fault.NewStream(nil, "stream ended after %d of %d bytes (chunk %d of %d)",
			d.progress.BytesProcessed, d.progress.TotalBytes, d.chunk, len(d.manifest.Chunks))
	}
	if d.vol != len(d.manifest.Volumes) {
		return fault.NewStream(nil, "payload ended after %d of %d volumes", d.vol, len(d.manifest.Volumes))
	}
	d.milestone(MilestoneComplete)
	return nil
}

func (d *decoder) milestone(m Milestone) {
	if d.cb.OnMilestone != nil {
		d.cb.OnMilestone(m)
	}
}
