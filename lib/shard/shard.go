package shard

import (
	"fmt"
	"runtime/debug"

	"github.com/ValentinKolb/dVol/lib/fault"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	log = logger.GetLogger("shard")

	rangeRequests = metrics.NewCounter("dvol_shard_range_requests_total")
	rangeClamped  = metrics.NewCounter("dvol_shard_range_clamped_total")
	rangeBytes    = metrics.NewHistogram("dvol_shard_range_bytes")
)

// Range is a half-open byte range [Start, End).
type Range struct {
	Start int64
	End   int64
}

// Clamp returns the range clamped to a shard of the given length and whether
// clamping changed it.
func (r Range) Clamp(length int64) (Range, bool) {
	out := r
	if out.Start < 0 {
		out.Start = 0
	}
	if out.Start > length {
		out.Start = length
	}
	if out.End > length {
		out.End = length
	}
	if out.End < out.Start {
		out.End = out.Start
	}
	return out, out != r
}

// Len returns the number of bytes in the range.
func (r Range) Len() int64 {
	return r.End - r.Start
}

// String returns the range as "[start, end)".
func (r Range) String() string {
	return fmt.Sprintf("[%d, %d)", r.Start, r.End)
}

// Extract returns a copy of shard[start:end] after clamping the range. The
// caller owns the returned buffer. Out-of-range input is never an error; a
// failure unrelated to the bounds is returned as a worker fault.
func Extract(shard []byte, start, end int64) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fault.NewWorker(fmt.Sprintf("extracting shard range: %v", r), string(debug.Stack()))
		}
	}()

	clamped := Resolve(Range{Start: start, End: end}, int64(len(shard)))
	out = make([]byte, clamped.Len())
	copy(out, shard[clamped.Start:clamped.End])
	return out, nil
}

// Resolve clamps r to a shard of the given length and records the request in
// the range metrics. Readers that slice shards themselves use it instead of
// Extract.
func Resolve(r Range, length int64) Range {
	rangeRequests.Inc()
	clamped, changed := r.Clamp(length)
	if changed {
		rangeClamped.Inc()
		log.Warningf("clamped shard range %s to %s (shard has %d bytes)", r, clamped, length)
	}
	rangeBytes.Update(float64(clamped.Len()))
	return clamped
}
