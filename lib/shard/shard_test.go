package shard

import (
	"testing"

	"github.com/VictoriaMetrics/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	shard := make([]byte, 100)
	for i := range shard {
		shard[i] = byte(i)
	}

	testCases := []struct {
		name  string
		start int64
		end   int64
		want  []byte
	}{
		{"full range", 0, 100, shard},
		{"inner range", 10, 20, shard[10:20]},
		{"negative start and end past length", -5, int64(len(shard)) + 100, shard},
		{"end below clamped start", 50, 10, []byte{}},
		{"start past length", 150, 200, []byte{}},
		{"empty range", 30, 30, []byte{}},
		{"negative end", -10, -1, []byte{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Extract(shard, tc.start, tc.end)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestExtractReturnsCopy(t *testing.T) {
	shard := []byte{1, 2, 3, 4}
	got, err := Extract(shard, 1, 3)
	require.NoError(t, err)
	got[0] = 99
	assert.Equal(t, byte(2), shard[1], "the shard must not be aliased")
}

func TestExtractEmptyShard(t *testing.T) {
	got, err := Extract(nil, -1, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRangeClamp(t *testing.T) {
	r, changed := Range{Start: 2, End: 8}.Clamp(10)
	assert.False(t, changed)
	assert.Equal(t, int64(6), r.Len())

	r, changed = Range{Start: -5, End: 110}.Clamp(10)
	assert.True(t, changed)
	assert.Equal(t, Range{Start: 0, End: 10}, r)
	assert.Equal(t, "[0, 10)", r.String())
}

func TestResolveCounts(t *testing.T) {
	requests := metrics.GetOrCreateCounter("dvol_shard_range_requests_total")
	clamped := metrics.GetOrCreateCounter("dvol_shard_range_clamped_total")
	r0, c0 := requests.Get(), clamped.Get()

	r := Resolve(Range{Start: 2, End: 5}, 10)
	assert.Equal(t, Range{Start: 2, End: 5}, r)
	assert.Equal(t, r0+1, requests.Get())
	assert.Equal(t, c0, clamped.Get())

	r = Resolve(Range{Start: 8, End: 30}, 10)
	assert.Equal(t, Range{Start: 8, End: 10}, r)
	assert.Equal(t, r0+2, requests.Get())
	assert.Equal(t, c0+1, clamped.Get())
}
