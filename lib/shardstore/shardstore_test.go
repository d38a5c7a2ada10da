package shardstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/VictoriaMetrics/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, "mem://")
	require.NoError(t, err)
	defer s.Close()

	data := []byte("0123456789")
	require.NoError(t, s.WriteShard(ctx, "scale1/shard-0", data))
	require.NoError(t, s.WriteShard(ctx, "scale1/shard-1", data[:4]))
	require.NoError(t, s.WriteShard(ctx, "scale2/shard-0", data[:2]))

	got, err := s.ReadShard(ctx, "scale1/shard-0")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	keys, err := s.List(ctx, "scale1/")
	require.NoError(t, err)
	assert.Equal(t, []string{"scale1/shard-0", "scale1/shard-1"}, keys)

	_, err = s.ReadShard(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestReadRange(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, "mem://")
	require.NoError(t, err)
	defer s.Close()

	data := []byte("0123456789")
	require.NoError(t, s.WriteShard(ctx, "shard", data))

	testCases := []struct {
		name       string
		start, end int64
		want       string
	}{
		{"inner", 2, 5, "234"},
		{"clamped", -5, 100, "0123456789"},
		{"inverted", 8, 3, ""},
		{"past end", 20, 30, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := s.ReadRange(ctx, "shard", tc.start, tc.end)
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(got))
		})
	}

	_, err = s.ReadRange(ctx, "missing", 0, 1)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestReadRangeCountsClamping(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, "mem://")
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.WriteShard(ctx, "shard", []byte("abcdef")))

	requests := metrics.GetOrCreateCounter("dvol_shard_range_requests_total")
	clamped := metrics.GetOrCreateCounter("dvol_shard_range_clamped_total")
	r0, c0 := requests.Get(), clamped.Get()

	got, err := s.ReadRange(ctx, "shard", 4, 100)
	require.NoError(t, err)
	assert.Equal(t, "ef", string(got))
	assert.Equal(t, r0+1, requests.Get())
	assert.Equal(t, c0+1, clamped.Get())
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.shard"), []byte("abc"), 0o644))

	s, err := Open(ctx, "file://"+filepath.ToSlash(dir))
	require.NoError(t, err)
	defer s.Close()

	got, err := s.ReadRange(ctx, "a.shard", 1, 3)
	require.NoError(t, err)
	assert.Equal(t, "bc", string(got))
}
