// Package shardstore reads shard objects from a gocloud.dev blob bucket.
//
// Buckets are opened by URL, for example "file:///data/shards" or "mem://".
// Keys are slash separated object names relative to the bucket root.
package shardstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ValentinKolb/dVol/lib/shard"
	"github.com/lni/dragonboat/v4/logger"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"
)

var log = logger.GetLogger("shardstore")

// ErrNotFound is returned when a shard key does not exist.
var ErrNotFound = errors.New("shard not found")

// Store is a read-mostly view on a bucket of shards.
type Store struct {
	url    string
	bucket *blob.Bucket
}

// Open opens the bucket at url.
func Open(ctx context.Context, url string) (*Store, error) {
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open shard store %q: %w", url, err)
	}
	log.Infof("opened shard store %s", url)
	return &Store{url: url, bucket: bucket}, nil
}

// ReadShard returns the complete shard stored under key.
func (s *Store) ReadShard(ctx context.Context, key string) ([]byte, error) {
	data, err := s.bucket.ReadAll(ctx, key)
	if err != nil {
		return nil, s.wrap(key, err)
	}
	return data, nil
}

// ReadRange reads the half-open range [start, end) of a shard without
// fetching the whole object. The range is clamped and counted by
// shard.Resolve, like shard.Extract does.
func (s *Store) ReadRange(ctx context.Context, key string, start, end int64) ([]byte, error) {
	attrs, err := s.bucket.Attributes(ctx, key)
	if err != nil {
		return nil, s.wrap(key, err)
	}
	r := shard.Resolve(shard.Range{Start: start, End: end}, attrs.Size)
	if r.Len() == 0 {
		return []byte{}, nil
	}

	reader, err := s.bucket.NewRangeReader(ctx, key, r.Start, r.Len(), nil)
	if err != nil {
		return nil, s.wrap(key, err)
	}
	defer reader.Close()

	out := make([]byte, r.Len())
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, fmt.Errorf("failed to read %s %s: %w", key, r, err)
	}
	return out, nil
}

// WriteShard stores data under key.
func (s *Store) WriteShard(ctx context.Context, key string, data []byte) error {
	if err := s.bucket.WriteAll(ctx, key, data, nil); err != nil {
		return fmt.Errorf("failed to write shard %s: %w", key, err)
	}
	return nil
}

// List returns the keys of all shards below prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list shards under %q: %w", prefix, err)
		}
		if obj.IsDir {
			continue
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// Close closes the underlying bucket.
func (s *Store) Close() error {
	return s.bucket.Close()
}

// String returns the store URL.
func (s *Store) String() string {
	return s.url
}

func (s *Store) wrap(key string, err error) error {
	if gcerrors.Code(err) == gcerrors.NotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return fmt.Errorf("failed to read shard %s: %w", key, err)
}
