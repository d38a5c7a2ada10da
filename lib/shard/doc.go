/*
Package shard extracts byte ranges from shards.

A shard is a binary container that aggregates many logical entries; an entry
is located by a half-open byte range [start, end) inside the shard. Shard
indexes may be stale, so Extract never fails on out-of-range input. The start
is clamped to [0, len(shard)] and the end to [start, len(shard)], which may
yield an empty result.

Every request increments dvol_shard_range_requests_total. Requests that needed
clamping also increment dvol_shard_range_clamped_total and are logged at
warning level, so that an inconsistent shard index shows up in monitoring.
Resolve applies the same clamping and accounting to readers that fetch the
range themselves, like ranged reads from a shard store.
*/
package shard
