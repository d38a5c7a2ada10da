// Package gateway exposes shard range extraction over HTTP.
//
// Routes:
//
//   - GET /healthz: liveness check
//   - GET /metrics: Prometheus text format of every dVol metric
//   - GET /shards?prefix=p: JSON list of shard keys
//   - GET /shards/{key}/range?start=s&end=e: the bytes [s, e) of the shard
//     stored under key (URL-escaped), extracted by the coordinator's shard
//     worker. Out-of-range bounds are clamped, never rejected. With
//     direct=true only the range is read from the store, bypassing the worker.
//
// Errors are returned as JSON objects {"success": false, "error": "..."}:
// 400 for malformed parameters, 404 for unknown shards, 503 for a disposed or
// cancelled coordinator, 500 otherwise.
package gateway
