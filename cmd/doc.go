// Package cmd implements the command-line interface of dVol. It provides a
// hierarchical command structure for encoding and decoding volume containers,
// extracting shard ranges, validating benchmark matrices and serving shards
// over HTTP.
//
// The package is organized into several subpackages:
//
//   - dataset: export, import and inspect of volume containers
//   - shard: range extraction from a shard store (extract, ls)
//   - matrix: benchmark matrix validation and threshold evaluation
//   - serve: HTTP gateway for shard ranges and metrics
//   - worker: background worker speaking the stream protocol over stdio (internal use)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set through the environment as DVOL_<FLAG> with
// dashes replaced by underscores (e.g. DVOL_WORKER_MODE=process). .env and
// .env.local files in the working directory are loaded first.
//
// See dvol -help for a list of all commands.
package cmd
