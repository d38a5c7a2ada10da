// Package common provides the data structures shared by the dVol coordinator
// and its workers.
//
// The package focuses on:
//   - Message protocol definition for coordinator/worker communication
//   - Configuration structures for the coordinator and the CLI
//   - Custom logging implementation integrated with Dragonboat's logger package
//
// Key Components:
//
//   - Message: Core data structure exchanged with a worker. Every message
//     carries the correlation id of its call and a MessageType. Includes
//     factory methods for every request and response and a Validate method
//     that checks the fields each type requires.
//
//   - MessageType: Enumeration of all message kinds, grouped into export
//     (export, chunk, ack, done), shard range extraction (decode-shard-entry,
//     decoded), import (import, pull, feed, progress, volume, milestone) and
//     the outcomes success and error.
//
//   - CoordinatorConfig: Worker mode, serializer, codec parameters and log
//     level, as assembled by the CLI from flags and environment.
//
//   - Logger: Custom logging implementation that plugs into Dragonboat's
//     logger factory and formats every line as "LEVEL | name | message".
package common
