// Package rpc provides the background execution layer of dVol. It moves
// dataset encoding, decoding and shard range extraction off the calling
// goroutine (or out of the process) and correlates the results with the
// waiting calls.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures used across the layer, including the worker
//     Message protocol, the coordinator configuration, and logging.
//
//   - transport: The message channel between coordinator and worker with
//     in-process (MPSC queues) and stream (framed bytes, e.g. a child process
//     over stdio) implementations.
//
//   - serializer: Message serialization with multiple format options (Binary,
//     JSON, GOB) for the stream transport.
//
//   - client: The Coordinator, which owns the workers, assigns request ids and
//     exposes Export, Import and DecodeShardEntry.
//
//   - server: The worker loop and the adapters handling each request kind.
//
//   - gateway: An HTTP API serving shard ranges through a Coordinator.
package rpc
