// Package transport defines the message channel between a dVol coordinator and
// its background workers. It provides a common contract that every transport
// implementation fulfills, so the coordinator and the worker loop stay
// independent of where the worker runs.
//
// Key Components:
//
//   - IWorkerTransport: one end of a bidirectional, ordered message channel.
//     Messages are common.Message values; buffers they reference are moved to
//     the receiving side.
//
//   - ErrClosed: returned once either end closed the channel.
//
// Implementations:
//
//   - inproc: the worker is a goroutine in the same process. Messages travel by
//     pointer through lock-free MPSC queues, nothing is copied or serialized.
//
//   - stream: messages are serialized (binary, json or gob) and written as
//     length-prefixed frames over any io.ReadWriteCloser. Used to talk to a
//     `dvol worker` child process over its stdin/stdout.
package transport
