// Package inproc implements transport.IWorkerTransport for workers running as
// goroutines in the calling process.
//
// NewPipe returns two connected ends. Each direction is a lock-free MPSC queue
// (lib/queue), so any number of goroutines may Send while a single reader
// consumes. Messages are passed by pointer and buffers are never copied; this
// is what makes a chunk or shard "move" to the other side. Closing either end
// closes both directions after the messages already queued are delivered.
package inproc
