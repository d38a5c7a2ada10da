// Package queue provides an unbounded lock-free multi-producer single-consumer
// queue used as the inbox of dVol workers.
//
// Features and Guarantees:
//
//   - Lock-Free pushes: producers append with compare-and-swap, so any number of
//     goroutines (callers of a coordinator, the reader of a transport) can
//     enqueue without blocking each other.
//   - Unbounded Size: flow control is left to the protocol on top of the queue.
//   - Single Consumer: items are delivered on the channel returned by Recv(),
//     which makes the queue usable in select statements.
//   - Ordering: pushes from a single producer are delivered in order. Across
//     producers the order is the order in which the pushes completed.
//   - Shutdown: Close() stops new pushes but still delivers queued items and
//     then closes the Recv() channel. Discard() drops everything still queued
//     and releases the delivery goroutine immediately.
package queue
