// Package server implements the worker side of dVol's background execution.
//
// A Worker reads messages from a transport.IWorkerTransport. Requests
// (export, import, decode-shard-entry) are queued in a lock-free MPSC inbox
// and handled one at a time in arrival order. Follow-up messages from the
// caller (ack, feed) are routed to the running request by id.
//
// Key Components:
//
//   - IWorkerAdapter: Interface for request handlers. Each adapter receives the
//     request and a Session for the intermediate exchange and returns the
//     final response.
//
//   - NewExportAdapter: encodes volumes, either as one buffer (success) or as
//     chunks each acknowledged by the caller before the next (chunk, ack,
//     done).
//
//   - NewImportAdapter: decodes a container pulled from the caller piece by
//     piece (pull, feed) and relays progress, volume and milestone messages.
//
//   - NewShardAdapter: extracts a clamped byte range from a shard (decoded).
//
// Errors and Aborts:
//
//	Failures are answered with an error message carrying the fault code and,
//	for worker faults, the stack. A panic in an adapter is recovered into a
//	worker fault. An ack carrying an error aborts the running (or queued)
//	request; nothing is sent back for it.
//
// Usage Example:
//
//	// inside `dvol worker`
//	w := server.NewWorker(stream.NewStdio(serializer.NewBinarySerializer()))
//	if err := w.Serve(ctx); err != nil {
//	  log.Fatal(err)
//	}
package server
