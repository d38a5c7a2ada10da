// Package client implements the Coordinator, the caller side of dVol's
// background workers.
//
// The coordinator owns up to two workers, one for datasets (export and
// import) and one for shards. Each is created on first use through a
// WorkerFactory, guarded so that concurrent first calls never start two
// workers, and lives until Dispose.
//
// Key Components:
//
//   - Coordinator: assigns every call a request id (atomic, starting at 1),
//     registers it in a concurrent pending map and waits for the responses the
//     connection's reader goroutine distributes. Responses for unknown ids are
//     logged and dropped.
//
//   - WorkerFactory: starts a worker and returns the coordinator's end of its
//     transport. InProcFactory runs workers as goroutines, ProcessFactory as
//     `dvol worker` child processes. A nil factory, or one returning
//     ErrWorkerUnavailable, makes the operations run inline with the same
//     callback contract.
//
// Operations:
//
//   - Export: streamed (chunk, ack, ..., done) or whole buffer (success). A
//     failing chunk handler aborts the worker with an ack carrying the error.
//   - Import: the worker pulls pieces from the caller's source (pull, feed)
//     and relays progress, decoded volume counts and milestones.
//   - DecodeShardEntry: one request, one decoded response.
//
// Usage Example:
//
//	c := client.NewCoordinator(client.InProcFactory())
//	defer c.Dispose()
//
//	res, err := c.Export(ctx, volumes, common.ExportOptions{}, nil)
//	if err != nil {
//	  return err
//	}
//	ds, err := c.Import(ctx, codec.NewBufferSource(res.Data, 0), codec.Callbacks{
//	  OnMilestone: func(m codec.Milestone) { fmt.Println(m) },
//	})
//
// Cancellation and Disposal:
//
//	Cancelling the context of a call rejects that call with a cancellation
//	error and tells the worker to stop; whatever the worker still sends for
//	it is dropped. Dispose closes the workers, rejects every pending call with
//	a cancellation error, and makes every later call fail with ErrDisposed.
//
// Thread Safety:
//
//	All methods are safe for concurrent use. Each worker handles one request
//	at a time, further calls queue in its inbox.
package client
