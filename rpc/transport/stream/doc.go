// Package stream implements transport.IWorkerTransport over any byte stream
// (io.ReadWriteCloser): pipes, sockets or the stdin/stdout of a child process.
//
// Frame format (all integers big endian):
//
//   - 8 bytes: request id (uint64), the ID of the framed message
//   - 4 bytes: payload length (uint32)
//   - N bytes: the message, encoded by an rpc/serializer implementation
//
// Both ends must use the same serializer. The request id in the frame header
// is checked against the decoded message, which catches a peer speaking a
// different serializer early.
//
// Process workers:
//
//   - Spawn starts a `dvol worker` child and connects to its stdin/stdout.
//     Closing the transport closes the child's stdin, which ends its worker
//     loop, and then waits for the process to exit.
//   - NewStdio is the child's end of the same connection. Logging in the
//     child must go to stderr since stdout carries frames.
//
// Thread Safety:
//
//	Send may be called concurrently, frames are written under a mutex. Recv
//	reuses an internal read buffer and must be called from one goroutine.
package stream
