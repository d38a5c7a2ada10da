// Package fault defines the error taxonomy shared by the codec, the shard
// extractor, the worker protocol and the benchmark matrix validator.
//
// Every error produced by dVol that a caller may want to react to is a
// *fault.Error carrying a Code:
//
//   - CodeValidation: a malformed manifest, volume collection or config field.
//     Path always names the offending field (e.g. "volumes[2].width" or
//     "cases[0].dataset.chunkShape[4]").
//
//   - CodeStream: the underlying byte source failed, was truncated or carried
//     bytes that do not match the manifest.
//
//   - CodeWorker: an exception raised inside a background worker, re-surfaced
//     on the caller side with the message and an optional stack trace.
//
//   - CodeCancelled: the call was abandoned, either because its context ended
//     or because the coordinator was disposed while the call was pending.
//
// Use errors.Is with the exported sentinels to test for a kind:
//
//	if errors.Is(err, fault.ErrValidation) { ... }
package fault
