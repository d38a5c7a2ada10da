// Package volume provides the data model shared by the dVol codec, worker
// protocol and CLI: volume descriptors, in-memory volumes, chunks and the
// preprocessed manifest that describes a chunked container.
//
// The package focuses on:
//   - Immutable descriptors for 5-D imaging volumes (width × height × depth ×
//     channel, with the time axis expressed as the ordinal Index)
//   - The Manifest and its invariants (chunk layout order, byte totals)
//   - The self-describing binary container header
//
// Key Components:
//
//   - Descriptor: shape and sample type of a single volume. Only 32-bit float
//     samples are currently defined.
//
//   - Volume: a Descriptor plus its raw little-endian sample bytes.
//
//   - Chunk: an opaque, sequence-numbered binary segment. Chunks move between
//     execution contexts; Take() hands the data off and clears the sender's
//     reference.
//
//   - Manifest: format version, dataset id, compression, volume descriptors and
//     the chunk table. MarshalHeader / UnmarshalHeader convert it to and from
//     the container header:
//
//     [magic "DVOLSET\x00"][uint32 body length][body]
//
//     The body is big-endian: format version, compression, dataset id,
//     volume descriptors, chunk table (offset, length, raw length per chunk)
//     and the total payload length. Offsets are relative to the first payload
//     byte, so any chunk can be located without scanning the payload.
//
//   - ParseRemote: converts the JSON response of the upstream volume retrieval
//     service ({width, height, depth, channels, dataType, data: base64}) into a
//     Volume.
package volume
