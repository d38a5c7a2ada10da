/*
Package codec implements the dVol container codec: encoding a collection of
same-shaped volumes into a manifest plus an ordered sequence of chunks, and
decoding such a stream back into volumes.

# Container

	[header][chunk 0][chunk 1]...[chunk N-1]

The header is the manifest (see package volume). Chunks are slices of the
concatenated volume sample bytes, ChunkSize raw bytes each (the last one may
be shorter). A chunk may span the boundary between two volumes. Each chunk is
stored raw or compressed with zstd or snappy, as recorded in the manifest.
Chunk offsets are relative to the first payload byte, so any chunk can be read
without scanning the stream (ReadChunkAt).

# Encoding

Encode validates the collection before producing any byte. With a ChunkSink
every chunk is handed to the sink in order and the next chunk is only encoded
after the sink returned. Without a sink the complete container is returned in
one buffer. WriteContainer writes a container to an io.WriterAt, reserving the
fixed-size header and filling it in at the end.

# Decoding

Decode pulls pieces of arbitrary size from a ChunkSource. It parses the
manifest, then rebuilds each volume in arrival order while reporting through
Callbacks:

  - OnProgress after every piece, with a non-decreasing byte count that reaches
    the container size exactly at the end
  - OnVolumeDecoded once per complete volume
  - OnMilestone for manifest-parsed, first-volume-ready and complete

At most one stored chunk plus the volume being assembled is buffered. If
Callbacks.OnVolume is set, decoded volumes are handed off instead of being
retained, which bounds memory to a single volume.

Pieces must arrive in the order of the chunk table. Reordering is not
detected and corrupts the reconstruction.

# Metrics

The package registers the VictoriaMetrics counters
dvol_codec_encoded_bytes_total, dvol_codec_encoded_chunks_total,
dvol_codec_decoded_bytes_total and dvol_codec_decoded_volumes_total.
*/
package codec
