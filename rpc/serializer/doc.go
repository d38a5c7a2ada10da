// Package serializer provides message serialization for the stream transport
// between the dVol coordinator and worker processes. It defines a common
// interface and multiple implementations for serializing and deserializing
// common.Message values.
//
// Key Components:
//
//   - IRPCSerializer: Core interface that all serializer implementations must satisfy.
//
//   - binarySerializerImpl: Custom big endian format. A 16 bit flag set records
//     which optional fields are present, so only those are encoded. Manifests are
//     embedded using the container header codec of package volume, volume data
//     and chunk buffers are written as raw length prefixed bytes.
//
//   - jsonSerializerImpl: Implementation using JSON encoding, useful for debugging
//     a worker by hand. Buffers are base64 encoded, which makes it the slowest
//     choice for large volumes.
//
//   - gobSerializerImpl: Implementation using Go's gob encoding.
//
// Thread Safety:
//
//	All serializer implementations are stateless and safe for concurrent use
//	across multiple goroutines without additional synchronization.
//
// Usage:
//
//	s := serializer.NewBinarySerializer()
//	data, err := s.Serialize(*msg)
//	// ... send data ...
//	var received common.Message
//	err = s.Deserialize(receivedData, &received)
package serializer
