// Package serializer provides trajectory serialization for the rlink
// transport. Payloads on the wire are opaque bytes; this package defines a
// common interface and multiple implementations for turning experience
// trajectories into those bytes and back.
//
// Key Components:
//
//   - ITrajectorySerializer: Core interface that all serializer
//     implementations must satisfy.
//
//   - binarySerializerImpl: Custom binary format implementation optimized
//     for speed and space efficiency. Uses a flag-based approach to encode
//     only present fields, resulting in compact serialized data with
//     minimal overhead.
//
//   - gobSerializerImpl: Implementation using Go's built-in gob encoding,
//     offering good compatibility with Go's type system but with larger
//     serialized sizes.
//
//   - jsonSerializerImpl: Implementation using JSON encoding, useful for
//     debugging or interoperability with non-Go actors, but with lower
//     performance.
//
// Thread Safety:
//
//	All serializer implementations are stateless and safe for concurrent
//	use across multiple goroutines without additional synchronization.
//
// Usage:
//
//	Serializers are typically created once and reused:
//
//	  s := serializer.NewBinarySerializer()
//	  data, err := s.Serialize(trajectory)
//	  // ... actor.Send(data) ...
//	  var received serializer.Trajectory
//	  err = s.Deserialize(data, &received)
package serializer
