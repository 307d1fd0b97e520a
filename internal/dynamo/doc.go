// Package dynamo provides the core primitives shared by every stage of the
// particle execution core.
//
//   - [Float3], [Float4], [Double2], [Double3]: packed vector types used by
//     the structure-of-arrays particle layout
//   - [TypeCode]: particle class, periodic flag and object index in one field
//   - [Counts]: live index layout (Np, Npb, NpbOk and periodic counts)
//   - error taxonomy: [ErrOutOfMemory], [ErrDevice], [ErrSequence], [ErrCapacity]
//
// # Errors
//
// Allocation failures, device failures and sequencing violations are fatal
// for a run. Only [ErrCapacity] is recovered locally, by resizing the store
// once and retrying:
//
//	if errors.Is(err, dynamo.ErrCapacity) {
//	    store.EnsureCapacity(required)
//	}
package dynamo
