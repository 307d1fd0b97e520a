// Package particles holds the particle state of a run.
//
//   - [Store]: mirrored host/device structure-of-arrays with capacity management
//   - [Periodic]: replication of particles across periodic faces
//   - [Snapshot]: by-value copy of a particle range
//
// The live range is laid out as
//
//	[normal bound | periodic bound | normal floating+fluid | periodic floating+fluid]
//
// and every array is sized to the same capacity, a multiple of [Granularity].
// Capacity only grows at step boundaries through [Store.EnsureCapacity];
// a failed resize leaves all arrays untouched.
package particles
