// Package device holds the authoritative in-memory model of mesh devices
// and groups: canonical state, the online/offline debounce, the
// pending_command gate that protects optimistic updates from stale mesh
// reports, and group aggregate recomputation.
//
// The model has no persistence layer: all state is reconstructed from the
// startup roster and from device reports, per the core's non-goals. It is
// protected by a single mutex (Registry.mu); there is no per-device
// locking. Mutations for one device are linearizable; across devices they
// are serializable in mutex-acquisition order.
package device
