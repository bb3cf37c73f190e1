// Package pipeline implements the command pipeline and ACK correlator
// (§4.3): it turns a broker-originated (target, capability, value) command
// into a wire frame on a selected bridge, applies the per-capability
// coalesce-vs-reject concurrency policy, and resolves the pending flag on
// ACK or timeout.
package pipeline
