// Package protocol implements the vendor's binary framed protocol as a set
// of pure functions: frame headers, the 0x7E...checksum...0x7E inner
// envelope, packet type dispatch, status-tuple decoding and per-capability
// command encoders. Nothing in this package touches a socket; §4.2 wires it
// to a transport.
package protocol
