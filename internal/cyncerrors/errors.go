// Package cyncerrors declares the named error kinds carried on failed
// operations throughout cync-lan-core, checked with errors.Is and wrapped
// with fmt.Errorf("...: %w", ...) at each layer that adds context.
package cyncerrors

import "errors"

var (
	// ErrMalformedFrame indicates an invalid frame header or length; the
	// bridge connection is closed.
	ErrMalformedFrame = errors.New("cync-lan: malformed frame")

	// ErrChecksumMismatch indicates an inner-payload checksum failure; the
	// packet is dropped but the bridge stays connected.
	ErrChecksumMismatch = errors.New("cync-lan: checksum mismatch")

	// ErrHandshakeTimeout indicates no 0x23 handshake arrived within the
	// handshake window.
	ErrHandshakeTimeout = errors.New("cync-lan: handshake timeout")

	// ErrHandshakeInvalid indicates a malformed or unparsable handshake
	// packet.
	ErrHandshakeInvalid = errors.New("cync-lan: handshake invalid")

	// ErrBridgeLost indicates a bridge disconnected while callbacks were
	// still pending on it.
	ErrBridgeLost = errors.New("cync-lan: bridge lost")

	// ErrRenegotiation indicates a handshake-equivalent packet arrived on an
	// already-handshaken connection; the bridge is torn down rather than
	// silently re-keyed.
	ErrRenegotiation = errors.New("cync-lan: mid-connection renegotiation")

	// ErrShutdown indicates a callback was cancelled by process shutdown.
	ErrShutdown = errors.New("cync-lan: shutdown")

	// ErrNoBridgesAvailable indicates no bridge is ready_to_control.
	ErrNoBridgesAvailable = errors.New("cync-lan: no bridges available")

	// ErrUnknownTarget indicates a command referenced an unknown
	// device/group id.
	ErrUnknownTarget = errors.New("cync-lan: unknown target")

	// ErrBusy indicates a command was rejected because the target already
	// has a pending command and the capability's concurrency policy is
	// reject-not-coalesce.
	ErrBusy = errors.New("cync-lan: target busy")

	// ErrSuperseded indicates a prior pending callback was cancelled in
	// favour of a newer command for the same target.
	ErrSuperseded = errors.New("cync-lan: superseded")

	// ErrAckTimeout indicates the ACK deadline elapsed with no response.
	ErrAckTimeout = errors.New("cync-lan: ack timeout")

	// ErrMQTTDisconnected indicates publishes are being buffered because
	// the broker connection is down.
	ErrMQTTDisconnected = errors.New("cync-lan: mqtt disconnected")

	// ErrConfigInvalid indicates an unrecoverable startup configuration
	// error.
	ErrConfigInvalid = errors.New("cync-lan: config invalid")
)
