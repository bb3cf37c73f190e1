// Package server runs the device-facing TLS listener: it accepts bridge
// connections, performs the handshake, and dispatches every subsequent
// frame to the device registry, the ACK correlator, or a keepalive reply
// (§4.2).
package server
