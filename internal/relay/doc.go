// Package relay implements the optional transparent MITM relay mode (§4.6):
// for each accepted device connection it opens a TLS client to the real
// vendor endpoint and forwards bytes in both directions unmodified, while
// decoding packets inline (best-effort) to feed the device registry and the
// MQTT bridge the same way the local handler does. Relay bridges never
// originate commands; the command pipeline skips them when selecting.
package relay
