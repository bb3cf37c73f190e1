// Package bridge models one accepted TLS connection from a Wi-Fi bridge
// device: the write-serializing transport, the monotonic msg_id counter,
// and the pending-callback table that correlates an outbound command with
// its eventual 0x7B ACK or timeout (§3, §4.2, §4.3).
package bridge
