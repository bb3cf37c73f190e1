package protocol

import (
	"fmt"

	"github.com/nerrad567/cync-lan-core/internal/cyncerrors"
)

// Handshake (0x23) payload layout: the bridge's endpoint is carried at
// bytes 6..10, its queue_id (the same one later addresses commands through
// this bridge, §9) immediately follows at bytes 10..15; everything after
// is an opaque auth token the server does not validate (client certificate
// validation is off per §6).
const (
	endpointOffset = 6
	endpointLen    = 4
	hsQueueIDOffset = endpointOffset + endpointLen
	hsQueueIDLen    = 5
)

// EndpointLen is exported for callers sizing endpoint buffers.
const EndpointLen = endpointLen

// Handshake holds the parsed fields of a 0x23 packet.
type Handshake struct {
	Endpoint [EndpointLen]byte
	QueueID  [hsQueueIDLen]byte
	Token    []byte
}

// ParseHandshake extracts the endpoint, queue_id and trailing auth token
// from a 0x23 payload.
func ParseHandshake(payload []byte) (*Handshake, error) {
	if len(payload) < hsQueueIDOffset+hsQueueIDLen {
		return nil, fmt.Errorf("%w: handshake payload too short", cyncerrors.ErrHandshakeInvalid)
	}
	h := &Handshake{}
	copy(h.Endpoint[:], payload[endpointOffset:endpointOffset+endpointLen])
	copy(h.QueueID[:], payload[hsQueueIDOffset:hsQueueIDOffset+hsQueueIDLen])
	h.Token = append([]byte(nil), payload[hsQueueIDOffset+hsQueueIDLen:]...)
	return h, nil
}

// EncodeHandshakeAck builds the fixed short 0x28 acknowledgment.
func EncodeHandshakeAck() ([]byte, error) {
	return EncodeFrame(TypeHandshakeAck, []byte{0x01})
}

// EncodeInfoAck builds the 0x48 acknowledgment of a 0x43 device-info
// packet.
func EncodeInfoAck() ([]byte, error) {
	return EncodeFrame(TypeInfoAck, []byte{0x01})
}

// EncodeStatusAck builds the 0x88 acknowledgment of a 0x83
// status-broadcast packet.
func EncodeStatusAck() ([]byte, error) {
	return EncodeFrame(TypeStatusAck, []byte{0x01})
}

// EncodeKeepaliveReply builds the matching keepalive reply for an
// observed keepalive type, per §4.2 step 5.
func EncodeKeepaliveReply(t PacketType) ([]byte, error) {
	switch t {
	case TypeKeepaliveA, TypeKeepaliveB, TypeKeepaliveC:
		return EncodeFrame(t, nil)
	default:
		return nil, fmt.Errorf("%w: not a keepalive type %s", cyncerrors.ErrMalformedFrame, t)
	}
}
