package protocol

import (
	"fmt"

	"github.com/nerrad567/cync-lan-core/internal/cyncerrors"
)

// Data-channel (0x73) payload layout, per §4.1's encoder contract:
//
//	byte 0:        target_id (device_id or group_id low byte; group ids
//	               carry their 0x8000+ high byte in bytes 1..2)
//	bytes 1..5:    reserved / target_id high bytes, zero for device targets
//	bytes 5..10:   queue_id (5 bytes)
//	bytes 10..13:  msg_id (3 bytes)
//	bytes 13..:    0x7E ... checksum ... 0x7E envelope wrapping inner_bytes
const (
	targetIDOffset  = 0
	queueIDOffset   = 5
	queueIDLen      = 5
	msgIDOffset     = 10
	msgIDLen        = 3
	envelopeOffset  = 13
	minDataPayload  = envelopeOffset + 3 // marker + checksum + marker, empty inner
)

// Packet is the decoder's tagged-union result: a fully parsed frame plus
// whatever type-specific fields apply.
type Packet struct {
	Type    PacketType
	Payload []byte

	HasMsgID bool
	MsgID    [msgIDLen]byte

	HasTargetID bool
	TargetID    uint16

	// Inner is the unwrapped 0x7E...0x7E envelope contents (0x73 only).
	Inner []byte

	// Statuses is the decoded status tuple list (0x43/0x83 only).
	Statuses []StatusTuple
}

// MsgIDUint24 returns MsgID as an unsigned integer for comparison and
// logging.
func (p *Packet) MsgIDUint24() uint32 {
	return uint32(p.MsgID[0])<<16 | uint32(p.MsgID[1])<<8 | uint32(p.MsgID[2])
}

// ParsePacket dispatches a raw (type, payload) pair into a Packet,
// decoding type-specific fields. Unknown types are returned as a bare
// Packet with only Type and Payload set; callers log and continue per
// §4.2 step 6.
func ParsePacket(t PacketType, payload []byte) (*Packet, error) {
	p := &Packet{Type: t, Payload: payload}

	switch t {
	case TypeDataChannel:
		if len(payload) < minDataPayload {
			return nil, fmt.Errorf("%w: data-channel payload too short (%d bytes)", cyncerrors.ErrMalformedFrame, len(payload))
		}
		p.HasTargetID = true
		p.TargetID = uint16(payload[targetIDOffset]) | uint16(payload[targetIDOffset+1])<<8
		copy(p.MsgID[:], payload[msgIDOffset:msgIDOffset+msgIDLen])
		p.HasMsgID = true

		inner, _, err := UnwrapEnvelope(payload[envelopeOffset:])
		if err != nil {
			// Checksum mismatches are returned to the caller (who
			// decides whether to drop-and-continue); malformed
			// envelopes propagate as-is.
			p.Inner = inner
			return p, err
		}
		p.Inner = inner

	case TypeDataAck:
		// The echoed msg_id sits at the same offset when the bridge
		// echoes a full data-channel frame back; some firmware
		// revisions echo a short frame. See the ack-matching open
		// question in the design notes: callers fall back to FIFO
		// matching when HasMsgID is false.
		if len(payload) >= msgIDOffset+msgIDLen {
			copy(p.MsgID[:], payload[msgIDOffset:msgIDOffset+msgIDLen])
			p.HasMsgID = true
		}

	case TypeDeviceInfo, TypeStatusBroadcast:
		tuples, err := DecodeStatusTuples(payload)
		if err != nil {
			return nil, err
		}
		p.Statuses = tuples
	}

	return p, nil
}

// EncodeCommand builds a 0x73 data-channel packet addressing targetID
// through queueID, stamping msgID and wrapping innerBytes in the checksum
// envelope.
func EncodeCommand(targetID uint16, queueID [queueIDLen]byte, msgID [msgIDLen]byte, innerBytes []byte) ([]byte, error) {
	envelope := WrapEnvelope(innerBytes)

	payload := make([]byte, envelopeOffset+len(envelope))
	payload[targetIDOffset] = byte(targetID)
	payload[targetIDOffset+1] = byte(targetID >> 8)
	copy(payload[queueIDOffset:queueIDOffset+queueIDLen], queueID[:])
	copy(payload[msgIDOffset:msgIDOffset+msgIDLen], msgID[:])
	copy(payload[envelopeOffset:], envelope)

	return EncodeFrame(TypeDataChannel, payload)
}
