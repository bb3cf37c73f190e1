package protocol

import (
	"bytes"
	"fmt"

	"github.com/nerrad567/cync-lan-core/internal/cyncerrors"
)

// HeaderSize is the fixed frame header: [type][0x00][0x00][len_hi][len_lo].
const HeaderSize = 5

// MaxPayload bounds the decoder against a runaway length field.
const MaxPayload = 4096

// PacketType identifies a frame's wire type.
type PacketType byte

const (
	TypeHandshake       PacketType = 0x23 // dev->srv
	TypeHandshakeAck    PacketType = 0x28 // srv->dev
	TypeDeviceInfo      PacketType = 0x43 // dev->srv
	TypeInfoAck         PacketType = 0x48 // srv->dev
	TypeDataChannel     PacketType = 0x73 // both
	TypeDataAck         PacketType = 0x7B // both (echoed)
	TypeKeepaliveA      PacketType = 0x78 // both
	TypeStatusBroadcast PacketType = 0x83 // dev->srv
	TypeStatusAck       PacketType = 0x88 // srv->dev
	TypeKeepaliveB      PacketType = 0xD3 // both
	TypeKeepaliveC      PacketType = 0xD8 // both
)

func (t PacketType) String() string {
	switch t {
	case TypeHandshake:
		return "handshake"
	case TypeHandshakeAck:
		return "handshake-ack"
	case TypeDeviceInfo:
		return "device-info"
	case TypeInfoAck:
		return "info-ack"
	case TypeDataChannel:
		return "data-channel"
	case TypeDataAck:
		return "data-ack"
	case TypeKeepaliveA, TypeKeepaliveB, TypeKeepaliveC:
		return "keepalive"
	case TypeStatusBroadcast:
		return "status-broadcast"
	case TypeStatusAck:
		return "status-ack"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(t))
	}
}

// EncodeFrame writes the 5-byte header plus payload for a packet of the
// given type.
func EncodeFrame(t PacketType, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("%w: payload %d exceeds max %d", cyncerrors.ErrMalformedFrame, len(payload), MaxPayload)
	}
	out := make([]byte, HeaderSize+len(payload))
	out[0] = byte(t)
	out[1] = 0x00
	out[2] = 0x00
	out[3] = byte(len(payload) >> 8)
	out[4] = byte(len(payload))
	copy(out[HeaderSize:], payload)
	return out, nil
}

// Decoder accumulates bytes from a stream and yields one full packet at a
// time. It is framing-safe across arbitrary TCP chunking: Feed may be
// called with any slice size, including partial headers or partial
// payloads.
type Decoder struct {
	buf bytes.Buffer
}

// Feed appends newly read bytes to the decoder's buffer.
func (d *Decoder) Feed(data []byte) {
	d.buf.Write(data)
}

// Next attempts to decode the next full packet from the buffered bytes.
// It returns (nil, nil) when more bytes are needed. A non-nil error may be
// cyncerrors.ErrMalformedFrame (caller must close the connection) or
// cyncerrors.ErrChecksumMismatch (caller drops the packet and continues);
// the returned *Packet is non-nil alongside the latter so callers can log
// what was dropped.
func (d *Decoder) Next() (*Packet, error) {
	raw := d.buf.Bytes()
	if len(raw) < HeaderSize {
		return nil, nil
	}

	length := int(raw[3])<<8 | int(raw[4])
	if length > MaxPayload {
		return nil, fmt.Errorf("%w: length %d exceeds max %d", cyncerrors.ErrMalformedFrame, length, MaxPayload)
	}
	if len(raw) < HeaderSize+length {
		return nil, nil
	}

	packetType := PacketType(raw[0])
	payload := make([]byte, length)
	copy(payload, raw[HeaderSize:HeaderSize+length])
	d.buf.Next(HeaderSize + length)

	return ParsePacket(packetType, payload)
}

// Buffered reports how many unconsumed bytes remain.
func (d *Decoder) Buffered() int {
	return d.buf.Len()
}
