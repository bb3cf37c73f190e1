package protocol

import (
	"fmt"

	"github.com/nerrad567/cync-lan-core/internal/cyncerrors"
)

// StatusTuple is one mesh member's reported status, decoded from a
// 0x43 (bulk) or 0x83 (broadcast) payload.
type StatusTuple struct {
	DeviceID   byte
	Present    bool // false means the device did not answer this round
	On         bool
	Brightness byte // 0-100
	ColorTemp  byte // 0-100
	RGB        [3]byte
}

// statusTupleSize is the fixed width of one encoded status tuple.
const statusTupleSize = 8

// DecodeStatusTuples parses a 0x43/0x83 payload: a one-byte tuple count
// followed by that many fixed-width tuples.
func DecodeStatusTuples(payload []byte) ([]StatusTuple, error) {
	if len(payload) < 1 {
		return nil, fmt.Errorf("%w: status payload empty", cyncerrors.ErrMalformedFrame)
	}
	count := int(payload[0])
	want := 1 + count*statusTupleSize
	if len(payload) < want {
		return nil, fmt.Errorf("%w: status payload declares %d tuples but has %d bytes", cyncerrors.ErrMalformedFrame, count, len(payload))
	}

	tuples := make([]StatusTuple, 0, count)
	for i := 0; i < count; i++ {
		off := 1 + i*statusTupleSize
		b := payload[off : off+statusTupleSize]
		tuples = append(tuples, StatusTuple{
			DeviceID:   b[0],
			Present:    b[1] != 0,
			On:         b[2] != 0,
			Brightness: b[3],
			ColorTemp:  b[4],
			RGB:        [3]byte{b[5], b[6], b[7]},
		})
	}
	return tuples, nil
}

// EncodeStatusTuples is the inverse of DecodeStatusTuples, used by tests.
func EncodeStatusTuples(tuples []StatusTuple) []byte {
	out := make([]byte, 1+len(tuples)*statusTupleSize)
	out[0] = byte(len(tuples))
	for i, t := range tuples {
		off := 1 + i*statusTupleSize
		out[off] = t.DeviceID
		if t.Present {
			out[off+1] = 1
		}
		if t.On {
			out[off+2] = 1
		}
		out[off+3] = t.Brightness
		out[off+4] = t.ColorTemp
		out[off+5], out[off+6], out[off+7] = t.RGB[0], t.RGB[1], t.RGB[2]
	}
	return out
}
