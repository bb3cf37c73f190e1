package protocol

import (
	"bytes"
	"fmt"

	"github.com/nerrad567/cync-lan-core/internal/cyncerrors"
)

// envelopeSkip is the number of bytes immediately after the opening 0x7E
// marker that are excluded from the checksum sum.
const envelopeSkip = 6

// Checksum sums innerBytes[envelopeSkip:] modulo 256. innerBytes is the
// content between the opening and closing 0x7E markers, not including the
// checksum byte itself.
func Checksum(innerBytes []byte) byte {
	if len(innerBytes) <= envelopeSkip {
		return 0
	}
	var sum byte
	for _, b := range innerBytes[envelopeSkip:] {
		sum += b
	}
	return sum
}

// WrapEnvelope wraps innerBytes between 0x7E markers with a trailing
// checksum byte: 0x7E innerBytes... checksum 0x7E.
func WrapEnvelope(innerBytes []byte) []byte {
	cs := Checksum(innerBytes)
	out := make([]byte, 0, len(innerBytes)+3)
	out = append(out, 0x7E)
	out = append(out, innerBytes...)
	out = append(out, cs)
	out = append(out, 0x7E)
	return out
}

// UnwrapEnvelope locates the first and last 0x7E markers in buf and
// verifies the checksum byte between them. It returns the inner bytes
// (excluding markers and checksum) and the checksum byte found.
//
// A checksum mismatch returns cyncerrors.ErrChecksumMismatch along with
// the parsed inner bytes, so callers can count the failure without losing
// context; the caller drops the packet but keeps the connection open.
func UnwrapEnvelope(buf []byte) (inner []byte, checksum byte, err error) {
	s := bytes.IndexByte(buf, 0x7E)
	e := bytes.LastIndexByte(buf, 0x7E)
	if s < 0 || e < 0 || e <= s+1 {
		return nil, 0, fmt.Errorf("%w: no envelope markers", cyncerrors.ErrMalformedFrame)
	}

	inner = buf[s+1 : e-1]
	checksum = buf[e-1]
	want := Checksum(inner)
	if want != checksum {
		return inner, checksum, fmt.Errorf("%w: got 0x%02x want 0x%02x", cyncerrors.ErrChecksumMismatch, checksum, want)
	}
	return inner, checksum, nil
}
