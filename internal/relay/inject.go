package relay

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/cync-lan-core/internal/protocol"
)

// injectionPollInterval is how often the watcher checks for the two
// well-known injection files (§4.6 "debug surface only").
const injectionPollInterval = 200 * time.Millisecond

// checksumRecomputeMarker is the sentinel byte a raw-bytes injection file
// places where the checksum would go to ask the relay to compute it instead
// of supplying one (§4.6 "checksum is recomputed if the last byte before
// the closing 0x7E is a marker").
const checksumRecomputeMarker byte = 0xFF

// InjectionPaths locates the two files the relay watches for debug
// injection (§6).
type InjectionPaths struct {
	CommandFile  string
	RawBytesFile string
}

// DefaultInjectionPaths returns the spec's well-known temp-directory paths.
func DefaultInjectionPaths() InjectionPaths {
	return InjectionPaths{
		CommandFile:  filepath.Join(os.TempDir(), "cync_inject_command.txt"),
		RawBytesFile: filepath.Join(os.TempDir(), "cync_inject_raw_bytes.txt"),
	}
}

// watchInjection polls both injection files until ctx is cancelled.
func (r *Relay) watchInjection(ctx context.Context, deviceConn net.Conn, state *relayState) {
	ticker := time.NewTicker(injectionPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.checkCommandTrigger(deviceConn, state)
			r.checkRawBytesTrigger(deviceConn)
		}
	}
}

// checkCommandTrigger consumes a parsed-mode trigger file: its content is
// "smart" or "traditional", mapped onto the SET_MODE command (§4.1's
// switch-only prefix) addressed to the device this connection's handshake
// identified.
func (r *Relay) checkCommandTrigger(deviceConn net.Conn, state *relayState) {
	content, ok := consumeFile(r.injectPaths.CommandFile)
	if !ok {
		return
	}

	mode := strings.ToLower(strings.TrimSpace(string(content)))
	var modeByte byte
	switch mode {
	case "smart":
		modeByte = 0x01
	case "traditional":
		modeByte = 0x00
	default:
		r.logger.Warn("relay: unrecognised injection mode, dropping", "mode", mode)
		return
	}

	deviceID, queueID, ok := state.identity()
	if !ok {
		r.logger.Warn("relay: injection command arrived before a handshake was observed, dropping")
		return
	}

	inner := protocol.EncodeSetMode(deviceID, modeByte)
	frame, err := protocol.EncodeCommand(uint16(deviceID), queueID, [3]byte{}, inner)
	if err != nil {
		r.logger.Warn("relay: encoding injected mode command failed", "error", err)
		return
	}
	correlationID := uuid.New().String()
	if _, err := deviceConn.Write(frame); err != nil {
		r.logger.Warn("relay: writing injected mode command failed", "correlation_id", correlationID, "error", err)
		return
	}
	r.logger.Info("relay: injected mode command", "correlation_id", correlationID, "device_id", deviceID, "mode", mode)
}

// checkRawBytesTrigger consumes a raw-packet trigger file: whitespace
// separated hex bytes, written verbatim to the device socket once any
// checksum-recompute marker has been resolved.
func (r *Relay) checkRawBytesTrigger(deviceConn net.Conn) {
	content, ok := consumeFile(r.injectPaths.RawBytesFile)
	if !ok {
		return
	}

	raw, err := parseHexBytes(content)
	if err != nil {
		r.logger.Warn("relay: invalid raw-bytes injection payload, dropping", "error", err)
		return
	}
	raw = fixChecksumMarker(raw)

	correlationID := uuid.New().String()
	if _, err := deviceConn.Write(raw); err != nil {
		r.logger.Warn("relay: writing injected raw packet failed", "correlation_id", correlationID, "error", err)
		return
	}
	r.logger.Info("relay: injected raw packet", "correlation_id", correlationID, "bytes", len(raw))
}

// consumeFile implements the spec's atomic-read-and-delete: the file is
// renamed out of the way before being read, so a second poll tick racing a
// slow write never sees it twice (§4.6 "at-most-once per file appearance").
func consumeFile(path string) ([]byte, bool) {
	staging := path + ".consuming"
	if err := os.Rename(path, staging); err != nil {
		return nil, false
	}
	data, err := os.ReadFile(staging)
	_ = os.Remove(staging)
	if err != nil {
		return nil, false
	}
	return data, true
}

func parseHexBytes(content []byte) ([]byte, error) {
	fields := strings.Fields(string(content))
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty payload")
	}
	out := make([]byte, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseUint(f, 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid hex byte %q: %w", f, err)
		}
		out = append(out, byte(v))
	}
	return out, nil
}

// fixChecksumMarker rewrites the checksum byte of the envelope spanning the
// first and last 0x7E in raw if it was left as checksumRecomputeMarker.
func fixChecksumMarker(raw []byte) []byte {
	first := bytes.IndexByte(raw, 0x7E)
	last := bytes.LastIndexByte(raw, 0x7E)
	if first < 0 || last <= first+1 {
		return raw
	}
	checksumIdx := last - 1
	if checksumIdx <= first || raw[checksumIdx] != checksumRecomputeMarker {
		return raw
	}
	inner := raw[first+1 : checksumIdx]
	raw[checksumIdx] = protocol.Checksum(inner)
	return raw
}
