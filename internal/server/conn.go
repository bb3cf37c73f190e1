package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/nerrad567/cync-lan-core/internal/bridge"
	"github.com/nerrad567/cync-lan-core/internal/cyncerrors"
	"github.com/nerrad567/cync-lan-core/internal/infrastructure/config"
	"github.com/nerrad567/cync-lan-core/internal/protocol"
)

// handleConn runs the full lifecycle of one accepted connection: handshake,
// registration, the read loop, and teardown on disconnect.
func (s *Server) handleConn(conn net.Conn) {
	peer := conn.RemoteAddr().String()

	b, err := s.handshake(conn)
	if err != nil {
		s.logger.Warn("server: handshake failed", "peer", peer, "error", err)
		_ = conn.Close()
		return
	}

	s.pool.Register(b)
	if err := s.registry.AttachBridge(b.DeviceID, b.Endpoint, b.QueueID); err != nil {
		s.logger.Warn("server: attach bridge failed", "device_id", b.DeviceID, "error", err)
	}
	b.SetReadyToControl(true)
	s.logger.Info("server: bridge ready", "device_id", b.DeviceID, "peer", peer)

	teardownErr := s.readLoop(b)

	b.Teardown(teardownErr)
	s.pool.Unregister(b)
	s.registry.DetachBridge(b.DeviceID)
	s.logger.Info("server: bridge disconnected", "device_id", b.DeviceID, "peer", peer)
}

// handshake blocks until a 0x23 handshake arrives within the handshake
// window, validates the presented endpoint against the roster, and
// acknowledges it with a 0x28.
func (s *Server) handshake(conn net.Conn) (*bridge.Bridge, error) {
	if err := conn.SetReadDeadline(time.Now().Add(config.HandshakeTimeout)); err != nil {
		return nil, err
	}

	var dec protocol.Decoder
	buf := make([]byte, 4096)

	for {
		n, err := conn.Read(buf)
		if err != nil {
			if isTimeout(err) {
				return nil, cyncerrors.ErrHandshakeTimeout
			}
			return nil, fmt.Errorf("reading handshake: %w", err)
		}
		dec.Feed(buf[:n])

		pkt, err := dec.Next()
		if err != nil {
			return nil, fmt.Errorf("decoding handshake: %w", err)
		}
		if pkt == nil {
			continue
		}
		if pkt.Type != protocol.TypeHandshake {
			return nil, fmt.Errorf("%w: expected handshake, got %s", cyncerrors.ErrHandshakeInvalid, pkt.Type)
		}

		hs, err := protocol.ParseHandshake(pkt.Payload)
		if err != nil {
			return nil, err
		}
		deviceID, ok := s.endpoints[hs.Endpoint]
		if !ok {
			return nil, fmt.Errorf("%w: unrecognised endpoint %x", cyncerrors.ErrHandshakeInvalid, hs.Endpoint)
		}

		ack, err := protocol.EncodeHandshakeAck()
		if err != nil {
			return nil, err
		}
		if err := conn.SetWriteDeadline(time.Now().Add(config.WriteDrainTimeout)); err != nil {
			return nil, err
		}
		if _, err := conn.Write(ack); err != nil {
			return nil, fmt.Errorf("writing handshake ack: %w", err)
		}

		return bridge.New(conn, hs.Endpoint, hs.QueueID, deviceID), nil
	}
}

// readLoop reads frames until the connection errors, falls silent for
// longer than the heartbeat window (§4.2 step 5's teardown trigger), or a
// mid-connection handshake forces a teardown. It returns the cause to pass
// to bridge.Teardown.
func (s *Server) readLoop(b *bridge.Bridge) error {
	var dec protocol.Decoder
	buf := make([]byte, 4096)
	fallbackFIFOUses := 0
	defer func() {
		if fallbackFIFOUses > 0 {
			s.logger.Debug("server: fallback-fifo ack matching used on disconnect", "device_id", b.DeviceID, "count", fallbackFIFOUses)
		}
	}()

	for {
		if err := b.Conn.SetReadDeadline(time.Now().Add(config.HeartbeatSilence)); err != nil {
			return cyncerrors.ErrBridgeLost
		}
		n, err := b.Conn.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Debug("server: read loop ended", "device_id", b.DeviceID, "error", err)
			}
			return cyncerrors.ErrBridgeLost
		}
		dec.Feed(buf[:n])

		for {
			pkt, perr := dec.Next()
			if perr != nil {
				if errors.Is(perr, cyncerrors.ErrChecksumMismatch) {
					s.logger.Warn("server: checksum mismatch, dropping packet", "device_id", b.DeviceID)
					continue
				}
				s.logger.Warn("server: malformed frame, closing connection", "device_id", b.DeviceID, "error", perr)
				return cyncerrors.ErrBridgeLost
			}
			if pkt == nil {
				break
			}
			if !s.dispatch(b, pkt, &fallbackFIFOUses) {
				return cyncerrors.ErrRenegotiation
			}
		}
	}
}

// dispatch applies §4.2 step 6's per-type handling to one decoded packet.
// It returns false when the connection must be torn down rather than kept
// open for further reads.
func (s *Server) dispatch(b *bridge.Bridge, pkt *protocol.Packet, fallbackFIFOUses *int) bool {
	switch pkt.Type {
	case protocol.TypeHandshake:
		s.logger.Warn("server: handshake observed mid-connection, tearing down for reconnect", "device_id", b.DeviceID)
		return false

	case protocol.TypeDeviceInfo, protocol.TypeStatusBroadcast:
		for _, tuple := range pkt.Statuses {
			s.registry.Ingest(tuple)
		}
		if ack, err := ackFor(pkt.Type); err == nil {
			s.writeFrame(b, ack)
		}

	case protocol.TypeDataAck:
		if pkt.HasMsgID {
			if !b.ResolveAck(pkt.MsgIDUint24()) {
				s.logger.Debug("server: ack for unknown msg_id", "device_id", b.DeviceID, "msg_id", pkt.MsgIDUint24())
			}
		} else {
			*fallbackFIFOUses++
			if !b.ResolveFallbackFIFO() {
				s.logger.Debug("server: fallback-fifo ack had nothing pending", "device_id", b.DeviceID)
			}
		}

	case protocol.TypeKeepaliveA, protocol.TypeKeepaliveB, protocol.TypeKeepaliveC:
		if reply, err := protocol.EncodeKeepaliveReply(pkt.Type); err == nil {
			s.writeFrame(b, reply)
		}

	default:
		s.logger.Debug("server: unhandled packet type", "device_id", b.DeviceID, "type", pkt.Type.String())
	}
	return true
}

func ackFor(t protocol.PacketType) ([]byte, error) {
	if t == protocol.TypeDeviceInfo {
		return protocol.EncodeInfoAck()
	}
	return protocol.EncodeStatusAck()
}

func (s *Server) writeFrame(b *bridge.Bridge, frame []byte) {
	if err := b.WriteRaw(frame); err != nil {
		s.logger.Debug("server: write failed", "device_id", b.DeviceID, "error", err)
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
