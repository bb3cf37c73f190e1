package server

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nerrad567/cync-lan-core/internal/bridge"
	"github.com/nerrad567/cync-lan-core/internal/bridgepool"
	"github.com/nerrad567/cync-lan-core/internal/device"
	"github.com/nerrad567/cync-lan-core/internal/infrastructure/config"
	"github.com/nerrad567/cync-lan-core/internal/protocol"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	registry := device.NewRegistry()
	pool := bridgepool.New()
	return New(config.TCPConfig{}, config.TLSConfig{}, registry, pool, nil)
}

func TestDispatch_MidConnectionHandshakeSignalsTeardown(t *testing.T) {
	s := newTestServer(t)

	deviceConn, _ := net.Pipe()
	defer deviceConn.Close()
	b := bridge.New(deviceConn, [4]byte{1, 2, 3, 4}, [5]byte{9, 9, 9, 9, 9}, 9)

	fallbackFIFOUses := 0
	pkt := &protocol.Packet{Type: protocol.TypeHandshake, Payload: make([]byte, 15)}

	keepReading := s.dispatch(b, pkt, &fallbackFIFOUses)

	assert.False(t, keepReading, "a handshake observed on an already-established connection must force teardown")
}

func TestDispatch_KnownTypesKeepReading(t *testing.T) {
	s := newTestServer(t)

	deviceConn, peerConn := net.Pipe()
	defer deviceConn.Close()
	defer peerConn.Close()
	b := bridge.New(deviceConn, [4]byte{1, 2, 3, 4}, [5]byte{9, 9, 9, 9, 9}, 9)

	go func() {
		buf := make([]byte, 64)
		_, _ = peerConn.Read(buf)
	}()

	fallbackFIFOUses := 0
	pkt := &protocol.Packet{Type: protocol.TypeKeepaliveA}

	keepReading := s.dispatch(b, pkt, &fallbackFIFOUses)

	assert.True(t, keepReading)
}
