package relay

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/cync-lan-core/internal/bridge"
	"github.com/nerrad567/cync-lan-core/internal/bridgepool"
	"github.com/nerrad567/cync-lan-core/internal/device"
	"github.com/nerrad567/cync-lan-core/internal/infrastructure/config"
	"github.com/nerrad567/cync-lan-core/internal/protocol"
)

// Logger is the logging interface the relay uses.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Relay handles accepted device connections by transparently forwarding
// them to the vendor cloud endpoint instead of terminating the protocol
// locally (§4.6).
type Relay struct {
	cfg         config.CloudRelayConfig
	registry    *device.Registry
	pool        *bridgepool.Pool
	endpoints   map[[4]byte]uint8 // endpoint -> expected device_id, from the roster
	logger      Logger
	injectPaths InjectionPaths
}

// New creates a Relay. Call HandleConn per accepted device connection.
func New(cfg config.CloudRelayConfig, registry *device.Registry, pool *bridgepool.Pool, endpoints map[[4]byte]uint8) *Relay {
	return &Relay{
		cfg:         cfg,
		registry:    registry,
		pool:        pool,
		endpoints:   endpoints,
		logger:      noopLogger{},
		injectPaths: DefaultInjectionPaths(),
	}
}

// SetLogger installs a logger; the zero value is a no-op.
func (r *Relay) SetLogger(logger Logger) {
	r.logger = logger
}

// SetInjectionPaths overrides the default /tmp injection file locations;
// tests use this to point at a scratch directory.
func (r *Relay) SetInjectionPaths(paths InjectionPaths) {
	r.injectPaths = paths
}

// relayState tracks the per-connection bookkeeping the two forwarder
// goroutines and the injection watcher share: the bridge record created
// once a handshake is observed flowing device->cloud, and a malformed-
// packet counter (§4.6 "counted").
type relayState struct {
	deviceConn net.Conn
	closeConns func()

	mu       sync.Mutex
	bridge   *bridge.Bridge
	deviceID byte

	malformed atomic.Uint64
}

func newRelayState(deviceConn net.Conn, closeConns func()) *relayState {
	return &relayState{deviceConn: deviceConn, closeConns: closeConns}
}

func (s *relayState) setBridge(b *bridge.Bridge, deviceID byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bridge = b
	s.deviceID = deviceID
}

func (s *relayState) hasBridge() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bridge != nil
}

// identity returns the device_id and queue_id learned from the relayed
// handshake, used by the injection watcher to address injected frames.
func (s *relayState) identity() (deviceID byte, queueID [5]byte, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bridge == nil {
		return 0, [5]byte{}, false
	}
	return s.deviceID, s.bridge.QueueID, true
}

func (s *relayState) bridgeInfo() (*bridge.Bridge, byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bridge == nil {
		return nil, 0, false
	}
	return s.bridge, s.deviceID, true
}

// HandleConn runs the full lifecycle of one relayed device connection: dial
// the cloud endpoint, forward both directions until either side closes, and
// unregister any bridge that was observed.
func (r *Relay) HandleConn(conn net.Conn) {
	peer := conn.RemoteAddr().String()
	r.logger.Info("relay: accepted device connection", "peer", peer)
	defer conn.Close()

	cloudConn, err := r.dialCloud()
	if err != nil {
		r.logger.Warn("relay: dialing cloud endpoint failed", "peer", peer, "error", err)
		return
	}
	defer cloudConn.Close()

	if r.cfg.DisableSSLVerification {
		r.logger.Warn("relay: TLS certificate verification disabled for cloud connection", "peer", peer, "cloud_host", r.cfg.CloudHost)
	}

	state := newRelayState(conn, func() {
		_ = conn.Close()
		_ = cloudConn.Close()
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var eg errgroup.Group
	eg.Go(func() error {
		defer cancel()
		return r.forward(conn, cloudConn, true, state)
	})
	eg.Go(func() error {
		defer cancel()
		return r.forward(cloudConn, conn, false, state)
	})
	eg.Go(func() error {
		r.watchInjection(ctx, conn, state)
		return nil
	})
	_ = eg.Wait()

	if b, deviceID, ok := state.bridgeInfo(); ok {
		r.pool.Unregister(b)
		r.registry.DetachBridge(deviceID)
		r.logger.Info("relay: device disconnected", "device_id", deviceID, "peer", peer, "malformed_packets", state.malformed.Load())
	}
}

func (r *Relay) dialCloud() (net.Conn, error) {
	addr := fmt.Sprintf("%s:%d", r.cfg.CloudHost, r.cfg.CloudPort)
	tlsConf := &tls.Config{InsecureSkipVerify: r.cfg.DisableSSLVerification}
	return tls.Dial("tcp", addr, tlsConf)
}

// forward copies bytes from src to dst in TCP order with no batching delay
// (§4.6's forwarding invariants), decoding packets inline from whatever was
// just written for side effects only; the decode never gates the write.
func (r *Relay) forward(src, dst net.Conn, fromDevice bool, state *relayState) error {
	direction := "cloud->device"
	if fromDevice {
		direction = "device->cloud"
	}

	var dec protocol.Decoder
	buf := make([]byte, 4096)
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if _, err := dst.Write(chunk); err != nil {
				return fmt.Errorf("relay: %s write failed: %w", direction, err)
			}
			dec.Feed(chunk)
			r.drainPackets(&dec, fromDevice, state, direction)
		}
		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				r.logger.Debug("relay: forward ended", "direction", direction, "error", readErr)
			}
			return readErr
		}
	}
}

// drainPackets decodes every full packet currently buffered. A decode
// failure does not affect forwarding (the bytes were already written): it
// is counted and the decoder is reset so one corrupt packet cannot wedge
// decoding of everything that follows it.
func (r *Relay) drainPackets(dec *protocol.Decoder, fromDevice bool, state *relayState, direction string) {
	for {
		pkt, err := dec.Next()
		if err != nil {
			state.malformed.Add(1)
			r.logger.Debug("relay: packet decode failed, forwarded as raw bytes", "direction", direction, "error", err)
			*dec = protocol.Decoder{}
			return
		}
		if pkt == nil {
			return
		}
		r.handlePacket(pkt, fromDevice, state)
	}
}

// handlePacket applies the relay's inline side effects (§4.6): learning the
// bridge identity from a relayed handshake, and feeding decoded status
// tuples into the model from either direction.
func (r *Relay) handlePacket(pkt *protocol.Packet, fromDevice bool, state *relayState) {
	switch pkt.Type {
	case protocol.TypeHandshake:
		if !fromDevice {
			return
		}
		if state.hasBridge() {
			_, deviceID, _ := state.bridgeInfo()
			r.logger.Warn("relay: handshake observed mid-connection, forcing reconnect", "device_id", deviceID)
			state.closeConns()
			return
		}
		hs, err := protocol.ParseHandshake(pkt.Payload)
		if err != nil {
			r.logger.Debug("relay: relayed handshake decode failed", "error", err)
			return
		}
		deviceID, ok := r.endpoints[hs.Endpoint]
		if !ok {
			r.logger.Warn("relay: unrecognised endpoint in relayed handshake", "endpoint", hs.Endpoint)
			return
		}
		b := bridge.New(state.deviceConn, hs.Endpoint, hs.QueueID, deviceID)
		b.Relay = true
		r.pool.Register(b)
		if err := r.registry.AttachBridge(deviceID, hs.Endpoint, hs.QueueID); err != nil {
			r.logger.Warn("relay: attach bridge failed", "device_id", deviceID, "error", err)
		}
		state.setBridge(b, deviceID)
		r.logger.Info("relay: bridge registered", "device_id", deviceID, "endpoint", hs.Endpoint)

	case protocol.TypeDeviceInfo, protocol.TypeStatusBroadcast:
		for _, tuple := range pkt.Statuses {
			r.registry.Ingest(tuple)
		}
	}
}
