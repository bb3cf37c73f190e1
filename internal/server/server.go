package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"

	"github.com/nerrad567/cync-lan-core/internal/bridgepool"
	"github.com/nerrad567/cync-lan-core/internal/device"
	"github.com/nerrad567/cync-lan-core/internal/infrastructure/config"
)

// Logger is the logging interface the server and its connections use.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Server accepts bridge connections on the device-facing TLS listener and
// runs one connection handler per accepted socket (§4.2).
type Server struct {
	tcpCfg    config.TCPConfig
	tlsCfg    config.TLSConfig
	registry  *device.Registry
	pool      *bridgepool.Pool
	endpoints map[[4]byte]uint8 // endpoint -> expected device_id, from the roster
	logger    Logger

	connHandler func(net.Conn)

	sem chan struct{}
	wg  sync.WaitGroup

	mu   sync.Mutex
	addr net.Addr
}

// New creates a Server. Call Run to start accepting connections.
func New(tcpCfg config.TCPConfig, tlsCfg config.TLSConfig, registry *device.Registry, pool *bridgepool.Pool, endpoints map[[4]byte]uint8) *Server {
	maxConn := tcpCfg.MaxConnections
	if maxConn <= 0 {
		maxConn = 256
	}
	s := &Server{
		tcpCfg:    tcpCfg,
		tlsCfg:    tlsCfg,
		registry:  registry,
		pool:      pool,
		endpoints: endpoints,
		logger:    noopLogger{},
		sem:       make(chan struct{}, maxConn),
	}
	s.connHandler = s.handleConn
	return s
}

// SetLogger installs a logger; the zero value is a no-op.
func (s *Server) SetLogger(logger Logger) {
	s.logger = logger
}

// SetConnHandler overrides the per-connection handler run for every
// accepted socket. The default terminates the protocol locally
// (handleConn); relay mode (§4.6) installs relay.HandleConn instead so
// accepted connections are forwarded to the vendor cloud rather than
// handled in place.
func (s *Server) SetConnHandler(h func(net.Conn)) {
	s.connHandler = h
}

// Addr returns the listener's bound address, or nil before Run starts
// listening. Used by tests that bind to an ephemeral port.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Run loads the server's TLS identity, starts listening, and accepts
// connections until ctx is cancelled. It blocks until every accepted
// connection has finished tearing down.
func (s *Server) Run(ctx context.Context) error {
	cert, err := tls.LoadX509KeyPair(s.tlsCfg.CertFile, s.tlsCfg.KeyFile)
	if err != nil {
		return fmt.Errorf("loading server certificate: %w", err)
	}
	tlsConfig := &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}

	addr := fmt.Sprintf("%s:%d", s.tcpCfg.ListenHost, s.tcpCfg.ListenPort)
	ln, err := tls.Listen("tcp", addr, tlsConfig)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.logger.Info("server: listening", "addr", addr, "max_connections", cap(s.sem))

	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.wg.Wait()
				return nil
			default:
				s.logger.Warn("server: accept failed", "error", err)
				continue
			}
		}

		select {
		case s.sem <- struct{}{}:
		default:
			s.logger.Warn("server: connection limit reached, rejecting", "peer", conn.RemoteAddr())
			_ = conn.Close()
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() { <-s.sem }()
			s.connHandler(conn)
		}()
	}
}
