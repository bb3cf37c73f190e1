package server

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/cync-lan-core/internal/bridgepool"
	"github.com/nerrad567/cync-lan-core/internal/device"
	"github.com/nerrad567/cync-lan-core/internal/infrastructure/config"
	"github.com/nerrad567/cync-lan-core/internal/protocol"
	"github.com/stretchr/testify/require"
)

func writeSelfSignedCert(t *testing.T, dir string) (certPath, keyPath string) {
	t.Helper()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "cync-lan-core test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	require.NoError(t, err)

	certPath = filepath.Join(dir, "cert.pem")
	keyPath = filepath.Join(dir, "key.pem")

	certOut, err := os.Create(certPath)
	require.NoError(t, err)
	require.NoError(t, pem.Encode(certOut, &pem.Block{Type: "CERTIFICATE", Bytes: der}))
	require.NoError(t, certOut.Close())

	keyBytes, err := x509.MarshalECPrivateKey(priv)
	require.NoError(t, err)
	keyOut, err := os.Create(keyPath)
	require.NoError(t, err)
	require.NoError(t, pem.Encode(keyOut, &pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes}))
	require.NoError(t, keyOut.Close())

	return certPath, keyPath
}

func buildHandshakePayload(endpoint [4]byte, queueID [5]byte, token []byte) []byte {
	payload := make([]byte, 0, 15+len(token))
	payload = append(payload, 0, 0, 0, 0, 0, 0)
	payload = append(payload, endpoint[:]...)
	payload = append(payload, queueID[:]...)
	payload = append(payload, token...)
	return payload
}

type testServer struct {
	registry *device.Registry
	pool     *bridgepool.Pool
	srv      *Server
}

func startTestServer(t *testing.T, endpoints map[[4]byte]uint8) *testServer {
	t.Helper()
	certPath, keyPath := writeSelfSignedCert(t, t.TempDir())

	reg := device.NewRegistry()
	reg.AddDevice(&device.Device{ID: 9, Name: "bridge-9", Kind: device.KindPlug, Capabilities: []device.Capability{device.CapOnOff}})
	pool := bridgepool.New()

	srv := New(
		config.TCPConfig{ListenHost: "127.0.0.1", ListenPort: 0, MaxConnections: 2},
		config.TLSConfig{CertFile: certPath, KeyFile: keyPath},
		reg, pool, endpoints,
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, func() bool { return srv.Addr() != nil }, time.Second, 5*time.Millisecond)

	return &testServer{registry: reg, pool: pool, srv: srv}
}

func dialTestServer(t *testing.T, addr net.Addr) *tls.Conn {
	t.Helper()
	conn, err := tls.Dial("tcp", addr.String(), &tls.Config{InsecureSkipVerify: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHandshake_AcceptsKnownEndpoint(t *testing.T) {
	endpoint := [4]byte{0x60, 0xb1, 0x7c, 0x4a}
	queueID := [5]byte{0x1b, 0xdc, 0xda, 0x3e, 0x00}
	ts := startTestServer(t, map[[4]byte]uint8{endpoint: 9})

	conn := dialTestServer(t, ts.srv.Addr())

	frame, err := protocol.EncodeFrame(protocol.TypeHandshake, buildHandshakePayload(endpoint, queueID, []byte("tok")))
	require.NoError(t, err)
	_, err = conn.Write(frame)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 32)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	require.Equal(t, byte(protocol.TypeHandshakeAck), buf[0])
	_ = n

	require.Eventually(t, func() bool {
		d, ok := ts.registry.Device(9)
		return ok && d.IsBridge
	}, time.Second, 5*time.Millisecond)

	_, ok := ts.pool.Get(endpoint)
	require.True(t, ok)
}

func TestHandshake_RejectsUnknownEndpoint(t *testing.T) {
	ts := startTestServer(t, map[[4]byte]uint8{})
	conn := dialTestServer(t, ts.srv.Addr())

	frame, err := protocol.EncodeFrame(protocol.TypeHandshake, buildHandshakePayload([4]byte{1, 2, 3, 4}, [5]byte{}, nil))
	require.NoError(t, err)
	_, err = conn.Write(frame)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 32)
	_, err = conn.Read(buf)
	require.Error(t, err, "server must close the connection on an unrecognised endpoint")
}

func TestSetConnHandler_OverridesDefaultRouting(t *testing.T) {
	certPath, keyPath := writeSelfSignedCert(t, t.TempDir())
	reg := device.NewRegistry()
	pool := bridgepool.New()

	srv := New(
		config.TCPConfig{ListenHost: "127.0.0.1", ListenPort: 0, MaxConnections: 2},
		config.TLSConfig{CertFile: certPath, KeyFile: keyPath},
		reg, pool, map[[4]byte]uint8{},
	)

	seen := make(chan net.Addr, 1)
	srv.SetConnHandler(func(c net.Conn) {
		seen <- c.RemoteAddr()
		_ = c.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	t.Cleanup(func() { cancel(); <-done })

	require.Eventually(t, func() bool { return srv.Addr() != nil }, time.Second, 5*time.Millisecond)
	dialTestServer(t, srv.Addr())

	select {
	case <-seen:
	case <-time.After(2 * time.Second):
		t.Fatal("overridden connection handler was never invoked")
	}

	_, ok := reg.Device(1)
	require.False(t, ok, "the overridden handler must bypass the normal handshake path entirely")
}

func TestServer_RejectsOverConnectionLimit(t *testing.T) {
	endpoint := [4]byte{0x60, 0xb1, 0x7c, 0x4a}
	ts := startTestServer(t, map[[4]byte]uint8{endpoint: 9})

	var conns []*tls.Conn
	for i := 0; i < 3; i++ {
		conns = append(conns, dialTestServer(t, ts.srv.Addr()))
	}

	require.Eventually(t, func() bool {
		for _, c := range conns {
			require.NoError(t, c.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
			buf := make([]byte, 1)
			_, err := c.Read(buf)
			if err != nil {
				return true
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond, "the third connection should be rejected once MaxConnections=2 is reached")
}
