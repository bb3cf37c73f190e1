package maintenance

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/cync-lan-core/internal/bridge"
	"github.com/nerrad567/cync-lan-core/internal/bridgepool"
	"github.com/nerrad567/cync-lan-core/internal/device"
)

type fakeMQTT struct{ connected bool }

func (f fakeMQTT) IsConnected() bool { return f.connected }

func newReadyBridge(t *testing.T, endpoint [4]byte, deviceID byte) (*bridge.Bridge, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	b := bridge.New(server, endpoint, [5]byte{deviceID, deviceID, deviceID, deviceID, deviceID}, deviceID)
	b.SetReadyToControl(true)
	t.Cleanup(func() { server.Close(); client.Close() })
	return b, client
}

func TestRefreshMesh_SendsQueryToEachReadyBridge(t *testing.T) {
	pool := bridgepool.New()
	b1, c1 := newReadyBridge(t, [4]byte{1, 1, 1, 1}, 1)
	b2, c2 := newReadyBridge(t, [4]byte{2, 2, 2, 2}, 2)
	pool.Register(b1)
	pool.Register(b2)

	s := New(pool, device.NewRegistry(), fakeMQTT{connected: true})

	done := make(chan struct{})
	go func() {
		s.refreshMesh(context.Background())
		close(done)
	}()

	buf := make([]byte, 64)
	c1.SetReadDeadline(time.Now().Add(3 * time.Second))
	n1, err := c1.Read(buf)
	require.NoError(t, err)
	assert.Greater(t, n1, 0)

	c2.SetReadDeadline(time.Now().Add(3 * time.Second))
	n2, err := c2.Read(buf)
	require.NoError(t, err)
	assert.Greater(t, n2, 0)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("refreshMesh did not return")
	}

	assert.False(t, s.Stats().LastMeshRefresh.IsZero())
}

func TestRefreshMesh_EmptyPoolReturnsImmediately(t *testing.T) {
	s := New(bridgepool.New(), device.NewRegistry(), fakeMQTT{})

	done := make(chan struct{})
	go func() {
		s.refreshMesh(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("refreshMesh on an empty pool should return without delay")
	}
}

func TestSnapshot_AggregatesPoolAndMQTTState(t *testing.T) {
	pool := bridgepool.New()
	ready, _ := newReadyBridge(t, [4]byte{1, 1, 1, 1}, 1)
	pool.Register(ready)

	notReadyServer, notReadyClient := net.Pipe()
	t.Cleanup(func() { notReadyServer.Close(); notReadyClient.Close() })
	notReady := bridge.New(notReadyServer, [4]byte{2, 2, 2, 2}, [5]byte{2, 2, 2, 2, 2}, 2)
	pool.Register(notReady)

	s := New(pool, device.NewRegistry(), fakeMQTT{connected: true})

	snap := s.snapshot()
	assert.Equal(t, 2, snap.TotalBridges)
	assert.Equal(t, 1, snap.ReadyBridges)
	assert.Equal(t, 0, snap.PendingCommands)
	assert.True(t, snap.MQTTConnected)
}

func TestRequestMeshRefresh_TriggersOutOfCadenceRefresh(t *testing.T) {
	s := New(bridgepool.New(), device.NewRegistry(), fakeMQTT{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx)
	defer s.Stop()

	s.RequestMeshRefresh()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !s.Stats().LastMeshRefresh.IsZero() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("RequestMeshRefresh did not trigger a refresh within the deadline")
}

func TestRequestMeshRefresh_DoesNotBlockWhenAlreadyQueued(t *testing.T) {
	s := New(bridgepool.New(), device.NewRegistry(), fakeMQTT{})

	done := make(chan struct{})
	go func() {
		s.RequestMeshRefresh()
		s.RequestMeshRefresh()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RequestMeshRefresh blocked on a full buffer")
	}
}

func TestStop_IsIdempotent(t *testing.T) {
	s := New(bridgepool.New(), device.NewRegistry(), fakeMQTT{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx)
	assert.NotPanics(t, func() {
		s.Stop()
		s.Stop()
	})
}
