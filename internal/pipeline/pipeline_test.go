package pipeline

import (
	"net"
	"testing"
	"time"

	"github.com/nerrad567/cync-lan-core/internal/bridge"
	"github.com/nerrad567/cync-lan-core/internal/bridgepool"
	"github.com/nerrad567/cync-lan-core/internal/cyncerrors"
	"github.com/nerrad567/cync-lan-core/internal/device"
	"github.com/nerrad567/cync-lan-core/internal/protocol"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	registry *device.Registry
	pool     *bridgepool.Pool
	bridge   *bridge.Bridge
	client   net.Conn
	pipeline *Pipeline
}

func newFixture(t *testing.T) *testFixture {
	t.Helper()
	reg := device.NewRegistry()
	reg.AddDevice(&device.Device{ID: 1, Kind: device.KindRGBBulb, Capabilities: device.DefaultCapabilitiesForKind(device.KindRGBBulb)})
	reg.AddGroup(&device.Group{ID: device.GroupIDBase + 1, Members: []device.ID{1}})

	client, server := net.Pipe()
	t.Cleanup(func() { _ = client.Close() })
	b := bridge.New(server, [4]byte{1, 1, 1, 1}, [5]byte{}, 9)
	b.SetReadyToControl(true)

	go func() {
		buf := make([]byte, 256)
		for {
			if _, err := client.Read(buf); err != nil {
				return
			}
		}
	}()

	pool := bridgepool.New()
	pool.Register(b)

	return &testFixture{
		registry: reg,
		pool:     pool,
		bridge:   b,
		client:   client,
		pipeline: New(reg, pool),
	}
}

func TestSubmit_UnknownTargetRejected(t *testing.T) {
	f := newFixture(t)
	err := f.pipeline.Submit(Command{TargetID: 0xFF, Capability: device.CapOnOff, On: true})
	require.ErrorIs(t, err, cyncerrors.ErrUnknownTarget)
}

func TestSubmit_MissingCapabilityRejected(t *testing.T) {
	f := newFixture(t)
	err := f.pipeline.Submit(Command{TargetID: 1, Capability: device.CapFanSpeed})
	require.ErrorIs(t, err, cyncerrors.ErrUnknownTarget)
}

func TestSubmit_NoBridgesAvailable(t *testing.T) {
	reg := device.NewRegistry()
	reg.AddDevice(&device.Device{ID: 1, Kind: device.KindBulb, Capabilities: device.DefaultCapabilitiesForKind(device.KindBulb)})
	p := New(reg, bridgepool.New())
	err := p.Submit(Command{TargetID: 1, Capability: device.CapOnOff, On: true})
	require.ErrorIs(t, err, cyncerrors.ErrNoBridgesAvailable)
}

func TestSubmit_SetsPendingThenAckAppliesState(t *testing.T) {
	f := newFixture(t)
	err := f.pipeline.Submit(Command{TargetID: 1, Capability: device.CapOnOff, On: true})
	require.NoError(t, err)

	pending, err := f.registry.IsPending(1)
	require.NoError(t, err)
	require.True(t, pending)

	msgID, found := f.bridge.PendingMsgIDForTarget(1)
	require.True(t, found)
	require.True(t, f.bridge.ResolveAck(msgID))

	d, ok := f.registry.Device(1)
	require.True(t, ok)
	require.True(t, d.State.On)
	require.False(t, d.Pending)
}

func TestSubmit_BrightnessRejectsWhilePending(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.SetPending(1, true))

	err := f.pipeline.Submit(Command{TargetID: 1, Capability: device.CapBrightness, Percent: 50})
	require.ErrorIs(t, err, cyncerrors.ErrBusy)
}

func TestSubmit_PowerCoalescesPriorPending(t *testing.T) {
	f := newFixture(t)
	cancelled := make(chan error, 1)
	err := f.bridge.Send(1, func(msgID [3]byte) ([]byte, error) {
		return protocol.EncodeCommand(1, f.bridge.QueueID, msgID, protocol.EncodePowerToggle(1, false))
	}, func() {}, func(err error) { cancelled <- err })
	require.NoError(t, err)
	require.NoError(t, f.registry.SetPending(1, true))

	err = f.pipeline.Submit(Command{TargetID: 1, Capability: device.CapOnOff, On: true})
	require.NoError(t, err)

	select {
	case err := <-cancelled:
		require.ErrorIs(t, err, cyncerrors.ErrSuperseded)
	case <-time.After(time.Second):
		t.Fatal("prior pending callback was never cancelled")
	}
}

func TestSubmit_GroupCommandAppliesToMembers(t *testing.T) {
	f := newFixture(t)
	err := f.pipeline.Submit(Command{TargetID: device.GroupIDBase + 1, Capability: device.CapOnOff, On: true})
	require.NoError(t, err)

	msgID, found := f.bridge.PendingMsgIDForTarget(device.GroupIDBase + 1)
	require.True(t, found)
	require.True(t, f.bridge.ResolveAck(msgID))

	d, ok := f.registry.Device(1)
	require.True(t, ok)
	require.True(t, d.State.On)

	g, ok := f.registry.Group(device.GroupIDBase + 1)
	require.True(t, ok)
	require.True(t, g.State.On)
	require.False(t, g.Pending)
}

func TestSubmit_TimeoutClearsPendingWithoutMutatingState(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.ApplyOptimisticState(1, device.State{On: true, Brightness: 42}))

	err := f.pipeline.Submit(Command{TargetID: 1, Capability: device.CapOnOff, On: false})
	require.NoError(t, err)

	msgID, found := f.bridge.PendingMsgIDForTarget(1)
	require.True(t, found)
	f.bridge.CancelPending(msgID, cyncerrors.ErrAckTimeout)

	d, ok := f.registry.Device(1)
	require.True(t, ok)
	require.False(t, d.Pending)
	require.True(t, d.State.On, "timeout must not mutate state, only clear pending")
	require.Equal(t, 42, d.State.Brightness)
}
