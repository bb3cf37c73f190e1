package device

import (
	"testing"

	"github.com/nerrad567/cync-lan-core/internal/protocol"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	r := NewRegistry()
	r.AddDevice(&Device{ID: 0x32, Name: "bulb", Kind: KindBulb, Capabilities: DefaultCapabilitiesForKind(KindBulb), Online: true})
	return r
}

func TestIngest_OfflineDebounce(t *testing.T) {
	r := newTestRegistry()

	for i := 0; i < 2; i++ {
		r.Ingest(protocol.StatusTuple{DeviceID: 0x32, Present: false})
		d, _ := r.Device(0x32)
		require.True(t, d.Online, "should stay online before third absent report")
	}

	r.Ingest(protocol.StatusTuple{DeviceID: 0x32, Present: false})
	d, _ := r.Device(0x32)
	require.False(t, d.Online, "offline after three consecutive absent reports")

	r.Ingest(protocol.StatusTuple{DeviceID: 0x32, Present: true, On: true, Brightness: 50})
	d, _ = r.Device(0x32)
	require.True(t, d.Online)
	require.Equal(t, 0, d.OfflineCount)
}

func TestIngest_SuppressedWhilePending(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.SetPending(0x32, true))

	r.Ingest(protocol.StatusTuple{DeviceID: 0x32, Present: true, On: false, Brightness: 0})

	d, _ := r.Device(0x32)
	require.True(t, d.Pending)
	require.False(t, d.State.On, "state starts false, but should not have been touched by this non-change either way")
}

func TestIngest_PendingPreservesOptimisticState(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.ApplyOptimisticState(0x32, State{On: true, Brightness: 100}))
	require.NoError(t, r.SetPending(0x32, true))

	r.Ingest(protocol.StatusTuple{DeviceID: 0x32, Present: true, On: false, Brightness: 0})

	d, _ := r.Device(0x32)
	require.True(t, d.State.On, "pending optimistic state must not be overwritten by stale report")
	require.Equal(t, 100, d.State.Brightness)
}

func TestIngest_AvailabilityStillAppliesWhilePending(t *testing.T) {
	r := newTestRegistry()
	r.Ingest(protocol.StatusTuple{DeviceID: 0x32, Present: false})
	r.Ingest(protocol.StatusTuple{DeviceID: 0x32, Present: false})
	r.Ingest(protocol.StatusTuple{DeviceID: 0x32, Present: false})
	d, _ := r.Device(0x32)
	require.False(t, d.Online)

	require.NoError(t, r.SetPending(0x32, true))
	r.Ingest(protocol.StatusTuple{DeviceID: 0x32, Present: true, On: true, Brightness: 10})

	d, _ = r.Device(0x32)
	require.True(t, d.Online, "availability still updates while pending")
	require.True(t, d.Pending)
}

func TestApplyOptimisticState_ClearsPending(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.SetPending(0x32, true))
	require.NoError(t, r.ApplyOptimisticState(0x32, State{On: true}))

	d, _ := r.Device(0x32)
	require.False(t, d.Pending)
	require.True(t, d.State.On)
}

func TestUnknownTargetErrors(t *testing.T) {
	r := newTestRegistry()
	require.ErrorIs(t, r.SetPending(0xFF, true), ErrUnknownTarget)
	require.ErrorIs(t, r.ApplyOptimisticState(0xFF, State{}), ErrUnknownTarget)
	_, ok := r.Device(0xFF)
	require.False(t, ok)
}

func TestGroupAggregate_RecomputesOnMemberChange(t *testing.T) {
	r := NewRegistry()
	r.AddDevice(&Device{ID: 1, Kind: KindBulb, Capabilities: DefaultCapabilitiesForKind(KindBulb)})
	r.AddDevice(&Device{ID: 2, Kind: KindBulb, Capabilities: DefaultCapabilitiesForKind(KindBulb)})
	r.AddGroup(&Group{ID: GroupIDBase + 1, Members: []ID{1, 2}})

	r.Ingest(protocol.StatusTuple{DeviceID: 1, Present: true, On: true, Brightness: 100})
	g, _ := r.Group(GroupIDBase + 1)
	require.True(t, g.State.On)
	require.Equal(t, 100, g.State.Brightness)

	r.Ingest(protocol.StatusTuple{DeviceID: 2, Present: true, On: true, Brightness: 50})
	g, _ = r.Group(GroupIDBase + 1)
	require.Equal(t, 75, g.State.Brightness)
}

func TestApplyOptimisticGroupState_AppliesToAllMembers(t *testing.T) {
	r := NewRegistry()
	r.AddDevice(&Device{ID: 1, Kind: KindBulb})
	r.AddDevice(&Device{ID: 2, Kind: KindBulb})
	r.AddGroup(&Group{ID: GroupIDBase + 1, Members: []ID{1, 2}})

	require.NoError(t, r.ApplyOptimisticGroupState(GroupIDBase+1, State{On: true, Brightness: 30}))

	d1, _ := r.Device(1)
	d2, _ := r.Device(2)
	require.True(t, d1.State.On)
	require.True(t, d2.State.On)

	g, _ := r.Group(GroupIDBase + 1)
	require.False(t, g.Pending)
}
