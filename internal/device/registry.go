package device

import (
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/cync-lan-core/internal/protocol"
)

// offlineThreshold is the number of consecutive absent mesh reports
// required before a device is marked offline (§3, §4.4).
const offlineThreshold = 3

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Notifier is the registry's outbound hook into the MQTT bridge (§4.5).
// It is called with the mutex released, so implementations must not call
// back into the Registry from inside these methods on the same
// goroutine without risking deadlock-by-reentry; in practice the MQTT
// bridge only reads via the provided deep copy.
type Notifier interface {
	DeviceStateChanged(d *Device)
	DeviceAvailabilityChanged(d *Device)
	GroupStateChanged(g *Group)
}

type noopNotifier struct{}

func (noopNotifier) DeviceStateChanged(*Device)       {}
func (noopNotifier) DeviceAvailabilityChanged(*Device) {}
func (noopNotifier) GroupStateChanged(*Group)          {}

// Registry is the authoritative in-memory model of devices and groups.
// All public methods are safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	devices  map[ID]*Device
	groups   map[GroupID]*Group
	logger   Logger
	notifier Notifier
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		devices:  make(map[ID]*Device),
		groups:   make(map[GroupID]*Group),
		logger:   noopLogger{},
		notifier: noopNotifier{},
	}
}

// SetLogger installs a logger; the zero value is a no-op logger.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetNotifier installs the MQTT publish hook; the zero value is a no-op.
func (r *Registry) SetNotifier(n Notifier) {
	r.notifier = n
}

// AddDevice registers a roster device. Intended for startup loading only;
// it does not check for duplicate IDs beyond overwriting, since the
// roster loader (internal/roster) is responsible for rejecting
// duplicates before they reach the registry.
func (r *Registry) AddDevice(d *Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[d.ID] = d
}

// AddGroup registers a roster group.
func (r *Registry) AddGroup(g *Group) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups[g.ID] = g
}

// Device returns a deep copy of the device with the given id.
func (r *Registry) Device(id ID) (*Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[id]
	if !ok {
		return nil, false
	}
	return d.DeepCopy(), true
}

// Group returns a deep copy of the group with the given id.
func (r *Registry) Group(id GroupID) (*Group, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[id]
	if !ok {
		return nil, false
	}
	cp := *g
	cp.Members = append([]ID(nil), g.Members...)
	return &cp, true
}

// AllDevices returns deep copies of every registered device.
func (r *Registry) AllDevices() []*Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d.DeepCopy())
	}
	return out
}

// AllGroups returns deep copies of every registered group.
func (r *Registry) AllGroups() []*Group {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Group, 0, len(r.groups))
	for _, g := range r.groups {
		cp := *g
		cp.Members = append([]ID(nil), g.Members...)
		out = append(out, &cp)
	}
	return out
}

// IsGroupID reports whether id falls in the group id space.
func IsGroupID(id uint16) bool {
	return id >= uint16(GroupIDBase)
}

// AttachBridge marks a device as holding a live bridge connection,
// recording its endpoint and queue_id (§3, on TCP accept).
func (r *Registry) AttachBridge(id ID, endpoint [4]byte, queueID [5]byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[id]
	if !ok {
		return fmt.Errorf("%w: device %d", ErrUnknownTarget, id)
	}
	d.IsBridge = true
	d.Endpoint = endpoint
	d.QueueID = queueID
	d.Online = true
	d.OfflineCount = 0
	d.LastSeen = time.Now()
	return nil
}

// DetachBridge clears bridge linkage on disconnect. The device itself is
// never removed (§3's lifecycle: devices exist for the process lifetime).
func (r *Registry) DetachBridge(id ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.devices[id]; ok {
		d.IsBridge = false
		d.Endpoint = [4]byte{}
		d.QueueID = [5]byte{}
	}
}

// SetPending sets or clears a device's pending_command flag. It returns an
// error wrapping ErrUnknownTarget if the device does not exist.
func (r *Registry) SetPending(id ID, pending bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[id]
	if !ok {
		return fmt.Errorf("%w: device %d", ErrUnknownTarget, id)
	}
	d.Pending = pending
	return nil
}

// SetGroupPending sets or clears a group's pending_command flag.
func (r *Registry) SetGroupPending(id GroupID, pending bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[id]
	if !ok {
		return fmt.Errorf("%w: group %d", ErrUnknownTarget, id)
	}
	g.Pending = pending
	return nil
}

// IsPending reports a device or group's current pending_command flag.
func (r *Registry) IsPending(targetID uint16) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if IsGroupID(targetID) {
		g, ok := r.groups[targetID]
		if !ok {
			return false, fmt.Errorf("%w: group %d", ErrUnknownTarget, targetID)
		}
		return g.Pending, nil
	}
	d, ok := r.devices[ID(targetID)]
	if !ok {
		return false, fmt.Errorf("%w: device %d", ErrUnknownTarget, targetID)
	}
	return d.Pending, nil
}

// ApplyOptimisticState applies the expected post-command state to a
// device on ACK (§4.3 step 4) and clears its pending flag. It always
// publishes the new state, since an ACK is, by definition, a state
// transition the caller requested.
func (r *Registry) ApplyOptimisticState(id ID, state State) error {
	r.mu.Lock()
	d, ok := r.devices[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: device %d", ErrUnknownTarget, id)
	}
	d.State = state
	d.Pending = false
	snapshot := d.DeepCopy()
	r.mu.Unlock()

	r.notifier.DeviceStateChanged(snapshot)
	return nil
}

// ApplyOptimisticGroupState applies the expected post-command state to
// every member of a group on ACK and clears the group's pending flag
// (§4.3 "Group commands"). Each member publishes individually; the
// group's own aggregate is recomputed and published once.
func (r *Registry) ApplyOptimisticGroupState(id GroupID, state State) error {
	r.mu.Lock()
	g, ok := r.groups[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: group %d", ErrUnknownTarget, id)
	}
	var memberSnapshots []*Device
	for _, mid := range g.Members {
		if m, ok := r.devices[mid]; ok {
			m.State = state
			memberSnapshots = append(memberSnapshots, m.DeepCopy())
		}
	}
	g.Pending = false
	g.State = state
	groupSnapshot := *g
	groupSnapshot.Members = append([]ID(nil), g.Members...)
	r.mu.Unlock()

	for _, m := range memberSnapshots {
		r.notifier.DeviceStateChanged(m)
	}
	r.notifier.GroupStateChanged(&groupSnapshot)
	return nil
}

// ClearPending resolves a device's or group's pending flag without
// touching state, used on timeout/superseded/bridge-lost outcomes where
// the optimistic update never happened (§4.3 step 4's timeout path).
func (r *Registry) ClearPending(targetID uint16) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if IsGroupID(targetID) {
		g, ok := r.groups[targetID]
		if !ok {
			return fmt.Errorf("%w: group %d", ErrUnknownTarget, targetID)
		}
		g.Pending = false
		return nil
	}
	d, ok := r.devices[ID(targetID)]
	if !ok {
		return fmt.Errorf("%w: device %d", ErrUnknownTarget, targetID)
	}
	d.Pending = false
	return nil
}

// Ingest applies one decoded mesh status tuple per §4.4's rules: debounced
// offline marking, pending_command suppression, and change-triggered
// publish. It is idempotent and tolerant of duplicate reports arriving
// via multiple bridges.
func (r *Registry) Ingest(tuple protocol.StatusTuple) {
	r.mu.Lock()
	d, ok := r.devices[tuple.DeviceID]
	if !ok {
		r.mu.Unlock()
		r.logger.Debug("ingest: unknown device", "device_id", tuple.DeviceID)
		return
	}

	var (
		publishState        *Device
		publishAvailability *Device
	)

	if !tuple.Present {
		d.OfflineCount++
		if d.OfflineCount >= offlineThreshold && d.Online {
			d.Online = false
			publishAvailability = d.DeepCopy()
		}
		r.mu.Unlock()
		if publishAvailability != nil {
			r.notifier.DeviceAvailabilityChanged(publishAvailability)
		}
		return
	}

	wasOffline := !d.Online
	d.OfflineCount = 0
	d.Online = true
	d.LastSeen = time.Now()
	if wasOffline {
		publishAvailability = d.DeepCopy()
	}

	if d.Pending {
		// Optimistic state from an in-flight command is authoritative
		// until the pending flag clears; discard reported state fields.
		r.mu.Unlock()
		if publishAvailability != nil {
			r.notifier.DeviceAvailabilityChanged(publishAvailability)
		}
		return
	}

	newState := State{
		On:         tuple.On,
		Brightness: int(tuple.Brightness),
		ColorTemp:  int(tuple.ColorTemp),
		RGB:        tuple.RGB,
		FanSpeed:   d.State.FanSpeed, // fan speed is not carried in the status tuple
	}
	if newState != d.State {
		d.State = newState
		publishState = d.DeepCopy()
	}
	r.mu.Unlock()

	if publishAvailability != nil {
		r.notifier.DeviceAvailabilityChanged(publishAvailability)
	}
	if publishState != nil {
		r.notifier.DeviceStateChanged(publishState)
		r.recomputeGroupsContaining(tuple.DeviceID)
	}
}

// recomputeGroupsContaining recalculates the aggregate state of every
// group containing memberID and publishes groups whose aggregate changed.
func (r *Registry) recomputeGroupsContaining(memberID ID) {
	r.mu.Lock()
	var changed []*Group
	for _, g := range r.groups {
		if !containsID(g.Members, memberID) {
			continue
		}
		members := make([]*Device, 0, len(g.Members))
		for _, mid := range g.Members {
			members = append(members, r.devices[mid])
		}
		newAgg := aggregate(members)
		if newAgg != g.State {
			g.State = newAgg
			cp := *g
			cp.Members = append([]ID(nil), g.Members...)
			changed = append(changed, &cp)
		}
	}
	r.mu.Unlock()

	for _, g := range changed {
		r.notifier.GroupStateChanged(g)
	}
}

func containsID(ids []ID, target ID) bool {
	for _, id := range ids {
		if id == target {
			return true
		}
	}
	return false
}

// Stats summarises registry contents for the MQTT bridge entity and the
// periodic pool logger.
type Stats struct {
	TotalDevices  int
	OnlineDevices int
	PendingCount  int
	TotalGroups   int
	BridgeCount   int
}

// GetStats returns a point-in-time snapshot.
func (r *Registry) GetStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	var s Stats
	s.TotalDevices = len(r.devices)
	s.TotalGroups = len(r.groups)
	for _, d := range r.devices {
		if d.Online {
			s.OnlineDevices++
		}
		if d.Pending {
			s.PendingCount++
		}
		if d.IsBridge {
			s.BridgeCount++
		}
	}
	return s
}
