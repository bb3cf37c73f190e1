package mqttbridge

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/nerrad567/cync-lan-core/internal/device"
	"github.com/nerrad567/cync-lan-core/internal/pipeline"
)

// ButtonHandlers wires the bridge entity's buttons (§4.5, SPEC_FULL.md §12)
// to their effects. A nil field makes the corresponding button a no-op; the
// zero value is safe to use while a caller only needs some of them.
type ButtonHandlers struct {
	Restart            func()
	RequestMeshRefresh func()
	StartExport        func()
	SubmitOTP          func(otp string)
}

// PoolStatsProvider supplies the live bridge-pool counters the maintenance
// scheduler keeps, so the bridge entity's state document can report them
// without this package depending on the pool or bridge packages directly.
// maintenance.Scheduler implements this.
type PoolStatsProvider interface {
	TotalBridges() int
	ReadyBridges() int
	PendingCommands() int
}

// Bridge connects the device registry to an MQTT broker: it implements
// device.Notifier to publish retained state/availability, publishes HA
// discovery documents, and routes inbound "/set" and bridge-command topics
// into the command pipeline and the button handlers.
type Bridge struct {
	client    *Client
	topics    Topics
	registry  *device.Registry
	pipeline  *pipeline.Pipeline
	logger    Logger
	retry     *retryRing
	poolStats PoolStatsProvider

	mu       sync.Mutex
	handlers ButtonHandlers
	tcpUp    bool
}

// NewBridge wires client to registry and pl. retryBufferSize bounds the
// buffered-publish ring (0 selects the default of 256).
func NewBridge(client *Client, registry *device.Registry, pl *pipeline.Pipeline, retryBufferSize int) *Bridge {
	return &Bridge{
		client:   client,
		topics:   client.Topics(),
		registry: registry,
		pipeline: pl,
		logger:   noopLogger{},
		retry:    newRetryRing(retryBufferSize),
	}
}

// SetLogger installs a logger; the zero value is a no-op.
func (b *Bridge) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	b.logger = logger
}

// SetButtonHandlers installs the bridge entity's button callbacks.
func (b *Bridge) SetButtonHandlers(h ButtonHandlers) {
	b.mu.Lock()
	b.handlers = h
	b.mu.Unlock()
}

// SetPoolStatsProvider installs the maintenance scheduler's live counters
// so the bridge entity's state document reports ready/pending bridge
// counts alongside the device-registry counters it already carries.
func (b *Bridge) SetPoolStatsProvider(p PoolStatsProvider) {
	b.mu.Lock()
	b.poolStats = p
	b.mu.Unlock()
}

// Start subscribes to every command topic this bridge handles, publishes
// discovery and the current world state, and arranges for both to be
// republished on every reconnect (§4.5 "republishes all entity states").
func (b *Bridge) Start() error {
	b.client.SetOnConnect(b.republishAll)

	if err := b.client.Subscribe(b.topics.AllDeviceSet(), b.handleDeviceSet); err != nil {
		return err
	}
	if err := b.client.Subscribe(b.topics.AllGroupSet(), b.handleGroupSet); err != nil {
		return err
	}
	if err := b.client.Subscribe(b.topics.AllBridgeCommands(), b.handleBridgeCommand); err != nil {
		return err
	}

	b.republishAll()
	return nil
}

// SetTCPServerRunning updates the bridge entity's "TCP server running"
// sensor and republishes the bridge state document.
func (b *Bridge) SetTCPServerRunning(up bool) {
	b.mu.Lock()
	b.tcpUp = up
	b.mu.Unlock()
	b.publishBridgeState()
}

func (b *Bridge) publishBridgeState() {
	b.mu.Lock()
	tcpUp := b.tcpUp
	poolStats := b.poolStats
	b.mu.Unlock()

	body := bridgeStateBody(tcpUp, b.registry.GetStats().BridgeCount, b.client.IsConnected(), poolStats)
	payload, err := json.Marshal(body)
	if err != nil {
		return
	}
	b.publish(b.topics.BridgeState(), payload, true)
}

// bridgeStateBody assembles the bridge entity's state document. poolStats
// may be nil (no maintenance scheduler wired yet), in which case the
// pool-derived fields are simply omitted.
func bridgeStateBody(tcpUp bool, devicesConnected int, mqttConnected bool, poolStats PoolStatsProvider) map[string]any {
	body := map[string]any{
		"tcp_server_running": tcpUp,
		"devices_connected":  devicesConnected,
		"mqtt_connected":     mqttConnected,
	}
	if poolStats != nil {
		body["ready_bridges"] = poolStats.ReadyBridges()
		body["pending_commands"] = poolStats.PendingCommands()
	}
	return body
}

// republishAll re-publishes discovery, retained state/availability for
// every device and group, the bridge entity, and drains anything buffered
// while disconnected (§4.5, §12's retry-buffer feature).
func (b *Bridge) republishAll() {
	b.publish(b.topics.BridgeAvailability(), []byte("online"), true)

	for key, payload := range BridgeBinarySensors(b.topics) {
		b.publish(b.topics.Discovery("binary_sensor", "cync_lan_bridge_"+key), payload, true)
	}
	for key, payload := range BridgeButtons(b.topics) {
		b.publish(b.topics.Discovery("button", "cync_lan_bridge_"+key), payload, true)
	}
	for key, payload := range BridgeNumbers(b.topics) {
		b.publish(b.topics.Discovery("number", "cync_lan_bridge_"+key), payload, true)
	}
	b.publishBridgeState()

	devices := b.registry.AllDevices()
	capsByID := make(map[device.ID][]device.Capability, len(devices))
	for _, d := range devices {
		capsByID[d.ID] = d.Capabilities
		b.publishDeviceDiscovery(d)
		b.DeviceStateChanged(d)
		b.DeviceAvailabilityChanged(d)
	}

	for _, g := range b.registry.AllGroups() {
		var memberCaps [][]device.Capability
		for _, mid := range g.Members {
			memberCaps = append(memberCaps, capsByID[mid])
		}
		b.publishGroupDiscovery(g, memberCaps)
		b.GroupStateChanged(g)
	}

	b.flushRetryBuffer()
}

func (b *Bridge) flushRetryBuffer() {
	for _, entry := range b.retry.Drain() {
		if err := b.client.Publish(entry.topic, entry.payload, entry.retained); err != nil {
			b.logger.Warn("mqttbridge: replay publish failed", "topic", entry.topic, "error", err)
		}
	}
}

// publish sends payload, buffering it for replay on reconnect if the
// broker link is currently down instead of dropping it outright.
func (b *Bridge) publish(topic string, payload []byte, retained bool) {
	if err := b.client.Publish(topic, payload, retained); err != nil {
		if errors.Is(err, ErrNotConnected) {
			b.retry.Push(topic, payload, retained)
			b.logger.Warn("mqttbridge: buffering publish while disconnected", "topic", topic, "buffered", b.retry.Len(), "dropped", b.retry.Dropped())
			return
		}
		b.logger.Warn("mqttbridge: publish failed", "topic", topic, "error", err)
	}
}

func (b *Bridge) publishDeviceDiscovery(d *device.Device) {
	component, payload, err := DeviceDiscovery(d, b.topics)
	if err != nil {
		b.logger.Warn("mqttbridge: building device discovery failed", "device_id", d.ID, "error", err)
		return
	}
	b.publish(b.topics.Discovery(component, deviceUniqueID(d.ID)), payload, true)
}

func (b *Bridge) publishGroupDiscovery(g *device.Group, memberCaps [][]device.Capability) {
	component, payload, err := GroupDiscovery(g, memberCaps, b.topics)
	if err != nil {
		b.logger.Warn("mqttbridge: building group discovery failed", "group_id", g.ID, "error", err)
		return
	}
	b.publish(b.topics.Discovery(component, groupUniqueID(g.ID)), payload, true)
}

// DeviceStateChanged implements device.Notifier.
func (b *Bridge) DeviceStateChanged(d *device.Device) {
	payload, err := json.Marshal(stateJSON(d.State))
	if err != nil {
		return
	}
	b.publish(b.topics.DeviceState(d.ID), payload, true)
}

// DeviceAvailabilityChanged implements device.Notifier.
func (b *Bridge) DeviceAvailabilityChanged(d *device.Device) {
	b.publish(b.topics.DeviceAvailability(d.ID), []byte(availabilityPayload(d.Online)), true)
}

// GroupStateChanged implements device.Notifier.
func (b *Bridge) GroupStateChanged(g *device.Group) {
	payload, err := json.Marshal(stateJSON(g.State))
	if err != nil {
		return
	}
	b.publish(b.topics.GroupState(g.ID), payload, true)
}

func availabilityPayload(online bool) string {
	if online {
		return "online"
	}
	return "offline"
}

func stateJSON(s device.State) map[string]any {
	on := "OFF"
	if s.On {
		on = "ON"
	}
	return map[string]any{
		"state":      on,
		"brightness": s.Brightness,
		"color_temp": s.ColorTemp,
		"color":      map[string]int{"r": int(s.RGB[0]), "g": int(s.RGB[1]), "b": int(s.RGB[2])},
		"fan_speed":  s.FanSpeed,
	}
}

func (b *Bridge) handleDeviceSet(topic string, payload []byte) error {
	return b.handleSet(topic, payload)
}

func (b *Bridge) handleGroupSet(topic string, payload []byte) error {
	return b.handleSet(topic, payload)
}

func (b *Bridge) handleSet(topic string, payload []byte) error {
	targetID, _, err := targetIDFromSetTopic(b.topics.Prefix, topic)
	if err != nil {
		b.logger.Warn("mqttbridge: dropping command on unrecognised topic", "topic", topic)
		return nil
	}
	cmds, err := ParseSetCommands(targetID, payload)
	if err != nil {
		b.logger.Warn("mqttbridge: dropping malformed command", "topic", topic, "error", err)
		return nil
	}
	for _, cmd := range cmds {
		if err := b.pipeline.Submit(cmd); err != nil {
			b.logger.Warn("mqttbridge: command rejected", "target_id", targetID, "capability", cmd.Capability, "error", err)
		}
	}
	return nil
}

func (b *Bridge) handleBridgeCommand(topic string, payload []byte) error {
	action := strings.TrimPrefix(topic, b.topics.Prefix+"/bridge/command/")

	b.mu.Lock()
	h := b.handlers
	b.mu.Unlock()

	switch action {
	case "restart":
		if h.Restart != nil {
			h.Restart()
		}
	case "request_mesh_refresh":
		if h.RequestMeshRefresh != nil {
			h.RequestMeshRefresh()
		}
	case "start_export":
		if h.StartExport != nil {
			h.StartExport()
		}
	case "submit_otp":
		if h.SubmitOTP != nil {
			h.SubmitOTP(strings.TrimSpace(string(payload)))
		}
	default:
		b.logger.Warn("mqttbridge: unknown bridge command", "action", action)
	}
	return nil
}
