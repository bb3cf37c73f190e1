package mqttbridge

import (
	"fmt"
	"strconv"
)

// Topics builds the flat `<prefix>/...` topic scheme (§4.5, §6). Using
// these helpers keeps topic naming consistent between the publisher and
// the subscription side.
type Topics struct {
	Prefix          string
	DiscoveryPrefix string
}

// DeviceState returns the retained state topic for a device.
func (t Topics) DeviceState(id byte) string {
	return fmt.Sprintf("%s/device/%d/state", t.Prefix, id)
}

// DeviceSet returns the command topic a device listens on.
func (t Topics) DeviceSet(id byte) string {
	return fmt.Sprintf("%s/device/%d/set", t.Prefix, id)
}

// DeviceAvailability returns the retained online/offline topic for a device.
func (t Topics) DeviceAvailability(id byte) string {
	return fmt.Sprintf("%s/device/%d/availability", t.Prefix, id)
}

// GroupState returns the retained state topic for a group.
func (t Topics) GroupState(id uint16) string {
	return fmt.Sprintf("%s/group/%d/state", t.Prefix, id)
}

// GroupSet returns the command topic a group listens on.
func (t Topics) GroupSet(id uint16) string {
	return fmt.Sprintf("%s/group/%d/set", t.Prefix, id)
}

// GroupAvailability returns the retained online/offline topic for a group.
func (t Topics) GroupAvailability(id uint16) string {
	return fmt.Sprintf("%s/group/%d/availability", t.Prefix, id)
}

// BridgeAvailability is the LWT topic: retained "online"/"offline" for the
// process itself (§4.5's "bridge/availability").
func (t Topics) BridgeAvailability() string {
	return fmt.Sprintf("%s/bridge/availability", t.Prefix)
}

// BridgeState is the retained JSON state topic backing the bridge entity's
// binary sensors (TCP server running, devices connected, MQTT connected).
func (t Topics) BridgeState() string {
	return fmt.Sprintf("%s/bridge/state", t.Prefix)
}

// BridgeCommand returns the command topic for one bridge-entity input:
// the buttons restart, request_mesh_refresh and start_export, and the
// submit_otp number.
func (t Topics) BridgeCommand(action string) string {
	return fmt.Sprintf("%s/bridge/command/%s", t.Prefix, action)
}

// AllDeviceSet is the wildcard subscription pattern covering every device's
// command topic.
func (t Topics) AllDeviceSet() string {
	return fmt.Sprintf("%s/device/+/set", t.Prefix)
}

// AllGroupSet is the wildcard subscription pattern covering every group's
// command topic.
func (t Topics) AllGroupSet() string {
	return fmt.Sprintf("%s/group/+/set", t.Prefix)
}

// AllBridgeCommands is the wildcard subscription pattern covering every
// bridge-entity command topic (buttons and the submit_otp number).
func (t Topics) AllBridgeCommands() string {
	return fmt.Sprintf("%s/bridge/command/+", t.Prefix)
}

// Discovery returns a Home Assistant MQTT discovery config topic:
// `<discovery_prefix>/<component>/<unique_id>/config`.
func (t Topics) Discovery(component, uniqueID string) string {
	return fmt.Sprintf("%s/%s/%s/config", t.DiscoveryPrefix, component, uniqueID)
}

// deviceUniqueID builds the stable unique_id HA discovery uses for a device
// entity.
func deviceUniqueID(id byte) string {
	return "cync_lan_device_" + strconv.Itoa(int(id))
}

// groupUniqueID builds the stable unique_id HA discovery uses for a group
// entity.
func groupUniqueID(id uint16) string {
	return "cync_lan_group_" + strconv.Itoa(int(id))
}
