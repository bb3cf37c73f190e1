package mqttbridge

import (
	"encoding/json"
	"fmt"

	"github.com/nerrad567/cync-lan-core/internal/device"
)

// discoveryDeviceInfo is the "device" block Home Assistant groups entities
// under; every discovery document for the same physical device/group
// shares the same Identifiers entry.
type discoveryDeviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	SuggestedArea string  `json:"suggested_area,omitempty"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
}

const manufacturer = "Cync"

// lightDiscoveryConfig describes a JSON-schema MQTT light, matching §4.5's
// `/set` payload shape ({"state":"ON","brightness":42,...}) one-for-one.
type lightDiscoveryConfig struct {
	Name                string              `json:"name"`
	UniqueID            string              `json:"unique_id"`
	Schema              string              `json:"schema"`
	StateTopic          string              `json:"state_topic"`
	CommandTopic        string              `json:"command_topic"`
	AvailabilityTopic   string              `json:"availability_topic"`
	PayloadAvailable    string              `json:"payload_available"`
	PayloadNotAvailable string              `json:"payload_not_available"`
	Brightness          bool                `json:"brightness,omitempty"`
	BrightnessScale     int                 `json:"brightness_scale,omitempty"`
	ColorTemp           bool                `json:"color_temp,omitempty"`
	SupportedColorModes []string            `json:"supported_color_modes,omitempty"`
	Device              discoveryDeviceInfo `json:"device"`
}

// switchDiscoveryConfig describes a plain on/off MQTT switch.
type switchDiscoveryConfig struct {
	Name                string              `json:"name"`
	UniqueID            string              `json:"unique_id"`
	StateTopic          string              `json:"state_topic"`
	CommandTopic        string              `json:"command_topic"`
	AvailabilityTopic   string              `json:"availability_topic"`
	PayloadAvailable    string              `json:"payload_available"`
	PayloadNotAvailable string              `json:"payload_not_available"`
	PayloadOn           string              `json:"payload_on"`
	PayloadOff          string              `json:"payload_off"`
	StateOn             string              `json:"state_on"`
	StateOff            string              `json:"state_off"`
	Device              discoveryDeviceInfo `json:"device"`
}

// fanDiscoveryConfig describes an MQTT fan whose speed is offered as a
// preset list (off, low, medium, high).
type fanDiscoveryConfig struct {
	Name                string              `json:"name"`
	UniqueID            string              `json:"unique_id"`
	Schema              string              `json:"schema"`
	StateTopic          string              `json:"state_topic"`
	CommandTopic        string              `json:"command_topic"`
	AvailabilityTopic   string              `json:"availability_topic"`
	PayloadAvailable    string              `json:"payload_available"`
	PayloadNotAvailable string              `json:"payload_not_available"`
	PresetModes         []string            `json:"preset_modes,omitempty"`
	Device              discoveryDeviceInfo `json:"device"`
}

// entityDiscovery returns the HA discovery component name and config
// payload for either the on/off, light, or fan schema, chosen by the
// device's declared capabilities (§4.5's "per-capability fields").
func entityDiscovery(name, uniqueID, area, stateTopic, commandTopic, availabilityTopic string, caps []device.Capability) (component string, payload []byte, err error) {
	has := func(c device.Capability) bool {
		for _, have := range caps {
			if have == c {
				return true
			}
		}
		return false
	}

	info := discoveryDeviceInfo{
		Identifiers:   []string{uniqueID},
		Name:          name,
		SuggestedArea: area,
		Manufacturer:  manufacturer,
		Model:         "cync-lan bridged device",
	}

	switch {
	case has(device.CapBrightness) || has(device.CapColorTemp) || has(device.CapRGB):
		cfg := lightDiscoveryConfig{
			Name:                name,
			UniqueID:            uniqueID,
			Schema:              "json",
			StateTopic:          stateTopic,
			CommandTopic:        commandTopic,
			AvailabilityTopic:   availabilityTopic,
			PayloadAvailable:    "online",
			PayloadNotAvailable: "offline",
			Device:              info,
		}
		var modes []string
		if has(device.CapBrightness) {
			cfg.Brightness = true
			cfg.BrightnessScale = 100
			modes = append(modes, "brightness")
		}
		if has(device.CapColorTemp) {
			cfg.ColorTemp = true
			modes = append(modes, "color_temp")
		}
		if has(device.CapRGB) {
			modes = append(modes, "rgb")
		}
		cfg.SupportedColorModes = modes
		b, err := json.Marshal(cfg)
		return "light", b, err

	case has(device.CapFanSpeed):
		cfg := fanDiscoveryConfig{
			Name:                name,
			UniqueID:            uniqueID,
			Schema:              "json",
			StateTopic:          stateTopic,
			CommandTopic:        commandTopic,
			AvailabilityTopic:   availabilityTopic,
			PayloadAvailable:    "online",
			PayloadNotAvailable: "offline",
			PresetModes:         []string{"off", "low", "medium", "high"},
			Device:              info,
		}
		b, err := json.Marshal(cfg)
		return "fan", b, err

	default:
		cfg := switchDiscoveryConfig{
			Name:                name,
			UniqueID:            uniqueID,
			StateTopic:          stateTopic,
			CommandTopic:        commandTopic,
			AvailabilityTopic:   availabilityTopic,
			PayloadAvailable:    "online",
			PayloadNotAvailable: "offline",
			PayloadOn:           "ON",
			PayloadOff:          "OFF",
			StateOn:             "ON",
			StateOff:            "OFF",
			Device:              info,
		}
		b, err := json.Marshal(cfg)
		return "switch", b, err
	}
}

// DeviceDiscovery builds the discovery component + payload for one device.
func DeviceDiscovery(d *device.Device, topics Topics) (component string, payload []byte, err error) {
	uniqueID := deviceUniqueID(d.ID)
	return entityDiscovery(
		d.Name, uniqueID, d.Room,
		topics.DeviceState(d.ID), topics.DeviceSet(d.ID), topics.DeviceAvailability(d.ID),
		d.Capabilities,
	)
}

// GroupDiscovery builds the discovery component + payload for one group.
// A group's capability set is the union of its members', since the
// aggregate schema must accept whatever the broadest member supports.
func GroupDiscovery(g *device.Group, memberCaps [][]device.Capability, topics Topics) (component string, payload []byte, err error) {
	uniqueID := groupUniqueID(g.ID)
	var union []device.Capability
	seen := make(map[device.Capability]bool)
	for _, caps := range memberCaps {
		for _, c := range caps {
			if !seen[c] {
				seen[c] = true
				union = append(union, c)
			}
		}
	}
	return entityDiscovery(
		g.Name, uniqueID, g.Room,
		topics.GroupState(g.ID), topics.GroupSet(g.ID), topics.GroupAvailability(g.ID),
		union,
	)
}

// binarySensorDiscoveryConfig describes one of the bridge entity's status
// sensors.
type binarySensorDiscoveryConfig struct {
	Name              string              `json:"name"`
	UniqueID          string              `json:"unique_id"`
	StateTopic        string              `json:"state_topic"`
	ValueTemplate     string              `json:"value_template"`
	PayloadOn         string              `json:"payload_on"`
	PayloadOff        string              `json:"payload_off"`
	Device            discoveryDeviceInfo `json:"device"`
}

// buttonDiscoveryConfig describes one of the bridge entity's action buttons.
type buttonDiscoveryConfig struct {
	Name         string              `json:"name"`
	UniqueID     string              `json:"unique_id"`
	CommandTopic string              `json:"command_topic"`
	PayloadPress string              `json:"payload_press"`
	Device       discoveryDeviceInfo `json:"device"`
}

// numberDiscoveryConfig describes one of the bridge entity's numeric
// inputs, e.g. the one-shot OTP code the export flow waits on (§6).
type numberDiscoveryConfig struct {
	Name         string              `json:"name"`
	UniqueID     string              `json:"unique_id"`
	CommandTopic string              `json:"command_topic"`
	Min          float64             `json:"min"`
	Max          float64             `json:"max"`
	Mode         string              `json:"mode"`
	Device       discoveryDeviceInfo `json:"device"`
}

// BridgeBinarySensors returns the discovery payloads for the process-wide
// sensors: "TCP server running", "devices connected", "MQTT connected".
func BridgeBinarySensors(topics Topics) map[string][]byte {
	info := bridgeDeviceInfo()
	sensors := []struct {
		key, name, field string
	}{
		{"tcp_server_running", "TCP server running", "tcp_server_running"},
		{"devices_connected", "Devices connected", "devices_connected"},
		{"mqtt_connected", "MQTT connected", "mqtt_connected"},
	}
	out := make(map[string][]byte, len(sensors))
	for _, s := range sensors {
		cfg := binarySensorDiscoveryConfig{
			Name:          s.name,
			UniqueID:      "cync_lan_bridge_" + s.key,
			StateTopic:    topics.BridgeState(),
			ValueTemplate: fmt.Sprintf("{{ value_json.%s }}", s.field),
			PayloadOn:     "true",
			PayloadOff:    "false",
			Device:        info,
		}
		b, err := json.Marshal(cfg)
		if err == nil {
			out[s.key] = b
		}
	}
	return out
}

// BridgeButtons returns the discovery payloads for the process-wide action
// buttons: restart, request_mesh_refresh, start_export.
func BridgeButtons(topics Topics) map[string][]byte {
	info := bridgeDeviceInfo()
	actions := []struct {
		key, name string
	}{
		{"restart", "Restart"},
		{"request_mesh_refresh", "Request mesh refresh"},
		{"start_export", "Start export"},
	}
	out := make(map[string][]byte, len(actions))
	for _, a := range actions {
		cfg := buttonDiscoveryConfig{
			Name:         a.name,
			UniqueID:     "cync_lan_bridge_" + a.key,
			CommandTopic: topics.BridgeCommand(a.key),
			PayloadPress: "PRESS",
			Device:       info,
		}
		b, err := json.Marshal(cfg)
		if err == nil {
			out[a.key] = b
		}
	}
	return out
}

// BridgeNumbers returns the discovery payloads for the process-wide numeric
// inputs: submit_otp writes the OTP to the exporter's one-shot input (§6),
// which needs an actual value, not a fixed button press.
func BridgeNumbers(topics Topics) map[string][]byte {
	info := bridgeDeviceInfo()
	numbers := []struct {
		key, name string
		min, max  float64
	}{
		{"submit_otp", "Submit OTP", 0, 999999},
	}
	out := make(map[string][]byte, len(numbers))
	for _, n := range numbers {
		cfg := numberDiscoveryConfig{
			Name:         n.name,
			UniqueID:     "cync_lan_bridge_" + n.key,
			CommandTopic: topics.BridgeCommand(n.key),
			Min:          n.min,
			Max:          n.max,
			Mode:         "box",
			Device:       info,
		}
		b, err := json.Marshal(cfg)
		if err == nil {
			out[n.key] = b
		}
	}
	return out
}

// bridgeDeviceInfo is the shared "device" block every bridge-entity
// sub-component (sensor, button, number) is grouped under in Home
// Assistant.
func bridgeDeviceInfo() discoveryDeviceInfo {
	return discoveryDeviceInfo{
		Identifiers:  []string{"cync_lan_bridge"},
		Name:         "cync-lan bridge",
		Manufacturer: manufacturer,
		Model:        "cync-lan-core",
	}
}
