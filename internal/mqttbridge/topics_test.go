package mqttbridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopicBuilders(t *testing.T) {
	topics := Topics{Prefix: "cync_lan", DiscoveryPrefix: "homeassistant"}

	cases := []struct {
		name string
		got  string
		want string
	}{
		{"device state", topics.DeviceState(12), "cync_lan/device/12/state"},
		{"device set", topics.DeviceSet(12), "cync_lan/device/12/set"},
		{"device availability", topics.DeviceAvailability(12), "cync_lan/device/12/availability"},
		{"group state", topics.GroupState(32780), "cync_lan/group/32780/state"},
		{"group set", topics.GroupSet(32780), "cync_lan/group/32780/set"},
		{"group availability", topics.GroupAvailability(32780), "cync_lan/group/32780/availability"},
		{"bridge availability", topics.BridgeAvailability(), "cync_lan/bridge/availability"},
		{"bridge state", topics.BridgeState(), "cync_lan/bridge/state"},
		{"bridge command", topics.BridgeCommand("restart"), "cync_lan/bridge/command/restart"},
		{"all device set", topics.AllDeviceSet(), "cync_lan/device/+/set"},
		{"all group set", topics.AllGroupSet(), "cync_lan/group/+/set"},
		{"all bridge commands", topics.AllBridgeCommands(), "cync_lan/bridge/command/+"},
		{"discovery", topics.Discovery("light", "cync_lan_device_12"), "homeassistant/light/cync_lan_device_12/config"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.got)
		})
	}
}

func TestUniqueIDs(t *testing.T) {
	assert.Equal(t, "cync_lan_device_12", deviceUniqueID(12))
	assert.Equal(t, "cync_lan_group_32780", groupUniqueID(32780))
}
