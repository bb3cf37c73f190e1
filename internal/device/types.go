package device

import "time"

// ID is a mesh device identifier: the wire protocol's one-byte device_id
// (1-255).
type ID = byte

// GroupID is a device-group identifier, conventionally 0x8000+ to avoid
// collision with the device_id space.
type GroupID = uint16

// GroupIDBase is the lowest id a group may use.
const GroupIDBase GroupID = 0x8000

// Kind enumerates the recognised mesh member kinds.
type Kind string

const (
	KindBulb             Kind = "bulb"
	KindTunableWhiteBulb Kind = "tunable-white-bulb"
	KindRGBBulb          Kind = "rgb-bulb"
	KindPlug             Kind = "plug"
	KindSwitch           Kind = "switch"
	KindFanController    Kind = "fan-controller"
)

// AllKinds returns every recognised device kind.
func AllKinds() []Kind {
	return []Kind{KindBulb, KindTunableWhiteBulb, KindRGBBulb, KindPlug, KindSwitch, KindFanController}
}

// Capability enumerates what a device kind can do.
type Capability string

const (
	CapOnOff      Capability = "on_off"
	CapBrightness Capability = "brightness"
	CapColorTemp  Capability = "color_temp"
	CapRGB        Capability = "rgb"
	CapFanSpeed   Capability = "fan_speed"
)

// AllCapabilities returns every recognised capability.
func AllCapabilities() []Capability {
	return []Capability{CapOnOff, CapBrightness, CapColorTemp, CapRGB, CapFanSpeed}
}

// State is a device's (or a group's recomputed aggregate) logical state.
type State struct {
	On         bool
	Brightness int // 0-100
	ColorTemp  int // 0-100
	RGB        [3]byte
	FanSpeed   int
}

// Device is a mesh member: a bulb, switch, plug or fan controller, or the
// Wi-Fi bridge carrying traffic for the rest of the mesh.
type Device struct {
	ID           ID
	Name         string
	Room         string
	Kind         Kind
	Capabilities []Capability
	State        State

	Online       bool
	OfflineCount int
	Pending      bool
	LastSeen     time.Time

	// Bridge fields, populated only while this device holds an active
	// TLS connection: AttachBridge sets them on handshake and
	// DetachBridge clears them on disconnect, so IsBridge reflects
	// connection state rather than the roster.
	IsBridge bool
	Endpoint [4]byte
	QueueID  [5]byte
}

// HasCapability reports whether the device declares cap.
func (d *Device) HasCapability(cap Capability) bool {
	for _, c := range d.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// DeepCopy returns an independent copy of d so callers reading a
// snapshot cannot observe or cause racy mutation of the registry's
// canonical copy.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cp := *d
	cp.Capabilities = append([]Capability(nil), d.Capabilities...)
	return &cp
}

// DefaultCapabilitiesForKind returns the conventional capability set for
// a device kind; used when the roster omits an explicit capability list.
func DefaultCapabilitiesForKind(k Kind) []Capability {
	switch k {
	case KindBulb:
		return []Capability{CapOnOff, CapBrightness}
	case KindTunableWhiteBulb:
		return []Capability{CapOnOff, CapBrightness, CapColorTemp}
	case KindRGBBulb:
		return []Capability{CapOnOff, CapBrightness, CapColorTemp, CapRGB}
	case KindPlug, KindSwitch:
		return []Capability{CapOnOff}
	case KindFanController:
		return []Capability{CapOnOff, CapFanSpeed}
	default:
		return nil
	}
}
