package roster

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/nerrad567/cync-lan-core/internal/device"
	"gopkg.in/yaml.v3"
)

// File is the parsed shape of the roster YAML document.
type File struct {
	Bridges []BridgeEntry `yaml:"bridges"`
	Devices []DeviceEntry `yaml:"devices"`
	Groups  []GroupEntry  `yaml:"groups"`
}

// BridgeEntry identifies a roster device as a Wi-Fi bridge, carrying the
// endpoint the handshake is expected to present and its credentials.
type BridgeEntry struct {
	DeviceID uint8  `yaml:"device_id"`
	Endpoint string `yaml:"endpoint"` // hex, e.g. "60b17c4a"
	Token    string `yaml:"token,omitempty"`
}

// DeviceEntry is one mesh member in the roster.
type DeviceEntry struct {
	ID           uint8    `yaml:"id"`
	Name         string   `yaml:"name"`
	Room         string   `yaml:"room"`
	Kind         string   `yaml:"kind"`
	Capabilities []string `yaml:"capabilities,omitempty"`
}

// GroupEntry is one device group in the roster.
type GroupEntry struct {
	ID      uint16   `yaml:"id"`
	Name    string   `yaml:"name"`
	Room    string   `yaml:"room,omitempty"`
	Members []uint8  `yaml:"members"`
}

// Load parses the roster file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading roster file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing roster file: %w", err)
	}
	return &f, nil
}

// Seed populates reg from the parsed roster, validating ids and
// capability names. Bridge linkage (endpoint, queue_id) is attached
// later, on handshake — the roster only records which device_ids are
// expected to behave as bridges and what endpoint to expect from them.
func Seed(reg *device.Registry, f *File) (map[uint8][4]byte, error) {
	seenDevice := make(map[uint8]bool)
	expectedEndpoints := make(map[uint8][4]byte)

	for _, be := range f.Bridges {
		raw, err := hex.DecodeString(strings.TrimPrefix(be.Endpoint, "0x"))
		if err != nil || len(raw) != 4 {
			return nil, fmt.Errorf("%w: bridge %d has invalid endpoint %q", device.ErrInvalidDevice, be.DeviceID, be.Endpoint)
		}
		var ep [4]byte
		copy(ep[:], raw)
		expectedEndpoints[be.DeviceID] = ep
	}

	for _, de := range f.Devices {
		if seenDevice[de.ID] {
			return nil, fmt.Errorf("%w: duplicate device id %d", device.ErrInvalidDevice, de.ID)
		}
		seenDevice[de.ID] = true

		kind := device.Kind(de.Kind)
		if !validKind(kind) {
			return nil, fmt.Errorf("%w: device %d has unknown kind %q", device.ErrInvalidDevice, de.ID, de.Kind)
		}

		caps, err := parseCapabilities(de.Capabilities)
		if err != nil {
			return nil, fmt.Errorf("device %d: %w", de.ID, err)
		}
		if len(caps) == 0 {
			caps = device.DefaultCapabilitiesForKind(kind)
		}

		reg.AddDevice(&device.Device{
			ID:           de.ID,
			Name:         de.Name,
			Room:         de.Room,
			Kind:         kind,
			Capabilities: caps,
		})
	}

	seenGroup := make(map[device.GroupID]bool)
	for _, ge := range f.Groups {
		if seenGroup[ge.ID] {
			return nil, fmt.Errorf("%w: duplicate group id %d", device.ErrInvalidGroup, ge.ID)
		}
		seenGroup[ge.ID] = true
		if ge.ID < device.GroupIDBase {
			return nil, fmt.Errorf("%w: group %d below group id space 0x%04x", device.ErrInvalidGroup, ge.ID, device.GroupIDBase)
		}
		for _, mid := range ge.Members {
			if !seenDevice[mid] {
				return nil, fmt.Errorf("%w: group %d references unknown device %d", device.ErrInvalidGroup, ge.ID, mid)
			}
		}
		reg.AddGroup(&device.Group{
			ID:      ge.ID,
			Name:    ge.Name,
			Room:    ge.Room,
			Members: append([]uint8(nil), ge.Members...),
		})
	}

	return expectedEndpoints, nil
}

func validKind(k device.Kind) bool {
	for _, valid := range device.AllKinds() {
		if k == valid {
			return true
		}
	}
	return false
}

func parseCapabilities(names []string) ([]device.Capability, error) {
	out := make([]device.Capability, 0, len(names))
	for _, n := range names {
		cap := device.Capability(n)
		valid := false
		for _, c := range device.AllCapabilities() {
			if c == cap {
				valid = true
				break
			}
		}
		if !valid {
			return nil, fmt.Errorf("%w: unknown capability %q", device.ErrInvalidDevice, n)
		}
		out = append(out, cap)
	}
	return out, nil
}
