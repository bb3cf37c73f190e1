package mqttbridge

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/cync-lan-core/internal/device"
	"github.com/nerrad567/cync-lan-core/internal/pipeline"
	"github.com/nerrad567/cync-lan-core/internal/protocol"
)

// setPayload mirrors §4.5's `/set` JSON shape:
// {"state":"ON","brightness":42,"color_temp":30,"color":{"r":,"g":,"b":},"fan_speed":"low"}.
// Every field is optional; a bare "ON"/"OFF" body is handled before this
// struct is ever unmarshalled.
type setPayload struct {
	State      *string `json:"state"`
	Brightness *int    `json:"brightness"`
	ColorTemp  *int    `json:"color_temp"`
	Color      *struct {
		R int `json:"r"`
		G int `json:"g"`
		B int `json:"b"`
	} `json:"color"`
	FanSpeed *string `json:"fan_speed"`
}

// ParseSetCommands decomposes one "/set" payload into the ordered sequence
// of single-capability pipeline commands it implies (§4.3's pipeline takes
// one capability change per Submit call). Power is ordered first so an
// "OFF" in the same payload as other fields still turns the target off;
// everything else follows in a stable, deterministic order.
func ParseSetCommands(targetID uint16, payload []byte) ([]pipeline.Command, error) {
	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" {
		return nil, ErrInvalidCommandPayload
	}

	switch strings.ToUpper(trimmed) {
	case `"ON"`, "ON":
		return []pipeline.Command{{TargetID: targetID, Capability: device.CapOnOff, On: true}}, nil
	case `"OFF"`, "OFF":
		return []pipeline.Command{{TargetID: targetID, Capability: device.CapOnOff, On: false}}, nil
	}

	var p setPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCommandPayload, err)
	}

	var cmds []pipeline.Command

	if p.State != nil {
		on, err := parseOnOff(*p.State)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, pipeline.Command{TargetID: targetID, Capability: device.CapOnOff, On: on})
	}
	if p.Brightness != nil {
		cmds = append(cmds, pipeline.Command{TargetID: targetID, Capability: device.CapBrightness, Percent: clampPercent(*p.Brightness)})
	}
	if p.ColorTemp != nil {
		cmds = append(cmds, pipeline.Command{TargetID: targetID, Capability: device.CapColorTemp, Percent: clampPercent(*p.ColorTemp)})
	}
	if p.Color != nil {
		cmds = append(cmds, pipeline.Command{
			TargetID:   targetID,
			Capability: device.CapRGB,
			RGB:        [3]byte{byte(p.Color.R), byte(p.Color.G), byte(p.Color.B)},
		})
	}
	if p.FanSpeed != nil {
		speed, err := parseFanSpeed(*p.FanSpeed)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, pipeline.Command{TargetID: targetID, Capability: device.CapFanSpeed, FanSpeed: speed})
	}

	if len(cmds) == 0 {
		return nil, ErrInvalidCommandPayload
	}
	return cmds, nil
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToUpper(s) {
	case "ON":
		return true, nil
	case "OFF":
		return false, nil
	default:
		return false, fmt.Errorf("%w: state %q", ErrInvalidCommandPayload, s)
	}
}

func parseFanSpeed(s string) (protocol.FanSpeed, error) {
	switch strings.ToLower(s) {
	case "off":
		return protocol.FanSpeedOff, nil
	case "low":
		return protocol.FanSpeedLow, nil
	case "medium":
		return protocol.FanSpeedMedium, nil
	case "high":
		return protocol.FanSpeedHigh, nil
	default:
		return 0, fmt.Errorf("%w: fan_speed %q", ErrInvalidCommandPayload, s)
	}
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// targetIDFromSetTopic extracts the numeric device/group id from a
// "<prefix>/device/<id>/set" or "<prefix>/group/<id>/set" topic.
func targetIDFromSetTopic(prefix, topic string) (uint16, bool, error) {
	devPfx := prefix + "/device/"
	grpPfx := prefix + "/group/"

	switch {
	case strings.HasPrefix(topic, devPfx):
		rest := strings.TrimSuffix(strings.TrimPrefix(topic, devPfx), "/set")
		n, err := strconv.Atoi(rest)
		if err != nil {
			return 0, false, fmt.Errorf("%w: %s", ErrUnknownCommandTopic, topic)
		}
		return uint16(n), false, nil
	case strings.HasPrefix(topic, grpPfx):
		rest := strings.TrimSuffix(strings.TrimPrefix(topic, grpPfx), "/set")
		n, err := strconv.Atoi(rest)
		if err != nil {
			return 0, false, fmt.Errorf("%w: %s", ErrUnknownCommandTopic, topic)
		}
		return uint16(n), true, nil
	default:
		return 0, false, fmt.Errorf("%w: %s", ErrUnknownCommandTopic, topic)
	}
}
