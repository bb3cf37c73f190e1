package protocol

// Inner command kinds: three-byte prefixes inside the 0x7E...0x7E
// envelope. POWER_TOGGLE, SET_MODE and QUERY_STATUS are the prefixes
// observed directly in capture data (§4.1); the capability prefixes below
// follow the same f8-family convention and are this codec's concrete
// choice for "additional kinds... byte layouts are data" — each has a
// dedicated encoder/decoder pair so the choice is internally consistent
// and round-trips, independent of whether it matches a specific firmware
// byte-for-byte.
var (
	PrefixPowerToggle = [3]byte{0xf8, 0xd0, 0x0d} // universal
	PrefixSetMode     = [3]byte{0xf8, 0x8e, 0x0c} // switches only
	PrefixQueryStatus = [3]byte{0xf8, 0x52, 0x06} // all kinds
	PrefixBrightness  = [3]byte{0xf8, 0xd2, 0x0e}
	PrefixColorTemp   = [3]byte{0xf8, 0xe2, 0x0e}
	PrefixRGB         = [3]byte{0xf8, 0xf2, 0x0e}
	PrefixFanSpeed    = [3]byte{0xf8, 0x9e, 0x0c}
)

// buildInner assembles the envelope's skipped 6-byte header (device_id in
// the last slot, the rest reserved/zero), the three-byte command prefix,
// and the capability-specific body. The result is passed to WrapEnvelope.
func buildInner(deviceID byte, prefix [3]byte, body ...byte) []byte {
	inner := make([]byte, 0, envelopeSkip+3+len(body))
	inner = append(inner, 0x00, 0x00, 0x00, 0x00, 0x00, deviceID)
	inner = append(inner, prefix[:]...)
	inner = append(inner, body...)
	return inner
}

// EncodePowerToggle builds the inner bytes for an on/off command.
func EncodePowerToggle(deviceID byte, on bool) []byte {
	state := byte(0x00)
	if on {
		state = 0x01
	}
	return buildInner(deviceID, PrefixPowerToggle, state)
}

// EncodeSetMode builds the inner bytes for a switch mode-set command.
func EncodeSetMode(deviceID byte, mode byte) []byte {
	return buildInner(deviceID, PrefixSetMode, mode)
}

// EncodeQueryStatus builds the inner bytes for a mesh-info / status query.
func EncodeQueryStatus(deviceID byte) []byte {
	return buildInner(deviceID, PrefixQueryStatus)
}

// EncodeBrightness builds the inner bytes for a brightness-set command.
// value is clamped to 0-100.
func EncodeBrightness(deviceID byte, value int) []byte {
	return buildInner(deviceID, PrefixBrightness, clampPercent(value))
}

// EncodeColorTemp builds the inner bytes for a color-temperature-set
// command. value is clamped to 0-100.
func EncodeColorTemp(deviceID byte, value int) []byte {
	return buildInner(deviceID, PrefixColorTemp, clampPercent(value))
}

// EncodeRGB builds the inner bytes for an RGB-set command.
func EncodeRGB(deviceID byte, r, g, b byte) []byte {
	return buildInner(deviceID, PrefixRGB, r, g, b)
}

// FanSpeed enumerates the discrete fan-speed presets §4.5 exposes as an
// MQTT preset list.
type FanSpeed byte

const (
	FanSpeedOff    FanSpeed = 0
	FanSpeedLow    FanSpeed = 1
	FanSpeedMedium FanSpeed = 2
	FanSpeedHigh   FanSpeed = 3
)

// EncodeFanSpeed builds the inner bytes for a fan-speed-set command.
func EncodeFanSpeed(deviceID byte, speed FanSpeed) []byte {
	return buildInner(deviceID, PrefixFanSpeed, byte(speed))
}

func clampPercent(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return byte(v)
}
