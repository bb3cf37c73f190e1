package pipeline

import (
	"fmt"

	"github.com/nerrad567/cync-lan-core/internal/bridgepool"
	"github.com/nerrad567/cync-lan-core/internal/cyncerrors"
	"github.com/nerrad567/cync-lan-core/internal/device"
	"github.com/nerrad567/cync-lan-core/internal/protocol"
)

// Logger is the subset of the logging interface the pipeline needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Policy describes how a capability's commands behave when one is already
// in flight for the same target (§4.3 step 3).
type Policy int

const (
	// PolicyCoalesce cancels the prior pending callback with a superseded
	// outcome and proceeds with the new command (last-writer-wins).
	PolicyCoalesce Policy = iota
	// PolicyReject rejects the new command with ErrBusy, leaving the
	// in-flight command to complete undisturbed.
	PolicyReject
)

// policyFor returns the concurrency policy for a capability. Power and fan
// commands coalesce; brightness, color temperature and RGB reject to avoid
// visible flicker from superseding a color transition mid-flight.
func policyFor(cap device.Capability) Policy {
	switch cap {
	case device.CapOnOff, device.CapFanSpeed:
		return PolicyCoalesce
	default:
		return PolicyReject
	}
}

// Command is a broker-originated request to change one capability on a
// device or group.
type Command struct {
	TargetID   uint16
	Capability device.Capability

	On         bool
	Percent    int // brightness or color_temp, 0-100
	RGB        [3]byte
	FanSpeed   protocol.FanSpeed
}

// Pipeline wires together the device registry, the bridge pool and the
// per-bridge ACK correlator into the single entry point the MQTT bridge's
// command topics call.
type Pipeline struct {
	registry *device.Registry
	pool     *bridgepool.Pool
	logger   Logger
}

// New creates a Pipeline.
func New(registry *device.Registry, pool *bridgepool.Pool) *Pipeline {
	return &Pipeline{registry: registry, pool: pool, logger: noopLogger{}}
}

// SetLogger installs a logger; the zero value is a no-op.
func (p *Pipeline) SetLogger(logger Logger) {
	p.logger = logger
}

// Submit runs cmd through the full pipeline (§4.3 steps 1-5) and returns
// once the command has been handed to the socket, not once it is ACKed;
// completion is observed asynchronously through the registry's Notifier.
func (p *Pipeline) Submit(cmd Command) error {
	isGroup := device.IsGroupID(cmd.TargetID)

	if isGroup {
		if _, ok := p.registry.Group(device.GroupID(cmd.TargetID)); !ok {
			return fmt.Errorf("%w: group %d", cyncerrors.ErrUnknownTarget, cmd.TargetID)
		}
	} else {
		d, ok := p.registry.Device(device.ID(cmd.TargetID))
		if !ok {
			return fmt.Errorf("%w: device %d", cyncerrors.ErrUnknownTarget, cmd.TargetID)
		}
		if !d.HasCapability(cmd.Capability) {
			return fmt.Errorf("%w: device %d lacks capability %s", cyncerrors.ErrUnknownTarget, cmd.TargetID, cmd.Capability)
		}
	}

	b, err := p.pool.SelectForTarget(cmd.TargetID)
	if err != nil {
		return err
	}

	pending, err := p.registry.IsPending(cmd.TargetID)
	if err != nil {
		return err
	}
	if pending {
		switch policyFor(cmd.Capability) {
		case PolicyReject:
			return cyncerrors.ErrBusy
		case PolicyCoalesce:
			if msgID, found := b.PendingMsgIDForTarget(cmd.TargetID); found {
				b.CancelPending(msgID, cyncerrors.ErrSuperseded)
			}
		}
	}

	innerBytes := encodeInner(byte(cmd.TargetID), cmd)

	var baseline device.State
	if isGroup {
		if g, ok := p.registry.Group(device.GroupID(cmd.TargetID)); ok {
			baseline = g.State
		}
	} else {
		if d, ok := p.registry.Device(device.ID(cmd.TargetID)); ok {
			baseline = d.State
		}
	}

	if isGroup {
		if err := p.registry.SetGroupPending(device.GroupID(cmd.TargetID), true); err != nil {
			return err
		}
	} else {
		if err := p.registry.SetPending(device.ID(cmd.TargetID), true); err != nil {
			return err
		}
	}

	targetID := cmd.TargetID
	sendErr := b.Send(targetID, func(msgID [3]byte) ([]byte, error) {
		return protocol.EncodeCommand(targetID, b.QueueID, msgID, innerBytes)
	}, func() {
		p.onAck(cmd, isGroup, baseline)
	}, func(err error) {
		p.onTimeout(targetID, isGroup, err)
	})

	if sendErr != nil {
		p.onTimeout(targetID, isGroup, sendErr)
		return sendErr
	}
	return nil
}

func (p *Pipeline) onAck(cmd Command, isGroup bool, baseline device.State) {
	state := mergeOptimisticState(baseline, cmd)
	var err error
	if isGroup {
		err = p.registry.ApplyOptimisticGroupState(device.GroupID(cmd.TargetID), state)
	} else {
		err = p.registry.ApplyOptimisticState(device.ID(cmd.TargetID), state)
	}
	if err != nil {
		p.logger.Warn("pipeline: apply optimistic state failed", "target_id", cmd.TargetID, "error", err)
	}
}

func (p *Pipeline) onTimeout(targetID uint16, isGroup bool, cause error) {
	if err := p.registry.ClearPending(targetID); err != nil {
		p.logger.Warn("pipeline: clear pending failed", "target_id", targetID, "error", err)
	}
	p.logger.Debug("pipeline: command did not complete", "target_id", targetID, "group", isGroup, "cause", cause)
}

// mergeOptimisticState applies cmd's single-capability change onto baseline,
// since ApplyOptimisticState/ApplyOptimisticGroupState replace a target's
// state wholesale (§4.3 step 4) and would otherwise wipe out every field
// the command didn't touch.
func mergeOptimisticState(baseline device.State, cmd Command) device.State {
	state := baseline
	switch cmd.Capability {
	case device.CapOnOff:
		state.On = cmd.On
	case device.CapBrightness:
		state.On = true
		state.Brightness = cmd.Percent
	case device.CapColorTemp:
		state.On = true
		state.ColorTemp = cmd.Percent
	case device.CapRGB:
		state.On = true
		state.RGB = cmd.RGB
	case device.CapFanSpeed:
		state.FanSpeed = int(cmd.FanSpeed)
		state.On = cmd.FanSpeed != protocol.FanSpeedOff
	}
	return state
}

func encodeInner(deviceID byte, cmd Command) []byte {
	switch cmd.Capability {
	case device.CapOnOff:
		return protocol.EncodePowerToggle(deviceID, cmd.On)
	case device.CapBrightness:
		return protocol.EncodeBrightness(deviceID, cmd.Percent)
	case device.CapColorTemp:
		return protocol.EncodeColorTemp(deviceID, cmd.Percent)
	case device.CapRGB:
		return protocol.EncodeRGB(deviceID, cmd.RGB[0], cmd.RGB[1], cmd.RGB[2])
	case device.CapFanSpeed:
		return protocol.EncodeFanSpeed(deviceID, cmd.FanSpeed)
	default:
		return protocol.EncodeQueryStatus(deviceID)
	}
}
