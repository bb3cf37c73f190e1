package mqttbridge

import (
	"errors"

	"github.com/nerrad567/cync-lan-core/internal/cyncerrors"
)

// ErrNotConnected re-exports cyncerrors.ErrMQTTDisconnected for callers that
// only import this package.
var ErrNotConnected = cyncerrors.ErrMQTTDisconnected

var (
	// ErrConnectionFailed is returned when the initial broker connection fails.
	ErrConnectionFailed = errors.New("mqttbridge: connection failed")

	// ErrPublishFailed is returned when a publish operation fails outright
	// (as opposed to being buffered for retry while disconnected).
	ErrPublishFailed = errors.New("mqttbridge: publish failed")

	// ErrSubscribeFailed is returned when a subscribe operation fails.
	ErrSubscribeFailed = errors.New("mqttbridge: subscribe failed")

	// ErrInvalidTopic is returned when an empty topic is supplied.
	ErrInvalidTopic = errors.New("mqttbridge: topic cannot be empty")

	// ErrUnknownCommandTopic is returned when a received command topic does
	// not resolve to a known device or group (§4.5 "log and drop").
	ErrUnknownCommandTopic = errors.New("mqttbridge: unrecognised command topic")

	// ErrInvalidCommandPayload is returned when a "/set" payload is neither
	// a recognised JSON command object nor a plain ON/OFF string.
	ErrInvalidCommandPayload = errors.New("mqttbridge: invalid command payload")
)
