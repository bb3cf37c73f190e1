package device

import (
	"errors"

	"github.com/nerrad567/cync-lan-core/internal/cyncerrors"
)

// ErrUnknownTarget re-exports cyncerrors.ErrUnknownTarget for callers that
// only import the device package.
var ErrUnknownTarget = cyncerrors.ErrUnknownTarget

// ErrBusy re-exports cyncerrors.ErrBusy.
var ErrBusy = cyncerrors.ErrBusy

// ErrInvalidDevice is returned when a roster entry fails basic validation
// (duplicate id, unknown kind, unknown capability, invalid bridge
// endpoint). A missing name is not checked.
var ErrInvalidDevice = errors.New("device: invalid")

// ErrInvalidGroup is returned when a roster group entry fails validation
// (duplicate id, id outside the group id space, unknown member).
var ErrInvalidGroup = errors.New("device: invalid group")
