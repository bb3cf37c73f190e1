package server

import "github.com/nerrad567/cync-lan-core/internal/cyncerrors"

// Re-exported for callers that only import this package.
var (
	ErrHandshakeTimeout = cyncerrors.ErrHandshakeTimeout
	ErrHandshakeInvalid = cyncerrors.ErrHandshakeInvalid
	ErrBridgeLost       = cyncerrors.ErrBridgeLost
)
