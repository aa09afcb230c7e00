package engine

import (
	"errors"

	"github.com/hubenschmidt/live-assistant/internal/vision"
)

// Connection and resource failures. The engine keeps the most recent one as
// its current error until the next successful action.
var (
	ErrPermissionDenied   = errors.New("permission denied")
	ErrMissingCredential  = errors.New("no API key configured")
	ErrAuthentication     = errors.New("API key rejected by the service")
	ErrConnectionUnstable = errors.New("connection unstable")
	ErrCameraUnavailable  = vision.ErrCameraUnavailable
	ErrAlreadyConnected   = errors.New("already connected")
	ErrNotConnected       = errors.New("not connected")
	ErrClosed             = errors.New("engine closed")
)
