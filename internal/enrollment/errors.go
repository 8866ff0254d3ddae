package enrollment

import "errors"

// Recoverable failures. Each one leaves the flow in an actionable state and adds a
// notice to the session; nothing is retried automatically.
var (
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrTransport        = errors.New("face service unreachable")
	ErrServiceRejected  = errors.New("face service rejected enrollment")
)

// Flow contract violations. These reject the action without changing state.
var (
	ErrConsentRequired    = errors.New("consent required")
	ErrCaptureUnavailable = errors.New("capture unavailable: no active camera stream")
	ErrSubmitting         = errors.New("capture already in progress")
	ErrCameraPending      = errors.New("camera request already in progress")
	ErrWrongStep          = errors.New("action not allowed in current step")
	ErrClosed             = errors.New("enrollment closed")
	ErrNotFound           = errors.New("enrollment not found")
)
