// Package camera provides the camera capabilities an enrollment flow can open:
// a browser bridge, an HTTP snapshot camera and a still image file.
package camera

import "errors"

var (
	// ErrDenied is returned by Open when the device or the visitor refuses access.
	ErrDenied = errors.New("camera access denied")
	// ErrNoFrame is returned by Frame before any frame is available.
	ErrNoFrame = errors.New("no frame available yet")
	// ErrNotStreaming is returned when frames are pushed without an open stream.
	ErrNotStreaming = errors.New("camera is not streaming")
	// ErrStopped is returned by Frame after the stream was stopped.
	ErrStopped = errors.New("camera stream stopped")
)
