package enrollment

import (
	"context"
	"image"
)

// FacingUser requests the front-facing camera.
const FacingUser = "user"

// Constraints describe the requested video stream.
type Constraints struct {
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	FacingMode string `json:"facing_mode"`
}

// DefaultConstraints is an ideal 640x480 front-facing stream.
var DefaultConstraints = Constraints{Width: 640, Height: 480, FacingMode: FacingUser}

// Camera grants or denies a live video stream.
// Open blocks until the platform answers or ctx is done; any error means no stream.
type Camera interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is an owned handle to a live video stream.
type Stream interface {
	// Frame returns the current video frame.
	Frame(ctx context.Context) (image.Image, error)
	// Stop ends the stream. The flow calls it exactly once.
	Stop()
}

// CameraFunc adapts a function to the Camera interface.
type CameraFunc func(ctx context.Context, c Constraints) (Stream, error)

// Open calls fn(ctx, c).
func (fn CameraFunc) Open(ctx context.Context, c Constraints) (Stream, error) {
	return fn(ctx, c)
}
