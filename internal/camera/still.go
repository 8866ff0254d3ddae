package camera

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync/atomic"

	"github.com/kozaktomas/visitor-desk/internal/enrollment"
	"github.com/kozaktomas/visitor-desk/internal/imaging"
)

// Still serves a single image file as every frame.
type Still struct {
	Path string
}

// NewStill creates a camera backed by the image at path.
func NewStill(path string) *Still {
	return &Still{Path: path}
}

func (s *Still) Open(ctx context.Context, c enrollment.Constraints) (enrollment.Stream, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDenied, err)
	}
	img, err := imaging.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDenied, s.Path, err)
	}
	return &stillStream{img: img}, nil
}

type stillStream struct {
	img     image.Image
	stopped atomic.Bool
}

func (s *stillStream) Frame(ctx context.Context) (image.Image, error) {
	if s.stopped.Load() {
		return nil, ErrStopped
	}
	return s.img, nil
}

func (s *stillStream) Stop() {
	s.stopped.Store(true)
}
