package camera

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/kozaktomas/visitor-desk/internal/enrollment"
	"github.com/kozaktomas/visitor-desk/internal/imaging"
)

type decision struct {
	granted bool
	reason  string
}

// Bridge is a camera that lives in the visitor's browser. Open waits for the browser
// to report the permission outcome; frames are pushed by the browser afterwards.
type Bridge struct {
	decisions chan decision

	mu      sync.Mutex
	waiting bool
	stream  *bridgeStream
}

// NewBridge creates a bridge with no pending request.
func NewBridge() *Bridge {
	return &Bridge{decisions: make(chan decision, 1)}
}

// Open blocks until Grant or Deny is called or ctx is done. A decision reported
// before Open is kept and consumed by the next call.
func (b *Bridge) Open(ctx context.Context, c enrollment.Constraints) (enrollment.Stream, error) {
	b.mu.Lock()
	b.waiting = true
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.waiting = false
		b.mu.Unlock()
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case d := <-b.decisions:
		if !d.granted {
			if d.reason == "" {
				return nil, ErrDenied
			}
			return nil, fmt.Errorf("%w: %s", ErrDenied, d.reason)
		}
		s := &bridgeStream{bridge: b}
		b.mu.Lock()
		b.stream = s
		b.mu.Unlock()
		return s, nil
	}
}

// Grant reports that the browser obtained a video stream.
func (b *Bridge) Grant() {
	b.report(decision{granted: true})
}

// Deny reports that the browser could not obtain a video stream.
func (b *Bridge) Deny(reason string) {
	b.report(decision{reason: reason})
}

// report replaces any unread decision with d.
func (b *Bridge) report(d decision) {
	b.mu.Lock()
	defer b.mu.Unlock()
	select {
	case <-b.decisions:
	default:
	}
	b.decisions <- d
}

// Pending reports whether an Open call is waiting for the browser.
func (b *Bridge) Pending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.waiting
}

// PushFrame stores the latest frame from the browser. data is a JPEG, PNG, GIF or
// BMP image, raw or as a data URI.
func (b *Bridge) PushFrame(data []byte) error {
	img, err := imaging.DecodeUpload(data)
	if err != nil {
		return fmt.Errorf("decoding frame: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stream == nil {
		return ErrNotStreaming
	}
	b.stream.frame = img
	return nil
}

// Streaming reports whether a granted stream is open.
func (b *Bridge) Streaming() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stream != nil
}

type bridgeStream struct {
	bridge *Bridge
	frame  image.Image
	done   bool
}

func (s *bridgeStream) Frame(ctx context.Context) (image.Image, error) {
	s.bridge.mu.Lock()
	defer s.bridge.mu.Unlock()
	if s.done {
		return nil, ErrStopped
	}
	if s.frame == nil {
		return nil, ErrNoFrame
	}
	return s.frame, nil
}

func (s *bridgeStream) Stop() {
	s.bridge.mu.Lock()
	defer s.bridge.mu.Unlock()
	s.done = true
	s.frame = nil
	if s.bridge.stream == s {
		s.bridge.stream = nil
	}
}
