package camera

import (
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/kozaktomas/visitor-desk/internal/enrollment"
	"github.com/kozaktomas/visitor-desk/internal/imaging"
)

// maxSnapshotSize bounds the body read from the camera.
const maxSnapshotSize = 20 << 20

// Snapshot is a fixed network camera exposing a still image over HTTP.
type Snapshot struct {
	URL      string
	Username string
	Password string
	Client   *http.Client
}

// NewSnapshot creates a snapshot camera with a 10 second request timeout.
func NewSnapshot(url, username, password string) *Snapshot {
	return &Snapshot{
		URL:      url,
		Username: username,
		Password: password,
		Client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Open probes the camera with one snapshot. Rejected credentials and unreachable
// devices are both reported as ErrDenied.
func (s *Snapshot) Open(ctx context.Context, c enrollment.Constraints) (enrollment.Stream, error) {
	if _, err := s.fetch(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDenied, err)
	}
	return &snapshotStream{camera: s}, nil
}

func (s *Snapshot) fetch(ctx context.Context) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	if s.Username != "" {
		req.SetBasicAuth(s.Username, s.Password)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req) //nolint:gosec // URL comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("could not reach camera: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("camera returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotSize))
	if err != nil {
		return nil, fmt.Errorf("could not read snapshot: %w", err)
	}
	img, err := imaging.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("could not decode snapshot: %w", err)
	}
	return img, nil
}

type snapshotStream struct {
	camera  *Snapshot
	stopped atomic.Bool
}

func (s *snapshotStream) Frame(ctx context.Context) (image.Image, error) {
	if s.stopped.Load() {
		return nil, ErrStopped
	}
	return s.camera.fetch(ctx)
}

func (s *snapshotStream) Stop() {
	s.stopped.Store(true)
}
