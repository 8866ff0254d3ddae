package camera

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kozaktomas/visitor-desk/internal/enrollment"
)

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func openAsync(ctx context.Context, b *Bridge) <-chan error {
	done := make(chan error, 1)
	go func() {
		stream, err := b.Open(ctx, enrollment.DefaultConstraints)
		if err == nil && stream == nil {
			err = errors.New("nil stream")
		}
		done <- err
	}()
	return done
}

func waitPending(t *testing.T, b *Bridge) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !b.Pending() {
		if time.Now().After(deadline) {
			t.Fatal("Open never started waiting")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestBridge_Grant(t *testing.T) {
	b := NewBridge()
	done := openAsync(context.Background(), b)
	waitPending(t, b)

	b.Grant()

	if err := <-done; err != nil {
		t.Fatalf("expected granted stream, got %v", err)
	}
	if !b.Streaming() {
		t.Error("expected bridge to be streaming")
	}
	if b.Pending() {
		t.Error("expected no pending request after grant")
	}
}

func TestBridge_Deny(t *testing.T) {
	b := NewBridge()
	done := openAsync(context.Background(), b)
	waitPending(t, b)

	b.Deny("NotAllowedError")

	err := <-done
	if !errors.Is(err, ErrDenied) {
		t.Fatalf("expected ErrDenied, got %v", err)
	}
	if b.Streaming() {
		t.Error("expected no stream after denial")
	}
}

func TestBridge_DecisionBeforeOpen(t *testing.T) {
	b := NewBridge()
	b.Deny("first")
	b.Grant()

	stream, err := b.Open(context.Background(), enrollment.DefaultConstraints)
	if err != nil {
		t.Fatalf("expected latest decision to win, got %v", err)
	}
	stream.Stop()
}

func TestBridge_OpenCancelled(t *testing.T) {
	b := NewBridge()
	ctx, cancel := context.WithCancel(context.Background())
	done := openAsync(ctx, b)
	waitPending(t, b)

	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestBridge_Frames(t *testing.T) {
	b := NewBridge()

	if err := b.PushFrame(testPNG(t)); !errors.Is(err, ErrNotStreaming) {
		t.Fatalf("expected ErrNotStreaming before grant, got %v", err)
	}

	b.Grant()
	stream, err := b.Open(context.Background(), enrollment.DefaultConstraints)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if _, err := stream.Frame(context.Background()); !errors.Is(err, ErrNoFrame) {
		t.Fatalf("expected ErrNoFrame before any push, got %v", err)
	}

	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(testPNG(t))
	if err := b.PushFrame([]byte(uri)); err != nil {
		t.Fatalf("push frame: %v", err)
	}
	frame, err := stream.Frame(context.Background())
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	if frame.Bounds().Dx() != 8 || frame.Bounds().Dy() != 6 {
		t.Errorf("unexpected frame size %v", frame.Bounds())
	}

	stream.Stop()
	stream.Stop()

	if _, err := stream.Frame(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}
	if err := b.PushFrame(testPNG(t)); !errors.Is(err, ErrNotStreaming) {
		t.Errorf("expected ErrNotStreaming after stop, got %v", err)
	}
}

func TestBridge_PushFrameRejectsGarbage(t *testing.T) {
	b := NewBridge()
	b.Grant()
	if _, err := b.Open(context.Background(), enrollment.DefaultConstraints); err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := b.PushFrame([]byte("not an image")); err == nil {
		t.Error("expected error for non-image body")
	}
}

func TestSnapshot_OpenAndFrame(t *testing.T) {
	body := testPNG(t)
	var gotUser, gotPass string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, _ = r.BasicAuth()
		w.Header().Set("Content-Type", "image/png")
		w.Write(body)
	}))
	defer server.Close()

	cam := NewSnapshot(server.URL, "kiosk", "secret")
	stream, err := cam.Open(context.Background(), enrollment.DefaultConstraints)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if gotUser != "kiosk" || gotPass != "secret" {
		t.Errorf("expected basic auth kiosk/secret, got %s/%s", gotUser, gotPass)
	}

	frame, err := stream.Frame(context.Background())
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	if frame.Bounds().Dx() != 8 {
		t.Errorf("unexpected frame width %d", frame.Bounds().Dx())
	}

	stream.Stop()
	if _, err := stream.Frame(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}
}

func TestSnapshot_Unauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := NewSnapshot(server.URL, "", "").Open(context.Background(), enrollment.DefaultConstraints)
	if !errors.Is(err, ErrDenied) {
		t.Fatalf("expected ErrDenied, got %v", err)
	}
}

func TestSnapshot_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewSnapshot(url, "", "").Open(context.Background(), enrollment.DefaultConstraints)
	if !errors.Is(err, ErrDenied) {
		t.Fatalf("expected ErrDenied, got %v", err)
	}
}

func TestStill(t *testing.T) {
	path := filepath.Join(t.TempDir(), "face.png")
	if err := os.WriteFile(path, testPNG(t), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	stream, err := NewStill(path).Open(context.Background(), enrollment.DefaultConstraints)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	frame, err := stream.Frame(context.Background())
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	if frame.Bounds().Dy() != 6 {
		t.Errorf("unexpected frame height %d", frame.Bounds().Dy())
	}
}

func TestStill_MissingFile(t *testing.T) {
	_, err := NewStill(filepath.Join(t.TempDir(), "missing.jpg")).Open(context.Background(), enrollment.DefaultConstraints)
	if !errors.Is(err, ErrDenied) {
		t.Fatalf("expected ErrDenied, got %v", err)
	}
}
