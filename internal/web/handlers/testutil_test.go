package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/visitor-desk/internal/camera"
	"github.com/kozaktomas/visitor-desk/internal/config"
	"github.com/kozaktomas/visitor-desk/internal/enrollment"
	"github.com/kozaktomas/visitor-desk/internal/facesvc"
	"github.com/kozaktomas/visitor-desk/internal/web/middleware"
)

// testConfig creates a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Enrollment: config.EnrollmentConfig{
			AutoCheckInDelay: time.Second,
			FrameWidth:       640,
			FrameHeight:      480,
		},
		VisitorTypes: config.VisitorTypesConfig{
			Types: []config.VisitorType{
				{Key: "regular", Label: "Visitor"},
				{Key: "contractor", Label: "Contractor"},
			},
		},
	}
}

// fakeEnroller answers scan-face requests with a fixed response
type fakeEnroller struct {
	mu       sync.Mutex
	resp     *facesvc.ScanFaceResponse
	err      error
	requests []facesvc.ScanFaceRequest
}

func (e *fakeEnroller) ScanFace(ctx context.Context, req facesvc.ScanFaceRequest) (*facesvc.ScanFaceResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requests = append(e.requests, req)
	return e.resp, e.err
}

func (e *fakeEnroller) Requests() []facesvc.ScanFaceRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]facesvc.ScanFaceRequest(nil), e.requests...)
}

// newTestManager creates a manager whose flows use browser bridges and a manual scheduler
func newTestManager(t *testing.T, enroller *fakeEnroller) (*enrollment.Manager, *enrollment.ManualScheduler) {
	t.Helper()
	scheduler := enrollment.NewManualScheduler()
	m := enrollment.NewManager(enrollment.ManagerConfig{
		Base: enrollment.Options{
			Service:   enroller,
			Scheduler: scheduler,
		},
		NewCamera: func(string) enrollment.Camera { return camera.NewBridge() },
	})
	t.Cleanup(m.Stop)
	return m, scheduler
}

// requestWithFlow creates a request with an enrollment flow in context
func requestWithFlow(t *testing.T, method, path string, body []byte, flow *enrollment.Flow) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	ctx := middleware.SetFlowInContext(req.Context(), flow)
	return req.WithContext(ctx)
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// testFrame returns a small PNG frame
func testFrame(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	img.Set(5, 5, color.White)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode frame: %v", err)
	}
	return buf.Bytes()
}

// waitFor polls cond until it holds or the deadline passes
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%v'", expectedMessage, result["error"])
	}
}
