package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/visitor-desk/internal/camera"
	"github.com/kozaktomas/visitor-desk/internal/enrollment"
	"github.com/kozaktomas/visitor-desk/internal/facesvc"
	"github.com/kozaktomas/visitor-desk/internal/web/middleware"
)

func successEnroller() *fakeEnroller {
	return &fakeEnroller{resp: &facesvc.ScanFaceResponse{Status: facesvc.StatusSuccess, FaceID: "face-123"}}
}

// openScanningFlow opens a flow and drives it to scanning with a granted browser camera
func openScanningFlow(t *testing.T, m *enrollment.Manager) (*enrollment.Flow, *camera.Bridge) {
	t.Helper()
	flow, err := m.Open(nil)
	if err != nil {
		t.Fatalf("failed to open flow: %v", err)
	}
	if err := flow.SetConsent(true); err != nil {
		t.Fatalf("failed to set consent: %v", err)
	}
	if err := flow.Continue(); err != nil {
		t.Fatalf("failed to continue: %v", err)
	}

	bridge := flow.Camera().(*camera.Bridge)
	waitFor(t, bridge.Pending)
	bridge.Grant()
	waitFor(t, func() bool { return flow.Snapshot().CameraActive })
	return flow, bridge
}

func TestFlowErrorStatus(t *testing.T) {
	tests := []struct {
		err      error
		expected int
	}{
		{fmt.Errorf("%w: dial tcp", enrollment.ErrTransport), http.StatusBadGateway},
		{fmt.Errorf("%w: status \"error\"", enrollment.ErrServiceRejected), http.StatusUnprocessableEntity},
		{enrollment.ErrNotFound, http.StatusNotFound},
		{enrollment.ErrConsentRequired, http.StatusConflict},
		{enrollment.ErrCaptureUnavailable, http.StatusConflict},
		{enrollment.ErrSubmitting, http.StatusConflict},
		{enrollment.ErrCameraPending, http.StatusConflict},
		{enrollment.ErrWrongStep, http.StatusConflict},
		{enrollment.ErrClosed, http.StatusConflict},
		{fmt.Errorf("capturing frame: %w", camera.ErrNoFrame), http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := flowErrorStatus(tt.err); got != tt.expected {
				t.Errorf("flowErrorStatus(%v) = %d, want %d", tt.err, got, tt.expected)
			}
		})
	}
}

func TestEnrollmentsHandler_Create_EmptyBody(t *testing.T) {
	m, _ := newTestManager(t, successEnroller())
	handler := NewEnrollmentsHandler(testConfig(), m)

	req := httptest.NewRequest("POST", "/api/v1/enrollments", nil)
	recorder := httptest.NewRecorder()

	handler.Create(recorder, req)

	assertStatusCode(t, recorder, http.StatusCreated)

	var session enrollment.Session
	parseJSONResponse(t, recorder, &session)

	if session.Step != enrollment.StepConsent {
		t.Errorf("expected step '%s', got '%s'", enrollment.StepConsent, session.Step)
	}
	if session.CanContinue {
		t.Error("expected continue to be disabled before consent")
	}
	if m.Get(session.ID) == nil {
		t.Error("expected flow to be registered with the manager")
	}
}

func TestEnrollmentsHandler_Create_WithVisitor(t *testing.T) {
	m, _ := newTestManager(t, successEnroller())
	handler := NewEnrollmentsHandler(testConfig(), m)

	body := `{"name":"Jana Nováková","company":"Acme","visiting":"Petr","visitorType":"contractor"}`
	req := httptest.NewRequest("POST", "/api/v1/enrollments", strings.NewReader(body))
	recorder := httptest.NewRecorder()

	handler.Create(recorder, req)

	assertStatusCode(t, recorder, http.StatusCreated)

	var session enrollment.Session
	parseJSONResponse(t, recorder, &session)

	if session.Visitor == nil || session.Visitor.Name != "Jana Nováková" || session.Visitor.VisitorType != "contractor" {
		t.Errorf("unexpected visitor %+v", session.Visitor)
	}
}

func TestEnrollmentsHandler_Create_UnknownVisitorType(t *testing.T) {
	m, _ := newTestManager(t, successEnroller())
	handler := NewEnrollmentsHandler(testConfig(), m)

	req := httptest.NewRequest("POST", "/api/v1/enrollments", strings.NewReader(`{"visitorType":"janitor"}`))
	recorder := httptest.NewRecorder()

	handler.Create(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, "unknown visitor type")
	if m.Len() != 0 {
		t.Errorf("expected no flows, got %d", m.Len())
	}
}

func TestEnrollmentsHandler_Create_BlankVisitorTypeAccepted(t *testing.T) {
	m, _ := newTestManager(t, successEnroller())
	handler := NewEnrollmentsHandler(testConfig(), m)

	req := httptest.NewRequest("POST", "/api/v1/enrollments", strings.NewReader(`{"name":"Jana","visitorType":"   "}`))
	recorder := httptest.NewRecorder()

	handler.Create(recorder, req)

	assertStatusCode(t, recorder, http.StatusCreated)
	if m.Len() != 1 {
		t.Errorf("expected one flow, got %d", m.Len())
	}
}

func TestEnrollmentsHandler_Create_InvalidJSON(t *testing.T) {
	m, _ := newTestManager(t, successEnroller())
	handler := NewEnrollmentsHandler(testConfig(), m)

	req := httptest.NewRequest("POST", "/api/v1/enrollments", strings.NewReader("{not json"))
	recorder := httptest.NewRecorder()

	handler.Create(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, errInvalidRequestBody)
}

func TestEnrollmentsHandler_Get_NoFlowInContext(t *testing.T) {
	m, _ := newTestManager(t, successEnroller())
	handler := NewEnrollmentsHandler(testConfig(), m)

	req := httptest.NewRequest("GET", "/api/v1/enrollments/x", nil)
	recorder := httptest.NewRecorder()

	handler.Get(recorder, req)

	assertStatusCode(t, recorder, http.StatusInternalServerError)
}

func TestEnrollmentsHandler_SetConsent(t *testing.T) {
	m, _ := newTestManager(t, successEnroller())
	handler := NewEnrollmentsHandler(testConfig(), m)
	flow, _ := m.Open(nil)

	req := requestWithFlow(t, "PUT", "/api/v1/enrollments/"+flow.ID()+"/consent", []byte(`{"given":true}`), flow)
	recorder := httptest.NewRecorder()

	handler.SetConsent(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	var session enrollment.Session
	parseJSONResponse(t, recorder, &session)
	if !session.ConsentGiven || !session.CanContinue {
		t.Errorf("expected consent given and continue enabled, got %+v", session)
	}
}

func TestEnrollmentsHandler_SetConsent_InvalidBody(t *testing.T) {
	m, _ := newTestManager(t, successEnroller())
	handler := NewEnrollmentsHandler(testConfig(), m)
	flow, _ := m.Open(nil)

	req := requestWithFlow(t, "PUT", "/api/v1/enrollments/"+flow.ID()+"/consent", []byte(`nope`), flow)
	recorder := httptest.NewRecorder()

	handler.SetConsent(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadRequest)
}

func TestEnrollmentsHandler_Continue_WithoutConsent(t *testing.T) {
	m, _ := newTestManager(t, successEnroller())
	handler := NewEnrollmentsHandler(testConfig(), m)
	flow, _ := m.Open(nil)

	req := requestWithFlow(t, "POST", "/api/v1/enrollments/"+flow.ID()+"/continue", nil, flow)
	recorder := httptest.NewRecorder()

	handler.Continue(recorder, req)

	assertStatusCode(t, recorder, http.StatusConflict)
	assertJSONError(t, recorder, enrollment.ErrConsentRequired.Error())
	if flow.Snapshot().Step != enrollment.StepConsent {
		t.Error("expected flow to stay on consent")
	}
}

func TestEnrollmentsHandler_Continue_StartsScanning(t *testing.T) {
	m, _ := newTestManager(t, successEnroller())
	handler := NewEnrollmentsHandler(testConfig(), m)
	flow, _ := m.Open(nil)
	_ = flow.SetConsent(true)

	req := requestWithFlow(t, "POST", "/api/v1/enrollments/"+flow.ID()+"/continue", nil, flow)
	recorder := httptest.NewRecorder()

	handler.Continue(recorder, req)

	assertStatusCode(t, recorder, http.StatusAccepted)

	var session enrollment.Session
	parseJSONResponse(t, recorder, &session)
	if session.Step != enrollment.StepScanning {
		t.Errorf("expected step '%s', got '%s'", enrollment.StepScanning, session.Step)
	}

	bridge := flow.Camera().(*camera.Bridge)
	waitFor(t, bridge.Pending)
}

func TestEnrollmentsHandler_ReportCamera_Granted(t *testing.T) {
	m, _ := newTestManager(t, successEnroller())
	handler := NewEnrollmentsHandler(testConfig(), m)
	flow, _ := m.Open(nil)
	_ = flow.SetConsent(true)
	_ = flow.Continue()

	req := requestWithFlow(t, "POST", "/api/v1/enrollments/"+flow.ID()+"/camera", []byte(`{"granted":true}`), flow)
	recorder := httptest.NewRecorder()

	handler.ReportCamera(recorder, req)

	assertStatusCode(t, recorder, http.StatusAccepted)
	waitFor(t, func() bool { return flow.Snapshot().Permission == enrollment.PermissionGranted })
}

func TestEnrollmentsHandler_ReportCamera_DeniedThenRetry(t *testing.T) {
	m, _ := newTestManager(t, successEnroller())
	handler := NewEnrollmentsHandler(testConfig(), m)
	flow, _ := m.Open(nil)
	_ = flow.SetConsent(true)
	_ = flow.Continue()

	req := requestWithFlow(t, "POST", "/api/v1/enrollments/"+flow.ID()+"/camera",
		[]byte(`{"granted":false,"error":"NotAllowedError"}`), flow)
	recorder := httptest.NewRecorder()

	handler.ReportCamera(recorder, req)

	assertStatusCode(t, recorder, http.StatusAccepted)
	waitFor(t, func() bool { return flow.Snapshot().Permission == enrollment.PermissionDenied })

	session := flow.Snapshot()
	if session.CanCapture {
		t.Error("expected capture to be disabled after denial")
	}
	if n := session.LastNotice(); n == nil || n.Kind != enrollment.NoticePermissionDenied || !n.Retry {
		t.Errorf("expected retryable permission notice, got %+v", n)
	}

	req = requestWithFlow(t, "POST", "/api/v1/enrollments/"+flow.ID()+"/camera/retry", nil, flow)
	recorder = httptest.NewRecorder()

	handler.RetryCamera(recorder, req)

	assertStatusCode(t, recorder, http.StatusAccepted)

	bridge := flow.Camera().(*camera.Bridge)
	waitFor(t, bridge.Pending)
	bridge.Grant()
	waitFor(t, func() bool { return flow.Snapshot().CanCapture })
}

func TestEnrollmentsHandler_ReportCamera_NotBrowserCamera(t *testing.T) {
	fixed := enrollment.CameraFunc(func(ctx context.Context, c enrollment.Constraints) (enrollment.Stream, error) {
		return nil, camera.ErrDenied
	})
	m := enrollment.NewManager(enrollment.ManagerConfig{
		Base:      enrollment.Options{Service: successEnroller()},
		NewCamera: func(string) enrollment.Camera { return fixed },
	})
	t.Cleanup(m.Stop)
	handler := NewEnrollmentsHandler(testConfig(), m)
	flow, _ := m.Open(nil)

	req := requestWithFlow(t, "POST", "/api/v1/enrollments/"+flow.ID()+"/camera", []byte(`{"granted":true}`), flow)
	recorder := httptest.NewRecorder()

	handler.ReportCamera(recorder, req)

	assertStatusCode(t, recorder, http.StatusConflict)
	assertJSONError(t, recorder, "camera is not provided by the browser")
}

func TestEnrollmentsHandler_PushFrame(t *testing.T) {
	m, _ := newTestManager(t, successEnroller())
	handler := NewEnrollmentsHandler(testConfig(), m)
	flow, _ := openScanningFlow(t, m)

	req := requestWithFlow(t, "POST", "/api/v1/enrollments/"+flow.ID()+"/frame", testFrame(t), flow)
	recorder := httptest.NewRecorder()

	handler.PushFrame(recorder, req)

	assertStatusCode(t, recorder, http.StatusNoContent)
}

func TestEnrollmentsHandler_PushFrame_Garbage(t *testing.T) {
	m, _ := newTestManager(t, successEnroller())
	handler := NewEnrollmentsHandler(testConfig(), m)
	flow, _ := openScanningFlow(t, m)

	req := requestWithFlow(t, "POST", "/api/v1/enrollments/"+flow.ID()+"/frame", []byte("not an image"), flow)
	recorder := httptest.NewRecorder()

	handler.PushFrame(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadRequest)
}

func TestEnrollmentsHandler_PushFrame_NotStreaming(t *testing.T) {
	m, _ := newTestManager(t, successEnroller())
	handler := NewEnrollmentsHandler(testConfig(), m)
	flow, _ := m.Open(nil)

	req := requestWithFlow(t, "POST", "/api/v1/enrollments/"+flow.ID()+"/frame", testFrame(t), flow)
	recorder := httptest.NewRecorder()

	handler.PushFrame(recorder, req)

	assertStatusCode(t, recorder, http.StatusConflict)
}

func TestEnrollmentsHandler_Capture_Success(t *testing.T) {
	enroller := successEnroller()
	m, scheduler := newTestManager(t, enroller)
	handler := NewEnrollmentsHandler(testConfig(), m)
	flow, bridge := openScanningFlow(t, m)
	if err := bridge.PushFrame(testFrame(t)); err != nil {
		t.Fatalf("failed to push frame: %v", err)
	}

	req := requestWithFlow(t, "POST", "/api/v1/enrollments/"+flow.ID()+"/capture", nil, flow)
	recorder := httptest.NewRecorder()

	handler.Capture(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	var session enrollment.Session
	parseJSONResponse(t, recorder, &session)
	if session.Step != enrollment.StepCompleted {
		t.Errorf("expected step '%s', got '%s'", enrollment.StepCompleted, session.Step)
	}
	if session.EnrollmentID != "face-123" {
		t.Errorf("expected enrollment ID 'face-123', got '%s'", session.EnrollmentID)
	}
	if session.CameraActive {
		t.Error("expected camera to be released after success")
	}

	requests := enroller.Requests()
	if len(requests) != 1 {
		t.Fatalf("expected 1 scan-face request, got %d", len(requests))
	}
	if !strings.HasPrefix(requests[0].Image, "data:image/jpeg;base64,") {
		t.Errorf("expected JPEG data URI, got %.40s", requests[0].Image)
	}
	if requests[0].VisitorInfo.VisitorType != "regular" {
		t.Errorf("expected default visitor type 'regular', got '%s'", requests[0].VisitorInfo.VisitorType)
	}

	scheduler.Advance(time.Second)
	if !flow.Snapshot().CheckedIn {
		t.Error("expected automatic check-in after the delay")
	}
}

func TestEnrollmentsHandler_Capture_NoFrameYet(t *testing.T) {
	m, _ := newTestManager(t, successEnroller())
	handler := NewEnrollmentsHandler(testConfig(), m)
	flow, _ := openScanningFlow(t, m)

	req := requestWithFlow(t, "POST", "/api/v1/enrollments/"+flow.ID()+"/capture", nil, flow)
	recorder := httptest.NewRecorder()

	handler.Capture(recorder, req)

	assertStatusCode(t, recorder, http.StatusConflict)

	var result struct {
		Error   string             `json:"error"`
		Session enrollment.Session `json:"session"`
	}
	parseJSONResponse(t, recorder, &result)
	if result.Session.Step != enrollment.StepScanning || result.Session.Submitting {
		t.Errorf("expected scanning and not submitting, got %+v", result.Session)
	}
}

func TestEnrollmentsHandler_Capture_Rejected(t *testing.T) {
	enroller := &fakeEnroller{resp: &facesvc.ScanFaceResponse{Status: "error", Message: "no face detected"}}
	m, _ := newTestManager(t, enroller)
	handler := NewEnrollmentsHandler(testConfig(), m)
	flow, bridge := openScanningFlow(t, m)
	_ = bridge.PushFrame(testFrame(t))

	req := requestWithFlow(t, "POST", "/api/v1/enrollments/"+flow.ID()+"/capture", nil, flow)
	recorder := httptest.NewRecorder()

	handler.Capture(recorder, req)

	assertStatusCode(t, recorder, http.StatusUnprocessableEntity)

	session := flow.Snapshot()
	if session.Step != enrollment.StepScanning || !session.CanCapture {
		t.Errorf("expected scanning with capture enabled, got %+v", session)
	}
	if n := session.LastNotice(); n == nil || n.Kind != enrollment.NoticeServiceRejected {
		t.Errorf("expected service rejected notice, got %+v", n)
	}
}

func TestEnrollmentsHandler_Capture_TransportFailure(t *testing.T) {
	enroller := &fakeEnroller{err: errors.New("connection refused")}
	m, _ := newTestManager(t, enroller)
	handler := NewEnrollmentsHandler(testConfig(), m)
	flow, bridge := openScanningFlow(t, m)
	_ = bridge.PushFrame(testFrame(t))

	req := requestWithFlow(t, "POST", "/api/v1/enrollments/"+flow.ID()+"/capture", nil, flow)
	recorder := httptest.NewRecorder()

	handler.Capture(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadGateway)
	if n := flow.Snapshot().LastNotice(); n == nil || n.Kind != enrollment.NoticeTransportFailure || !n.Retry {
		t.Errorf("expected retryable transport notice, got %+v", n)
	}
}

func TestEnrollmentsHandler_Close(t *testing.T) {
	m, _ := newTestManager(t, successEnroller())
	handler := NewEnrollmentsHandler(testConfig(), m)
	flow, _ := openScanningFlow(t, m)

	req := requestWithChiParams(httptest.NewRequest("DELETE", "/api/v1/enrollments/"+flow.ID(), nil),
		map[string]string{"id": flow.ID()})
	recorder := httptest.NewRecorder()

	handler.Close(recorder, req)

	assertStatusCode(t, recorder, http.StatusNoContent)
	if !flow.Closed() {
		t.Error("expected flow to be closed")
	}
	if m.Get(flow.ID()) != nil {
		t.Error("expected flow to be removed from the manager")
	}

	recorder = httptest.NewRecorder()
	handler.Close(recorder, req)
	assertStatusCode(t, recorder, http.StatusNotFound)
}

func TestEnrollmentsHandler_Events(t *testing.T) {
	m, _ := newTestManager(t, successEnroller())
	handler := NewEnrollmentsHandler(testConfig(), m)
	flow, _ := m.Open(nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest("GET", "/api/v1/enrollments/"+flow.ID()+"/events", nil)
	req = req.WithContext(middleware.SetFlowInContext(ctx, flow))
	recorder := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		handler.Events(recorder, req)
		close(done)
	}()

	// Closing the flow ends the stream after the final event.
	time.Sleep(50 * time.Millisecond)
	_ = m.Close(flow.ID())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("event stream did not end after close")
	}

	body := recorder.Body.String()
	if recorder.Header().Get("Content-Type") != "text/event-stream" {
		t.Errorf("expected event stream content type, got '%s'", recorder.Header().Get("Content-Type"))
	}
	if !strings.HasPrefix(body, "event: "+enrollment.EventState+"\n") {
		t.Errorf("expected initial state event, got %q", body)
	}
	if !strings.Contains(body, "event: "+enrollment.EventClosed+"\n") {
		t.Errorf("expected closed event, got %q", body)
	}
}
