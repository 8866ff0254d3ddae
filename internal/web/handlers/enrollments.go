package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/visitor-desk/internal/camera"
	"github.com/kozaktomas/visitor-desk/internal/config"
	"github.com/kozaktomas/visitor-desk/internal/enrollment"
	"github.com/kozaktomas/visitor-desk/internal/visitor"
	"github.com/kozaktomas/visitor-desk/internal/web/middleware"
)

// maxFrameSize bounds an uploaded camera frame.
const maxFrameSize = 10 << 20

// EnrollmentsHandler handles the visitor face-enrollment flow endpoints
type EnrollmentsHandler struct {
	config  *config.Config
	manager *enrollment.Manager
}

// NewEnrollmentsHandler creates a new enrollments handler
func NewEnrollmentsHandler(cfg *config.Config, manager *enrollment.Manager) *EnrollmentsHandler {
	return &EnrollmentsHandler{
		config:  cfg,
		manager: manager,
	}
}

// ConsentRequest is the body of the consent checkbox update
type ConsentRequest struct {
	Given bool `json:"given"`
}

// CameraReport is the browser's answer to the camera permission request
type CameraReport struct {
	Granted bool   `json:"granted"`
	Error   string `json:"error,omitempty"`
}

// flowErrorStatus maps flow errors to HTTP status codes.
func flowErrorStatus(err error) int {
	switch {
	case errors.Is(err, enrollment.ErrTransport):
		return http.StatusBadGateway
	case errors.Is(err, enrollment.ErrServiceRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, enrollment.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, enrollment.ErrConsentRequired),
		errors.Is(err, enrollment.ErrCaptureUnavailable),
		errors.Is(err, enrollment.ErrSubmitting),
		errors.Is(err, enrollment.ErrCameraPending),
		errors.Is(err, enrollment.ErrWrongStep),
		errors.Is(err, enrollment.ErrClosed),
		errors.Is(err, camera.ErrNoFrame),
		errors.Is(err, camera.ErrNotStreaming):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Create opens a new enrollment flow for the visitor in the request body.
// An empty body opens a flow with default visitor details.
func (h *EnrollmentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var info *visitor.Info
	if r.ContentLength != 0 {
		var req visitor.Info
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			respondError(w, http.StatusBadRequest, errInvalidRequestBody)
			return
		} else if err == nil {
			info = &req
		}
	}

	if info != nil && !h.config.IsKnownVisitorType(info.VisitorType) {
		respondError(w, http.StatusBadRequest, "unknown visitor type")
		return
	}

	flow, err := h.manager.Open(info)
	if err != nil {
		log.Printf("Failed to open enrollment: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to open enrollment")
		return
	}

	respondJSON(w, http.StatusCreated, flow.Snapshot())
}

// Get returns the current session state
func (h *EnrollmentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	flow := middleware.MustGetFlow(r.Context(), w)
	if flow == nil {
		return
	}
	respondJSON(w, http.StatusOK, flow.Snapshot())
}

// SetConsent records the consent checkbox state
func (h *EnrollmentsHandler) SetConsent(w http.ResponseWriter, r *http.Request) {
	flow := middleware.MustGetFlow(r.Context(), w)
	if flow == nil {
		return
	}

	var req ConsentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	if err := flow.SetConsent(req.Given); err != nil {
		respondError(w, flowErrorStatus(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, flow.Snapshot())
}

// Continue leaves the consent step and starts camera acquisition
func (h *EnrollmentsHandler) Continue(w http.ResponseWriter, r *http.Request) {
	flow := middleware.MustGetFlow(r.Context(), w)
	if flow == nil {
		return
	}

	if err := flow.Continue(); err != nil {
		respondError(w, flowErrorStatus(err), err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, flow.Snapshot())
}

// bridgeFor returns the browser bridge of a flow, writing a 409 when the flow
// uses a camera the browser does not drive.
func bridgeFor(w http.ResponseWriter, flow *enrollment.Flow) *camera.Bridge {
	bridge, ok := flow.Camera().(*camera.Bridge)
	if !ok {
		respondError(w, http.StatusConflict, "camera is not provided by the browser")
		return nil
	}
	return bridge
}

// ReportCamera receives the browser's camera permission outcome
func (h *EnrollmentsHandler) ReportCamera(w http.ResponseWriter, r *http.Request) {
	flow := middleware.MustGetFlow(r.Context(), w)
	if flow == nil {
		return
	}
	bridge := bridgeFor(w, flow)
	if bridge == nil {
		return
	}

	var req CameraReport
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	if req.Granted {
		bridge.Grant()
	} else {
		log.Printf("Enrollment %s: camera denied by browser: %s", flow.ID(), sanitizeForLog(req.Error))
		bridge.Deny(req.Error)
	}
	respondJSON(w, http.StatusAccepted, flow.Snapshot())
}

// RetryCamera repeats camera acquisition after a denial
func (h *EnrollmentsHandler) RetryCamera(w http.ResponseWriter, r *http.Request) {
	flow := middleware.MustGetFlow(r.Context(), w)
	if flow == nil {
		return
	}

	if err := flow.RetryCamera(); err != nil {
		respondError(w, flowErrorStatus(err), err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, flow.Snapshot())
}

// PushFrame stores the latest video frame from the browser
func (h *EnrollmentsHandler) PushFrame(w http.ResponseWriter, r *http.Request) {
	flow := middleware.MustGetFlow(r.Context(), w)
	if flow == nil {
		return
	}
	bridge := bridgeFor(w, flow)
	if bridge == nil {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxFrameSize+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read frame")
		return
	}
	if len(body) > maxFrameSize {
		respondError(w, http.StatusRequestEntityTooLarge, "frame too large")
		return
	}

	if err := bridge.PushFrame(body); err != nil {
		if errors.Is(err, camera.ErrNotStreaming) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Capture snapshots the current frame and submits it to the face recognition service
func (h *EnrollmentsHandler) Capture(w http.ResponseWriter, r *http.Request) {
	flow := middleware.MustGetFlow(r.Context(), w)
	if flow == nil {
		return
	}

	if err := flow.CaptureFrame(r.Context()); err != nil {
		status := flowErrorStatus(err)
		if status == http.StatusInternalServerError {
			log.Printf("Enrollment %s: capture failed: %v", flow.ID(), err)
		}
		respondJSON(w, status, map[string]any{
			"error":   err.Error(),
			"session": flow.Snapshot(),
		})
		return
	}
	respondJSON(w, http.StatusOK, flow.Snapshot())
}

// Close cancels the flow on behalf of the visitor
func (h *EnrollmentsHandler) Close(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Close(chi.URLParam(r, "id")); err != nil {
		respondError(w, flowErrorStatus(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Events streams flow events over SSE until the flow closes or the client disconnects
func (h *EnrollmentsHandler) Events(w http.ResponseWriter, r *http.Request) {
	flow := middleware.MustGetFlow(r.Context(), w)
	if flow == nil {
		return
	}

	flusher, ok := setupSSEConnection(w)
	if !ok {
		return
	}

	eventCh := flow.Subscribe()
	defer flow.Unsubscribe(eventCh)

	snapshot := flow.Snapshot()
	sendSSEEvent(w, flusher, enrollment.EventState, enrollment.Event{Type: enrollment.EventState, Session: &snapshot})

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			sendSSEEvent(w, flusher, event.Type, event)
		}
	}
}
