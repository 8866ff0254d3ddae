// Package enrollment implements the visitor face-enrollment flow: consent, camera
// acquisition, frame capture and submission to the face recognition service.
package enrollment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kozaktomas/visitor-desk/internal/facesvc"
	"github.com/kozaktomas/visitor-desk/internal/imaging"
	"github.com/kozaktomas/visitor-desk/internal/visitor"
)

// DefaultAutoCheckInDelay is the pause between a successful enrollment and the
// automatic check-in callback.
const DefaultAutoCheckInDelay = time.Second

// Enroller submits enrollment payloads to the face recognition service.
type Enroller interface {
	ScanFace(ctx context.Context, req facesvc.ScanFaceRequest) (*facesvc.ScanFaceResponse, error)
}

// Hooks are the downstream callbacks of a flow. Each is optional and runs
// without the flow lock held.
type Hooks struct {
	// OnAutoCheckIn runs once, AutoCheckInDelay after a successful enrollment.
	OnAutoCheckIn func()
	// OnFaceRegistered runs when the service returns a face ID.
	OnFaceRegistered func(faceID string)
	// OnClose runs when the visitor cancels the flow.
	OnClose func()
}

// Options configure a Flow. Camera and Service are required.
type Options struct {
	ID               string
	Visitor          *visitor.Info
	Camera           Camera
	Service          Enroller
	Scheduler        Scheduler
	Hooks            Hooks
	Recorder         Recorder
	Constraints      Constraints
	AutoCheckInDelay time.Duration
	JPEGQuality      int
}

// Flow is one enrollment session. It is safe for concurrent use; the lock is
// never held while waiting on the camera or the face service.
type Flow struct {
	id          string
	info        *visitor.Info
	camera      Camera
	service     Enroller
	scheduler   Scheduler
	hooks       Hooks
	recorder    Recorder
	constraints Constraints
	delay       time.Duration
	quality     int
	createdAt   time.Time
	events      EventBroadcaster

	// ctx is cancelled on close to abandon a pending camera request.
	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	step         Step
	consentGiven bool
	permission   Permission
	stream       Stream
	acquiring    bool
	generation   uint64
	submitting   bool
	enrollmentID string
	checkInTimer Timer
	checkedIn    bool
	closed       bool
	notices      []Notice
}

// NewFlow creates a flow on the consent step.
func NewFlow(opts Options) (*Flow, error) {
	if opts.Camera == nil {
		return nil, fmt.Errorf("camera is required")
	}
	if opts.Service == nil {
		return nil, fmt.Errorf("enrollment service is required")
	}
	if opts.Scheduler == nil {
		opts.Scheduler = SystemScheduler
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Constraints == (Constraints{}) {
		opts.Constraints = DefaultConstraints
	}
	if opts.AutoCheckInDelay <= 0 {
		opts.AutoCheckInDelay = DefaultAutoCheckInDelay
	}
	if opts.JPEGQuality == 0 {
		opts.JPEGQuality = imaging.DefaultJPEGQuality
	}

	ctx, cancel := context.WithCancel(context.Background())
	f := &Flow{
		id:          opts.ID,
		info:        opts.Visitor.Clone(),
		camera:      opts.Camera,
		service:     opts.Service,
		scheduler:   opts.Scheduler,
		hooks:       opts.Hooks,
		recorder:    opts.Recorder,
		constraints: opts.Constraints,
		delay:       opts.AutoCheckInDelay,
		quality:     opts.JPEGQuality,
		createdAt:   time.Now(),
		ctx:         ctx,
		cancel:      cancel,
		step:        StepConsent,
		permission:  PermissionUnknown,
	}
	f.recorder.FlowOpened()
	return f, nil
}

// ID returns the flow identifier.
func (f *Flow) ID() string { return f.id }

// Camera returns the camera the flow acquires its stream from.
func (f *Flow) Camera() Camera { return f.camera }

// CreatedAt returns when the flow was opened.
func (f *Flow) CreatedAt() time.Time { return f.createdAt }

// Subscribe returns a channel of flow events. Release it with Unsubscribe.
func (f *Flow) Subscribe() chan Event { return f.events.AddListener() }

// Unsubscribe removes a listener added by Subscribe.
func (f *Flow) Unsubscribe(ch chan Event) { f.events.RemoveListener(ch) }

// SetHooks replaces the flow's downstream callbacks.
func (f *Flow) SetHooks(h Hooks) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks = h
}

// Snapshot returns the current session state.
func (f *Flow) Snapshot() Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

// CanContinue reports whether the consent step's continue action is enabled.
func (f *Flow) CanContinue() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.canContinueLocked()
}

// CanCapture reports whether the capture action is enabled.
func (f *Flow) CanCapture() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.canCaptureLocked()
}

// SetConsent records the state of the consent checkbox.
func (f *Flow) SetConsent(given bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	if f.step != StepConsent {
		return ErrWrongStep
	}
	f.consentGiven = given
	f.publishStateLocked()
	return nil
}

// Continue is the consent step's continue action. It is rejected unless consent was given.
func (f *Flow) Continue() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	if f.step == StepConsent && !f.consentGiven {
		f.mu.Unlock()
		return ErrConsentRequired
	}
	f.mu.Unlock()
	return f.RequestConsent(true)
}

// RequestConsent moves the flow from consent to scanning when accepted is true and
// starts camera acquisition in the background. A decline is a no-op.
func (f *Flow) RequestConsent(accepted bool) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	if f.step != StepConsent {
		f.mu.Unlock()
		return ErrWrongStep
	}
	if !accepted {
		f.mu.Unlock()
		return nil
	}
	f.consentGiven = true
	f.step = StepScanning
	f.publishStateLocked()
	f.mu.Unlock()

	go func() {
		// Failures are recorded on the session as notices.
		_ = f.AcquireCamera(f.ctx)
	}()
	return nil
}

// RetryCamera repeats camera acquisition in the background after a denial.
func (f *Flow) RetryCamera() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	if f.step != StepScanning {
		return ErrWrongStep
	}
	if f.acquiring {
		return ErrCameraPending
	}
	go func() {
		_ = f.AcquireCamera(f.ctx)
	}()
	return nil
}

// AcquireCamera requests a stream from the camera and blocks until the platform
// answers. A denial leaves the flow scanning with capture disabled and a retry notice.
func (f *Flow) AcquireCamera(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	if f.step != StepScanning {
		f.mu.Unlock()
		return ErrWrongStep
	}
	if f.stream != nil {
		f.mu.Unlock()
		return nil
	}
	if f.acquiring {
		f.mu.Unlock()
		return ErrCameraPending
	}
	f.acquiring = true
	f.permission = PermissionUnknown
	f.generation++
	gen := f.generation
	f.publishStateLocked()
	f.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(f.ctx, cancel)
	defer stop()

	stream, err := f.camera.Open(ctx, f.constraints)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.acquiring = false

	if f.closed || gen != f.generation || f.step != StepScanning {
		if stream != nil {
			stream.Stop()
		}
		return ErrClosed
	}

	if err != nil {
		f.permission = PermissionDenied
		f.addNoticeLocked(NoticePermissionDenied, "Camera access was denied. Allow camera access and try again.", true)
		f.recorder.CameraResult(false)
		f.publishStateLocked()
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}

	f.stream = stream
	f.permission = PermissionGranted
	f.recorder.CameraResult(true)
	f.publishStateLocked()
	return nil
}

// CaptureFrame snapshots the current frame and submits it with the visitor metadata.
// It is rejected, not queued, while a capture is in flight or no stream is active.
func (f *Flow) CaptureFrame(ctx context.Context) error {
	f.mu.Lock()
	if err := f.beginSubmissionLocked(); err != nil {
		f.mu.Unlock()
		return err
	}
	if f.permission != PermissionGranted || f.stream == nil {
		f.mu.Unlock()
		return ErrCaptureUnavailable
	}
	f.submitting = true
	stream := f.stream
	info := visitor.WithDefaults(f.info)
	f.publishStateLocked()
	f.mu.Unlock()

	defer f.endSubmission()

	frame, err := stream.Frame(ctx)
	if err == nil {
		var uri string
		uri, err = imaging.EncodeFrame(frame, f.constraints.Width, f.constraints.Height, f.quality)
		if err == nil {
			return f.submit(ctx, facesvc.ScanFaceRequest{Image: uri, VisitorInfo: info})
		}
	}

	f.mu.Lock()
	if !f.closed {
		f.addNoticeLocked(NoticeCaptureFailed, "Could not take a picture. Please try again.", true)
	}
	f.mu.Unlock()
	return fmt.Errorf("capturing frame: %w", err)
}

// Submit sends a payload to the face recognition service. On success the flow
// completes and the automatic check-in is scheduled; on failure it stays scanning
// with a retry notice. Only one submission runs at a time, a second one gets
// ErrSubmitting. A result arriving after close is discarded.
func (f *Flow) Submit(ctx context.Context, payload facesvc.ScanFaceRequest) error {
	f.mu.Lock()
	if err := f.beginSubmissionLocked(); err != nil {
		f.mu.Unlock()
		return err
	}
	f.submitting = true
	f.publishStateLocked()
	f.mu.Unlock()

	defer f.endSubmission()
	return f.submit(ctx, payload)
}

// beginSubmissionLocked checks that a capture or submission may start now.
func (f *Flow) beginSubmissionLocked() error {
	switch {
	case f.closed:
		return ErrClosed
	case f.step != StepScanning:
		return ErrWrongStep
	case f.submitting:
		return ErrSubmitting
	}
	return nil
}

func (f *Flow) endSubmission() {
	f.mu.Lock()
	f.submitting = false
	if !f.closed {
		f.publishStateLocked()
	}
	f.mu.Unlock()
}

// submit calls the service. The caller holds the submitting flag.
func (f *Flow) submit(ctx context.Context, payload facesvc.ScanFaceRequest) error {
	start := time.Now()
	resp, err := f.service.ScanFace(ctx, payload)
	elapsed := time.Since(start)

	f.mu.Lock()
	if f.closed || f.step != StepScanning {
		closed := f.closed
		f.mu.Unlock()
		f.recorder.Submission(OutcomeDiscarded, elapsed)
		if closed {
			return ErrClosed
		}
		return ErrWrongStep
	}

	if err != nil {
		f.addNoticeLocked(NoticeTransportFailure, "Could not reach the face recognition service. Please try again.", true)
		f.mu.Unlock()
		f.recorder.Submission(OutcomeTransport, elapsed)
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	if !resp.OK() {
		msg := "Face registration failed. Please try again."
		if resp.Message != "" {
			msg = "Face registration failed: " + resp.Message
		}
		f.addNoticeLocked(NoticeServiceRejected, msg, true)
		f.mu.Unlock()
		f.recorder.Submission(OutcomeRejected, elapsed)
		return fmt.Errorf("%w: status %q", ErrServiceRejected, resp.Status)
	}

	faceID := resp.FaceID
	f.enrollmentID = faceID
	f.releaseLocked()
	f.step = StepCompleted
	f.checkInTimer = f.scheduler.AfterFunc(f.delay, f.fireAutoCheckIn)
	f.addNoticeLocked(NoticeRegistered, "Face registered successfully.", false)
	session := f.snapshotLocked()
	f.events.SendEvent(Event{Type: EventRegistered, Message: faceID, Session: &session})
	onRegistered := f.hooks.OnFaceRegistered
	f.mu.Unlock()

	f.recorder.Submission(OutcomeSuccess, elapsed)
	if onRegistered != nil {
		onRegistered(faceID)
	}
	return nil
}

// fireAutoCheckIn runs the check-in callback once, unless the flow was closed first.
func (f *Flow) fireAutoCheckIn() {
	f.mu.Lock()
	if f.closed || f.checkedIn {
		f.mu.Unlock()
		return
	}
	f.checkedIn = true
	f.checkInTimer = nil
	session := f.snapshotLocked()
	f.events.SendEvent(Event{Type: EventCheckedIn, Session: &session})
	onCheckIn := f.hooks.OnAutoCheckIn
	f.mu.Unlock()

	f.recorder.AutoCheckIn()
	if onCheckIn != nil {
		onCheckIn()
	}
}

// Release stops and discards the camera stream. Calling it again has no effect.
func (f *Flow) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.releaseLocked() && !f.closed {
		f.publishStateLocked()
	}
}

// Close is the visitor cancelling the flow from any step. It releases the camera,
// cancels a pending automatic check-in and runs OnClose once.
func (f *Flow) Close() {
	if !f.shutdown() {
		return
	}
	f.mu.Lock()
	onClose := f.hooks.OnClose
	f.mu.Unlock()
	if onClose != nil {
		onClose()
	}
}

// Dispose tears the flow down like Close but without the OnClose callback.
func (f *Flow) Dispose() {
	f.shutdown()
}

// Closed reports whether the flow was closed or disposed.
func (f *Flow) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *Flow) shutdown() bool {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return false
	}
	f.closed = true
	step := f.step
	f.releaseLocked()
	if f.checkInTimer != nil {
		f.checkInTimer.Stop()
		f.checkInTimer = nil
	}
	f.cancel()
	session := f.snapshotLocked()
	f.mu.Unlock()

	f.events.Close(Event{Type: EventClosed, Session: &session})
	f.recorder.FlowClosed(step)
	return true
}

// releaseLocked stops the stream if present and reports whether it did.
func (f *Flow) releaseLocked() bool {
	if f.stream == nil {
		return false
	}
	f.stream.Stop()
	f.stream = nil
	return true
}

func (f *Flow) canContinueLocked() bool {
	return !f.closed && f.step == StepConsent && f.consentGiven
}

func (f *Flow) canCaptureLocked() bool {
	return !f.closed && f.step == StepScanning && f.permission == PermissionGranted &&
		f.stream != nil && !f.submitting
}

func (f *Flow) addNoticeLocked(kind NoticeKind, message string, retry bool) {
	n := Notice{Kind: kind, Message: message, Retry: retry, At: time.Now()}
	f.notices = append(f.notices, n)
	if len(f.notices) > maxNotices {
		f.notices = f.notices[len(f.notices)-maxNotices:]
	}
	f.events.SendEvent(Event{Type: EventNotice, Message: message})
}

func (f *Flow) publishStateLocked() {
	session := f.snapshotLocked()
	f.events.SendEvent(Event{Type: EventState, Session: &session})
}

func (f *Flow) snapshotLocked() Session {
	notices := make([]Notice, len(f.notices))
	copy(notices, f.notices)
	return Session{
		ID:           f.id,
		Step:         f.step,
		ConsentGiven: f.consentGiven,
		Permission:   f.permission,
		CameraActive: f.stream != nil,
		Submitting:   f.submitting,
		EnrollmentID: f.enrollmentID,
		CheckedIn:    f.checkedIn,
		Closed:       f.closed,
		CanContinue:  f.canContinueLocked(),
		CanCapture:   f.canCaptureLocked(),
		Visitor:      f.info.Clone(),
		Notices:      notices,
		CreatedAt:    f.createdAt,
	}
}
