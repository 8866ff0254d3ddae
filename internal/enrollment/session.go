package enrollment

import (
	"time"

	"github.com/kozaktomas/visitor-desk/internal/visitor"
)

// Step is a screen of the enrollment flow.
type Step string

const (
	StepConsent   Step = "consent"
	StepScanning  Step = "scanning"
	StepCompleted Step = "completed"
)

// Permission is the camera permission state reported by the platform.
type Permission string

const (
	PermissionUnknown Permission = "unknown"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// NoticeKind classifies a user-visible notification.
type NoticeKind string

const (
	NoticePermissionDenied NoticeKind = "permission_denied"
	NoticeCaptureFailed    NoticeKind = "capture_failed"
	NoticeTransportFailure NoticeKind = "transport_failure"
	NoticeServiceRejected  NoticeKind = "service_rejected"
	NoticeRegistered       NoticeKind = "registered"
)

// maxNotices bounds the notice history kept per flow.
const maxNotices = 10

// Notice is a message shown to the visitor. Retry marks failures the visitor can
// recover from by repeating the action.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
	Retry   bool       `json:"retry"`
	At      time.Time  `json:"at"`
}

// Session is a point-in-time view of a flow, safe to serialize.
type Session struct {
	ID           string        `json:"id"`
	Step         Step          `json:"step"`
	ConsentGiven bool          `json:"consent_given"`
	Permission   Permission    `json:"permission"`
	CameraActive bool          `json:"camera_active"`
	Submitting   bool          `json:"submitting"`
	EnrollmentID string        `json:"enrollment_id,omitempty"`
	CheckedIn    bool          `json:"checked_in"`
	Closed       bool          `json:"closed"`
	CanContinue  bool          `json:"can_continue"`
	CanCapture   bool          `json:"can_capture"`
	Visitor      *visitor.Info `json:"visitor,omitempty"`
	Notices      []Notice      `json:"notices"`
	CreatedAt    time.Time     `json:"created_at"`
}

// LastNotice returns the most recent notice, or nil.
func (s Session) LastNotice() *Notice {
	if len(s.Notices) == 0 {
		return nil
	}
	return &s.Notices[len(s.Notices)-1]
}
