// Package metrics exposes Prometheus metrics for enrollment flows.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/kozaktomas/visitor-desk/internal/enrollment"
)

// Metrics implements enrollment.Recorder and desk.Recorder.
type Metrics struct {
	// Flows currently open
	FlowsActive prometheus.Gauge

	// Closed flows by the step they were on
	FlowsClosed *prometheus.CounterVec

	// Camera permission outcomes
	CameraResults *prometheus.CounterVec

	// Face service submissions by outcome, with latency
	Submissions       *prometheus.CounterVec
	SubmissionLatency prometheus.Histogram

	// Automatic check-ins fired
	AutoCheckIns prometheus.Counter

	// Automatic check-ins that were not stored
	CheckInsSkipped *prometheus.CounterVec
}

// New creates the enrollment metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FlowsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "visitor_desk_enrollment_flows_active",
			Help: "Number of enrollment flows currently open",
		}),

		FlowsClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "visitor_desk_enrollment_flows_closed_total",
			Help: "Total enrollment flows closed by the step they ended on",
		}, []string{"step"}), // step: "consent", "scanning", "completed"

		CameraResults: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "visitor_desk_camera_requests_total",
			Help: "Total camera permission requests by result",
		}, []string{"result"}), // result: "granted", "denied"

		Submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "visitor_desk_face_submissions_total",
			Help: "Total face service submissions by outcome",
		}, []string{"outcome"}),

		SubmissionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "visitor_desk_face_submission_duration_seconds",
			Help:    "Duration of face service submissions",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),

		AutoCheckIns: factory.NewCounter(prometheus.CounterOpts{
			Name: "visitor_desk_auto_checkins_total",
			Help: "Total automatic check-ins after enrollment",
		}),

		CheckInsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "visitor_desk_checkins_skipped_total",
			Help: "Total automatic check-ins dropped before reaching the database",
		}, []string{"reason"}), // reason: "not_registered", "registration_failed", "checkin_failed"
	}
}

func (m *Metrics) FlowOpened() {
	if m != nil {
		m.FlowsActive.Inc()
	}
}

func (m *Metrics) FlowClosed(step enrollment.Step) {
	if m != nil {
		m.FlowsActive.Dec()
		m.FlowsClosed.WithLabelValues(string(step)).Inc()
	}
}

func (m *Metrics) CameraResult(granted bool) {
	if m == nil {
		return
	}
	result := "denied"
	if granted {
		result = "granted"
	}
	m.CameraResults.WithLabelValues(result).Inc()
}

func (m *Metrics) Submission(outcome string, d time.Duration) {
	if m != nil {
		m.Submissions.WithLabelValues(outcome).Inc()
		m.SubmissionLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) AutoCheckIn() {
	if m != nil {
		m.AutoCheckIns.Inc()
	}
}

func (m *Metrics) CheckInSkipped(reason string) {
	if m != nil {
		m.CheckInsSkipped.WithLabelValues(reason).Inc()
	}
}
