package enrollment

import "time"

// Submission outcomes reported to a Recorder.
const (
	OutcomeSuccess   = "success"
	OutcomeRejected  = "rejected"
	OutcomeTransport = "transport"
	OutcomeDiscarded = "discarded"
)

// Recorder receives flow measurements.
type Recorder interface {
	FlowOpened()
	FlowClosed(step Step)
	CameraResult(granted bool)
	Submission(outcome string, d time.Duration)
	AutoCheckIn()
}

type nopRecorder struct{}

func (nopRecorder) FlowOpened() {}
func (nopRecorder) FlowClosed(Step) {}
func (nopRecorder) CameraResult(bool) {}
func (nopRecorder) Submission(string, time.Duration) {}
func (nopRecorder) AutoCheckIn() {}
