// Package desk records what happens downstream of an enrollment: registered
// visitors, their face IDs and check-ins.
package desk

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/kozaktomas/visitor-desk/internal/database"
	"github.com/kozaktomas/visitor-desk/internal/enrollment"
	"github.com/kozaktomas/visitor-desk/internal/visitor"
)

// hookTimeout bounds database work done from flow callbacks.
const hookTimeout = 10 * time.Second

// Reasons an automatic check-in was dropped.
const (
	SkipNotRegistered      = "not_registered"
	SkipRegistrationFailed = "registration_failed"
	SkipCheckInFailed      = "checkin_failed"
)

// Recorder counts automatic check-ins that never reached the database.
type Recorder interface {
	CheckInSkipped(reason string)
}

type nopRecorder struct{}

func (nopRecorder) CheckInSkipped(string) {}

// Desk persists enrollment outcomes.
type Desk struct {
	visitors    database.VisitorWriter
	enrollments database.EnrollmentWriter
	checkIns    database.CheckInWriter
	recorder    Recorder

	mu      sync.Mutex
	pending map[string]*registration // flow ID -> registration awaiting check-in
}

type registration struct {
	visitorID string
	faceID    string

	// done is set once the visitor is stored, failed when storing it failed.
	// checkInDue is set when the check-in timer fired before either.
	done       bool
	failed     bool
	checkInDue bool
}

// New creates a desk on top of the given repositories.
func New(visitors database.VisitorWriter, enrollments database.EnrollmentWriter, checkIns database.CheckInWriter) *Desk {
	return &Desk{
		visitors:    visitors,
		enrollments: enrollments,
		checkIns:    checkIns,
		recorder:    nopRecorder{},
		pending:     make(map[string]*registration),
	}
}

// SetRecorder sets where skipped check-ins are counted.
func (d *Desk) SetRecorder(r Recorder) {
	if r == nil {
		r = nopRecorder{}
	}
	d.recorder = r
}

// FromBackend creates a desk using the registered database backend.
func FromBackend(ctx context.Context) (*Desk, error) {
	visitors, err := database.GetVisitorWriter(ctx)
	if err != nil {
		return nil, fmt.Errorf("visitor repository: %w", err)
	}
	enrollments, err := database.GetEnrollmentWriter(ctx)
	if err != nil {
		return nil, fmt.Errorf("enrollment repository: %w", err)
	}
	checkIns, err := database.GetCheckInWriter(ctx)
	if err != nil {
		return nil, fmt.Errorf("check-in repository: %w", err)
	}
	return New(visitors, enrollments, checkIns), nil
}

// Register stores the visitor and links the face ID to them. A face ID that is
// already enrolled resolves to its existing visitor.
func (d *Desk) Register(ctx context.Context, sessionID string, info visitor.Info, faceID string) (*database.Visitor, error) {
	if faceID != "" {
		existing, err := d.visitorByFace(ctx, faceID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	v := &database.Visitor{
		Name:        info.Name,
		Company:     info.Company,
		Visiting:    info.Visiting,
		VisitorType: info.VisitorType,
	}
	if err := d.visitors.SaveVisitor(ctx, v); err != nil {
		return nil, fmt.Errorf("saving visitor: %w", err)
	}
	if faceID == "" {
		return v, nil
	}

	err := d.enrollments.SaveEnrollment(ctx, &database.FaceEnrollment{
		VisitorID: v.ID,
		FaceID:    faceID,
		SessionID: sessionID,
	})
	if errors.Is(err, database.ErrConflict) {
		// Enrolled concurrently by another flow.
		if existing, lookupErr := d.visitorByFace(ctx, faceID); lookupErr == nil && existing != nil {
			return existing, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("saving enrollment: %w", err)
	}
	return v, nil
}

func (d *Desk) visitorByFace(ctx context.Context, faceID string) (*database.Visitor, error) {
	e, err := d.enrollments.GetEnrollmentByFaceID(ctx, faceID)
	if err != nil {
		return nil, fmt.Errorf("looking up face %s: %w", faceID, err)
	}
	if e == nil {
		return nil, nil
	}
	v, err := d.visitors.GetVisitor(ctx, e.VisitorID)
	if err != nil {
		return nil, fmt.Errorf("looking up visitor %s: %w", e.VisitorID, err)
	}
	return v, nil
}

// CheckIn records the visitor as present.
func (d *Desk) CheckIn(ctx context.Context, visitorID, faceID, method string) (*database.CheckIn, error) {
	c := &database.CheckIn{VisitorID: visitorID, FaceID: faceID, Method: method}
	if err := d.checkIns.SaveCheckIn(ctx, c); err != nil {
		return nil, fmt.Errorf("saving check-in: %w", err)
	}
	return c, nil
}

// CheckOut ends an active check-in.
func (d *Desk) CheckOut(ctx context.Context, id int64) error {
	if err := d.checkIns.CheckOut(ctx, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("checking out %d: %w", id, err)
	}
	return nil
}

// Hooks returns the flow callbacks that register the visitor when the face service
// accepts them and check them in when the flow's delay elapses. A check-in that
// fires while the visitor is still being stored runs as soon as storing finishes.
func (d *Desk) Hooks(flow *enrollment.Flow) enrollment.Hooks {
	id := flow.ID()
	return enrollment.Hooks{
		OnFaceRegistered: func(faceID string) {
			reg := &registration{faceID: faceID}
			d.mu.Lock()
			d.pending[id] = reg
			d.mu.Unlock()

			ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
			defer cancel()

			info := visitor.WithDefaults(flow.Snapshot().Visitor)
			v, err := d.Register(ctx, id, info, faceID)

			d.mu.Lock()
			current := d.pending[id] == reg
			due := current && reg.checkInDue
			switch {
			case !current:
			case due:
				delete(d.pending, id)
			case err != nil:
				reg.failed = true
			default:
				reg.visitorID = v.ID
				reg.done = true
			}
			d.mu.Unlock()

			if err != nil {
				log.Printf("Enrollment %s: failed to register face %s: %v", id, faceID, err)
				if due {
					d.skipCheckIn(id, SkipRegistrationFailed)
				}
				return
			}
			log.Printf("Enrollment %s: face %s registered for visitor %s", id, faceID, v.ID)
			if due {
				d.autoCheckIn(id, v.ID, faceID)
			}
		},
		OnAutoCheckIn: func() {
			d.mu.Lock()
			reg, ok := d.pending[id]
			var waiting, failed bool
			var visitorID, faceID string
			switch {
			case !ok:
			case reg.failed:
				delete(d.pending, id)
				failed = true
			case !reg.done:
				reg.checkInDue = true
				waiting = true
			default:
				delete(d.pending, id)
				visitorID, faceID = reg.visitorID, reg.faceID
			}
			d.mu.Unlock()

			switch {
			case !ok:
				d.skipCheckIn(id, SkipNotRegistered)
			case failed:
				d.skipCheckIn(id, SkipRegistrationFailed)
			case waiting:
				log.Printf("Enrollment %s: check-in waits for visitor registration", id)
			default:
				d.autoCheckIn(id, visitorID, faceID)
			}
		},
		OnClose: func() {
			d.Forget(id)
			log.Printf("Enrollment %s: cancelled by visitor", id)
		},
	}
}

func (d *Desk) autoCheckIn(flowID, visitorID, faceID string) {
	ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
	defer cancel()

	c, err := d.CheckIn(ctx, visitorID, faceID, database.CheckInMethodFace)
	if err != nil {
		log.Printf("WARNING: enrollment %s: check-in failed: %v", flowID, err)
		d.recorder.CheckInSkipped(SkipCheckInFailed)
		return
	}
	log.Printf("Enrollment %s: visitor %s checked in (#%d)", flowID, visitorID, c.ID)
}

func (d *Desk) skipCheckIn(flowID, reason string) {
	log.Printf("WARNING: enrollment %s: automatic check-in skipped (%s)", flowID, reason)
	d.recorder.CheckInSkipped(reason)
}

// Forget drops any registration still waiting for check-in on the flow.
func (d *Desk) Forget(flowID string) {
	d.mu.Lock()
	delete(d.pending, flowID)
	d.mu.Unlock()
}
