package database

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by updates that match no row.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique key is already taken.
	ErrConflict = errors.New("already exists")
)

// VisitorReader provides read-only access to visitors
type VisitorReader interface {
	// GetVisitor retrieves a visitor by ID, returns nil if not found
	GetVisitor(ctx context.Context, id string) (*Visitor, error)
	// SearchVisitors finds visitors whose normalized name contains the normalized query.
	// An empty query returns the most recently created visitors.
	SearchVisitors(ctx context.Context, query string, limit int) ([]Visitor, error)
	// CountVisitors returns the total number of visitors
	CountVisitors(ctx context.Context) (int, error)
}

// VisitorWriter provides write access to visitors
type VisitorWriter interface {
	VisitorReader

	// SaveVisitor inserts the visitor, assigning ID and CreatedAt when empty.
	// NameNormalized is always derived from Name.
	SaveVisitor(ctx context.Context, v *Visitor) error
}

// EnrollmentReader provides read-only access to face enrollments
type EnrollmentReader interface {
	// GetEnrollmentByFaceID retrieves an enrollment by face ID, returns nil if not found
	GetEnrollmentByFaceID(ctx context.Context, faceID string) (*FaceEnrollment, error)
	// ListEnrollments returns all enrollments of a visitor, newest first
	ListEnrollments(ctx context.Context, visitorID string) ([]FaceEnrollment, error)
	// CountEnrollmentsByVisitors returns the number of enrollments per visitor ID.
	// Visitors without enrollments are absent from the map.
	CountEnrollmentsByVisitors(ctx context.Context, visitorIDs []string) (map[string]int, error)
}

// EnrollmentWriter provides write access to face enrollments
type EnrollmentWriter interface {
	EnrollmentReader

	// SaveEnrollment inserts the enrollment. Returns ErrConflict if the face ID is already enrolled.
	SaveEnrollment(ctx context.Context, e *FaceEnrollment) error
}

// CheckInReader provides read-only access to check-ins
type CheckInReader interface {
	// GetCheckIn retrieves a check-in by ID, returns nil if not found
	GetCheckIn(ctx context.Context, id int64) (*CheckIn, error)
	// ListCheckIns returns check-ins newest first, optionally only those without a checkout
	ListCheckIns(ctx context.Context, activeOnly bool, limit int) ([]CheckIn, error)
}

// CheckInWriter provides write access to check-ins
type CheckInWriter interface {
	CheckInReader

	// SaveCheckIn inserts the check-in, assigning ID and CheckedInAt when empty
	SaveCheckIn(ctx context.Context, c *CheckIn) error
	// CheckOut marks an active check-in as ended. Returns ErrNotFound if no active check-in has the ID.
	CheckOut(ctx context.Context, id int64, at time.Time) error
}
