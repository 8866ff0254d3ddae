package database

import (
	"time"
)

// Check-in methods
const (
	CheckInMethodFace   = "face"
	CheckInMethodManual = "manual"
)

// Visitor is a person registered at the front desk
type Visitor struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	NameNormalized string    `json:"-"` // lowercase, no diacritics; used for search
	Company        string    `json:"company"`
	Visiting       string    `json:"visiting"`
	VisitorType    string    `json:"visitorType"`
	CreatedAt      time.Time `json:"createdAt"`
}

// FaceEnrollment links a visitor to a face ID issued by the face recognition service
type FaceEnrollment struct {
	ID         int64     `json:"id"`
	VisitorID  string    `json:"visitorId"`
	FaceID     string    `json:"faceId"`
	SessionID  string    `json:"sessionId"` // enrollment flow that produced the face
	EnrolledAt time.Time `json:"enrolledAt"`
}

// CheckIn is a visitor's presence on site
type CheckIn struct {
	ID           int64      `json:"id"`
	VisitorID    string     `json:"visitorId"`
	VisitorName  string     `json:"visitorName,omitempty"` // joined from visitors on list queries
	FaceID       string     `json:"faceId,omitempty"`
	Method       string     `json:"method"`
	CheckedInAt  time.Time  `json:"checkedInAt"`
	CheckedOutAt *time.Time `json:"checkedOutAt,omitempty"`
}

// Active reports whether the visitor has not checked out yet.
func (c *CheckIn) Active() bool {
	return c.CheckedOutAt == nil
}
