// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/visitor-desk/internal/database"
	"github.com/kozaktomas/visitor-desk/internal/visitor"
)

// MockVisitorWriter is a mock implementation of database.VisitorWriter
type MockVisitorWriter struct {
	mu       sync.RWMutex
	visitors map[string]*database.Visitor

	// Error injection
	GetError    error
	SearchError error
	CountError  error
	SaveError   error
}

// NewMockVisitorWriter creates a new mock visitor repository
func NewMockVisitorWriter() *MockVisitorWriter {
	return &MockVisitorWriter{
		visitors: make(map[string]*database.Visitor),
	}
}

// AddVisitor adds a visitor to the mock store
func (m *MockVisitorWriter) AddVisitor(v database.Visitor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v.NameNormalized = visitor.NormalizeName(v.Name)
	m.visitors[v.ID] = &v
}

// GetVisitor retrieves a visitor by ID
func (m *MockVisitorWriter) GetVisitor(ctx context.Context, id string) (*database.Visitor, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.visitors[id]
	if !ok {
		return nil, nil
	}
	cp := *v
	return &cp, nil
}

// SearchVisitors finds visitors by normalized name
func (m *MockVisitorWriter) SearchVisitors(ctx context.Context, query string, limit int) ([]database.Visitor, error) {
	if m.SearchError != nil {
		return nil, m.SearchError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	needle := visitor.NormalizeName(query)
	var result []database.Visitor
	for _, v := range m.visitors {
		if strings.Contains(v.NameNormalized, needle) {
			result = append(result, *v)
		}
	}
	slices.SortFunc(result, func(a, b database.Visitor) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// CountVisitors returns the number of stored visitors
func (m *MockVisitorWriter) CountVisitors(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.visitors), nil
}

// SaveVisitor stores a visitor, assigning an ID and creation time when empty
func (m *MockVisitorWriter) SaveVisitor(ctx context.Context, v *database.Visitor) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}
	v.NameNormalized = visitor.NormalizeName(v.Name)
	cp := *v
	m.visitors[v.ID] = &cp
	return nil
}

// MockEnrollmentWriter is a mock implementation of database.EnrollmentWriter
type MockEnrollmentWriter struct {
	mu          sync.RWMutex
	enrollments []database.FaceEnrollment
	nextID      int64

	// Error injection
	GetError  error
	ListError error
	SaveError error
}

// NewMockEnrollmentWriter creates a new mock enrollment repository
func NewMockEnrollmentWriter() *MockEnrollmentWriter {
	return &MockEnrollmentWriter{nextID: 1}
}

// GetEnrollmentByFaceID retrieves an enrollment by face ID
func (m *MockEnrollmentWriter) GetEnrollmentByFaceID(ctx context.Context, faceID string) (*database.FaceEnrollment, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.enrollments {
		if e.FaceID == faceID {
			cp := e
			return &cp, nil
		}
	}
	return nil, nil
}

// ListEnrollments returns a visitor's enrollments, newest first
func (m *MockEnrollmentWriter) ListEnrollments(ctx context.Context, visitorID string) ([]database.FaceEnrollment, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []database.FaceEnrollment
	for i := len(m.enrollments) - 1; i >= 0; i-- {
		if m.enrollments[i].VisitorID == visitorID {
			result = append(result, m.enrollments[i])
		}
	}
	return result, nil
}

// CountEnrollmentsByVisitors counts enrollments per visitor
func (m *MockEnrollmentWriter) CountEnrollmentsByVisitors(ctx context.Context, visitorIDs []string) (map[string]int, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[string]int)
	for _, e := range m.enrollments {
		if slices.Contains(visitorIDs, e.VisitorID) {
			counts[e.VisitorID]++
		}
	}
	return counts, nil
}

// SaveEnrollment stores an enrollment, rejecting duplicate face IDs
func (m *MockEnrollmentWriter) SaveEnrollment(ctx context.Context, e *database.FaceEnrollment) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.enrollments {
		if existing.FaceID == e.FaceID {
			return database.ErrConflict
		}
	}
	e.ID = m.nextID
	m.nextID++
	if e.EnrolledAt.IsZero() {
		e.EnrolledAt = time.Now()
	}
	m.enrollments = append(m.enrollments, *e)
	return nil
}

// Enrollments returns a copy of all stored enrollments in insertion order
func (m *MockEnrollmentWriter) Enrollments() []database.FaceEnrollment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.enrollments)
}

// MockCheckInWriter is a mock implementation of database.CheckInWriter
type MockCheckInWriter struct {
	mu       sync.RWMutex
	checkIns []database.CheckIn
	nextID   int64

	// Error injection
	GetError      error
	ListError     error
	SaveError     error
	CheckOutError error
}

// NewMockCheckInWriter creates a new mock check-in repository
func NewMockCheckInWriter() *MockCheckInWriter {
	return &MockCheckInWriter{nextID: 1}
}

// GetCheckIn retrieves a check-in by ID
func (m *MockCheckInWriter) GetCheckIn(ctx context.Context, id int64) (*database.CheckIn, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.checkIns {
		if c.ID == id {
			cp := c
			return &cp, nil
		}
	}
	return nil, nil
}

// ListCheckIns returns check-ins newest first
func (m *MockCheckInWriter) ListCheckIns(ctx context.Context, activeOnly bool, limit int) ([]database.CheckIn, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []database.CheckIn
	for i := len(m.checkIns) - 1; i >= 0; i-- {
		c := m.checkIns[i]
		if activeOnly && !c.Active() {
			continue
		}
		result = append(result, c)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

// SaveCheckIn stores a check-in
func (m *MockCheckInWriter) SaveCheckIn(ctx context.Context, c *database.CheckIn) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = m.nextID
	m.nextID++
	if c.CheckedInAt.IsZero() {
		c.CheckedInAt = time.Now()
	}
	m.checkIns = append(m.checkIns, *c)
	return nil
}

// CheckOut ends an active check-in
func (m *MockCheckInWriter) CheckOut(ctx context.Context, id int64, at time.Time) error {
	if m.CheckOutError != nil {
		return m.CheckOutError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.checkIns {
		if m.checkIns[i].ID == id && m.checkIns[i].Active() {
			m.checkIns[i].CheckedOutAt = &at
			return nil
		}
	}
	return database.ErrNotFound
}

// CheckIns returns a copy of all stored check-ins in insertion order
func (m *MockCheckInWriter) CheckIns() []database.CheckIn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.checkIns)
}

// Register installs the mocks as the active database backend.
func Register(visitors *MockVisitorWriter, enrollments *MockEnrollmentWriter, checkIns *MockCheckInWriter) {
	database.RegisterPostgresBackend(
		func() database.VisitorWriter { return visitors },
		func() database.EnrollmentWriter { return enrollments },
		func() database.CheckInWriter { return checkIns },
	)
}
