package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/kozaktomas/visitor-desk/internal/database"
)

// pgUniqueViolation is the SQLSTATE for unique constraint violations.
const pgUniqueViolation = "23505"

// EnrollmentRepository provides PostgreSQL-backed face enrollment storage
type EnrollmentRepository struct {
	pool *Pool
}

// NewEnrollmentRepository creates a new PostgreSQL enrollment repository
func NewEnrollmentRepository(pool *Pool) *EnrollmentRepository {
	return &EnrollmentRepository{pool: pool}
}

// GetEnrollmentByFaceID retrieves an enrollment by face ID, returns nil if not found
func (r *EnrollmentRepository) GetEnrollmentByFaceID(ctx context.Context, faceID string) (*database.FaceEnrollment, error) {
	var e database.FaceEnrollment
	err := r.pool.QueryRow(ctx, `
		SELECT id, visitor_id, face_id, session_id, enrolled_at
		FROM face_enrollments
		WHERE face_id = $1
	`, faceID).Scan(&e.ID, &e.VisitorID, &e.FaceID, &e.SessionID, &e.EnrolledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get enrollment: %w", err)
	}
	return &e, nil
}

// ListEnrollments returns all enrollments of a visitor, newest first
func (r *EnrollmentRepository) ListEnrollments(ctx context.Context, visitorID string) ([]database.FaceEnrollment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, visitor_id, face_id, session_id, enrolled_at
		FROM face_enrollments
		WHERE visitor_id = $1
		ORDER BY enrolled_at DESC, id DESC
	`, visitorID)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	defer rows.Close()

	var result []database.FaceEnrollment
	for rows.Next() {
		var e database.FaceEnrollment
		if err := rows.Scan(&e.ID, &e.VisitorID, &e.FaceID, &e.SessionID, &e.EnrolledAt); err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate enrollments: %w", err)
	}
	return result, nil
}

// CountEnrollmentsByVisitors returns the number of enrollments per visitor ID
func (r *EnrollmentRepository) CountEnrollmentsByVisitors(ctx context.Context, visitorIDs []string) (map[string]int, error) {
	counts := make(map[string]int)
	if len(visitorIDs) == 0 {
		return counts, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT visitor_id, COUNT(*)
		FROM face_enrollments
		WHERE visitor_id::text = ANY($1)
		GROUP BY visitor_id
	`, pq.Array(visitorIDs))
	if err != nil {
		return nil, fmt.Errorf("count enrollments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan enrollment count: %w", err)
		}
		counts[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate enrollment counts: %w", err)
	}
	return counts, nil
}

// SaveEnrollment inserts an enrollment. Returns database.ErrConflict if the face ID is taken.
func (r *EnrollmentRepository) SaveEnrollment(ctx context.Context, e *database.FaceEnrollment) error {
	if e.EnrolledAt.IsZero() {
		e.EnrolledAt = time.Now().UTC()
	}

	err := r.pool.QueryRow(ctx, `
		INSERT INTO face_enrollments (visitor_id, face_id, session_id, enrolled_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, e.VisitorID, e.FaceID, e.SessionID, e.EnrolledAt).Scan(&e.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("save enrollment %s: %w", e.FaceID, database.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("save enrollment: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
