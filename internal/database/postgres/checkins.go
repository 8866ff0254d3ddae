package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/visitor-desk/internal/database"
)

// defaultCheckInLimit caps check-in listings when no limit is given.
const defaultCheckInLimit = 200

// CheckInRepository provides PostgreSQL-backed check-in storage
type CheckInRepository struct {
	pool *Pool
}

// NewCheckInRepository creates a new PostgreSQL check-in repository
func NewCheckInRepository(pool *Pool) *CheckInRepository {
	return &CheckInRepository{pool: pool}
}

// GetCheckIn retrieves a check-in by ID, returns nil if not found
func (r *CheckInRepository) GetCheckIn(ctx context.Context, id int64) (*database.CheckIn, error) {
	var c database.CheckIn
	var checkedOut sql.NullTime
	err := r.pool.QueryRow(ctx, `
		SELECT c.id, c.visitor_id, v.name, c.face_id, c.method, c.checked_in_at, c.checked_out_at
		FROM check_ins c
		JOIN visitors v ON v.id = c.visitor_id
		WHERE c.id = $1
	`, id).Scan(&c.ID, &c.VisitorID, &c.VisitorName, &c.FaceID, &c.Method, &c.CheckedInAt, &checkedOut)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get check-in: %w", err)
	}
	if checkedOut.Valid {
		c.CheckedOutAt = &checkedOut.Time
	}
	return &c, nil
}

// ListCheckIns returns check-ins newest first
func (r *CheckInRepository) ListCheckIns(ctx context.Context, activeOnly bool, limit int) ([]database.CheckIn, error) {
	if limit <= 0 {
		limit = defaultCheckInLimit
	}

	rows, err := r.pool.Query(ctx, `
		SELECT c.id, c.visitor_id, v.name, c.face_id, c.method, c.checked_in_at, c.checked_out_at
		FROM check_ins c
		JOIN visitors v ON v.id = c.visitor_id
		WHERE NOT $1 OR c.checked_out_at IS NULL
		ORDER BY c.checked_in_at DESC, c.id DESC
		LIMIT $2
	`, activeOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("list check-ins: %w", err)
	}
	defer rows.Close()

	var result []database.CheckIn
	for rows.Next() {
		var c database.CheckIn
		var checkedOut sql.NullTime
		if err := rows.Scan(&c.ID, &c.VisitorID, &c.VisitorName, &c.FaceID, &c.Method, &c.CheckedInAt, &checkedOut); err != nil {
			return nil, fmt.Errorf("scan check-in: %w", err)
		}
		if checkedOut.Valid {
			c.CheckedOutAt = &checkedOut.Time
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate check-ins: %w", err)
	}
	return result, nil
}

// SaveCheckIn inserts a check-in
func (r *CheckInRepository) SaveCheckIn(ctx context.Context, c *database.CheckIn) error {
	if c.CheckedInAt.IsZero() {
		c.CheckedInAt = time.Now().UTC()
	}

	err := r.pool.QueryRow(ctx, `
		INSERT INTO check_ins (visitor_id, face_id, method, checked_in_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, c.VisitorID, c.FaceID, c.Method, c.CheckedInAt).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("save check-in: %w", err)
	}
	return nil
}

// CheckOut ends an active check-in
func (r *CheckInRepository) CheckOut(ctx context.Context, id int64, at time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE check_ins SET checked_out_at = $2
		WHERE id = $1 AND checked_out_at IS NULL
	`, id, at)
	if err != nil {
		return fmt.Errorf("check out: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if n == 0 {
		return database.ErrNotFound
	}
	return nil
}
