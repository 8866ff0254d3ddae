package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/visitor-desk/internal/database"
	"github.com/kozaktomas/visitor-desk/internal/visitor"
)

// defaultSearchLimit caps visitor search results when no limit is given.
const defaultSearchLimit = 50

// VisitorRepository provides PostgreSQL-backed visitor storage
type VisitorRepository struct {
	pool *Pool
}

// NewVisitorRepository creates a new PostgreSQL visitor repository
func NewVisitorRepository(pool *Pool) *VisitorRepository {
	return &VisitorRepository{pool: pool}
}

const visitorColumns = "id, name, name_normalized, company, visiting, visitor_type, created_at"

func scanVisitor(row interface{ Scan(dest ...any) error }) (database.Visitor, error) {
	var v database.Visitor
	err := row.Scan(&v.ID, &v.Name, &v.NameNormalized, &v.Company, &v.Visiting, &v.VisitorType, &v.CreatedAt)
	return v, err
}

// GetVisitor retrieves a visitor by ID, returns nil if not found
func (r *VisitorRepository) GetVisitor(ctx context.Context, id string) (*database.Visitor, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	v, err := scanVisitor(r.pool.QueryRow(ctx, "SELECT "+visitorColumns+" FROM visitors WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get visitor: %w", err)
	}
	return &v, nil
}

// SearchVisitors finds visitors whose normalized name contains the normalized query
func (r *VisitorRepository) SearchVisitors(ctx context.Context, query string, limit int) ([]database.Visitor, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+visitorColumns+`
		FROM visitors
		WHERE name_normalized LIKE '%' || $1 || '%'
		ORDER BY created_at DESC
		LIMIT $2
	`, escapeLike(visitor.NormalizeName(query)), limit)
	if err != nil {
		return nil, fmt.Errorf("search visitors: %w", err)
	}
	defer rows.Close()

	var result []database.Visitor
	for rows.Next() {
		v, err := scanVisitor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan visitor: %w", err)
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate visitors: %w", err)
	}
	return result, nil
}

// CountVisitors returns the total number of visitors
func (r *VisitorRepository) CountVisitors(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM visitors").Scan(&count); err != nil {
		return 0, fmt.Errorf("count visitors: %w", err)
	}
	return count, nil
}

// SaveVisitor inserts a visitor, assigning ID and CreatedAt when empty
func (r *VisitorRepository) SaveVisitor(ctx context.Context, v *database.Visitor) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	v.NameNormalized = visitor.NormalizeName(v.Name)

	_, err := r.pool.Exec(ctx, `
		INSERT INTO visitors (id, name, name_normalized, company, visiting, visitor_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			name_normalized = EXCLUDED.name_normalized,
			company = EXCLUDED.company,
			visiting = EXCLUDED.visiting,
			visitor_type = EXCLUDED.visitor_type
	`, v.ID, v.Name, v.NameNormalized, v.Company, v.Visiting, v.VisitorType, v.CreatedAt)
	if err != nil {
		return fmt.Errorf("save visitor: %w", err)
	}
	return nil
}
