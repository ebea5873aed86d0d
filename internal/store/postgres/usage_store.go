package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wolfeidau/tenantgate/internal/models"
	"github.com/wolfeidau/tenantgate/internal/store"
)

// UsageStore implements store.UsageStore by counting rows in the business
// tables owned by an organization.
type UsageStore struct {
	pool *pgxpool.Pool
}

var _ store.UsageStore = (*UsageStore)(nil)

// NewUsageStore creates a new PostgreSQL-backed usage store.
func NewUsageStore(pool *pgxpool.Pool) *UsageStore {
	return &UsageStore{
		pool: pool,
	}
}

// usageQueries holds the count query per kind. Each takes the organization
// as $1 and optionally the window bounds as $2 and $3.
var usageQueries = map[models.ResourceKind]string{
	models.ResourceCustomer:      `SELECT count(*) FROM customers WHERE organization_id = $1`,
	models.ResourceWorkOrder:     `SELECT count(*) FROM work_orders WHERE organization_id = $1`,
	models.ResourceInventoryItem: `SELECT count(*) FROM inventory_items WHERE organization_id = $1`,
	models.ResourceUser:          `SELECT count(*) FROM profiles WHERE organization_id = $1 AND active AND deleted_at IS NULL`,
}

// Count returns how many resources of kind the organization owns.
func (s *UsageStore) Count(ctx context.Context, orgID uuid.UUID, kind models.ResourceKind, window *models.TimeWindow) (int64, error) {
	query, ok := usageQueries[kind]
	if !ok {
		return 0, fmt.Errorf("usage is not counted for %s", kind)
	}

	args := []any{orgID}
	if window != nil {
		query += ` AND created_at >= $2 AND created_at < $3`
		args = append(args, window.Start, window.End)
	}

	var n int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", kind, mapPostgresError(err))
	}

	return n, nil
}
