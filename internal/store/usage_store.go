package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/wolfeidau/tenantgate/internal/models"
)

// UsageStore counts existing resources owned by an organization.
type UsageStore interface {
	// Count returns how many resources of kind the organization owns. When
	// window is non-nil only resources created inside it are counted. Users
	// are counted only while active.
	Count(ctx context.Context, orgID uuid.UUID, kind models.ResourceKind, window *models.TimeWindow) (int64, error)
}
