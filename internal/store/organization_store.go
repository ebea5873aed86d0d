package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/tenantgate/internal/models"
)

// Sentinel errors for organization store operations
var (
	ErrOrganizationNotFound      = errors.New("organization not found")
	ErrOrganizationAlreadyExists = errors.New("organization already exists")
)

// OrganizationStore defines the interface for organization storage operations.
// Organizations own the plan tier and subscription used for limit checks.
type OrganizationStore interface {
	// Create creates a new organization in the store.
	// Returns ErrOrganizationAlreadyExists if an organization with the same ID already exists.
	Create(ctx context.Context, org *models.Organization) error

	// Get retrieves an organization by ID.
	// Returns ErrOrganizationNotFound if the organization doesn't exist.
	Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error)

	// Update updates an existing organization.
	// Returns ErrOrganizationNotFound if the organization doesn't exist.
	Update(ctx context.Context, org *models.Organization) error

	// GetPlanTier returns the stored plan tier of the organization.
	GetPlanTier(ctx context.Context, orgID uuid.UUID) (models.PlanTier, error)

	// GetSubscription returns the stored subscription of the organization.
	GetSubscription(ctx context.Context, orgID uuid.UUID) (models.Subscription, error)

	// MarkSubscriptionExpired flips a lapsed trial to expired. It only
	// touches subscriptions still in the trial state.
	MarkSubscriptionExpired(ctx context.Context, orgID uuid.UUID) error
}
