package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/tenantgate/internal/models"
)

// Errors
var (
	ErrPrincipalNotFound      = errors.New("principal not found")
	ErrPrincipalAlreadyExists = errors.New("principal already exists")
	ErrPrincipalDeleted       = errors.New("principal is deleted")
	ErrWorkshopNotFound       = errors.New("workshop not found")
	ErrWorkshopAlreadyExists  = errors.New("workshop already exists")
)

// TenantDirectory answers which organization and workshop a principal
// belongs to.
type TenantDirectory interface {
	// GetPrincipalAssociation returns the stored association for a principal.
	// Returns ErrPrincipalNotFound when no profile exists and
	// ErrPrincipalDeleted when the profile was revoked.
	GetPrincipalAssociation(ctx context.Context, principalID uuid.UUID) (*models.Association, error)

	// GetWorkshopOrganization returns the organization owning a workshop.
	// Returns ErrWorkshopNotFound if the workshop doesn't exist.
	GetWorkshopOrganization(ctx context.Context, workshopID uuid.UUID) (uuid.UUID, error)
}

// ProfileStore manages the profile and workshop records the directory reads.
type ProfileStore interface {
	TenantDirectory

	// CreateProfile stores a new profile.
	// Returns ErrPrincipalAlreadyExists on a duplicate principal ID.
	CreateProfile(ctx context.Context, profile *models.Profile) error

	// CreateWorkshop stores a new workshop.
	// Returns ErrWorkshopAlreadyExists on a duplicate workshop ID.
	CreateWorkshop(ctx context.Context, workshop *models.Workshop) error
}
