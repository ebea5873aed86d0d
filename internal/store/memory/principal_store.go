package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/wolfeidau/tenantgate/internal/models"
	"github.com/wolfeidau/tenantgate/internal/store"
)

// ProfileStore implements store.ProfileStore using in-memory storage.
// This implementation is for testing only - data is lost on restart.
type ProfileStore struct {
	mu sync.RWMutex

	profiles  map[uuid.UUID]*models.Profile  // principal_id -> Profile
	workshops map[uuid.UUID]*models.Workshop // workshop_id -> Workshop
}

var _ store.ProfileStore = (*ProfileStore)(nil)

// NewProfileStore creates a new in-memory profile store.
func NewProfileStore() *ProfileStore {
	return &ProfileStore{
		profiles:  make(map[uuid.UUID]*models.Profile),
		workshops: make(map[uuid.UUID]*models.Workshop),
	}
}

// CreateProfile stores a new profile in memory.
func (s *ProfileStore) CreateProfile(ctx context.Context, profile *models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.profiles[profile.PrincipalID]; exists {
		return store.ErrPrincipalAlreadyExists
	}

	// Clone to avoid external modifications
	clone := *profile
	if profile.OrganizationID != nil {
		id := *profile.OrganizationID
		clone.OrganizationID = &id
	}
	if profile.WorkshopID != nil {
		id := *profile.WorkshopID
		clone.WorkshopID = &id
	}
	if profile.DeletedAt != nil {
		t := *profile.DeletedAt
		clone.DeletedAt = &t
	}
	s.profiles[profile.PrincipalID] = &clone

	return nil
}

// CreateWorkshop stores a new workshop in memory.
func (s *ProfileStore) CreateWorkshop(ctx context.Context, workshop *models.Workshop) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.workshops[workshop.WorkshopID]; exists {
		return store.ErrWorkshopAlreadyExists
	}

	clone := *workshop
	s.workshops[workshop.WorkshopID] = &clone

	return nil
}

// GetPrincipalAssociation returns the organization/workshop links of a principal.
func (s *ProfileStore) GetPrincipalAssociation(ctx context.Context, principalID uuid.UUID) (*models.Association, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, exists := s.profiles[principalID]
	if !exists {
		return nil, store.ErrPrincipalNotFound
	}

	if profile.IsRevoked() {
		return nil, store.ErrPrincipalDeleted
	}

	assoc := &models.Association{}
	if profile.OrganizationID != nil {
		id := *profile.OrganizationID
		assoc.OrganizationID = &id
	}
	if profile.WorkshopID != nil {
		id := *profile.WorkshopID
		assoc.WorkshopID = &id
	}

	return assoc, nil
}

// GetWorkshopOrganization returns the organization owning the workshop.
func (s *ProfileStore) GetWorkshopOrganization(ctx context.Context, workshopID uuid.UUID) (uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	workshop, exists := s.workshops[workshopID]
	if !exists {
		return uuid.Nil, store.ErrWorkshopNotFound
	}

	return workshop.OrganizationID, nil
}
