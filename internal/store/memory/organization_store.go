package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/tenantgate/internal/models"
	"github.com/wolfeidau/tenantgate/internal/store"
)

// OrganizationStore implements store.OrganizationStore using in-memory storage.
// This implementation is for testing only - data is lost on restart.
type OrganizationStore struct {
	mu sync.RWMutex

	organizations map[uuid.UUID]*models.Organization // org_id -> Organization
}

var _ store.OrganizationStore = (*OrganizationStore)(nil)

// NewOrganizationStore creates a new in-memory organization store.
func NewOrganizationStore() *OrganizationStore {
	return &OrganizationStore{
		organizations: make(map[uuid.UUID]*models.Organization),
	}
}

// Create creates a new organization in memory.
func (s *OrganizationStore) Create(ctx context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.organizations[org.OrgID]; exists {
		return store.ErrOrganizationAlreadyExists
	}

	s.organizations[org.OrgID] = cloneOrganization(org)

	return nil
}

// Get retrieves an organization by ID.
func (s *OrganizationStore) Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	org, exists := s.organizations[orgID]
	if !exists {
		return nil, store.ErrOrganizationNotFound
	}

	return cloneOrganization(org), nil
}

// Update updates an existing organization.
func (s *OrganizationStore) Update(ctx context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.organizations[org.OrgID]; !exists {
		return store.ErrOrganizationNotFound
	}

	org.UpdatedAt = time.Now()
	s.organizations[org.OrgID] = cloneOrganization(org)

	return nil
}

// GetPlanTier returns the stored plan tier.
func (s *OrganizationStore) GetPlanTier(ctx context.Context, orgID uuid.UUID) (models.PlanTier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	org, exists := s.organizations[orgID]
	if !exists {
		return "", store.ErrOrganizationNotFound
	}

	return org.PlanTier, nil
}

// GetSubscription returns the stored subscription.
func (s *OrganizationStore) GetSubscription(ctx context.Context, orgID uuid.UUID) (models.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	org, exists := s.organizations[orgID]
	if !exists {
		return models.Subscription{}, store.ErrOrganizationNotFound
	}

	return cloneOrganization(org).Subscription, nil
}

// MarkSubscriptionExpired flips a trial subscription to expired.
func (s *OrganizationStore) MarkSubscriptionExpired(ctx context.Context, orgID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	org, exists := s.organizations[orgID]
	if !exists {
		return store.ErrOrganizationNotFound
	}

	if org.Subscription.Status != models.SubscriptionTrial {
		return nil
	}

	org.Subscription.Status = models.SubscriptionExpired
	org.UpdatedAt = time.Now()

	return nil
}

// cloneOrganization copies an organization including the trial pointer so
// callers cannot modify stored state.
func cloneOrganization(org *models.Organization) *models.Organization {
	clone := *org
	if org.Subscription.TrialEndsAt != nil {
		t := *org.Subscription.TrialEndsAt
		clone.Subscription.TrialEndsAt = &t
	}
	return &clone
}
