package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tenantgate/internal/models"
	"github.com/wolfeidau/tenantgate/internal/store"
)

// OrganizationStore implements store.OrganizationStore using PostgreSQL.
type OrganizationStore struct {
	pool *pgxpool.Pool
}

var _ store.OrganizationStore = (*OrganizationStore)(nil)

// NewOrganizationStore creates a new PostgreSQL-backed organization store.
// It shares the connection pool with other stores.
func NewOrganizationStore(pool *pgxpool.Pool) *OrganizationStore {
	return &OrganizationStore{
		pool: pool,
	}
}

// Create creates a new organization in the database.
func (s *OrganizationStore) Create(ctx context.Context, org *models.Organization) error {
	now := time.Now()
	if org.CreatedAt.IsZero() {
		org.CreatedAt = now
	}
	if org.UpdatedAt.IsZero() {
		org.UpdatedAt = now
	}

	query := `
		INSERT INTO organizations (
			org_id, name, owner_principal_id,
			plan_tier, subscription_status, trial_ends_at,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
	`

	_, err := s.pool.Exec(ctx, query,
		org.OrgID,
		org.Name,
		org.OwnerPrincipalID,
		string(org.PlanTier),
		subscriptionStatus(org.Subscription.Status),
		org.Subscription.TrialEndsAt,
		org.CreatedAt,
		org.UpdatedAt,
	)
	if err != nil {
		err = mapPostgresError(err)
		if errors.Is(err, store.ErrOrganizationAlreadyExists) {
			return store.ErrOrganizationAlreadyExists
		}
		return fmt.Errorf("failed to create organization: %w", err)
	}

	log.Debug().
		Str("org_id", org.OrgID.String()).
		Str("name", org.Name).
		Str("plan_tier", string(org.PlanTier)).
		Msg("Created organization")

	return nil
}

// Get retrieves an organization by ID.
func (s *OrganizationStore) Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	query := `
		SELECT org_id, name, owner_principal_id,
			plan_tier, subscription_status, trial_ends_at,
			created_at, updated_at
		FROM organizations
		WHERE org_id = $1
	`

	var (
		org    models.Organization
		tier   string
		status string
	)
	err := s.pool.QueryRow(ctx, query, orgID).Scan(
		&org.OrgID,
		&org.Name,
		&org.OwnerPrincipalID,
		&tier,
		&status,
		&org.Subscription.TrialEndsAt,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", mapPostgresError(err))
	}

	org.PlanTier = models.PlanTier(tier)
	org.Subscription.Status = models.SubscriptionStatus(status)

	return &org, nil
}

// Update updates an existing organization including its plan and subscription.
func (s *OrganizationStore) Update(ctx context.Context, org *models.Organization) error {
	org.UpdatedAt = time.Now()

	query := `
		UPDATE organizations SET
			name = $2,
			owner_principal_id = $3,
			plan_tier = $4,
			subscription_status = $5,
			trial_ends_at = $6,
			updated_at = $7
		WHERE org_id = $1
	`

	result, err := s.pool.Exec(ctx, query,
		org.OrgID,
		org.Name,
		org.OwnerPrincipalID,
		string(org.PlanTier),
		subscriptionStatus(org.Subscription.Status),
		org.Subscription.TrialEndsAt,
		org.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update organization: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrOrganizationNotFound
	}

	log.Debug().
		Str("org_id", org.OrgID.String()).
		Msg("Updated organization")

	return nil
}

// GetPlanTier returns the stored plan tier. Unknown values read as free.
func (s *OrganizationStore) GetPlanTier(ctx context.Context, orgID uuid.UUID) (models.PlanTier, error) {
	var tier string
	err := s.pool.QueryRow(ctx,
		`SELECT plan_tier FROM organizations WHERE org_id = $1`,
		orgID,
	).Scan(&tier)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", store.ErrOrganizationNotFound
		}
		return "", fmt.Errorf("failed to get plan tier: %w", mapPostgresError(err))
	}

	return models.ParsePlanTier(tier), nil
}

// GetSubscription returns the stored subscription.
func (s *OrganizationStore) GetSubscription(ctx context.Context, orgID uuid.UUID) (models.Subscription, error) {
	var (
		sub    models.Subscription
		status string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT subscription_status, trial_ends_at FROM organizations WHERE org_id = $1`,
		orgID,
	).Scan(&status, &sub.TrialEndsAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Subscription{}, store.ErrOrganizationNotFound
		}
		return models.Subscription{}, fmt.Errorf("failed to get subscription: %w", mapPostgresError(err))
	}

	sub.Status = models.SubscriptionStatus(status)

	return sub, nil
}

// MarkSubscriptionExpired flips a trial subscription to expired. Rows not in
// the trial state are left alone.
func (s *OrganizationStore) MarkSubscriptionExpired(ctx context.Context, orgID uuid.UUID) error {
	query := `
		UPDATE organizations SET
			subscription_status = 'expired',
			updated_at = now()
		WHERE org_id = $1 AND subscription_status = 'trial'
	`

	result, err := s.pool.Exec(ctx, query, orgID)
	if err != nil {
		return fmt.Errorf("failed to expire subscription: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		var exists bool
		err := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM organizations WHERE org_id = $1)`,
			orgID,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check organization: %w", mapPostgresError(err))
		}
		if !exists {
			return store.ErrOrganizationNotFound
		}
		return nil
	}

	log.Info().
		Str("org_id", orgID.String()).
		Msg("Expired lapsed trial subscription")

	return nil
}

func subscriptionStatus(status models.SubscriptionStatus) string {
	if status == "" {
		return string(models.SubscriptionNone)
	}
	return string(status)
}
