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

// ProfileStore implements store.ProfileStore using PostgreSQL.
type ProfileStore struct {
	pool *pgxpool.Pool
}

var _ store.ProfileStore = (*ProfileStore)(nil)

// NewProfileStore creates a new PostgreSQL-backed profile store.
// It shares the connection pool with other stores.
func NewProfileStore(pool *pgxpool.Pool) *ProfileStore {
	return &ProfileStore{
		pool: pool,
	}
}

// CreateProfile stores a new profile.
func (s *ProfileStore) CreateProfile(ctx context.Context, profile *models.Profile) error {
	now := time.Now()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	if profile.UpdatedAt.IsZero() {
		profile.UpdatedAt = now
	}

	query := `
		INSERT INTO profiles (
			principal_id, organization_id, workshop_id,
			full_name, role, active,
			created_at, updated_at, deleted_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
	`

	_, err := s.pool.Exec(ctx, query,
		profile.PrincipalID,
		profile.OrganizationID,
		profile.WorkshopID,
		profile.FullName,
		profile.Role,
		profile.Active,
		profile.CreatedAt,
		profile.UpdatedAt,
		profile.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("principal_id", profile.PrincipalID.String()).
		Str("role", profile.Role).
		Msg("Created profile")

	return nil
}

// CreateWorkshop stores a new workshop.
func (s *ProfileStore) CreateWorkshop(ctx context.Context, workshop *models.Workshop) error {
	now := time.Now()
	if workshop.CreatedAt.IsZero() {
		workshop.CreatedAt = now
	}
	if workshop.UpdatedAt.IsZero() {
		workshop.UpdatedAt = now
	}

	query := `
		INSERT INTO workshops (
			workshop_id, organization_id, name, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5
		)
	`

	_, err := s.pool.Exec(ctx, query,
		workshop.WorkshopID,
		workshop.OrganizationID,
		workshop.Name,
		workshop.CreatedAt,
		workshop.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create workshop: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("workshop_id", workshop.WorkshopID.String()).
		Str("organization_id", workshop.OrganizationID.String()).
		Msg("Created workshop")

	return nil
}

// GetPrincipalAssociation returns the organization/workshop links of a
// principal. Soft-deleted profiles return ErrPrincipalDeleted.
func (s *ProfileStore) GetPrincipalAssociation(ctx context.Context, principalID uuid.UUID) (*models.Association, error) {
	query := `
		SELECT organization_id, workshop_id, deleted_at
		FROM profiles
		WHERE principal_id = $1
	`

	var (
		assoc     models.Association
		deletedAt *time.Time
	)
	err := s.pool.QueryRow(ctx, query, principalID).Scan(
		&assoc.OrganizationID,
		&assoc.WorkshopID,
		&deletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("failed to get principal association: %w", mapPostgresError(err))
	}

	if deletedAt != nil {
		return nil, store.ErrPrincipalDeleted
	}

	return &assoc, nil
}

// GetWorkshopOrganization returns the organization owning the workshop.
func (s *ProfileStore) GetWorkshopOrganization(ctx context.Context, workshopID uuid.UUID) (uuid.UUID, error) {
	var orgID uuid.UUID
	err := s.pool.QueryRow(ctx,
		`SELECT organization_id FROM workshops WHERE workshop_id = $1`,
		workshopID,
	).Scan(&orgID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, store.ErrWorkshopNotFound
		}
		return uuid.Nil, fmt.Errorf("failed to get workshop organization: %w", mapPostgresError(err))
	}

	return orgID, nil
}
