package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/tenantgate/internal/models"
	"github.com/wolfeidau/tenantgate/internal/store"
	memorystore "github.com/wolfeidau/tenantgate/internal/store/memory"
	"gopkg.in/yaml.v3"
)

// fixtures seed the memory stores for local development.
type fixtures struct {
	Organizations []organizationFixture `yaml:"organizations"`
	Workshops     []workshopFixture     `yaml:"workshops"`
	Profiles      []profileFixture      `yaml:"profiles"`
	Usage         []usageFixture        `yaml:"usage"`
}

type organizationFixture struct {
	ID          uuid.UUID  `yaml:"id"`
	Name        string     `yaml:"name"`
	Plan        string     `yaml:"plan"`
	Status      string     `yaml:"subscription_status"`
	TrialEndsAt *time.Time `yaml:"trial_ends_at"`
}

type workshopFixture struct {
	ID             uuid.UUID `yaml:"id"`
	OrganizationID uuid.UUID `yaml:"organization_id"`
	Name           string    `yaml:"name"`
}

type profileFixture struct {
	PrincipalID    uuid.UUID  `yaml:"principal_id"`
	OrganizationID *uuid.UUID `yaml:"organization_id"`
	WorkshopID     *uuid.UUID `yaml:"workshop_id"`
	Role           string     `yaml:"role"`
	Inactive       bool       `yaml:"inactive"`
	Deleted        bool       `yaml:"deleted"`
}

type usageFixture struct {
	OrganizationID uuid.UUID  `yaml:"organization_id"`
	Kind           string     `yaml:"kind"`
	Count          int        `yaml:"count"`
	CreatedAt      *time.Time `yaml:"created_at"`
}

func loadFixturesFile(path string) (*fixtures, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixtures: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	fx := &fixtures{}
	if err := dec.Decode(fx); err != nil {
		return nil, fmt.Errorf("failed to decode fixtures %s: %w", path, err)
	}

	return fx, nil
}

func (fx *fixtures) apply(ctx context.Context, orgs store.OrganizationStore, profiles *memorystore.ProfileStore, usage *memorystore.UsageStore) error {
	now := time.Now()

	for _, o := range fx.Organizations {
		status := models.SubscriptionStatus(o.Status)
		if status == "" {
			status = models.SubscriptionNone
		}
		err := orgs.Create(ctx, &models.Organization{
			OrgID:    o.ID,
			Name:     o.Name,
			PlanTier: models.ParsePlanTier(o.Plan),
			Subscription: models.Subscription{
				Status:      status,
				TrialEndsAt: o.TrialEndsAt,
			},
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("organization %s: %w", o.ID, err)
		}
	}

	for _, w := range fx.Workshops {
		err := profiles.CreateWorkshop(ctx, &models.Workshop{
			WorkshopID:     w.ID,
			OrganizationID: w.OrganizationID,
			Name:           w.Name,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
		if err != nil {
			return fmt.Errorf("workshop %s: %w", w.ID, err)
		}
	}

	for _, p := range fx.Profiles {
		profile := &models.Profile{
			PrincipalID:    p.PrincipalID,
			OrganizationID: p.OrganizationID,
			WorkshopID:     p.WorkshopID,
			Role:           p.Role,
			Active:         !p.Inactive,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if p.Deleted {
			profile.DeletedAt = &now
		}
		if err := profiles.CreateProfile(ctx, profile); err != nil {
			return fmt.Errorf("profile %s: %w", p.PrincipalID, err)
		}
		if p.OrganizationID != nil && !p.Deleted {
			usage.Record(*p.OrganizationID, models.ResourceUser, now, !p.Inactive)
		}
	}

	for _, u := range fx.Usage {
		kind, err := models.ParseResourceKind(u.Kind)
		if err != nil {
			return err
		}
		createdAt := now
		if u.CreatedAt != nil {
			createdAt = *u.CreatedAt
		}
		for range u.Count {
			usage.Record(u.OrganizationID, kind, createdAt, true)
		}
	}

	return nil
}
