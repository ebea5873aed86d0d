//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/wolfeidau/tenantgate/internal/models"
	"github.com/wolfeidau/tenantgate/internal/store"
)

func setupPostgresContainer(t *testing.T, ctx context.Context) (*pgxpool.Pool, func()) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	pool, err := NewPool(ctx, &PoolConfig{
		ConnString: fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port()),
	})
	require.NoError(t, err)

	require.NoError(t, RunMigrations(ctx, pool))

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(ctx)
	}

	return pool, cleanup
}

func TestIntegration_Stores(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	orgs := NewOrganizationStore(pool)
	profiles := NewProfileStore(pool)
	usage := NewUsageStore(pool)
	sessions := NewSessionStore(pool)

	trialEndsAt := time.Now().Add(-time.Hour).UTC().Truncate(time.Microsecond)
	org := &models.Organization{
		OrgID:            uuid.New(),
		Name:             "Taller Norte",
		OwnerPrincipalID: uuid.New(),
		PlanTier:         models.PlanFree,
		Subscription: models.Subscription{
			Status:      models.SubscriptionTrial,
			TrialEndsAt: &trialEndsAt,
		},
	}
	workshop := &models.Workshop{
		WorkshopID:     uuid.New(),
		OrganizationID: org.OrgID,
		Name:           "Sucursal Centro",
	}

	t.Run("migrations are idempotent", func(t *testing.T) {
		require.NoError(t, RunMigrations(ctx, pool))
	})

	t.Run("organizations", func(t *testing.T) {
		require.NoError(t, orgs.Create(ctx, org))
		require.ErrorIs(t, orgs.Create(ctx, org), store.ErrOrganizationAlreadyExists)

		got, err := orgs.Get(ctx, org.OrgID)
		require.NoError(t, err)
		require.Equal(t, org.Name, got.Name)
		require.Equal(t, models.SubscriptionTrial, got.Subscription.Status)
		require.True(t, trialEndsAt.Equal(*got.Subscription.TrialEndsAt))

		tier, err := orgs.GetPlanTier(ctx, org.OrgID)
		require.NoError(t, err)
		require.Equal(t, models.PlanFree, tier)

		require.NoError(t, orgs.MarkSubscriptionExpired(ctx, org.OrgID))
		sub, err := orgs.GetSubscription(ctx, org.OrgID)
		require.NoError(t, err)
		require.Equal(t, models.SubscriptionExpired, sub.Status)

		// not in trial any more, left alone
		require.NoError(t, orgs.MarkSubscriptionExpired(ctx, org.OrgID))
		require.ErrorIs(t, orgs.MarkSubscriptionExpired(ctx, uuid.New()), store.ErrOrganizationNotFound)

		_, err = orgs.GetPlanTier(ctx, uuid.New())
		require.ErrorIs(t, err, store.ErrOrganizationNotFound)
	})

	t.Run("directory", func(t *testing.T) {
		require.NoError(t, profiles.CreateWorkshop(ctx, workshop))

		direct := &models.Profile{PrincipalID: uuid.New(), OrganizationID: &org.OrgID, Role: "owner", Active: true}
		viaWorkshop := &models.Profile{PrincipalID: uuid.New(), WorkshopID: &workshop.WorkshopID, Role: "mechanic", Active: true}
		deletedAt := time.Now()
		revoked := &models.Profile{PrincipalID: uuid.New(), OrganizationID: &org.OrgID, DeletedAt: &deletedAt}

		for _, p := range []*models.Profile{direct, viaWorkshop, revoked} {
			require.NoError(t, profiles.CreateProfile(ctx, p))
		}
		require.ErrorIs(t, profiles.CreateProfile(ctx, direct), store.ErrPrincipalAlreadyExists)

		assoc, err := profiles.GetPrincipalAssociation(ctx, direct.PrincipalID)
		require.NoError(t, err)
		require.Equal(t, org.OrgID, *assoc.OrganizationID)
		require.Nil(t, assoc.WorkshopID)

		assoc, err = profiles.GetPrincipalAssociation(ctx, viaWorkshop.PrincipalID)
		require.NoError(t, err)
		require.Nil(t, assoc.OrganizationID)

		orgID, err := profiles.GetWorkshopOrganization(ctx, *assoc.WorkshopID)
		require.NoError(t, err)
		require.Equal(t, org.OrgID, orgID)

		_, err = profiles.GetPrincipalAssociation(ctx, revoked.PrincipalID)
		require.ErrorIs(t, err, store.ErrPrincipalDeleted)

		_, err = profiles.GetPrincipalAssociation(ctx, uuid.New())
		require.ErrorIs(t, err, store.ErrPrincipalNotFound)

		_, err = profiles.GetWorkshopOrganization(ctx, uuid.New())
		require.ErrorIs(t, err, store.ErrWorkshopNotFound)
	})

	t.Run("usage", func(t *testing.T) {
		now := time.Now()
		window := models.TimeWindow{Start: now.Add(-24 * time.Hour), End: now.Add(time.Hour)}

		for range 3 {
			_, err := pool.Exec(ctx, `INSERT INTO customers (customer_id, organization_id) VALUES ($1, $2)`, uuid.New(), org.OrgID)
			require.NoError(t, err)
		}
		_, err := pool.Exec(ctx, `INSERT INTO work_orders (work_order_id, organization_id, created_at) VALUES ($1, $2, $3)`, uuid.New(), org.OrgID, now)
		require.NoError(t, err)
		_, err = pool.Exec(ctx, `INSERT INTO work_orders (work_order_id, organization_id, created_at) VALUES ($1, $2, $3)`, uuid.New(), org.OrgID, now.AddDate(0, -2, 0))
		require.NoError(t, err)

		n, err := usage.Count(ctx, org.OrgID, models.ResourceCustomer, nil)
		require.NoError(t, err)
		require.Equal(t, int64(3), n)

		n, err = usage.Count(ctx, org.OrgID, models.ResourceWorkOrder, &window)
		require.NoError(t, err)
		require.Equal(t, int64(1), n)

		// the owner profile is the only active, non-deleted user linked directly
		n, err = usage.Count(ctx, org.OrgID, models.ResourceUser, nil)
		require.NoError(t, err)
		require.Equal(t, int64(1), n)

		_, err = usage.Count(ctx, org.OrgID, models.ResourceWhatsAppConversation, nil)
		require.Error(t, err)
	})

	t.Run("sessions", func(t *testing.T) {
		principalID := uuid.New()
		session := &models.Session{
			SessionID:   uuid.New(),
			PrincipalID: principalID,
			ExpiresAt:   time.Now().Add(time.Hour),
		}
		require.NoError(t, sessions.Save(ctx, session))
		require.NoError(t, sessions.Save(ctx, session))

		got, err := sessions.Get(ctx, session.SessionID)
		require.NoError(t, err)
		require.Equal(t, principalID, got.PrincipalID)

		n, err := sessions.DeleteExpired(ctx, time.Now().Add(2*time.Hour))
		require.NoError(t, err)
		require.Equal(t, 1, n)

		_, err = sessions.Get(ctx, session.SessionID)
		require.ErrorIs(t, err, store.ErrSessionNotFound)
	})
}
