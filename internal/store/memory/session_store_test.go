package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/tenantgate/internal/models"
	"github.com/wolfeidau/tenantgate/internal/store"
)

func TestMemorySessionStore(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore()
	principalID := uuid.New()

	live := &models.Session{
		SessionID:   uuid.New(),
		PrincipalID: principalID,
		ExpiresAt:   time.Now().Add(time.Hour),
	}
	stale := &models.Session{
		SessionID:   uuid.New(),
		PrincipalID: principalID,
		ExpiresAt:   time.Now().Add(-time.Minute),
	}

	require.NoError(t, s.Save(ctx, live))
	require.NoError(t, s.Save(ctx, stale))

	t.Run("get", func(t *testing.T) {
		got, err := s.Get(ctx, live.SessionID)
		require.NoError(t, err)
		require.Equal(t, principalID, got.PrincipalID)
		require.False(t, got.CreatedAt.IsZero())

		_, err = s.Get(ctx, stale.SessionID)
		require.ErrorIs(t, err, store.ErrSessionExpired)

		_, err = s.Get(ctx, uuid.New())
		require.ErrorIs(t, err, store.ErrSessionNotFound)
	})

	t.Run("save refreshes expiry", func(t *testing.T) {
		refreshed := *stale
		refreshed.ExpiresAt = time.Now().Add(time.Hour)
		require.NoError(t, s.Save(ctx, &refreshed))

		_, err := s.Get(ctx, stale.SessionID)
		require.NoError(t, err)

		// back to expired for the remaining subtests
		require.NoError(t, s.Save(ctx, stale))
	})

	t.Run("delete expired", func(t *testing.T) {
		n, err := s.DeleteExpired(ctx, time.Now())
		require.NoError(t, err)
		require.Equal(t, 1, n)

		_, err = s.Get(ctx, stale.SessionID)
		require.ErrorIs(t, err, store.ErrSessionNotFound)
	})

	t.Run("delete by principal", func(t *testing.T) {
		n, err := s.DeleteByPrincipal(ctx, principalID)
		require.NoError(t, err)
		require.Equal(t, 1, n)

		_, err = s.Get(ctx, live.SessionID)
		require.ErrorIs(t, err, store.ErrSessionNotFound)

		require.ErrorIs(t, s.Delete(ctx, live.SessionID), store.ErrSessionNotFound)
	})
}
