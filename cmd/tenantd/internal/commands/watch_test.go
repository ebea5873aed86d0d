package commands

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/tenantgate/internal/models"
	"github.com/wolfeidau/tenantgate/internal/store"
	memorystore "github.com/wolfeidau/tenantgate/internal/store/memory"
)

func TestSweepSessions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	now := time.Now()
	clock := clockwork.NewFakeClockAt(now)
	sessions := memorystore.NewSessionStore()

	expired := uuid.New()
	live := uuid.New()
	require.NoError(t, sessions.Save(ctx, &models.Session{SessionID: expired, PrincipalID: uuid.New(), ExpiresAt: now.Add(30 * time.Second)}))
	require.NoError(t, sessions.Save(ctx, &models.Session{SessionID: live, PrincipalID: uuid.New(), ExpiresAt: now.Add(time.Hour)}))

	done := make(chan struct{})
	go func() {
		sweepSessions(ctx, sessions, clock, time.Minute, zerolog.Nop())
		close(done)
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Minute)

	require.Eventually(t, func() bool {
		return !present(ctx, sessions, expired)
	}, time.Second, 10*time.Millisecond)
	require.True(t, present(ctx, sessions, live))

	cancel()
	<-done
}

func present(ctx context.Context, sessions store.SessionStore, id uuid.UUID) bool {
	_, err := sessions.Get(ctx, id)
	return err == nil
}
