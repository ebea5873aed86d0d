package tenant

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/tenantgate/internal/models"
)

func TestHandleEvent(t *testing.T) {
	ctx := context.Background()
	orgID := uuid.New()

	newPrincipal := func() models.Principal {
		principalID := uuid.New()
		return models.Principal{
			PrincipalID: principalID,
			Session:     &models.Session{SessionID: uuid.New(), PrincipalID: principalID},
		}
	}

	t.Run("signed in resolves", func(t *testing.T) {
		dir := &stubDirectory{principalFn: orgAssociation(orgID)}
		r := newTestResolver(t, dir, nil)
		principal := newPrincipal()

		err := r.HandleEvent(ctx, models.SessionEvent{Type: models.SessionSignedIn, Principal: principal})
		require.NoError(t, err)

		identity, err := r.Require(principal.PrincipalID)
		require.NoError(t, err)
		require.Equal(t, orgID, identity.OrganizationID)
	})

	t.Run("repeated sign in for the same session is a no-op", func(t *testing.T) {
		dir := &stubDirectory{principalFn: orgAssociation(orgID)}
		r := newTestResolver(t, dir, nil)
		principal := newPrincipal()

		for range 3 {
			err := r.HandleEvent(ctx, models.SessionEvent{Type: models.SessionSignedIn, Principal: principal})
			require.NoError(t, err)
		}

		principalCalls, _ := dir.calls()
		require.Equal(t, 1, principalCalls)
	})

	t.Run("sign in with a new session resolves again", func(t *testing.T) {
		dir := &stubDirectory{principalFn: orgAssociation(orgID)}
		r := newTestResolver(t, dir, nil)
		principal := newPrincipal()

		err := r.HandleEvent(ctx, models.SessionEvent{Type: models.SessionSignedIn, Principal: principal})
		require.NoError(t, err)

		next := principal
		next.Session = &models.Session{SessionID: uuid.New(), PrincipalID: principal.PrincipalID}

		rec := &recorder{}
		r.Subscribe(principal.PrincipalID, rec.listen)

		err = r.HandleEvent(ctx, models.SessionEvent{Type: models.SessionSignedIn, Principal: next})
		require.NoError(t, err)

		principalCalls, _ := dir.calls()
		require.Equal(t, 2, principalCalls)
		require.Equal(t, []Phase{PhaseUnresolved, PhaseResolving, PhaseReady}, rec.seen())
	})

	t.Run("signed out invalidates", func(t *testing.T) {
		dir := &stubDirectory{principalFn: orgAssociation(orgID)}
		r := newTestResolver(t, dir, nil)
		principal := newPrincipal()

		_, err := r.Resolve(ctx, principal)
		require.NoError(t, err)

		err = r.HandleEvent(ctx, models.SessionEvent{Type: models.SessionSignedOut, Principal: principal})
		require.NoError(t, err)
		require.Equal(t, PhaseUnresolved, r.State(principal.PrincipalID).Phase)
	})

	t.Run("token refresh while ready is a no-op", func(t *testing.T) {
		dir := &stubDirectory{principalFn: orgAssociation(orgID)}
		r := newTestResolver(t, dir, nil)
		principal := newPrincipal()

		_, err := r.Resolve(ctx, principal)
		require.NoError(t, err)

		rec := &recorder{}
		r.Subscribe(principal.PrincipalID, rec.listen)

		err = r.HandleEvent(ctx, models.SessionEvent{Type: models.SessionTokenRefreshed, Principal: principal})
		require.NoError(t, err)

		principalCalls, _ := dir.calls()
		require.Equal(t, 1, principalCalls)
		require.Empty(t, rec.seen())
	})

	t.Run("token refresh while unresolved resolves", func(t *testing.T) {
		dir := &stubDirectory{principalFn: orgAssociation(orgID)}
		r := newTestResolver(t, dir, nil)
		principal := newPrincipal()

		err := r.HandleEvent(ctx, models.SessionEvent{Type: models.SessionTokenRefreshed, Principal: principal})
		require.NoError(t, err)
		require.Equal(t, PhaseReady, r.State(principal.PrincipalID).Phase)
	})

	t.Run("token refresh after failure looks up again", func(t *testing.T) {
		dir := &stubDirectory{
			principalFn: func(_ context.Context, call int) (*models.Association, error) {
				if call == 1 {
					return &models.Association{}, nil
				}
				return &models.Association{OrganizationID: &orgID}, nil
			},
		}
		r := newTestResolver(t, dir, nil)
		principal := newPrincipal()

		_, err := r.Resolve(ctx, principal)
		require.ErrorIs(t, err, ErrAssociationNotFound)

		rec := &recorder{}
		r.Subscribe(principal.PrincipalID, rec.listen)

		err = r.HandleEvent(ctx, models.SessionEvent{Type: models.SessionTokenRefreshed, Principal: principal})
		require.NoError(t, err)

		principalCalls, _ := dir.calls()
		require.Equal(t, 2, principalCalls)
		require.Equal(t, []Phase{PhaseUnresolved, PhaseResolving, PhaseReady}, rec.seen())
	})

	t.Run("sign in for a failed session looks up again", func(t *testing.T) {
		dir := &stubDirectory{
			principalFn: func(_ context.Context, call int) (*models.Association, error) {
				if call == 1 {
					return &models.Association{}, nil
				}
				return &models.Association{OrganizationID: &orgID}, nil
			},
		}
		r := newTestResolver(t, dir, nil)
		principal := newPrincipal()

		err := r.HandleEvent(ctx, models.SessionEvent{Type: models.SessionSignedIn, Principal: principal})
		require.ErrorIs(t, err, ErrAssociationNotFound)

		err = r.HandleEvent(ctx, models.SessionEvent{Type: models.SessionSignedIn, Principal: principal})
		require.NoError(t, err)

		principalCalls, _ := dir.calls()
		require.Equal(t, 2, principalCalls)
	})

	t.Run("unknown event type", func(t *testing.T) {
		r := newTestResolver(t, &stubDirectory{}, nil)

		err := r.HandleEvent(ctx, models.SessionEvent{Type: "password_recovery", Principal: newPrincipal()})
		require.Error(t, err)
	})
}
