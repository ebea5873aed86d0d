package tenant

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/wolfeidau/tenantgate/internal/models"
)

// HandleEvent applies an identity provider session event.
//
//   - signed_in resolves the principal, dropping state left by any earlier
//     session. A repeated sign-in for the session already being resolved
//     reuses its result.
//   - signed_out invalidates the principal.
//   - token_refreshed resolves the principal unless it is already Ready. A
//     Failed principal is invalidated first so the fresh token gets a new
//     lookup.
func (r *Resolver) HandleEvent(ctx context.Context, event models.SessionEvent) error {
	principalID := event.Principal.PrincipalID

	switch event.Type {
	case models.SessionSignedIn:
		if !r.isCurrentSession(event.Principal) {
			r.Invalidate(principalID)
		}
		_, err := r.Resolve(ctx, event.Principal)
		return err

	case models.SessionSignedOut:
		r.Invalidate(principalID)
		return nil

	case models.SessionTokenRefreshed:
		switch r.State(principalID).Phase {
		case PhaseReady:
			return nil
		case PhaseFailed:
			r.Invalidate(principalID)
		}
		_, err := r.Resolve(ctx, event.Principal)
		return err

	default:
		return fmt.Errorf("unknown session event type: %q", event.Type)
	}
}

// isCurrentSession returns true if the principal's Ready or Resolving state
// was started by the same session.
func (r *Resolver) isCurrentSession(principal models.Principal) bool {
	id := sessionID(principal)
	if id == uuid.Nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[principal.PrincipalID]
	if !ok {
		return false
	}

	switch e.state.Phase {
	case PhaseReady, PhaseResolving:
		return e.sessionID == id
	default:
		return false
	}
}
