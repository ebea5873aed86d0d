package tenant

import (
	"context"

	"github.com/google/uuid"
	"github.com/wolfeidau/tenantgate/internal/models"
)

// Session binds one principal to a Resolver.
type Session struct {
	resolver  *Resolver
	principal models.Principal
}

// Session returns a handle for resolving the given principal.
func (r *Resolver) Session(principal models.Principal) *Session {
	return &Session{resolver: r, principal: principal}
}

// Principal returns the principal this session is bound to.
func (s *Session) Principal() models.Principal {
	return s.principal
}

// Resolve returns the tenant identity, performing a lookup only when none
// is cached or in flight.
func (s *Session) Resolve(ctx context.Context) (models.TenantIdentity, error) {
	return s.resolver.Resolve(ctx, s.principal)
}

// CurrentState returns a snapshot of the resolution state.
func (s *Session) CurrentState() State {
	return s.resolver.State(s.principal.PrincipalID)
}

// Require returns the identity if it is Ready, otherwise ErrNotReady.
func (s *Session) Require() (models.TenantIdentity, error) {
	return s.resolver.Require(s.principal.PrincipalID)
}

// OnStateChange registers fn for state transitions and returns a function
// which unregisters it.
func (s *Session) OnStateChange(fn func(prev, next State)) (cancel func()) {
	return s.resolver.Subscribe(s.principal.PrincipalID, func(_ uuid.UUID, prev, next State) {
		fn(prev, next)
	})
}

// Invalidate drops the cached identity.
func (s *Session) Invalidate() {
	s.resolver.Invalidate(s.principal.PrincipalID)
}
