package tenant

import (
	"github.com/google/uuid"
	"github.com/wolfeidau/tenantgate/internal/models"
)

// Phase is the resolution lifecycle of one principal.
type Phase int

const (
	PhaseUnresolved Phase = iota
	PhaseResolving
	PhaseReady
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseUnresolved:
		return "unresolved"
	case PhaseResolving:
		return "resolving"
	case PhaseReady:
		return "ready"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is a snapshot of a principal's resolution. Identity is only set
// when Phase is PhaseReady and Err only when Phase is PhaseFailed.
type State struct {
	Phase    Phase
	Identity *models.TenantIdentity
	Err      error
}

// Ready returns true if the identity has been resolved.
func (s State) Ready() bool {
	return s.Phase == PhaseReady && s.Identity != nil
}

// Listener receives every state transition for a principal in the order
// the transitions happened. Listeners are called without any resolver lock
// held and may call back into the resolver.
type Listener func(principalID uuid.UUID, prev, next State)
