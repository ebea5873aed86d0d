package tenant

import "errors"

var (
	// ErrUnauthenticated is returned when the principal can't be confirmed:
	// a missing principal, an expired session or a revoked profile.
	ErrUnauthenticated = errors.New("principal is not authenticated")

	// ErrAssociationNotFound is returned when the principal is linked to
	// neither an organization nor a workshop.
	ErrAssociationNotFound = errors.New("principal has no tenant association")

	// ErrTransientLookup wraps the second consecutive directory failure.
	ErrTransientLookup = errors.New("tenant lookup failed")

	// ErrInvalidated is returned to callers whose lookup finished after the
	// identity was invalidated. The result was discarded.
	ErrInvalidated = errors.New("tenant resolution invalidated")

	// ErrNotReady is returned by Require when the identity isn't resolved.
	ErrNotReady = errors.New("tenant identity not ready")
)
