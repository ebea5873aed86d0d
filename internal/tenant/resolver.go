package tenant

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tenantgate/internal/models"
	"github.com/wolfeidau/tenantgate/internal/store"
	"github.com/wolfeidau/tenantgate/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

var tracer = otel.Tracer("tenantgate/tenant")

const (
	DefaultRetryDelay    = 500 * time.Millisecond
	DefaultLookupTimeout = 10 * time.Second

	// one attempt plus a single retry
	maxLookupAttempts = 2
)

// Config configures a Resolver.
type Config struct {
	Directory     store.TenantDirectory
	Clock         clockwork.Clock
	RetryDelay    time.Duration
	LookupTimeout time.Duration
	Logger        *zerolog.Logger
}

// Resolver maps authenticated principals to their tenant identity.
//
// Resolution state is held per principal and shared by every caller in the
// process: concurrent callers for the same principal share a single directory
// lookup, and a Ready identity is served from memory until it is invalidated.
type Resolver struct {
	directory     store.TenantDirectory
	clock         clockwork.Clock
	retryDelay    time.Duration
	lookupTimeout time.Duration
	logger        zerolog.Logger
	metrics       *telemetry.Metrics

	flights singleflight.Group

	mu          sync.Mutex
	entries     map[uuid.UUID]*entry
	generation  uint64
	listenerSeq uint64
}

type entry struct {
	state      State
	generation uint64
	sessionID  uuid.UUID // session which started the current resolution
	listeners  map[uint64]Listener
	queue      []notification
	draining   bool
}

type notification struct {
	prev, next State
	listeners  []Listener
}

// NewResolver creates a new Resolver.
func NewResolver(cfg Config) (*Resolver, error) {
	if cfg.Directory == nil {
		return nil, errors.New("tenant directory is required")
	}

	r := &Resolver{
		directory:     cfg.Directory,
		clock:         cfg.Clock,
		retryDelay:    cfg.RetryDelay,
		lookupTimeout: cfg.LookupTimeout,
		logger:        log.Logger,
		metrics:       telemetry.GetMetrics(),
		entries:       make(map[uuid.UUID]*entry),
	}

	if r.clock == nil {
		r.clock = clockwork.NewRealClock()
	}
	if r.retryDelay <= 0 {
		r.retryDelay = DefaultRetryDelay
	}
	if r.lookupTimeout <= 0 {
		r.lookupTimeout = DefaultLookupTimeout
	}
	if cfg.Logger != nil {
		r.logger = *cfg.Logger
	}

	return r, nil
}

// Resolve returns the tenant identity for the principal.
//
// A Ready identity is returned without touching the directory unless the
// principal's session has expired. A Failed principal gets its stored error
// until it is invalidated. Otherwise the caller joins the in-flight lookup
// for the principal, starting one if none is running. Returns
// ErrUnauthenticated, ErrAssociationNotFound or ErrTransientLookup on failure
// and ErrInvalidated if the identity was invalidated while the lookup was
// running.
func (r *Resolver) Resolve(ctx context.Context, principal models.Principal) (models.TenantIdentity, error) {
	ctx, span := tracer.Start(ctx, "Resolve",
		trace.WithAttributes(attribute.String("principal_id", principal.PrincipalID.String())),
	)
	defer span.End()

	generation, cached, err := r.begin(principal)
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "not resolvable")
		return models.TenantIdentity{}, err
	case cached != nil:
		span.SetStatus(codes.Ok, "cached")
		return *cached, nil
	}

	ch := r.flights.DoChan(flightKey(principal.PrincipalID, generation), func() (any, error) {
		return r.run(ctx, principal, generation)
	})

	select {
	case <-ctx.Done():
		span.RecordError(ctx.Err())
		span.SetStatus(codes.Error, "caller cancelled")
		return models.TenantIdentity{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, "resolution failed")
			return models.TenantIdentity{}, res.Err
		}
		span.SetStatus(codes.Ok, "resolved")
		return res.Val.(models.TenantIdentity), nil
	}
}

// State returns a snapshot of the principal's resolution state.
func (r *Resolver) State(principalID uuid.UUID) State {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[principalID]
	if !ok {
		return State{Phase: PhaseUnresolved}
	}
	return cloneState(e.state)
}

// Require returns the identity only when it is Ready. It never starts a
// lookup; callers gating tenant scoped work use it to fail closed.
func (r *Resolver) Require(principalID uuid.UUID) (models.TenantIdentity, error) {
	s := r.State(principalID)
	switch s.Phase {
	case PhaseReady:
		return *s.Identity, nil
	case PhaseFailed:
		return models.TenantIdentity{}, fmt.Errorf("%w: %w", ErrNotReady, s.Err)
	default:
		return models.TenantIdentity{}, fmt.Errorf("%w: %s", ErrNotReady, s.Phase)
	}
}

// Subscribe registers a listener for the principal's state transitions.
// The returned function removes the listener.
func (r *Resolver) Subscribe(principalID uuid.UUID, l Listener) (cancel func()) {
	r.mu.Lock()
	e := r.entryLocked(principalID)
	r.listenerSeq++
	key := r.listenerSeq
	e.listeners[key] = l
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(e.listeners, key)
			r.pruneLocked(principalID, e)
			r.mu.Unlock()
		})
	}
}

// Invalidate drops the principal's identity and returns it to Unresolved.
// A lookup still running for the principal completes but its result is
// discarded.
func (r *Resolver) Invalidate(principalID uuid.UUID) {
	r.mu.Lock()
	e, ok := r.entries[principalID]
	if !ok {
		r.mu.Unlock()
		return
	}

	r.flights.Forget(flightKey(principalID, e.generation))

	r.generation++
	e.generation = r.generation
	e.sessionID = uuid.Nil
	if e.state.Phase != PhaseUnresolved {
		r.transitionLocked(e, State{Phase: PhaseUnresolved})
	}
	r.mu.Unlock()

	r.metrics.InvalidationsTotal.Add(context.Background(), 1)

	r.logger.Debug().
		Str("principal_id", principalID.String()).
		Msg("Tenant identity invalidated")

	r.drain(principalID, e)
}

// begin moves the principal into Resolving if needed and returns the
// generation of the lookup to join. A Ready identity is returned as cached and
// a Failed state returns its error; neither starts a lookup. Only Invalidate
// takes a principal out of Failed.
func (r *Resolver) begin(principal models.Principal) (uint64, *models.TenantIdentity, error) {
	principalID := principal.PrincipalID

	r.mu.Lock()
	e := r.entryLocked(principalID)

	switch e.state.Phase {
	case PhaseReady:
		identity := cloneIdentity(e.state.Identity)
		r.mu.Unlock()
		if principal.Session != nil && principal.Session.IsExpiredAt(r.clock.Now()) {
			return 0, nil, fmt.Errorf("%w: session expired", ErrUnauthenticated)
		}
		return 0, identity, nil
	case PhaseFailed:
		err := e.state.Err
		r.mu.Unlock()
		return 0, nil, err
	case PhaseResolving:
		generation := e.generation
		r.mu.Unlock()
		return generation, nil, nil
	}

	r.generation++
	e.generation = r.generation
	e.sessionID = sessionID(principal)
	r.transitionLocked(e, State{Phase: PhaseResolving})
	generation := e.generation
	r.mu.Unlock()

	r.drain(principalID, e)

	return generation, nil, nil
}

// run performs the lookup for one generation and applies the outcome. It
// runs detached from the caller which started it so attached callers are not
// failed by that caller going away.
func (r *Resolver) run(ctx context.Context, principal models.Principal, generation uint64) (any, error) {
	// a caller may join after an earlier flight for this generation finished
	if state, settled := r.settled(principal.PrincipalID, generation); settled {
		if state.Phase == PhaseReady {
			return *state.Identity, nil
		}
		return nil, state.Err
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.lookupTimeout)
	defer cancel()

	started := r.clock.Now()
	identity, err := r.lookup(ctx, principal)
	r.metrics.ResolutionDuration.Record(ctx, float64(r.clock.Since(started).Milliseconds()))

	if !r.apply(principal.PrincipalID, generation, identity, err) {
		r.metrics.ResolutionsDiscardedTotal.Add(ctx, 1)
		r.logger.Debug().
			Str("principal_id", principal.PrincipalID.String()).
			Msg("Discarding tenant resolution after invalidation")
		return nil, ErrInvalidated
	}

	if err != nil {
		r.metrics.ResolutionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome(err))))
		r.logger.Warn().
			Err(err).
			Str("principal_id", principal.PrincipalID.String()).
			Msg("Tenant resolution failed")
		return nil, err
	}

	r.metrics.ResolutionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "ready")))
	r.logger.Debug().
		Str("principal_id", principal.PrincipalID.String()).
		Str("organization_id", identity.OrganizationID.String()).
		Msg("Tenant identity resolved")

	return identity, nil
}

// settled reports whether the lookup for generation no longer needs to run,
// returning the outcome it produced.
func (r *Resolver) settled(principalID uuid.UUID, generation uint64) (State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[principalID]
	if !ok || e.generation != generation {
		return State{Phase: PhaseFailed, Err: ErrInvalidated}, true
	}
	if e.state.Phase == PhaseResolving {
		return State{}, false
	}
	return cloneState(e.state), true
}

// apply records the lookup outcome unless the generation is stale.
func (r *Resolver) apply(principalID uuid.UUID, generation uint64, identity models.TenantIdentity, err error) bool {
	r.mu.Lock()
	e, ok := r.entries[principalID]
	if !ok || e.generation != generation || e.state.Phase != PhaseResolving {
		r.mu.Unlock()
		return false
	}

	next := State{Phase: PhaseReady, Identity: cloneIdentity(&identity)}
	if err != nil {
		next = State{Phase: PhaseFailed, Err: err}
	}
	r.transitionLocked(e, next)
	r.mu.Unlock()

	r.drain(principalID, e)

	return true
}

func (r *Resolver) lookup(ctx context.Context, principal models.Principal) (models.TenantIdentity, error) {
	if principal.PrincipalID == uuid.Nil {
		return models.TenantIdentity{}, fmt.Errorf("%w: missing principal id", ErrUnauthenticated)
	}
	if principal.Session != nil && principal.Session.IsExpiredAt(r.clock.Now()) {
		return models.TenantIdentity{}, fmt.Errorf("%w: session expired", ErrUnauthenticated)
	}

	// backoff bounds the attempts; the delay is waited on r.clock
	attempt := 0
	identity, err := backoff.Retry(ctx, func() (models.TenantIdentity, error) {
		attempt++
		if attempt > 1 {
			r.metrics.ResolutionRetriesTotal.Add(ctx, 1)

			select {
			case <-ctx.Done():
				return models.TenantIdentity{}, backoff.Permanent(ctx.Err())
			case <-r.clock.After(r.retryDelay):
			}
		}

		identity, err := r.lookupOnce(ctx, principal.PrincipalID)
		if isTerminal(err) {
			return identity, backoff.Permanent(err)
		}
		return identity, err
	},
		backoff.WithBackOff(&backoff.ZeroBackOff{}),
		backoff.WithMaxTries(maxLookupAttempts),
		backoff.WithNotify(func(err error, _ time.Duration) {
			r.logger.Warn().
				Err(err).
				Str("principal_id", principal.PrincipalID.String()).
				Dur("retry_in", r.retryDelay).
				Msg("Tenant lookup failed, retrying")
		}),
	)
	if err == nil {
		return identity, nil
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	if isTerminal(err) {
		return models.TenantIdentity{}, err
	}

	return models.TenantIdentity{}, fmt.Errorf("%w: %w", ErrTransientLookup, err)
}

// lookupOnce reads the principal's association and, when only a workshop is
// linked, the workshop's organization.
func (r *Resolver) lookupOnce(ctx context.Context, principalID uuid.UUID) (models.TenantIdentity, error) {
	r.metrics.DirectoryLookupsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("lookup", "principal")))

	assoc, err := r.directory.GetPrincipalAssociation(ctx, principalID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrPrincipalDeleted):
			return models.TenantIdentity{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
		case errors.Is(err, store.ErrPrincipalNotFound):
			return models.TenantIdentity{}, fmt.Errorf("%w: %w", ErrAssociationNotFound, err)
		}
		return models.TenantIdentity{}, fmt.Errorf("failed to get principal association: %w", err)
	}

	if assoc.OrganizationID != nil {
		return models.TenantIdentity{
			OrganizationID: *assoc.OrganizationID,
			WorkshopID:     cloneUUID(assoc.WorkshopID),
		}, nil
	}

	if assoc.WorkshopID == nil {
		return models.TenantIdentity{}, ErrAssociationNotFound
	}

	r.metrics.DirectoryLookupsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("lookup", "workshop")))

	orgID, err := r.directory.GetWorkshopOrganization(ctx, *assoc.WorkshopID)
	if err != nil {
		if errors.Is(err, store.ErrWorkshopNotFound) {
			return models.TenantIdentity{}, fmt.Errorf("%w: %w", ErrAssociationNotFound, err)
		}
		return models.TenantIdentity{}, fmt.Errorf("failed to get workshop organization: %w", err)
	}

	return models.TenantIdentity{
		OrganizationID: orgID,
		WorkshopID:     cloneUUID(assoc.WorkshopID),
	}, nil
}

func (r *Resolver) entryLocked(principalID uuid.UUID) *entry {
	e, ok := r.entries[principalID]
	if !ok {
		e = &entry{
			state:     State{Phase: PhaseUnresolved},
			listeners: make(map[uint64]Listener),
		}
		r.entries[principalID] = e
	}
	return e
}

// pruneLocked removes an entry which holds nothing worth keeping.
func (r *Resolver) pruneLocked(principalID uuid.UUID, e *entry) {
	if e.state.Phase != PhaseUnresolved || e.draining || len(e.queue) > 0 || len(e.listeners) > 0 {
		return
	}
	if cur, ok := r.entries[principalID]; ok && cur == e {
		delete(r.entries, principalID)
	}
}

// transitionLocked sets the state and queues a notification for the
// listeners registered at the time of the transition.
func (r *Resolver) transitionLocked(e *entry, next State) {
	prev := e.state
	e.state = next

	if len(e.listeners) == 0 {
		return
	}

	listeners := make([]Listener, 0, len(e.listeners))
	for _, key := range slices.Sorted(maps.Keys(e.listeners)) {
		listeners = append(listeners, e.listeners[key])
	}

	e.queue = append(e.queue, notification{prev: prev, next: next, listeners: listeners})
}

// drain delivers queued notifications in order. Only one goroutine drains an
// entry at a time; others return immediately and leave their notifications
// to the active drainer.
func (r *Resolver) drain(principalID uuid.UUID, e *entry) {
	r.mu.Lock()
	if e.draining {
		r.mu.Unlock()
		return
	}
	e.draining = true

	for len(e.queue) > 0 {
		n := e.queue[0]
		e.queue[0] = notification{}
		e.queue = e.queue[1:]
		r.mu.Unlock()

		for _, l := range n.listeners {
			l(principalID, cloneState(n.prev), cloneState(n.next))
		}

		r.mu.Lock()
	}

	e.draining = false
	r.pruneLocked(principalID, e)
	r.mu.Unlock()
}

func isTerminal(err error) bool {
	return errors.Is(err, ErrUnauthenticated) || errors.Is(err, ErrAssociationNotFound)
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrAssociationNotFound):
		return "association_not_found"
	default:
		return "transient"
	}
}

func flightKey(principalID uuid.UUID, generation uint64) string {
	return fmt.Sprintf("%s/%d", principalID, generation)
}

func sessionID(principal models.Principal) uuid.UUID {
	if principal.Session == nil {
		return uuid.Nil
	}
	return principal.Session.SessionID
}

func cloneState(s State) State {
	s.Identity = cloneIdentity(s.Identity)
	return s
}

func cloneIdentity(identity *models.TenantIdentity) *models.TenantIdentity {
	if identity == nil {
		return nil
	}
	return &models.TenantIdentity{
		OrganizationID: identity.OrganizationID,
		WorkshopID:     cloneUUID(identity.WorkshopID),
	}
}

func cloneUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
