package limits

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

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

var tracer = otel.Tracer("tenantgate/limits")

const DefaultWriteBackTimeout = 5 * time.Second

// Config configures a Guard.
type Config struct {
	Organizations    store.OrganizationStore
	Usage            store.UsageStore
	Plans            PlanDirectory
	Clock            clockwork.Clock
	Location         *time.Location
	WriteBackTimeout time.Duration
	Logger           *zerolog.Logger
}

// Decision is the outcome of a limit check. Err is set whenever Allowed is
// false and explains why.
type Decision struct {
	Allowed  bool
	Resource models.ResourceKind
	Tier     models.PlanTier
	Current  int64
	Limit    *int64 // nil when unlimited
	Err      error
}

// Guard decides whether an organization may create another resource under
// its plan.
//
// Counts and the create which follows are not transactional, so concurrent
// creators may overshoot a limit by a small amount.
type Guard struct {
	orgs             store.OrganizationStore
	usage            store.UsageStore
	plans            PlanDirectory
	clock            clockwork.Clock
	location         *time.Location
	writeBackTimeout time.Duration
	logger           zerolog.Logger
	metrics          *telemetry.Metrics

	writeBacks singleflight.Group

	mu      sync.Mutex
	closed  bool
	pending sync.WaitGroup
}

// NewGuard creates a new Guard.
func NewGuard(cfg Config) (*Guard, error) {
	if cfg.Organizations == nil {
		return nil, errors.New("organization store is required")
	}
	if cfg.Usage == nil {
		return nil, errors.New("usage store is required")
	}

	g := &Guard{
		orgs:             cfg.Organizations,
		usage:            cfg.Usage,
		plans:            cfg.Plans,
		clock:            cfg.Clock,
		location:         cfg.Location,
		writeBackTimeout: cfg.WriteBackTimeout,
		logger:           log.Logger,
		metrics:          telemetry.GetMetrics(),
	}

	if g.plans == nil {
		g.plans = StaticPlans()
	}
	if g.clock == nil {
		g.clock = clockwork.NewRealClock()
	}
	if g.location == nil {
		g.location = time.Local
	}
	if g.writeBackTimeout <= 0 {
		g.writeBackTimeout = DefaultWriteBackTimeout
	}
	if cfg.Logger != nil {
		g.logger = *cfg.Logger
	}

	return g, nil
}

// CheckLimit decides whether orgID may create one more resource of kind. It
// fails closed: any error reading the plan or usage denies the request.
func (g *Guard) CheckLimit(ctx context.Context, orgID uuid.UUID, kind models.ResourceKind) Decision {
	ctx, span := tracer.Start(ctx, "CheckLimit",
		trace.WithAttributes(
			attribute.String("organization_id", orgID.String()),
			attribute.String("resource", string(kind)),
		),
	)
	defer span.End()

	d := g.check(ctx, orgID, kind)

	g.metrics.LimitChecksTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("resource", string(kind)),
		attribute.String("tier", string(d.Tier)),
		attribute.String("allowed", strconv.FormatBool(d.Allowed)),
	))

	if d.Err != nil {
		span.RecordError(d.Err)
		span.SetStatus(codes.Error, "denied")

		g.logger.Debug().
			Err(d.Err).
			Str("organization_id", orgID.String()).
			Str("resource", string(kind)).
			Int64("current", d.Current).
			Msg("Limit check denied")

		return d
	}

	span.SetStatus(codes.Ok, "allowed")

	return d
}

func (g *Guard) check(ctx context.Context, orgID uuid.UUID, kind models.ResourceKind) Decision {
	d := Decision{Resource: kind}

	if _, err := models.ParseResourceKind(string(kind)); err != nil {
		d.Err = err
		return d
	}

	tier, err := g.EffectiveTier(ctx, orgID)
	if err != nil {
		d.Err = err
		return d
	}
	d.Tier = tier

	if kind == models.ResourceWhatsAppConversation {
		if !g.plans.Features(tier).WhatsApp {
			d.Err = newFeatureDisabled(kind, tier)
			return d
		}
		d.Allowed = true
		return d
	}

	quota := g.plans.Quota(tier, kind)
	if quota.Unlimited() {
		d.Allowed = true
		return d
	}
	d.Limit = quota.Limit

	var window *models.TimeWindow
	if monthly(kind) {
		w := MonthWindow(g.clock.Now(), g.location)
		window = &w
	}

	current, err := g.usage.Count(ctx, orgID, kind, window)
	if err != nil {
		d.Err = fmt.Errorf("%w: %w", ErrUsageUnavailable, err)
		return d
	}
	d.Current = current

	if current >= *quota.Limit {
		d.Err = newLimitExceeded(kind, tier, current, *quota.Limit)
		return d
	}

	d.Allowed = true
	return d
}

// EffectiveTier returns the tier limits are enforced against. An open trial
// grants premium. A trial which has lapsed falls back to the stored tier and
// is marked expired in the background.
func (g *Guard) EffectiveTier(ctx context.Context, orgID uuid.UUID) (models.PlanTier, error) {
	tier, err := g.orgs.GetPlanTier(ctx, orgID)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPlanUnavailable, err)
	}

	sub, err := g.orgs.GetSubscription(ctx, orgID)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPlanUnavailable, err)
	}

	now := g.clock.Now()

	switch {
	case tier != models.PlanPremium && sub.IsTrialActive(now):
		return models.PlanPremium, nil
	case sub.IsTrialLapsed(now):
		g.expireTrial(ctx, orgID)
	}

	return tier, nil
}

// Wait blocks until pending trial expiry write-backs have finished. Checks
// made after Wait still report lapsed trials at their stored tier but no
// longer schedule write-backs.
func (g *Guard) Wait() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	g.pending.Wait()
}

// expireTrial marks the subscription expired without blocking the caller.
// Concurrent write-backs for the same organization are coalesced and
// failures are only logged.
func (g *Guard) expireTrial(ctx context.Context, orgID uuid.UUID) {
	ctx = context.WithoutCancel(ctx)

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		g.logger.Debug().
			Str("organization_id", orgID.String()).
			Msg("Guard closed, skipping lapsed trial write-back")
		return
	}
	g.pending.Add(1)
	g.mu.Unlock()

	go func() {
		defer g.pending.Done()

		_, _, _ = g.writeBacks.Do(orgID.String(), func() (any, error) {
			ctx, cancel := context.WithTimeout(ctx, g.writeBackTimeout)
			defer cancel()

			g.metrics.ExpiryWriteBacksTotal.Add(ctx, 1)

			if err := g.orgs.MarkSubscriptionExpired(ctx, orgID); err != nil {
				g.metrics.ExpiryWriteBackErrorTotal.Add(ctx, 1)
				g.logger.Warn().
					Err(err).
					Str("organization_id", orgID.String()).
					Msg("Failed to mark lapsed trial as expired")
				return nil, err
			}

			g.logger.Info().
				Str("organization_id", orgID.String()).
				Msg("Marked lapsed trial as expired")

			return nil, nil
		})
	}()
}
