package models

import (
	"time"

	"github.com/google/uuid"
)

// PlanTier is the pricing tier stored on an organization.
type PlanTier string

const (
	PlanFree    PlanTier = "free"
	PlanPremium PlanTier = "premium"
)

// ParsePlanTier maps a stored value onto a known tier. Anything unrecognised
// is treated as free, the most restrictive tier.
func ParsePlanTier(s string) PlanTier {
	if PlanTier(s) == PlanPremium {
		return PlanPremium
	}
	return PlanFree
}

// SubscriptionStatus is the billing state of an organization.
type SubscriptionStatus string

const (
	SubscriptionNone    SubscriptionStatus = "none"
	SubscriptionTrial   SubscriptionStatus = "trial"
	SubscriptionActive  SubscriptionStatus = "active"
	SubscriptionExpired SubscriptionStatus = "expired"
)

// Subscription is owned by the organization record.
type Subscription struct {
	Status      SubscriptionStatus
	TrialEndsAt *time.Time // only meaningful while Status is trial
}

// IsTrialActive reports whether the trial window is still open at now.
// The window is open strictly before TrialEndsAt.
func (s Subscription) IsTrialActive(now time.Time) bool {
	if s.Status != SubscriptionTrial || s.TrialEndsAt == nil {
		return false
	}
	return now.Before(*s.TrialEndsAt)
}

// IsTrialLapsed reports whether the subscription still says trial but the
// window has closed.
func (s Subscription) IsTrialLapsed(now time.Time) bool {
	if s.Status != SubscriptionTrial {
		return false
	}
	if s.TrialEndsAt == nil {
		return true
	}
	return !now.Before(*s.TrialEndsAt)
}

// Organization represents an organization (tenant) in the system.
// All business data is scoped to an organization.
type Organization struct {
	OrgID            uuid.UUID // UUIDv7
	Name             string
	OwnerPrincipalID uuid.UUID
	PlanTier         PlanTier
	Subscription     Subscription
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
