package limits

import (
	"errors"
	"fmt"

	"github.com/wolfeidau/tenantgate/internal/models"
)

var (
	ErrLimitExceeded    = errors.New("plan limit exceeded")
	ErrFeatureDisabled  = errors.New("feature not available on plan")
	ErrPlanUnavailable  = errors.New("plan unavailable")
	ErrUsageUnavailable = errors.New("usage unavailable")
)

// LimitError is the structured denial returned for an exceeded quota or a
// disabled feature. It matches ErrLimitExceeded or ErrFeatureDisabled with
// errors.Is.
type LimitError struct {
	Resource    models.ResourceKind
	Tier        models.PlanTier
	Current     int64
	Limit       int64
	Message     string
	UpgradeHint string

	reason error
}

func (e *LimitError) Error() string {
	return e.Message
}

func (e *LimitError) Is(target error) bool {
	return target == e.reason
}

func newLimitExceeded(kind models.ResourceKind, tier models.PlanTier, current, limit int64) *LimitError {
	return &LimitError{
		Resource:    kind,
		Tier:        tier,
		Current:     current,
		Limit:       limit,
		Message:     fmt.Sprintf("the %s plan allows up to %d %s, currently %d", tier, limit, describe(kind), current),
		UpgradeHint: upgradeHint(tier),
		reason:      ErrLimitExceeded,
	}
}

func newFeatureDisabled(kind models.ResourceKind, tier models.PlanTier) *LimitError {
	return &LimitError{
		Resource:    kind,
		Tier:        tier,
		Message:     fmt.Sprintf("%s are not available on the %s plan", describe(kind), tier),
		UpgradeHint: upgradeHint(tier),
		reason:      ErrFeatureDisabled,
	}
}

func upgradeHint(tier models.PlanTier) string {
	if tier == models.PlanPremium {
		return "contact support to raise this limit"
	}
	return "upgrade to the premium plan to raise this limit"
}

func describe(kind models.ResourceKind) string {
	switch kind {
	case models.ResourceCustomer:
		return "customers"
	case models.ResourceWorkOrder:
		return "work orders per month"
	case models.ResourceInventoryItem:
		return "inventory items"
	case models.ResourceUser:
		return "active users"
	case models.ResourceWhatsAppConversation:
		return "WhatsApp conversations"
	default:
		return string(kind)
	}
}
