package limits

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/wolfeidau/tenantgate/internal/models"
	"gopkg.in/yaml.v3"
)

// PlanDirectory maps a tier to its quotas and feature flags.
type PlanDirectory interface {
	// Quota returns the limit for kind. Unknown tiers get the free quota.
	Quota(tier models.PlanTier, kind models.ResourceKind) models.Quota

	// Features returns the feature flags of the tier.
	Features(tier models.PlanTier) models.FeatureFlags
}

// Plan holds the quotas and features of a single tier. Kinds missing from
// Quotas are unlimited.
type Plan struct {
	Quotas   map[models.ResourceKind]models.Quota
	Features models.FeatureFlags
}

// Plans is a static plan table.
type Plans map[models.PlanTier]Plan

var _ PlanDirectory = Plans(nil)

// StaticPlans returns the default plan table.
func StaticPlans() Plans {
	return Plans{
		models.PlanFree: {
			Quotas: map[models.ResourceKind]models.Quota{
				models.ResourceCustomer:      models.LimitOf(50),
				models.ResourceWorkOrder:     models.LimitOf(30),
				models.ResourceInventoryItem: models.LimitOf(100),
				models.ResourceUser:          models.LimitOf(2),
			},
			Features: models.FeatureFlags{WhatsApp: false},
		},
		models.PlanPremium: {
			Quotas: map[models.ResourceKind]models.Quota{
				models.ResourceUser: models.LimitOf(10),
			},
			Features: models.FeatureFlags{WhatsApp: true},
		},
	}
}

func (p Plans) Quota(tier models.PlanTier, kind models.ResourceKind) models.Quota {
	q, ok := p.plan(tier).Quotas[kind]
	if !ok || q.Limit == nil {
		return models.Quota{}
	}
	return models.LimitOf(*q.Limit)
}

func (p Plans) Features(tier models.PlanTier) models.FeatureFlags {
	return p.plan(tier).Features
}

func (p Plans) plan(tier models.PlanTier) Plan {
	if plan, ok := p[tier]; ok {
		return plan
	}
	return p[models.PlanFree]
}

type planFile struct {
	Plans map[string]planDef `yaml:"plans"`
}

type planDef struct {
	Features struct {
		WhatsApp bool `yaml:"whatsapp"`
	} `yaml:"features"`
	Limits map[string]*int64 `yaml:"limits"`
}

// LoadPlansFile reads a YAML plan table from path.
func LoadPlansFile(path string) (Plans, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open plans file: %w", err)
	}
	defer f.Close()

	return LoadPlans(f)
}

// LoadPlans parses a YAML plan table:
//
//	plans:
//	  free:
//	    features:
//	      whatsapp: false
//	    limits:
//	      customer: 50
//	      work_order: 30
//	  premium:
//	    features:
//	      whatsapp: true
//	    limits:
//	      customer: ~
//	      user: 10
//
// A null or missing limit is unlimited. The free tier is required.
func LoadPlans(r io.Reader) (Plans, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file planFile
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to decode plans: %w", err)
	}

	plans := make(Plans, len(file.Plans))

	for name, def := range file.Plans {
		tier := models.PlanTier(name)
		if tier != models.PlanFree && tier != models.PlanPremium {
			return nil, fmt.Errorf("unknown plan tier: %q", name)
		}

		plan := Plan{
			Quotas:   make(map[models.ResourceKind]models.Quota, len(def.Limits)),
			Features: models.FeatureFlags{WhatsApp: def.Features.WhatsApp},
		}

		for kindName, limit := range def.Limits {
			kind, err := models.ParseResourceKind(kindName)
			if err != nil {
				return nil, fmt.Errorf("plan %s: %w", name, err)
			}
			if kind == models.ResourceWhatsAppConversation {
				return nil, fmt.Errorf("plan %s: %s is controlled by features.whatsapp", name, kind)
			}
			if limit == nil {
				plan.Quotas[kind] = models.Quota{}
				continue
			}
			if *limit < 0 {
				return nil, fmt.Errorf("plan %s: limit for %s must not be negative", name, kind)
			}
			plan.Quotas[kind] = models.LimitOf(*limit)
		}

		plans[tier] = plan
	}

	if _, ok := plans[models.PlanFree]; !ok {
		return nil, errors.New("plans must define the free tier")
	}

	return plans, nil
}
