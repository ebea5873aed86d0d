package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/wolfeidau/tenantgate/internal/limits"
	"github.com/wolfeidau/tenantgate/internal/logger"
	"github.com/wolfeidau/tenantgate/internal/models"
)

type CheckCmd struct {
	Org  string `help:"organization ID" required:""`
	Kind string `arg:"" help:"resource kind (customer, work_order, inventory_item, user, whatsapp_conversation)"`
}

type checkOutput struct {
	Allowed     bool   `json:"allowed"`
	Resource    string `json:"resource"`
	Tier        string `json:"tier,omitempty"`
	Current     int64  `json:"current"`
	Limit       *int64 `json:"limit"`
	Message     string `json:"message,omitempty"`
	UpgradeHint string `json:"upgrade_hint,omitempty"`
	Error       string `json:"error,omitempty"`
}

func (c *CheckCmd) Run(ctx context.Context, globals *Globals) (err error) {
	log, shutdown := setup(ctx, globals)
	defer shutdown()

	orgID, err := uuid.Parse(c.Org)
	if err != nil {
		return fmt.Errorf("invalid organization id: %w", err)
	}

	kind, err := models.ParseResourceKind(c.Kind)
	if err != nil {
		return err
	}

	s, err := openStores(ctx, globals.Store, log)
	if err != nil {
		return err
	}
	defer s.close()

	guard, err := newGuard(globals.Store, s, &log)
	if err != nil {
		return err
	}
	// flush the trial expiry write-back before the stores close
	defer guard.Wait()

	ctx, done := logger.Operation(ctx, log, "check")
	defer func() { done(err) }()

	d := guard.CheckLimit(ctx, orgID, kind)

	out := checkOutput{
		Allowed:  d.Allowed,
		Resource: string(d.Resource),
		Tier:     string(d.Tier),
		Current:  d.Current,
		Limit:    d.Limit,
	}

	var limitErr *limits.LimitError
	switch {
	case d.Err == nil:
	case errors.As(d.Err, &limitErr):
		out.Message = limitErr.Message
		out.UpgradeHint = limitErr.UpgradeHint
	default:
		out.Error = d.Err.Error()
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}

	return d.Err
}
