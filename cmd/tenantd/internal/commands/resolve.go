package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/tenantgate/internal/auth"
	"github.com/wolfeidau/tenantgate/internal/logger"
	"github.com/wolfeidau/tenantgate/internal/models"
	"github.com/wolfeidau/tenantgate/internal/tenant"
)

type ResolveCmd struct {
	Principal string        `help:"principal ID to resolve" xor:"identity"`
	Token     string        `help:"access token identifying the principal" env:"TENANTGATE_TOKEN" xor:"identity"`
	JWT       JWTFlags      `embed:"" prefix:"jwt-"`
	Timeout   time.Duration `help:"overall resolve timeout" default:"30s"`
}

// JWTFlags configures access token verification.
type JWTFlags struct {
	Secret    string `help:"HMAC secret used to verify access tokens" env:"TENANTGATE_JWT_SECRET"`
	PublicKey string `help:"path to a PEM encoded ECDSA public key used to verify access tokens" type:"existingfile" env:"TENANTGATE_JWT_PUBLIC_KEY"`
	Issuer    string `help:"expected token issuer" env:"TENANTGATE_JWT_ISSUER"`
}

// verifier returns nil when no key is configured.
func (f *JWTFlags) verifier() (*auth.TokenVerifier, error) {
	var opts []auth.VerifierOption
	if f.Issuer != "" {
		opts = append(opts, auth.WithIssuer(f.Issuer))
	}

	switch {
	case f.PublicKey != "":
		data, err := os.ReadFile(f.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("failed to read public key: %w", err)
		}
		return auth.NewECDSAVerifierFromPEM(string(data), opts...)
	case f.Secret != "":
		return auth.NewHMACVerifier([]byte(f.Secret), opts...)
	default:
		return nil, nil
	}
}

type resolveOutput struct {
	PrincipalID    string `json:"principal_id"`
	State          string `json:"state"`
	OrganizationID string `json:"organization_id,omitempty"`
	WorkshopID     string `json:"workshop_id,omitempty"`
	Error          string `json:"error,omitempty"`
}

func (r *ResolveCmd) Run(ctx context.Context, globals *Globals) (err error) {
	log, shutdown := setup(ctx, globals)
	defer shutdown()

	principal, err := r.principal()
	if err != nil {
		return err
	}

	s, err := openStores(ctx, globals.Store, log)
	if err != nil {
		return err
	}
	defer s.close()

	resolver, err := tenant.NewResolver(tenant.Config{
		Directory: s.directory,
		Logger:    &log,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	ctx, done := logger.Operation(ctx, log, "resolve")
	defer func() { done(err) }()

	session := resolver.Session(principal)
	identity, resolveErr := session.Resolve(ctx)

	out := resolveOutput{
		PrincipalID: principal.PrincipalID.String(),
		State:       session.CurrentState().Phase.String(),
	}
	if resolveErr != nil {
		out.Error = resolveErr.Error()
	} else {
		out.OrganizationID = identity.OrganizationID.String()
		if identity.WorkshopID != nil {
			out.WorkshopID = identity.WorkshopID.String()
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}

	return resolveErr
}

func (r *ResolveCmd) principal() (models.Principal, error) {
	if r.Token != "" {
		verifier, err := r.JWT.verifier()
		if err != nil {
			return models.Principal{}, err
		}
		if verifier == nil {
			return models.Principal{}, errors.New("a JWT secret or public key is required to verify --token")
		}
		return verifier.Verify(r.Token)
	}

	if r.Principal == "" {
		return models.Principal{}, errors.New("one of --principal or --token is required")
	}

	id, err := uuid.Parse(r.Principal)
	if err != nil {
		return models.Principal{}, fmt.Errorf("invalid principal id: %w", err)
	}

	return models.Principal{PrincipalID: id}, nil
}
