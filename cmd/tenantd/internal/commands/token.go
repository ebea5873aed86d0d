package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/tenantgate/internal/auth"
)

// TokenCmd issues an HMAC signed access token for local testing of the
// resolve and watch commands.
type TokenCmd struct {
	Principal string        `help:"principal ID the token is issued to" required:""`
	Session   string        `help:"session ID carried in the token, generated when empty"`
	Email     string        `help:"email claim"`
	TTL       time.Duration `help:"token lifetime" default:"1h"`
	Secret    string        `help:"HMAC secret used to sign the token" required:"" env:"TENANTGATE_JWT_SECRET"`
}

func (t *TokenCmd) Run(ctx context.Context) error {
	return t.issue(os.Stdout)
}

func (t *TokenCmd) issue(out io.Writer) error {
	if t.Secret == "" {
		return errors.New("a signing secret is required")
	}

	principalID, err := uuid.Parse(t.Principal)
	if err != nil {
		return fmt.Errorf("invalid principal id: %w", err)
	}

	sessionID := uuid.New()
	if t.Session != "" {
		sessionID, err = uuid.Parse(t.Session)
		if err != nil {
			return fmt.Errorf("invalid session id: %w", err)
		}
	}

	token, err := auth.IssueToken([]byte(t.Secret), principalID, sessionID, t.Email, t.TTL)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(out, token)
	return err
}
