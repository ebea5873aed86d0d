package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/tenantgate/internal/events"
	"github.com/wolfeidau/tenantgate/internal/store"
	"github.com/wolfeidau/tenantgate/internal/tenant"
)

type WatchCmd struct {
	NATS         NATSFlags     `embed:"" prefix:"nats-"`
	JWT          JWTFlags      `embed:"" prefix:"jwt-"`
	SweepEvery   time.Duration `help:"interval between expired session sweeps" default:"10m" env:"TENANTGATE_SESSION_SWEEP_INTERVAL"`
	EventTimeout time.Duration `help:"maximum time spent handling a single event" default:"15s"`
}

type NATSFlags struct {
	URL               string        `help:"NATS server URL" default:"nats://127.0.0.1:4222" env:"TENANTGATE_NATS_URL"`
	Username          string        `help:"NATS username" env:"TENANTGATE_NATS_USERNAME"`
	Password          string        `help:"NATS password" env:"TENANTGATE_NATS_PASSWORD"`
	SubjectPrefix     string        `help:"subject prefix of session events" default:"identity.session" env:"TENANTGATE_NATS_SUBJECT_PREFIX"`
	ReconnectInterval time.Duration `help:"wait between reconnect attempts" default:"2s"`
	MaxReconnects     int           `help:"maximum reconnect attempts, -1 for unlimited" default:"-1"`
}

func (f *NATSFlags) connect(log zerolog.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("tenantd"),
		nats.ReconnectWait(f.ReconnectInterval),
		nats.MaxReconnects(f.MaxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}
	if f.Username != "" {
		opts = append(opts, nats.UserInfo(f.Username, f.Password))
	}

	nc, err := nats.Connect(f.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return nc, nil
}

func (w *WatchCmd) Run(ctx context.Context, globals *Globals) error {
	log, shutdown := setup(ctx, globals)
	defer shutdown()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting session event watcher")

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

	cfg := events.Config{
		Handler:       resolver,
		Sessions:      s.sessions,
		SubjectPrefix: w.NATS.SubjectPrefix,
		HandleTimeout: w.EventTimeout,
	}

	verifier, err := w.JWT.verifier()
	if err != nil {
		return err
	}
	if verifier != nil {
		cfg.Verifier = verifier
	} else {
		log.Warn().Msg("No JWT key configured, access tokens on session events are not verified")
	}

	nc, err := w.NATS.connect(log)
	if err != nil {
		return err
	}
	defer nc.Drain() //nolint:errcheck

	subscriber, err := events.NewSubscriber(nc, cfg)
	if err != nil {
		return err
	}

	go sweepSessions(ctx, s.sessions, clockwork.NewRealClock(), w.SweepEvery, log)

	err = subscriber.Start(ctx)
	if errors.Is(err, context.Canceled) {
		log.Info().Msg("Session event watcher stopped")
		return nil
	}

	return err
}

// sweepSessions removes expired sessions every interval until ctx is done.
func sweepSessions(ctx context.Context, sessions store.SessionStore, clock clockwork.Clock, interval time.Duration, log zerolog.Logger) {
	if interval <= 0 {
		return
	}

	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			n, err := sessions.DeleteExpired(ctx, clock.Now())
			if err != nil {
				log.Error().Err(err).Msg("Failed to delete expired sessions")
				continue
			}
			if n > 0 {
				log.Info().Int("count", n).Msg("Expired sessions deleted")
			}
		}
	}
}
