package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/wolfeidau/tenantgate/internal/limits"
	"github.com/wolfeidau/tenantgate/internal/logger"
	"github.com/wolfeidau/tenantgate/internal/store"
	memorystore "github.com/wolfeidau/tenantgate/internal/store/memory"
	postgresstore "github.com/wolfeidau/tenantgate/internal/store/postgres"
	"github.com/wolfeidau/tenantgate/internal/telemetry"
)

type Globals struct {
	Debug       bool
	Version     string
	Tracing     bool
	SampleRatio float64
	Store       StoreFlags
}

// StoreFlags selects and configures the backing stores shared by every
// command.
type StoreFlags struct {
	StoreType string             `help:"store type (memory or postgres)" default:"memory" env:"TENANTGATE_STORE_TYPE" enum:"memory,postgres"`
	Fixtures  string             `help:"YAML fixtures loaded into the memory store" type:"existingfile" env:"TENANTGATE_FIXTURES"`
	Plans     string             `help:"YAML plan table overriding the built-in plans" type:"existingfile" env:"TENANTGATE_PLANS"`
	Timezone  string             `help:"timezone used for monthly quota windows" default:"Local" env:"TENANTGATE_TIMEZONE"`
	Postgres  PostgresStoreFlags `embed:"" prefix:"postgres-"`
}

func (s *StoreFlags) Validate() error {
	if s.StoreType == "postgres" {
		if s.Fixtures != "" {
			return errors.New("fixtures are only supported by the memory store")
		}
		return s.Postgres.Validate()
	}
	return nil
}

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32         `help:"maximum number of connections in pool" default:"10"`
	MinConns        int32         `help:"minimum number of connections in pool" default:"2"`
	MaxConnLifetime time.Duration `help:"maximum connection lifetime" default:"1h"`
	MaxConnIdleTime time.Duration `help:"maximum connection idle time" default:"30m"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"TENANTGATE_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) Validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

// stores bundles the store implementations selected by StoreFlags.
type stores struct {
	directory     store.TenantDirectory
	organizations store.OrganizationStore
	usage         store.UsageStore
	sessions      store.SessionStore
	close         func()
}

func openStores(ctx context.Context, flags StoreFlags, log zerolog.Logger) (*stores, error) {
	switch flags.StoreType {
	case "postgres":
		pool, err := postgresstore.NewPool(ctx, &postgresstore.PoolConfig{
			ConnString:      flags.Postgres.ConnString,
			MaxConns:        flags.Postgres.MaxConns,
			MinConns:        flags.Postgres.MinConns,
			MaxConnLifetime: flags.Postgres.MaxConnLifetime,
			MaxConnIdleTime: flags.Postgres.MaxConnIdleTime,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres pool: %w", err)
		}

		if flags.Postgres.AutoMigrate {
			if err := postgresstore.RunMigrations(ctx, pool); err != nil {
				pool.Close()
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
		}

		log.Info().Msg("Using PostgreSQL stores")

		return &stores{
			directory:     postgresstore.NewProfileStore(pool),
			organizations: postgresstore.NewOrganizationStore(pool),
			usage:         postgresstore.NewUsageStore(pool),
			sessions:      postgresstore.NewSessionStore(pool),
			close:         pool.Close,
		}, nil

	default:
		s := &stores{
			organizations: memorystore.NewOrganizationStore(),
			sessions:      memorystore.NewSessionStore(),
			close:         func() {},
		}
		profiles := memorystore.NewProfileStore()
		usage := memorystore.NewUsageStore()
		s.directory = profiles
		s.usage = usage

		if flags.Fixtures != "" {
			fx, err := loadFixturesFile(flags.Fixtures)
			if err != nil {
				return nil, err
			}
			if err := fx.apply(ctx, s.organizations, profiles, usage); err != nil {
				return nil, fmt.Errorf("failed to load fixtures: %w", err)
			}
			log.Info().Str("path", flags.Fixtures).Msg("Fixtures loaded")
		}

		log.Info().Msg("Using in-memory stores")

		return s, nil
	}
}

func newGuard(flags StoreFlags, s *stores, log *zerolog.Logger) (*limits.Guard, error) {
	plans := limits.StaticPlans()
	if flags.Plans != "" {
		var err error
		plans, err = limits.LoadPlansFile(flags.Plans)
		if err != nil {
			return nil, err
		}
	}

	loc, err := time.LoadLocation(flags.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", flags.Timezone, err)
	}

	return limits.NewGuard(limits.Config{
		Organizations: s.organizations,
		Usage:         s.usage,
		Plans:         plans,
		Clock:         clockwork.NewRealClock(),
		Location:      loc,
		Logger:        log,
	})
}

// setup configures logging and, when enabled, telemetry. The returned
// function flushes telemetry and must be called before exit.
func setup(ctx context.Context, globals *Globals) (zerolog.Logger, func()) {
	log := logger.Setup(globals.Debug)
	zlog.Logger = log

	if !globals.Tracing {
		return log, func() {}
	}

	log.Info().Msg("Tracing is enabled")
	shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{
		ServiceName: "tenantd",
		Version:     globals.Version,
		SampleRatio: globals.SampleRatio,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
		return log, func() {}
	}

	return log, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown telemetry")
		}
	}
}
