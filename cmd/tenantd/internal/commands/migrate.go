package commands

import (
	"context"
	"fmt"

	"github.com/wolfeidau/tenantgate/internal/logger"
	postgresstore "github.com/wolfeidau/tenantgate/internal/store/postgres"
)

type MigrateCmd struct{}

func (m *MigrateCmd) Run(ctx context.Context, globals *Globals) (err error) {
	log, shutdown := setup(ctx, globals)
	defer shutdown()

	if globals.Store.StoreType != "postgres" {
		return fmt.Errorf("migrations require the postgres store, got %q", globals.Store.StoreType)
	}

	ctx, done := logger.Operation(ctx, log, "migrate")
	defer func() { done(err) }()

	pool, err := postgresstore.NewPool(ctx, &postgresstore.PoolConfig{
		ConnString: globals.Store.Postgres.ConnString,
		MaxConns:   2,
		MinConns:   1,
	})
	if err != nil {
		return fmt.Errorf("failed to create postgres pool: %w", err)
	}
	defer pool.Close()

	return postgresstore.RunMigrations(ctx, pool)
}
