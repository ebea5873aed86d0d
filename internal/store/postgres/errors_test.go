package postgres

import (
	"errors"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/tenantgate/internal/store"
)

func TestMapPostgresError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{
			name:    "duplicate organization",
			err:     &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "organizations_pkey"},
			wantErr: store.ErrOrganizationAlreadyExists,
		},
		{
			name:    "duplicate profile",
			err:     &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "profiles_pkey"},
			wantErr: store.ErrPrincipalAlreadyExists,
		},
		{
			name:    "profile for missing workshop",
			err:     &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation, ConstraintName: "profiles_workshop_id_fkey"},
			wantErr: store.ErrWorkshopNotFound,
		},
		{
			name:    "workshop for missing organization",
			err:     &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation, ConstraintName: "workshops_organization_id_fkey"},
			wantErr: store.ErrOrganizationNotFound,
		},
		{
			name:    "server shutting down",
			err:     &pgconn.PgError{Code: pgerrcode.AdminShutdown},
			wantErr: store.ErrUnavailable,
		},
		{
			name:    "too many connections",
			err:     &pgconn.PgError{Code: pgerrcode.TooManyConnections},
			wantErr: store.ErrUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, mapPostgresError(tt.err), tt.wantErr)
		})
	}

	t.Run("nil", func(t *testing.T) {
		require.NoError(t, mapPostgresError(nil))
	})

	t.Run("unknown code keeps the original error", func(t *testing.T) {
		pgErr := &pgconn.PgError{Code: pgerrcode.SyntaxError, Message: "syntax error"}
		err := mapPostgresError(pgErr)

		var got *pgconn.PgError
		require.ErrorAs(t, err, &got)
		require.Equal(t, pgerrcode.SyntaxError, got.Code)
		require.NotErrorIs(t, err, store.ErrUnavailable)
	})

	t.Run("non postgres error", func(t *testing.T) {
		plain := errors.New("plain")
		require.Equal(t, plain, mapPostgresError(plain))
	})
}

func TestIsUndefinedTable(t *testing.T) {
	require.True(t, isUndefinedTable(&pgconn.PgError{Code: pgerrcode.UndefinedTable}))
	require.False(t, isUndefinedTable(&pgconn.PgError{Code: pgerrcode.UniqueViolation}))
	require.False(t, isUndefinedTable(errors.New("relation does not exist")))
}
