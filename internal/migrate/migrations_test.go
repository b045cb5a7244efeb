package migrate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"careline/internal/db"
	"careline/internal/migrate"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()

	all, err := migrate.Load()
	require.NoError(t, err)
	require.NotEmpty(t, all)

	applied, err := migrate.Migrate(ctx, conn)
	require.NoError(t, err)
	assert.Len(t, applied, len(all))

	v, err := migrate.Current(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, all[len(all)-1].Version, v)

	applied, err = migrate.Migrate(ctx, conn)
	require.NoError(t, err)
	assert.Empty(t, applied)

	var n int
	require.NoError(t, conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM override_requests`).Scan(&n))
	assert.Zero(t, n)
}
