package app

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobledger/internal/migrate"
	"jobledger/internal/repo"
)

func TestOpenMigratesAndSeedsOnce(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	conn, err := Open(ctx, Options{Workspace: dir, SeedIfEmpty: true, Log: zerolog.Nop()})
	require.NoError(t, err)
	v, dirty, err := migrate.Version(conn)
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)
	assert.False(t, dirty)

	r := repo.Repo{DB: conn}
	ps, err := r.ListProfiles(ctx)
	require.NoError(t, err)
	assert.Len(t, ps, 8)
	require.NoError(t, r.CreditBalance(ctx, nil, 1, ps[0].Balance, ps[0].UpdatedAt))
	conn.Close()

	conn, err = Open(ctx, Options{Workspace: dir, SeedIfEmpty: true, Log: zerolog.Nop()})
	require.NoError(t, err)
	defer conn.Close()
	p, err := repo.Repo{DB: conn}.GetProfile(ctx, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, "2300.00", p.Balance.StringFixed(2), "existing ledger is not reseeded")
}

func TestOpenWithoutSeedLeavesLedgerEmpty(t *testing.T) {
	conn, err := Open(context.Background(), Options{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()
	ps, err := repo.Repo{DB: conn}.ListProfiles(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ps)
}
