package seed_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobledger/internal/db"
	"jobledger/internal/domain"
	"jobledger/internal/migrate"
	"jobledger/internal/repo"
	"jobledger/internal/seed"
)

func TestDefaultFixtureIsValid(t *testing.T) {
	f, err := seed.Default()
	require.NoError(t, err)
	assert.Len(t, f.Profiles, 8)
	assert.Len(t, f.Contracts, 9)
	assert.Len(t, f.Jobs, 14)
}

func TestValidateRejectsRoleMismatch(t *testing.T) {
	_, err := seed.Parse([]byte(`
profiles:
  - {id: 1, first_name: A, last_name: B, profession: X, balance: "1", type: contractor}
  - {id: 2, first_name: C, last_name: D, profession: Y, balance: "1", type: contractor}
contracts:
  - {id: 1, terms: t, status: new, client_id: 1, contractor_id: 2}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a client")
}

func TestValidateRejectsSelfContract(t *testing.T) {
	_, err := seed.Parse([]byte(`
profiles:
  - {id: 1, first_name: A, last_name: B, profession: X, balance: "1", type: client}
contracts:
  - {id: 1, terms: t, status: new, client_id: 1, contractor_id: 1}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must differ")
}

func TestValidateRejectsPaidWithoutDate(t *testing.T) {
	_, err := seed.Parse([]byte(`
profiles:
  - {id: 1, first_name: A, last_name: B, profession: X, balance: "1", type: client}
  - {id: 2, first_name: C, last_name: D, profession: Y, balance: "1", type: contractor}
contracts:
  - {id: 1, terms: t, status: new, client_id: 1, contractor_id: 2}
jobs:
  - {id: 1, description: w, price: "5", paid: true, contract_id: 1}
`))
	require.Error(t, err)
}

func TestApplyLoadsAndRefusesTwice(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))

	f, err := seed.Default()
	require.NoError(t, err)
	require.NoError(t, seed.Apply(ctx, conn, f, seed.Options{}))

	r := repo.Repo{DB: conn}
	p, err := r.GetProfile(ctx, nil, 2)
	require.NoError(t, err)
	assert.Equal(t, "Mr Robot", p.FullName())
	assert.Equal(t, "231.11", p.Balance.StringFixed(2))
	assert.Equal(t, domain.RoleClient, p.Type)

	job, err := r.GetJobWithContract(ctx, nil, 14)
	require.NoError(t, err)
	require.NotNil(t, job.PaymentDate)
	assert.Equal(t, "2020-08-14T23:11:26.737Z", repo.FormatTime(*job.PaymentDate))
	assert.Equal(t, int64(6), job.Contract.ContractorID)

	assert.ErrorIs(t, seed.Apply(ctx, conn, f, seed.Options{}), seed.ErrNotEmpty)
	require.NoError(t, seed.Apply(ctx, conn, f, seed.Options{Reset: true}))

	evts, err := r.LatestEvents(ctx, 10, repo.EventFilter{Type: "ledger.seeded"})
	require.NoError(t, err)
	assert.Len(t, evts, 2)
}
