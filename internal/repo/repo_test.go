package repo_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobledger/internal/db"
	"jobledger/internal/domain"
	"jobledger/internal/migrate"
	"jobledger/internal/repo"
	"jobledger/internal/seed"
)

func seeded(t *testing.T) (repo.Repo, *sql.DB) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	f, err := seed.Default()
	require.NoError(t, err)
	require.NoError(t, seed.Apply(context.Background(), conn, f, seed.Options{}))
	return repo.Repo{DB: conn}, conn
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestCentsRoundTrip(t *testing.T) {
	assert.Equal(t, int64(23111), repo.ToCents(decimal.RequireFromString("231.11")))
	assert.Equal(t, int64(13), repo.ToCents(decimal.RequireFromString("0.125")), "half rounds away from zero")
	assert.Equal(t, "231.11", repo.FromCents(23111).StringFixed(2))
}

func TestMarkJobPaidOnlyOnce(t *testing.T) {
	r, _ := seeded(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	ok, err := r.MarkJobPaid(ctx, nil, 2, at)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = r.MarkJobPaid(ctx, nil, 2, at)
	require.NoError(t, err)
	assert.False(t, ok)

	j, err := r.GetJobWithContract(ctx, nil, 2)
	require.NoError(t, err)
	assert.True(t, j.Paid)
	require.NotNil(t, j.PaymentDate)
	assert.True(t, at.Equal(*j.PaymentDate))
	assert.Equal(t, int64(6), j.Contract.ContractorID)
}

func TestDebitBalanceRefusesOverdraft(t *testing.T) {
	r, _ := seeded(t)
	ctx := context.Background()
	now := time.Now()

	ok, err := r.DebitBalance(ctx, nil, 4, decimal.RequireFromString("1.31"), now)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = r.DebitBalance(ctx, nil, 4, decimal.RequireFromString("1.3"), now)
	require.NoError(t, err)
	assert.True(t, ok)

	p, err := r.GetProfile(ctx, nil, 4)
	require.NoError(t, err)
	assert.True(t, p.Balance.IsZero())

	assert.ErrorIs(t, r.CreditBalance(ctx, nil, 99, decimal.NewFromInt(1), now), repo.ErrNotFound)
	_, err = r.GetProfile(ctx, nil, 99)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestJobFilters(t *testing.T) {
	r, _ := seeded(t)
	ctx := context.Background()

	due, err := r.SumJobPrices(ctx, nil, repo.JobFilter{Paid: repo.Bool(false), Contract: repo.ContractFilter{ClientID: 1}})
	require.NoError(t, err)
	assert.Equal(t, "401.00", due.StringFixed(2))

	jobs, err := r.ListJobs(ctx, repo.JobFilter{
		Paid:     repo.Bool(false),
		Contract: repo.ContractFilter{ContractorID: 7, Status: domain.ContractInProgress},
	})
	require.NoError(t, err)
	var ids []int64
	for _, j := range jobs {
		ids = append(ids, j.ID)
	}
	assert.Equal(t, []int64{4, 5}, ids)

	cs, err := r.ListContracts(ctx, repo.ContractFilter{ParticipantID: 8})
	require.NoError(t, err)
	require.Len(t, cs, 2)
	assert.Equal(t, domain.ContractNew, cs[0].Status)
}

func TestEarningsByProfessionWindow(t *testing.T) {
	r, _ := seeded(t)
	w := repo.Window{After: day("2020-08-10"), Before: day("2020-08-15").Add(-time.Millisecond)}
	rows, err := r.EarningsByProfession(context.Background(), w)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Programmer", rows[0].Profession)
	assert.Equal(t, "142.00", rows[0].Earnings.StringFixed(2))

	rows, err = r.EarningsByProfession(context.Background(), repo.Window{After: day("2021-01-01"), Before: day("2021-02-01")})
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestPaymentsByClientGroupsPerClient(t *testing.T) {
	r, _ := seeded(t)
	w := repo.Window{After: day("2020-08-10"), Before: day("2020-08-18").Add(-time.Millisecond)}
	rows, err := r.PaymentsByClient(context.Background(), w)
	require.NoError(t, err)
	got := map[int64]string{}
	for _, row := range rows {
		got[row.ID] = row.Paid.StringFixed(2)
	}
	assert.Equal(t, map[int64]string{1: "442.00", 2: "442.00", 3: "200.00", 4: "2020.00"}, got)
	assert.Equal(t, "Ash", rows[3].FirstName)
}

func TestLatestEventsFilters(t *testing.T) {
	r, _ := seeded(t)
	ctx := context.Background()

	evts, err := r.LatestEvents(ctx, 0, repo.EventFilter{Type: "ledger.seeded"})
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, "system", evts[0].ActorID)

	latest, err := r.LatestEventID(ctx)
	require.NoError(t, err)
	assert.Equal(t, evts[0].ID, latest)

	after, err := r.EventsAfter(ctx, 0, latest)
	require.NoError(t, err)
	assert.Empty(t, after)

	older, err := r.LatestEvents(ctx, 0, repo.EventFilter{Before: latest})
	require.NoError(t, err)
	assert.Empty(t, older)
}
