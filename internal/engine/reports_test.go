package engine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobledger/internal/domain"
)

func cp(id int64, paid string) domain.ClientPayments {
	return domain.ClientPayments{ID: id, FirstName: "c", LastName: "x", Paid: decimal.RequireFromString(paid)}
}

func TestRankClientsStableOnTies(t *testing.T) {
	rows := []domain.ClientPayments{cp(1, "442"), cp(2, "442"), cp(4, "2020")}
	got := rankClients(rows, 3)
	require.Len(t, got, 3)
	assert.Equal(t, []int64{4, 1, 2}, []int64{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, "c x", got[0].FullName)
	assert.Equal(t, int64(1), rows[0].ID, "input is not reordered")

	assert.Len(t, rankClients(rows, 1), 1)
	assert.Empty(t, rankClients(nil, 2))
}

func TestRankProfessionsFirstMaximumWins(t *testing.T) {
	_, ok := rankProfessions(nil)
	assert.False(t, ok)

	best, ok := rankProfessions([]domain.ProfessionEarnings{
		{Profession: "Fighter", Earnings: decimal.NewFromInt(10)},
		{Profession: "Musician", Earnings: decimal.NewFromInt(30)},
		{Profession: "Programmer", Earnings: decimal.NewFromInt(30)},
	})
	assert.True(t, ok)
	assert.Equal(t, "Musician", best.Profession)
}

func TestParseWindow(t *testing.T) {
	w, err := ParseWindow("2020-08-10", "2020-08-14")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 8, 10, 0, 0, 0, 0, time.UTC), w.After)
	assert.Equal(t, time.Date(2020, 8, 14, 23, 59, 59, int(999*time.Millisecond), time.UTC), w.Before)

	_, err = ParseWindow("2020-08-10", "")
	assert.Error(t, err)
}
