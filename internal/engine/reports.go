package engine

import (
	"context"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"jobledger/internal/domain"
	"jobledger/internal/metrics"
	"jobledger/internal/repo"
)

const (
	DateLayout         = "2006-01-02"
	DefaultClientLimit = 2
)

// ParseWindow turns two calendar dates into the reporting window: from the start of
// from to the last millisecond of to, both bounds exclusive, in UTC.
func ParseWindow(from, to string) (repo.Window, error) {
	start, err := time.ParseInLocation(DateLayout, from, time.UTC)
	if err != nil {
		return repo.Window{}, InvalidInputError{Field: "start", Reason: "expected YYYY-MM-DD"}
	}
	end, err := time.ParseInLocation(DateLayout, to, time.UTC)
	if err != nil {
		return repo.Window{}, InvalidInputError{Field: "end", Reason: "expected YYYY-MM-DD"}
	}
	if end.Before(start) {
		return repo.Window{}, InvalidInputError{Field: "end", Reason: "before start"}
	}
	return repo.Window{
		After:  start,
		Before: end.Add(24*time.Hour - time.Millisecond),
	}, nil
}

// BestProfession returns the contractor profession that earned the most in the window.
func (e Engine) BestProfession(ctx context.Context, from, to string) (domain.ProfessionEarnings, error) {
	w, err := ParseWindow(from, to)
	if err != nil {
		return domain.ProfessionEarnings{}, err
	}
	timer := prometheus.NewTimer(metrics.ReportDuration.WithLabelValues("best_profession"))
	defer timer.ObserveDuration()

	rows, err := e.Repo.EarningsByProfession(ctx, w)
	if err != nil {
		return domain.ProfessionEarnings{}, err
	}
	best, ok := rankProfessions(rows)
	if !ok {
		return best, ErrNoData
	}
	return best, nil
}

// BestClients returns up to limit clients ordered by what they paid in the window.
// An empty window yields an empty slice.
func (e Engine) BestClients(ctx context.Context, from, to string, limit int) ([]domain.BestClient, error) {
	w, err := ParseWindow(from, to)
	if err != nil {
		return nil, err
	}
	if limit < 1 {
		return nil, InvalidInputError{Field: "limit", Reason: "must be at least 1"}
	}
	timer := prometheus.NewTimer(metrics.ReportDuration.WithLabelValues("best_clients"))
	defer timer.ObserveDuration()

	rows, err := e.Repo.PaymentsByClient(ctx, w)
	if err != nil {
		return nil, err
	}
	return rankClients(rows, limit), nil
}

// rankProfessions picks the largest sum; on ties the earliest row wins.
func rankProfessions(rows []domain.ProfessionEarnings) (domain.ProfessionEarnings, bool) {
	if len(rows) == 0 {
		return domain.ProfessionEarnings{}, false
	}
	best := rows[0]
	for _, r := range rows[1:] {
		if r.Earnings.GreaterThan(best.Earnings) {
			best = r
		}
	}
	return best, true
}

// rankClients sorts by paid descending, keeping input order among equals, then truncates.
func rankClients(rows []domain.ClientPayments, limit int) []domain.BestClient {
	sorted := slices.Clone(rows)
	slices.SortStableFunc(sorted, func(a, b domain.ClientPayments) int {
		return b.Paid.Cmp(a.Paid)
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	res := make([]domain.BestClient, 0, len(sorted))
	for _, c := range sorted {
		res = append(res, domain.BestClient{
			ID:       c.ID,
			FullName: c.FullName(),
			Paid:     c.Paid,
		})
	}
	return res
}
