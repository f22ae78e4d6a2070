package repo

import (
	"context"

	"jobledger/internal/domain"
)

// EarningsByProfession sums paid job prices per contractor profession inside the window.
// Rows come back ordered by profession; ranking is left to the caller.
func (r Repo) EarningsByProfession(ctx context.Context, w Window) ([]domain.ProfessionEarnings, error) {
	clauses, args := JobFilter{PaidWithin: &w}.clauses()
	clauses = append(clauses, "p.type=?")
	args = append(args, string(domain.RoleContractor))
	query := `SELECT p.profession, SUM(j.price_cents)
FROM jobs j
JOIN contracts c ON c.id=j.contract_id
JOIN profiles p ON p.id=c.contractor_id` + where(clauses) + `
GROUP BY p.profession
ORDER BY p.profession`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.ProfessionEarnings{}
	for rows.Next() {
		var (
			pe    domain.ProfessionEarnings
			cents int64
		)
		if err := rows.Scan(&pe.Profession, &cents); err != nil {
			return nil, err
		}
		pe.Earnings = FromCents(cents)
		res = append(res, pe)
	}
	return res, rows.Err()
}

// PaymentsByClient sums paid job prices per client inside the window, ordered by client id.
func (r Repo) PaymentsByClient(ctx context.Context, w Window) ([]domain.ClientPayments, error) {
	clauses, args := JobFilter{PaidWithin: &w}.clauses()
	clauses = append(clauses, "p.type=?")
	args = append(args, string(domain.RoleClient))
	query := `SELECT p.id, p.first_name, p.last_name, SUM(j.price_cents)
FROM jobs j
JOIN contracts c ON c.id=j.contract_id
JOIN profiles p ON p.id=c.client_id` + where(clauses) + `
GROUP BY p.id, p.first_name, p.last_name
ORDER BY p.id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.ClientPayments{}
	for rows.Next() {
		var (
			cp    domain.ClientPayments
			cents int64
		)
		if err := rows.Scan(&cp.ID, &cp.FirstName, &cp.LastName, &cents); err != nil {
			return nil, err
		}
		cp.Paid = FromCents(cents)
		res = append(res, cp)
	}
	return res, rows.Err()
}
