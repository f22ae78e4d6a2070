package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"jobledger/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// TimeLayout is fixed width so stored timestamps compare correctly as text.
const TimeLayout = "2006-01-02T15:04:05.000Z"

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// q runs on tx when one is given, otherwise on the pool.
func (r Repo) q(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.DB
}

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// ToCents converts a money amount to integer cents, rounding half away from zero.
func ToCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

func FromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}

func stamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return FormatTime(t)
}

const profileColumns = `id,first_name,last_name,profession,balance_cents,type,created_at,updated_at`

func scanProfile(row scanner) (domain.Profile, error) {
	var (
		p                    domain.Profile
		cents                int64
		role                 string
		createdAt, updatedAt string
	)
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Profession, &cents, &role, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.Balance = FromCents(cents)
	p.Type = domain.Role(role)
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return p, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return p, err
	}
	return p, nil
}

func (r Repo) InsertProfile(ctx context.Context, tx *sql.Tx, p domain.Profile) error {
	if p.Type != domain.RoleClient && p.Type != domain.RoleContractor {
		return fmt.Errorf("invalid profile type %q", p.Type)
	}
	if p.Balance.IsNegative() {
		return errors.New("balance must not be negative")
	}
	created := stamp(p.CreatedAt)
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO profiles(`+profileColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		p.ID, p.FirstName, p.LastName, p.Profession, ToCents(p.Balance), string(p.Type), created, created)
	return err
}

func (r Repo) GetProfile(ctx context.Context, tx *sql.Tx, id int64) (domain.Profile, error) {
	return scanProfile(r.q(tx).QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id=?`, id))
}

func (r Repo) ListProfiles(ctx context.Context) ([]domain.Profile, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// CreditBalance adds amount to the profile balance.
func (r Repo) CreditBalance(ctx context.Context, tx *sql.Tx, profileID int64, amount decimal.Decimal, at time.Time) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE profiles SET balance_cents=balance_cents+?, updated_at=? WHERE id=?`,
		ToCents(amount), stamp(at), profileID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DebitBalance subtracts amount only while the balance covers it. It returns false
// when the balance is insufficient at the moment of the write.
func (r Repo) DebitBalance(ctx context.Context, tx *sql.Tx, profileID int64, amount decimal.Decimal, at time.Time) (bool, error) {
	cents := ToCents(amount)
	res, err := r.q(tx).ExecContext(ctx, `UPDATE profiles SET balance_cents=balance_cents-?, updated_at=? WHERE id=? AND balance_cents>=?`,
		cents, stamp(at), profileID, cents)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

const contractColumns = `c.id,c.terms,c.status,c.client_id,c.contractor_id,c.created_at,c.updated_at`

func scanContract(row scanner) (domain.Contract, error) {
	var (
		c                    domain.Contract
		status               string
		createdAt, updatedAt string
	)
	err := row.Scan(&c.ID, &c.Terms, &status, &c.ClientID, &c.ContractorID, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	c.Status = domain.ContractStatus(status)
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return c, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return c, err
	}
	return c, nil
}

func (r Repo) InsertContract(ctx context.Context, tx *sql.Tx, c domain.Contract) error {
	created := stamp(c.CreatedAt)
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO contracts(id,terms,status,client_id,contractor_id,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		c.ID, c.Terms, string(c.Status), c.ClientID, c.ContractorID, created, created)
	return err
}

func (r Repo) GetContract(ctx context.Context, tx *sql.Tx, id int64) (domain.Contract, error) {
	return scanContract(r.q(tx).QueryRowContext(ctx, `SELECT `+contractColumns+` FROM contracts c WHERE c.id=?`, id))
}

func (r Repo) ListContracts(ctx context.Context, f ContractFilter) ([]domain.Contract, error) {
	clauses, args := f.clauses("c")
	query := `SELECT ` + contractColumns + ` FROM contracts c` + where(clauses) + ` ORDER BY c.id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Contract{}
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

const jobColumns = `j.id,j.description,j.price_cents,j.paid,j.payment_date,j.contract_id,j.created_at,j.updated_at`

func scanJobInto(j *domain.Job, dest []any, row scanner) error {
	var (
		cents                int64
		paid                 int
		paymentDate          sql.NullString
		createdAt, updatedAt string
	)
	base := []any{&j.ID, &j.Description, &cents, &paid, &paymentDate, &j.ContractID, &createdAt, &updatedAt}
	err := row.Scan(append(base, dest...)...)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	j.Price = FromCents(cents)
	j.Paid = paid == 1
	if paymentDate.Valid {
		t, err := parseTime(paymentDate.String)
		if err != nil {
			return err
		}
		j.PaymentDate = &t
	}
	if j.CreatedAt, err = parseTime(createdAt); err != nil {
		return err
	}
	if j.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return err
	}
	return nil
}

func (r Repo) InsertJob(ctx context.Context, tx *sql.Tx, j domain.Job) error {
	if !j.Price.IsPositive() {
		return errors.New("job price must be positive")
	}
	var paymentDate any
	paid := 0
	if j.Paid {
		if j.PaymentDate == nil {
			return errors.New("paid job requires a payment date")
		}
		paid = 1
		paymentDate = FormatTime(*j.PaymentDate)
	}
	created := stamp(j.CreatedAt)
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO jobs(id,description,price_cents,paid,payment_date,contract_id,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		j.ID, j.Description, ToCents(j.Price), paid, paymentDate, j.ContractID, created, created)
	return err
}

// GetJobWithContract loads a job together with its parent contract.
func (r Repo) GetJobWithContract(ctx context.Context, tx *sql.Tx, id int64) (domain.JobWithContract, error) {
	var (
		res                  domain.JobWithContract
		status               string
		createdAt, updatedAt string
	)
	row := r.q(tx).QueryRowContext(ctx, `SELECT `+jobColumns+`,`+contractColumns+`
FROM jobs j JOIN contracts c ON c.id=j.contract_id WHERE j.id=?`, id)
	c := &res.Contract
	if err := scanJobInto(&res.Job, []any{&c.ID, &c.Terms, &status, &c.ClientID, &c.ContractorID, &createdAt, &updatedAt}, row); err != nil {
		return res, err
	}
	c.Status = domain.ContractStatus(status)
	var err error
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return res, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return res, err
	}
	return res, nil
}

func (r Repo) ListJobs(ctx context.Context, f JobFilter) ([]domain.Job, error) {
	clauses, args := f.clauses()
	query := `SELECT ` + jobColumns + ` FROM jobs j JOIN contracts c ON c.id=j.contract_id` + where(clauses) + ` ORDER BY j.id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Job{}
	for rows.Next() {
		var j domain.Job
		if err := scanJobInto(&j, nil, rows); err != nil {
			return nil, err
		}
		res = append(res, j)
	}
	return res, rows.Err()
}

// SumJobPrices totals the price of every job matching the filter.
func (r Repo) SumJobPrices(ctx context.Context, tx *sql.Tx, f JobFilter) (decimal.Decimal, error) {
	clauses, args := f.clauses()
	var cents int64
	err := r.q(tx).QueryRowContext(ctx, `SELECT COALESCE(SUM(j.price_cents),0) FROM jobs j JOIN contracts c ON c.id=j.contract_id`+where(clauses), args...).
		Scan(&cents)
	if err != nil {
		return decimal.Zero, err
	}
	return FromCents(cents), nil
}

// MarkJobPaid flips paid from false to true. It returns false when another payer
// already flipped it, so the caller can abort its transaction.
func (r Repo) MarkJobPaid(ctx context.Context, tx *sql.Tx, jobID int64, at time.Time) (bool, error) {
	ts := FormatTime(at)
	res, err := r.q(tx).ExecContext(ctx, `UPDATE jobs SET paid=1, payment_date=?, updated_at=? WHERE id=? AND paid=0`, ts, ts, jobID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
