// Package seed loads marketplace fixtures into the ledger database.
package seed

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"jobledger/internal/domain"
	"jobledger/internal/events"
	"jobledger/internal/repo"
)

//go:embed fixtures.yaml
var defaultFixture []byte

type Fixture struct {
	Profiles  []ProfileRow  `yaml:"profiles"`
	Contracts []ContractRow `yaml:"contracts"`
	Jobs      []JobRow      `yaml:"jobs"`
}

type ProfileRow struct {
	ID         int64  `yaml:"id"`
	FirstName  string `yaml:"first_name"`
	LastName   string `yaml:"last_name"`
	Profession string `yaml:"profession"`
	Balance    string `yaml:"balance"`
	Type       string `yaml:"type"`
}

type ContractRow struct {
	ID           int64  `yaml:"id"`
	Terms        string `yaml:"terms"`
	Status       string `yaml:"status"`
	ClientID     int64  `yaml:"client_id"`
	ContractorID int64  `yaml:"contractor_id"`
}

type JobRow struct {
	ID          int64  `yaml:"id"`
	Description string `yaml:"description"`
	Price       string `yaml:"price"`
	Paid        bool   `yaml:"paid"`
	PaymentDate string `yaml:"payment_date"`
	ContractID  int64  `yaml:"contract_id"`
}

// Default returns the embedded marketplace fixture.
func Default() (Fixture, error) {
	return Parse(defaultFixture)
}

func Parse(data []byte) (Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("parse fixture: %w", err)
	}
	return f, f.Validate()
}

// Validate checks referential integrity and the contract role rules that the API
// itself never enforces because no endpoint creates contracts.
func (f Fixture) Validate() error {
	roles := map[int64]domain.Role{}
	for _, p := range f.Profiles {
		if _, dup := roles[p.ID]; dup {
			return fmt.Errorf("profile %d: duplicate id", p.ID)
		}
		role := domain.Role(p.Type)
		if role != domain.RoleClient && role != domain.RoleContractor {
			return fmt.Errorf("profile %d: invalid type %q", p.ID, p.Type)
		}
		bal, err := decimal.NewFromString(p.Balance)
		if err != nil {
			return fmt.Errorf("profile %d: balance: %w", p.ID, err)
		}
		if bal.IsNegative() {
			return fmt.Errorf("profile %d: negative balance", p.ID)
		}
		roles[p.ID] = role
	}
	contracts := map[int64]bool{}
	for _, c := range f.Contracts {
		if contracts[c.ID] {
			return fmt.Errorf("contract %d: duplicate id", c.ID)
		}
		switch domain.ContractStatus(c.Status) {
		case domain.ContractNew, domain.ContractInProgress, domain.ContractTerminated:
		default:
			return fmt.Errorf("contract %d: invalid status %q", c.ID, c.Status)
		}
		if c.ClientID == c.ContractorID {
			return fmt.Errorf("contract %d: client and contractor must differ", c.ID)
		}
		if roles[c.ClientID] != domain.RoleClient {
			return fmt.Errorf("contract %d: profile %d is not a client", c.ID, c.ClientID)
		}
		if roles[c.ContractorID] != domain.RoleContractor {
			return fmt.Errorf("contract %d: profile %d is not a contractor", c.ID, c.ContractorID)
		}
		contracts[c.ID] = true
	}
	jobs := map[int64]bool{}
	for _, j := range f.Jobs {
		if jobs[j.ID] {
			return fmt.Errorf("job %d: duplicate id", j.ID)
		}
		if !contracts[j.ContractID] {
			return fmt.Errorf("job %d: unknown contract %d", j.ID, j.ContractID)
		}
		price, err := decimal.NewFromString(j.Price)
		if err != nil {
			return fmt.Errorf("job %d: price: %w", j.ID, err)
		}
		if !price.IsPositive() {
			return fmt.Errorf("job %d: price must be positive", j.ID)
		}
		if j.Paid != (j.PaymentDate != "") {
			return fmt.Errorf("job %d: paid and payment_date must be set together", j.ID)
		}
		if j.PaymentDate != "" {
			if _, err := time.Parse(time.RFC3339Nano, j.PaymentDate); err != nil {
				return fmt.Errorf("job %d: payment_date: %w", j.ID, err)
			}
		}
		jobs[j.ID] = true
	}
	return nil
}

type Options struct {
	// Reset clears profiles, contracts and jobs before loading.
	Reset bool
	Now   func() time.Time
}

var ErrNotEmpty = errors.New("ledger already holds profiles; use reset to reload")

// Apply writes the fixture in one transaction.
func Apply(ctx context.Context, db *sql.DB, f Fixture, opts Options) error {
	if err := f.Validate(); err != nil {
		return err
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if opts.Reset {
		for _, table := range []string{"jobs", "contracts", "profiles"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
				return fmt.Errorf("reset %s: %w", table, err)
			}
		}
	} else {
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM profiles`).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			return ErrNotEmpty
		}
	}

	r := repo.Repo{DB: db}
	ts := now().UTC()
	for _, p := range f.Profiles {
		err := r.InsertProfile(ctx, tx, domain.Profile{
			ID:         p.ID,
			FirstName:  p.FirstName,
			LastName:   p.LastName,
			Profession: p.Profession,
			Balance:    decimal.RequireFromString(p.Balance),
			Type:       domain.Role(p.Type),
			CreatedAt:  ts,
		})
		if err != nil {
			return fmt.Errorf("insert profile %d: %w", p.ID, err)
		}
	}
	for _, c := range f.Contracts {
		err := r.InsertContract(ctx, tx, domain.Contract{
			ID:           c.ID,
			Terms:        c.Terms,
			Status:       domain.ContractStatus(c.Status),
			ClientID:     c.ClientID,
			ContractorID: c.ContractorID,
			CreatedAt:    ts,
		})
		if err != nil {
			return fmt.Errorf("insert contract %d: %w", c.ID, err)
		}
	}
	for _, j := range f.Jobs {
		job := domain.Job{
			ID:          j.ID,
			Description: j.Description,
			Price:       decimal.RequireFromString(j.Price),
			Paid:        j.Paid,
			ContractID:  j.ContractID,
			CreatedAt:   ts,
		}
		if j.PaymentDate != "" {
			paidAt, _ := time.Parse(time.RFC3339Nano, j.PaymentDate)
			job.PaymentDate = &paidAt
		}
		if err := r.InsertJob(ctx, tx, job); err != nil {
			return fmt.Errorf("insert job %d: %w", j.ID, err)
		}
	}
	w := events.Writer{Now: now}
	payload := events.EventPayload{
		"profiles":  len(f.Profiles),
		"contracts": len(f.Contracts),
		"jobs":      len(f.Jobs),
		"reset":     opts.Reset,
	}
	if err := w.Append(ctx, tx, events.TypeLedgerSeeded, "ledger", "", "system", payload); err != nil {
		return err
	}
	return tx.Commit()
}
