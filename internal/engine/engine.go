package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"jobledger/internal/domain"
	"jobledger/internal/events"
	"jobledger/internal/repo"
)

var (
	// ErrUnauthorized is returned when the caller may not see or act on a resource.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNoData is returned by reports whose window holds no paid jobs.
	ErrNoData = errors.New("no data")
)

// InvalidInputError rejects a malformed argument before any state is read.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

type Engine struct {
	DB   *sql.DB
	Repo repo.Repo
	Log  zerolog.Logger
	Now  func() time.Time
}

func New(db *sql.DB, log zerolog.Logger) Engine {
	return Engine{
		DB:   db,
		Repo: repo.Repo{DB: db},
		Log:  log,
		Now:  time.Now,
	}
}

// eventWriter stamps ledger events with the engine clock.
func (e Engine) eventWriter() events.Writer {
	return events.Writer{Now: e.now}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

// Caller resolves a profile id to the stored profile. Unknown ids are unauthorized.
func (e Engine) Caller(ctx context.Context, profileID int64) (domain.Profile, error) {
	return e.callerTx(ctx, nil, profileID)
}

func (e Engine) callerTx(ctx context.Context, tx *sql.Tx, profileID int64) (domain.Profile, error) {
	p, err := e.Repo.GetProfile(ctx, tx, profileID)
	if errors.Is(err, repo.ErrNotFound) {
		return p, ErrUnauthorized
	}
	return p, err
}

// GetContract returns the contract if the caller is its client or contractor.
func (e Engine) GetContract(ctx context.Context, callerID, contractID int64) (domain.Contract, error) {
	c, err := e.Repo.GetContract(ctx, nil, contractID)
	if err != nil {
		return c, fmt.Errorf("contract %d: %w", contractID, err)
	}
	if !c.HasParticipant(callerID) {
		return domain.Contract{}, ErrUnauthorized
	}
	return c, nil
}

// ListContracts returns the caller's contracts that are not terminated, by id.
func (e Engine) ListContracts(ctx context.Context, callerID int64) ([]domain.Contract, error) {
	return e.Repo.ListContracts(ctx, repo.ContractFilter{
		ParticipantID: callerID,
		NotStatus:     domain.ContractTerminated,
	})
}

// ListUnpaidJobs returns unpaid jobs on the caller's in-progress contracts.
func (e Engine) ListUnpaidJobs(ctx context.Context, callerID int64) ([]domain.Job, error) {
	return e.Repo.ListJobs(ctx, repo.JobFilter{
		Paid: repo.Bool(false),
		Contract: repo.ContractFilter{
			ParticipantID: callerID,
			Status:        domain.ContractInProgress,
		},
	})
}
