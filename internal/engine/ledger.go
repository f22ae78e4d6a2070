package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"jobledger/internal/domain"
	"jobledger/internal/events"
	"jobledger/internal/metrics"
	"jobledger/internal/repo"
)

const resultRejected = "rejected"

var four = decimal.NewFromInt(4)

// PayForJob moves the job price from the caller to the contractor and marks the job
// paid, all in one transaction. Business refusals come back as a non-OK Result with a
// nil error; authorization and lookup failures come back as errors.
func (e Engine) PayForJob(ctx context.Context, callerID, jobID int64) (domain.Result, error) {
	res, err := e.payForJob(ctx, callerID, jobID)
	log := e.Log.With().Int64("profile_id", callerID).Int64("job_id", jobID).Logger()
	switch {
	case err != nil:
		metrics.PaymentsTotal.WithLabelValues(resultRejected).Inc()
		log.Warn().Err(err).Msg("payment rejected")
	case res != domain.ResultOK:
		metrics.PaymentsTotal.WithLabelValues(string(res)).Inc()
		log.Warn().Str("result", string(res)).Msg("payment refused")
	default:
		metrics.PaymentsTotal.WithLabelValues(string(res)).Inc()
		log.Info().Str("result", string(res)).Msg("job paid")
	}
	return res, err
}

func (e Engine) payForJob(ctx context.Context, callerID, jobID int64) (domain.Result, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	caller, err := e.callerTx(ctx, tx, callerID)
	if err != nil {
		return "", err
	}
	if caller.Type != domain.RoleClient {
		return "", ErrUnauthorized
	}
	job, err := e.Repo.GetJobWithContract(ctx, tx, jobID)
	if err != nil {
		return "", fmt.Errorf("job %d: %w", jobID, err)
	}
	if job.Contract.ClientID != caller.ID {
		return "", ErrUnauthorized
	}
	if job.Paid {
		return domain.ResultAlreadyPaid, nil
	}
	if job.Price.GreaterThan(caller.Balance) {
		return domain.ResultNotEnoughBalance, nil
	}

	now := e.now()
	flipped, err := e.Repo.MarkJobPaid(ctx, tx, job.ID, now)
	if err != nil {
		return "", fmt.Errorf("mark job paid: %w", err)
	}
	if !flipped {
		return domain.ResultAlreadyPaid, nil
	}
	debited, err := e.Repo.DebitBalance(ctx, tx, caller.ID, job.Price, now)
	if err != nil {
		return "", fmt.Errorf("debit client: %w", err)
	}
	if !debited {
		return domain.ResultNotEnoughBalance, nil
	}
	if err := e.Repo.CreditBalance(ctx, tx, job.Contract.ContractorID, job.Price, now); err != nil {
		return "", fmt.Errorf("credit contractor: %w", err)
	}
	payload := events.EventPayload{
		"transfer_id":   uuid.NewString(),
		"amount":        job.Price.StringFixed(2),
		"client_id":     caller.ID,
		"contractor_id": job.Contract.ContractorID,
		"contract_id":   job.Contract.ID,
	}
	if err := e.eventWriter().Append(ctx, tx, events.TypeJobPaid, "job", strconv.FormatInt(job.ID, 10), strconv.FormatInt(caller.ID, 10), payload); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	metrics.PaidCentsTotal.Add(float64(repo.ToCents(job.Price)))
	return domain.ResultOK, nil
}

// Deposit tops up the caller's own balance by at most a quarter of what the caller
// still owes on unpaid jobs.
func (e Engine) Deposit(ctx context.Context, callerID, targetID int64, amount decimal.Decimal) (domain.Result, error) {
	res, err := e.deposit(ctx, callerID, targetID, amount)
	log := e.Log.With().Int64("profile_id", callerID).Str("amount", amount.String()).Logger()
	switch {
	case err != nil:
		metrics.DepositsTotal.WithLabelValues(resultRejected).Inc()
		log.Warn().Err(err).Msg("deposit rejected")
	case res != domain.ResultOK:
		metrics.DepositsTotal.WithLabelValues(string(res)).Inc()
		log.Warn().Str("result", string(res)).Msg("deposit refused")
	default:
		metrics.DepositsTotal.WithLabelValues(string(res)).Inc()
		log.Info().Str("result", string(res)).Msg("balance deposited")
	}
	return res, err
}

func (e Engine) deposit(ctx context.Context, callerID, targetID int64, amount decimal.Decimal) (domain.Result, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	caller, err := e.callerTx(ctx, tx, callerID)
	if err != nil {
		return "", err
	}
	if caller.Type != domain.RoleClient {
		return "", ErrUnauthorized
	}
	if caller.ID != targetID {
		return "", ErrUnauthorized
	}
	if !amount.IsPositive() {
		return "", InvalidInputError{Field: "addedBalance", Reason: "must be positive"}
	}
	if !amount.Equal(amount.Round(2)) {
		return "", InvalidInputError{Field: "addedBalance", Reason: "at most two decimal places"}
	}

	totalDue, err := e.Repo.SumJobPrices(ctx, tx, repo.JobFilter{
		Paid:     repo.Bool(false),
		Contract: repo.ContractFilter{ClientID: caller.ID},
	})
	if err != nil {
		return "", fmt.Errorf("total due: %w", err)
	}
	// amount <= totalDue/4, compared without division.
	if amount.Mul(four).GreaterThan(totalDue) {
		return domain.ResultExceededDepositLimit, nil
	}

	if err := e.Repo.CreditBalance(ctx, tx, caller.ID, amount, e.now()); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", ErrUnauthorized
		}
		return "", fmt.Errorf("credit balance: %w", err)
	}
	payload := events.EventPayload{
		"transfer_id": uuid.NewString(),
		"amount":      amount.StringFixed(2),
		"total_due":   totalDue.StringFixed(2),
	}
	id := strconv.FormatInt(caller.ID, 10)
	if err := e.eventWriter().Append(ctx, tx, events.TypeBalanceDeposited, "profile", id, id, payload); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return domain.ResultOK, nil
}
