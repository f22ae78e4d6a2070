package repo

import (
	"strings"
	"time"

	"jobledger/internal/domain"
)

// Window is an open time interval: both bounds are exclusive.
type Window struct {
	After  time.Time
	Before time.Time
}

// ContractFilter narrows a contract query. Zero values are ignored.
type ContractFilter struct {
	// ParticipantID matches contracts where the profile is client or contractor.
	ParticipantID int64
	ClientID      int64
	ContractorID  int64
	Status        domain.ContractStatus
	NotStatus     domain.ContractStatus
}

func (f ContractFilter) clauses(alias string) ([]string, []any) {
	var clauses []string
	var args []any
	col := func(name string) string { return alias + "." + name }
	if f.ParticipantID != 0 {
		clauses = append(clauses, "("+col("client_id")+"=? OR "+col("contractor_id")+"=?)")
		args = append(args, f.ParticipantID, f.ParticipantID)
	}
	if f.ClientID != 0 {
		clauses = append(clauses, col("client_id")+"=?")
		args = append(args, f.ClientID)
	}
	if f.ContractorID != 0 {
		clauses = append(clauses, col("contractor_id")+"=?")
		args = append(args, f.ContractorID)
	}
	if f.Status != "" {
		clauses = append(clauses, col("status")+"=?")
		args = append(args, string(f.Status))
	}
	if f.NotStatus != "" {
		clauses = append(clauses, col("status")+"<>?")
		args = append(args, string(f.NotStatus))
	}
	return clauses, args
}

// JobFilter narrows a job query joined with its contract as "c".
type JobFilter struct {
	Paid       *bool
	PaidWithin *Window
	Contract   ContractFilter
}

func (f JobFilter) clauses() ([]string, []any) {
	var clauses []string
	var args []any
	if f.Paid != nil {
		v := 0
		if *f.Paid {
			v = 1
		}
		clauses = append(clauses, "j.paid=?")
		args = append(args, v)
	}
	if f.PaidWithin != nil {
		clauses = append(clauses, "j.paid=1", "j.payment_date>?", "j.payment_date<?")
		args = append(args, FormatTime(f.PaidWithin.After), FormatTime(f.PaidWithin.Before))
	}
	cc, ca := f.Contract.clauses("c")
	return append(clauses, cc...), append(args, ca...)
}

func where(clauses []string) string {
	if len(clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(clauses, " AND ")
}

func Bool(v bool) *bool { return &v }
