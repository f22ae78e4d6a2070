package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleClient     Role = "client"
	RoleContractor Role = "contractor"
)

type ContractStatus string

const (
	ContractNew        ContractStatus = "new"
	ContractInProgress ContractStatus = "in_progress"
	ContractTerminated ContractStatus = "terminated"
)

// Result is the machine-readable outcome of a transfer or deposit.
type Result string

const (
	ResultOK                   Result = "OK"
	ResultAlreadyPaid          Result = "ALREADY_PAID"
	ResultNotEnoughBalance     Result = "NOT_ENOUGH_BALANCE"
	ResultExceededDepositLimit Result = "EXCEEDED_25_PERCENT"
)

type Profile struct {
	ID         int64           `json:"id"`
	FirstName  string          `json:"firstName"`
	LastName   string          `json:"lastName"`
	Profession string          `json:"profession"`
	Balance    decimal.Decimal `json:"balance"`
	Type       Role            `json:"type"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

func (p Profile) FullName() string {
	return fullName(p.FirstName, p.LastName)
}

func fullName(first, last string) string {
	return first + " " + last
}

type Contract struct {
	ID           int64          `json:"id"`
	Terms        string         `json:"terms"`
	Status       ContractStatus `json:"status"`
	ClientID     int64          `json:"ClientId"`
	ContractorID int64          `json:"ContractorId"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// HasParticipant reports whether the profile is the contract's client or contractor.
func (c Contract) HasParticipant(profileID int64) bool {
	return c.ClientID == profileID || c.ContractorID == profileID
}

type Job struct {
	ID          int64           `json:"id"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Paid        bool            `json:"paid"`
	PaymentDate *time.Time      `json:"paymentDate,omitempty"`
	ContractID  int64           `json:"ContractId"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// JobWithContract is a job joined with its parent contract.
type JobWithContract struct {
	Job
	Contract Contract `json:"Contract"`
}

// ProfessionEarnings is one unordered row of the grouped earnings aggregate.
type ProfessionEarnings struct {
	Profession string          `json:"profession"`
	Earnings   decimal.Decimal `json:"earnings"`
}

// ClientPayments is one unordered row of the grouped client payments aggregate.
type ClientPayments struct {
	ID        int64           `json:"id"`
	FirstName string          `json:"firstName"`
	LastName  string          `json:"lastName"`
	Paid      decimal.Decimal `json:"paid"`
}

func (c ClientPayments) FullName() string {
	return fullName(c.FirstName, c.LastName)
}

type BestClient struct {
	ID       int64           `json:"id"`
	FullName string          `json:"fullName"`
	Paid     decimal.Decimal `json:"paid"`
}

type LedgerEvent struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
