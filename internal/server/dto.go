package server

import (
	"time"

	"jobledger/internal/domain"
)

// Request payloads

type DepositRequest struct {
	AddedBalance float64 `json:"addedBalance" example:"80" doc:"Amount to add to the caller's balance"`
}

// Responses

type ResultResponse struct {
	Result string `json:"result" example:"OK"`
}

type ProfileResponse struct {
	ID         int64     `json:"id"`
	FirstName  string    `json:"firstName"`
	LastName   string    `json:"lastName"`
	Profession string    `json:"profession"`
	Balance    float64   `json:"balance"`
	Type       string    `json:"type" enum:"client,contractor"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type ContractResponse struct {
	ID           int64     `json:"id"`
	Terms        string    `json:"terms"`
	Status       string    `json:"status" enum:"new,in_progress,terminated"`
	ClientID     int64     `json:"ClientId"`
	ContractorID int64     `json:"ContractorId"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type JobResponse struct {
	ID          int64      `json:"id"`
	Description string     `json:"description"`
	Price       float64    `json:"price"`
	Paid        bool       `json:"paid"`
	PaymentDate *time.Time `json:"paymentDate"`
	ContractID  int64      `json:"ContractId"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type BestProfessionResponse struct {
	BestProfession string `json:"bestProfession" example:"Programmer"`
}

type BestClientResponse struct {
	ID       int64   `json:"id"`
	FullName string  `json:"fullName"`
	Paid     float64 `json:"paid"`
}

func toProfileResponse(p domain.Profile) ProfileResponse {
	return ProfileResponse{
		ID:         p.ID,
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		Profession: p.Profession,
		Balance:    p.Balance.InexactFloat64(),
		Type:       string(p.Type),
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

func toContractResponse(c domain.Contract) ContractResponse {
	return ContractResponse{
		ID:           c.ID,
		Terms:        c.Terms,
		Status:       string(c.Status),
		ClientID:     c.ClientID,
		ContractorID: c.ContractorID,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

func toContractResponses(cs []domain.Contract) []ContractResponse {
	res := make([]ContractResponse, 0, len(cs))
	for _, c := range cs {
		res = append(res, toContractResponse(c))
	}
	return res
}

func toJobResponses(js []domain.Job) []JobResponse {
	res := make([]JobResponse, 0, len(js))
	for _, j := range js {
		res = append(res, JobResponse{
			ID:          j.ID,
			Description: j.Description,
			Price:       j.Price.InexactFloat64(),
			Paid:        j.Paid,
			PaymentDate: j.PaymentDate,
			ContractID:  j.ContractID,
			CreatedAt:   j.CreatedAt,
			UpdatedAt:   j.UpdatedAt,
		})
	}
	return res
}

func toBestClientResponses(cs []domain.BestClient) []BestClientResponse {
	res := make([]BestClientResponse, 0, len(cs))
	for _, c := range cs {
		res = append(res, BestClientResponse{
			ID:       c.ID,
			FullName: c.FullName,
			Paid:     c.Paid.InexactFloat64(),
		})
	}
	return res
}
