package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shopspring/decimal"

	"jobledger/internal/domain"
	"jobledger/internal/engine"
)

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerProfiles(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "get-me",
		Method:      http.MethodGet,
		Path:        "/profiles/me",
		Summary:     "Authenticated caller profile",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ProfileResponse `json:"body"`
	}, error) {
		p, ok := principalFromContext(ctx)
		if !ok {
			return nil, unauthorized()
		}
		return &struct {
			Body ProfileResponse `json:"body"`
		}{Body: toProfileResponse(p.Profile)}, nil
	})
}

func registerContracts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-contract",
		Method:      http.MethodGet,
		Path:        "/contracts/{id}",
		Summary:     "Get a contract the caller takes part in",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body ContractResponse `json:"body"`
	}, error) {
		caller, authErr := callerID(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.GetContract(ctx, caller, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body ContractResponse `json:"body"`
		}{Body: toContractResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-contracts",
		Method:      http.MethodGet,
		Path:        "/contracts",
		Summary:     "List the caller's non-terminated contracts",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ContractResponse `json:"body"`
	}, error) {
		caller, authErr := callerID(ctx)
		if authErr != nil {
			return nil, authErr
		}
		cs, err := e.ListContracts(ctx, caller)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body []ContractResponse `json:"body"`
		}{Body: toContractResponses(cs)}, nil
	})
}

func registerJobs(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-unpaid-jobs",
		Method:      http.MethodGet,
		Path:        "/jobs/unpaid",
		Summary:     "List unpaid jobs on the caller's active contracts",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []JobResponse `json:"body"`
	}, error) {
		caller, authErr := callerID(ctx)
		if authErr != nil {
			return nil, authErr
		}
		jobs, err := e.ListUnpaidJobs(ctx, caller)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body []JobResponse `json:"body"`
		}{Body: toJobResponses(jobs)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "pay-job",
		Method:      http.MethodPost,
		Path:        "/jobs/{job_id}/pay",
		Summary:     "Pay for a job",
		Description: "Refusals (ALREADY_PAID, NOT_ENOUGH_BALANCE) are returned as {\"result\": CODE} with status 401.",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		JobID int64 `path:"job_id"`
	}) (*struct {
		Body ResultResponse `json:"body"`
	}, error) {
		caller, authErr := callerID(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.PayForJob(ctx, caller, input.JobID)
		return resultOutput(ctx, res, err)
	})
}

func registerBalances(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "deposit-balance",
		Method:      http.MethodPost,
		Path:        "/balances/deposit/{userId}",
		Summary:     "Deposit into the caller's balance",
		Description: "At most a quarter of the caller's unpaid job total. Refusal is {\"result\": \"EXCEEDED_25_PERCENT\"} with status 401.",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		UserID int64          `path:"userId"`
		Body   DepositRequest `json:"body"`
	}) (*struct {
		Body ResultResponse `json:"body"`
	}, error) {
		caller, authErr := callerID(ctx)
		if authErr != nil {
			return nil, authErr
		}
		amount := decimal.NewFromFloat(input.Body.AddedBalance)
		res, err := e.Deposit(ctx, caller, input.UserID, amount)
		return resultOutput(ctx, res, err)
	})
}

func resultOutput(ctx context.Context, res domain.Result, err error) (*struct {
	Body ResultResponse `json:"body"`
}, error) {
	if err != nil {
		return nil, handleError(ctx, err)
	}
	if res != domain.ResultOK {
		return nil, &resultError{status: http.StatusUnauthorized, Result: string(res)}
	}
	return &struct {
		Body ResultResponse `json:"body"`
	}{Body: ResultResponse{Result: string(res)}}, nil
}

func registerAdmin(api huma.API, e engine.Engine, defaultLimit int) {
	huma.Register(api, huma.Operation{
		OperationID: "best-profession",
		Method:      http.MethodGet,
		Path:        "/admin/best-profession",
		Summary:     "Profession that earned the most in a date range",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Start string `query:"start" doc:"First day, YYYY-MM-DD"`
		End   string `query:"end" doc:"Last day, YYYY-MM-DD"`
	}) (*struct {
		Body BestProfessionResponse `json:"body"`
	}, error) {
		best, err := e.BestProfession(ctx, input.Start, input.End)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body BestProfessionResponse `json:"body"`
		}{Body: BestProfessionResponse{BestProfession: best.Profession}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "best-clients",
		Method:      http.MethodGet,
		Path:        "/admin/best-clients",
		Summary:     "Clients that paid the most in a date range",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Start string `query:"start" doc:"First day, YYYY-MM-DD"`
		End   string `query:"end" doc:"Last day, YYYY-MM-DD"`
		Limit string `query:"limit" doc:"Maximum number of clients, at least 1"`
	}) (*struct {
		Body []BestClientResponse `json:"body"`
	}, error) {
		limit := defaultLimit
		if input.Limit != "" {
			n, err := strconv.Atoi(input.Limit)
			if err != nil {
				return nil, handleError(ctx, engine.InvalidInputError{Field: "limit", Reason: "must be an integer"})
			}
			limit = n
		}
		clients, err := e.BestClients(ctx, input.Start, input.End, limit)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body []BestClientResponse `json:"body"`
		}{Body: toBestClientResponses(clients)}, nil
	})
}
