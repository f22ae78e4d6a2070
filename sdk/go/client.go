package jobledgersdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Jobledger HTTP API client.
type Client struct {
	BaseURL string
	// ProfileID is sent in the profile header when no bearer token is set.
	ProfileID     int64
	ProfileHeader string
	BearerToken   string
	HTTPClient    *http.Client
	Timeout       time.Duration
}

// New creates a client acting as the given profile.
func New(baseURL string, profileID int64) *Client {
	return &Client{
		BaseURL:       baseURL,
		ProfileID:     profileID,
		ProfileHeader: "profile_id",
		Timeout:       10 * time.Second,
	}
}

// As returns a copy of the client acting as another profile.
func (c *Client) As(profileID int64) *Client {
	cp := *c
	cp.ProfileID = profileID
	cp.BearerToken = ""
	return &cp
}

type Profile struct {
	ID         int64   `json:"id"`
	FirstName  string  `json:"firstName"`
	LastName   string  `json:"lastName"`
	Profession string  `json:"profession"`
	Balance    float64 `json:"balance"`
	Type       string  `json:"type"`
}

type Contract struct {
	ID           int64  `json:"id"`
	Terms        string `json:"terms"`
	Status       string `json:"status"`
	ClientID     int64  `json:"ClientId"`
	ContractorID int64  `json:"ContractorId"`
}

type Job struct {
	ID          int64      `json:"id"`
	Description string     `json:"description"`
	Price       float64    `json:"price"`
	Paid        bool       `json:"paid"`
	PaymentDate *time.Time `json:"paymentDate"`
	ContractID  int64      `json:"ContractId"`
}

type BestClient struct {
	ID       int64   `json:"id"`
	FullName string  `json:"fullName"`
	Paid     float64 `json:"paid"`
}

// Result is the outcome code of a payment or deposit.
type Result string

const (
	ResultOK                   Result = "OK"
	ResultAlreadyPaid          Result = "ALREADY_PAID"
	ResultNotEnoughBalance     Result = "NOT_ENOUGH_BALANCE"
	ResultExceededDepositLimit Result = "EXCEEDED_25_PERCENT"
)

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Me returns the calling profile.
func (c *Client) Me(ctx context.Context) (Profile, error) {
	var resp Profile
	err := c.do(ctx, http.MethodGet, "profiles/me", nil, &resp)
	return resp, err
}

// Contract fetches a contract the caller takes part in.
func (c *Client) Contract(ctx context.Context, id int64) (Contract, error) {
	var resp Contract
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("contracts/%d", id), nil, &resp)
	return resp, err
}

// Contracts lists the caller's non-terminated contracts.
func (c *Client) Contracts(ctx context.Context) ([]Contract, error) {
	var resp []Contract
	err := c.do(ctx, http.MethodGet, "contracts", nil, &resp)
	return resp, err
}

// UnpaidJobs lists unpaid jobs of the caller's in-progress contracts.
func (c *Client) UnpaidJobs(ctx context.Context) ([]Job, error) {
	var resp []Job
	err := c.do(ctx, http.MethodGet, "jobs/unpaid", nil, &resp)
	return resp, err
}

// PayJob pays a job. Refusals come back as a Result with a nil error.
func (c *Client) PayJob(ctx context.Context, jobID int64) (Result, error) {
	return c.result(ctx, fmt.Sprintf("jobs/%d/pay", jobID), nil)
}

// Deposit adds amount to the target profile's balance.
func (c *Client) Deposit(ctx context.Context, targetID int64, amount float64) (Result, error) {
	return c.result(ctx, fmt.Sprintf("balances/deposit/%d", targetID), map[string]any{"addedBalance": amount})
}

// BestProfession returns the top earning profession between two YYYY-MM-DD dates.
func (c *Client) BestProfession(ctx context.Context, start, end string) (string, error) {
	q := url.Values{"start": {start}, "end": {end}}
	var resp struct {
		BestProfession string `json:"bestProfession"`
	}
	err := c.do(ctx, http.MethodGet, "admin/best-profession?"+q.Encode(), nil, &resp)
	return resp.BestProfession, err
}

// BestClients returns the top paying clients; limit <= 0 uses the server default.
func (c *Client) BestClients(ctx context.Context, start, end string, limit int) ([]BestClient, error) {
	q := url.Values{"start": {start}, "end": {end}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp []BestClient
	err := c.do(ctx, http.MethodGet, "admin/best-clients?"+q.Encode(), nil, &resp)
	return resp, err
}

func (c *Client) result(ctx context.Context, endpoint string, body any) (Result, error) {
	var resp struct {
		Result Result `json:"result"`
	}
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	if apiErr, ok := err.(*APIError); ok && apiErr.StatusCode == http.StatusUnauthorized {
		if jsonErr := json.Unmarshal([]byte(apiErr.Body), &resp); jsonErr == nil && resp.Result != "" {
			return resp.Result, nil
		}
	}
	return resp.Result, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.ProfileID != 0:
		header := c.ProfileHeader
		if header == "" {
			header = "profile_id"
		}
		req.Header.Set(header, strconv.FormatInt(c.ProfileID, 10))
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
