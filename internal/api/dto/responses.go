package dto

import (
	"time"

	"github.com/eshaffer321/ledger-balancer/internal/adapters/rpc"
	"github.com/eshaffer321/ledger-balancer/internal/domain/invoice"
)

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Uptime    string `json:"uptime,omitempty"`
}

// NewHealthResponse creates a healthy response with the current timestamp.
func NewHealthResponse() HealthResponse {
	return HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// DivideResponse is returned by POST /api/divide. Values keep the request's
// key order and sum exactly to Total.
type DivideResponse struct {
	Values    Shares  `json:"values"`
	Total     float64 `json:"total"`
	Precision int     `json:"precision"`
}

// AllocationResponse is one item's share of an order total.
type AllocationResponse struct {
	Name          string  `json:"name"`
	ListPrice     float64 `json:"list_price"`
	AllocatedCost float64 `json:"allocated_cost"`
}

// AllocateResponse is returned by POST /api/allocate.
type AllocateResponse struct {
	Multiplier     float64              `json:"multiplier"`
	Allocations    []AllocationResponse `json:"allocations"`
	TotalAllocated float64              `json:"total_allocated"`
}

// BalanceInvoiceResponse is returned by POST /api/invoices/balance.
type BalanceInvoiceResponse struct {
	Balanced bool                 `json:"balanced"`
	Outcome  *invoice.Outcome     `json:"outcome"`
	Invoice  invoice.SalesInvoice `json:"invoice"`
}

// ConvertFeesResponse is returned by POST /api/fees/convert.
type ConvertFeesResponse struct {
	TransactionID string  `json:"transaction_id"`
	Converted     bool    `json:"converted"`
	Fees          Shares  `json:"fees"`
	FixedFees     Shares  `json:"fixed_fees"`
	TotalFee      float64 `json:"total_fee"`
}

// StartJobResponse is returned when a balance job is started.
type StartJobResponse struct {
	JobID     string `json:"job_id"`
	SessionID string `json:"session_id"`
	Tag       string `json:"tag"`
	Status    string `json:"status"`
}

// JobProgressResponse represents live job progress.
type JobProgressResponse struct {
	Phase      string `json:"phase"`
	Total      int    `json:"total"`
	Processed  int    `json:"processed"`
	Balanced   int    `json:"balanced"`
	Skipped    int    `json:"skipped"`
	Errored    int    `json:"errored"`
	LastUpdate string `json:"last_update"`
}

// InvoiceResultResponse is what a job did with one invoice.
type InvoiceResultResponse struct {
	Invoice string           `json:"invoice"`
	Status  string           `json:"status"`
	Outcome *invoice.Outcome `json:"outcome,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// JobResponse represents a balance job's status.
type JobResponse struct {
	JobID       string                  `json:"job_id"`
	SessionID   string                  `json:"session_id"`
	Tag         string                  `json:"tag"`
	Status      string                  `json:"status"`
	DryRun      bool                    `json:"dry_run"`
	RunID       int64                   `json:"run_id"`
	StartedAt   string                  `json:"started_at"`
	CompletedAt *string                 `json:"completed_at,omitempty"`
	Progress    JobProgressResponse     `json:"progress"`
	Results     []InvoiceResultResponse `json:"results,omitempty"`
	Error       *string                 `json:"error,omitempty"`
}

// JobListResponse lists balance jobs.
type JobListResponse struct {
	Jobs  []JobResponse `json:"jobs"`
	Count int           `json:"count"`
}

// ProcessSlideshowResponse is returned when slideshow processing starts.
// Progress and the final done event arrive on /ws for SessionID and Tag.
type ProcessSlideshowResponse struct {
	ItemCode  string `json:"item_code"`
	SessionID string `json:"session_id"`
	Tag       string `json:"tag"`
}

// CategoriesResponse carries the options for every level of a category
// stack. CacheCurrent is false when the backend's category or feature
// cache needs refreshing before the options can be trusted.
type CategoriesResponse struct {
	CacheCurrent bool                   `json:"cache_current"`
	Levels       [][]rpc.CategoryOption `json:"levels"`
}

// PlatformsResponse lists an item's online selling entries.
type PlatformsResponse struct {
	ItemCode  string                  `json:"item_code"`
	Platforms []rpc.OnlineSellingItem `json:"platforms"`
}

// RunResponse represents a recorded run in API responses.
type RunResponse struct {
	ID           int64                `json:"id"`
	Kind         string               `json:"kind"`
	SessionID    string               `json:"session_id,omitempty"`
	DryRun       bool                 `json:"dry_run"`
	Status       string               `json:"status"`
	StartedAt    string               `json:"started_at"`
	CompletedAt  *string              `json:"completed_at,omitempty"`
	ErrorMessage string               `json:"error_message,omitempty"`
	Found        int                  `json:"found"`
	Balanced     int                  `json:"balanced"`
	Skipped      int                  `json:"skipped"`
	Errored      int                  `json:"errored"`
	Adjustments  []AdjustmentResponse `json:"adjustments,omitempty"`
}

// AdjustmentResponse is one invoice's recorded adjustment.
type AdjustmentResponse struct {
	Invoice    string               `json:"invoice"`
	Status     string               `json:"status"`
	SkipReason string               `json:"skip_reason,omitempty"`
	BaseTotal  float64              `json:"base_total"`
	Lines      []LineChangeResponse `json:"lines,omitempty"`
	Error      string               `json:"error,omitempty"`
}

// LineChangeResponse records how one line's base amount moved.
type LineChangeResponse struct {
	Index    int     `json:"index"`
	ItemCode string  `json:"item_code"`
	Before   float64 `json:"before"`
	After    float64 `json:"after"`
	BaseRate float64 `json:"base_rate"`
}

// RunListResponse is returned when listing runs.
type RunListResponse struct {
	Runs  []RunResponse `json:"runs"`
	Count int           `json:"count"`
}

// MessageResponse is a generic message response.
type MessageResponse struct {
	Message string `json:"message"`
}
