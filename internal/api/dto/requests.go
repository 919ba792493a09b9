package dto

import (
	"encoding/json"

	"github.com/eshaffer321/ledger-balancer/internal/adapters/rpc"
	"github.com/eshaffer321/ledger-balancer/internal/domain/fees"
	"github.com/eshaffer321/ledger-balancer/internal/domain/invoice"
)

// DefaultPrecision is used when a request leaves precision out.
const DefaultPrecision = 2

// DivideRequest is the body of POST /api/divide.
type DivideRequest struct {
	Values    Shares  `json:"values"`
	Total     float64 `json:"total"`
	Precision *int    `json:"precision,omitempty"`
}

// AllocateItem is one item to share an order total over.
type AllocateItem struct {
	Name      string  `json:"name"`
	ListPrice float64 `json:"list_price"`
}

// AllocateRequest is the body of POST /api/allocate.
type AllocateRequest struct {
	Items      []AllocateItem `json:"items"`
	OrderTotal float64        `json:"order_total"`
}

// BalanceInvoiceRequest is the body of POST /api/invoices/balance.
type BalanceInvoiceRequest struct {
	Invoice   invoice.SalesInvoice `json:"invoice"`
	Precision *int                 `json:"precision,omitempty"`
}

// ConvertFeesRequest is the body of POST /api/fees/convert.
type ConvertFeesRequest struct {
	Transaction  fees.Transaction `json:"transaction"`
	Currency     string           `json:"currency"`
	ExchangeRate float64          `json:"exchange_rate"`
}

// StartJobRequest is the body of POST /api/jobs. SessionID is required so
// progress can be streamed to the form that asked; Tag is generated when
// empty.
type StartJobRequest struct {
	SessionID    string                 `json:"session_id"`
	Tag          string                 `json:"tag"`
	DocumentType string                 `json:"document_type"`
	DocumentName string                 `json:"document_name"`
	DryRun       bool                   `json:"dry_run"`
	Invoices     []invoice.SalesInvoice `json:"invoices"`
}

// ProcessSlideshowRequest is the body of POST /api/slideshows/process.
// Image progress is streamed to SessionID and Tag; Tag is generated when
// empty.
type ProcessSlideshowRequest struct {
	ItemCode  string `json:"item_code"`
	SessionID string `json:"session_id"`
	Tag       string `json:"tag"`
}

// SaveSlideshowRequest is the body of POST /api/slideshows/save.
type SaveSlideshowRequest struct {
	Doc json.RawMessage `json:"doc"`
}

// CategoriesRequest is the body of POST /api/categories.
type CategoriesRequest struct {
	CategoryStack rpc.CategoryStack `json:"category_stack"`
}

// UpdateCategoriesRequest is the body of POST /api/categories/update.
type UpdateCategoriesRequest struct {
	CategoryLevel int               `json:"category_level"`
	CategoryStack rpc.CategoryStack `json:"category_stack"`
}

// PublishEventRequest is the body of POST /api/events.
type PublishEventRequest struct {
	SessionID string          `json:"session_id"`
	Tag       string          `json:"tag"`
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// RunListParams represents query parameters for listing runs.
type RunListParams struct {
	Limit int `json:"limit"`
}

// DefaultRunListParams returns default values for run list params.
func DefaultRunListParams() RunListParams {
	return RunListParams{
		Limit: 20,
	}
}

// PrecisionOr returns *p, or def when p is nil.
func PrecisionOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}
