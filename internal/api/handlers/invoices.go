package handlers

import (
	"net/http"

	"github.com/eshaffer321/ledger-balancer/internal/api/dto"
	"github.com/eshaffer321/ledger-balancer/internal/domain/invoice"
	"github.com/eshaffer321/ledger-balancer/internal/observability"
)

// InvoicesHandler balances single invoices on request.
type InvoicesHandler struct {
	*Base
	metrics           *observability.Metrics
	precision         int
	marketplacePrefix string
}

// NewInvoicesHandler creates a new invoices handler.
func NewInvoicesHandler(metrics *observability.Metrics, precision int, marketplacePrefix string) *InvoicesHandler {
	return &InvoicesHandler{
		Base:              &Base{},
		metrics:           metrics,
		precision:         precision,
		marketplacePrefix: marketplacePrefix,
	}
}

// Balance handles POST /api/invoices/balance - returns the invoice with its
// line base amounts shared over the converted total. Only marketplace
// invoices are changed. Nothing is saved.
func (h *InvoicesHandler) Balance(w http.ResponseWriter, r *http.Request) {
	var req dto.BalanceInvoiceRequest
	if !h.ReadJSON(w, r, &req) {
		return
	}

	inv := req.Invoice
	precision := dto.PrecisionOr(req.Precision, h.precision)

	outcome, err := invoice.Balance(&inv, precision, h.marketplacePrefix)
	h.metrics.ObserveDivision(err, outcome.ChangedLines())
	if err != nil {
		h.metrics.ObserveInvoice("error")
		h.WriteDivisionError(w, err)
		return
	}

	status := "skipped"
	if outcome.Balanced() {
		status = "balanced"
	}
	h.metrics.ObserveInvoice(status)

	h.WriteJSON(w, http.StatusOK, dto.BalanceInvoiceResponse{
		Balanced: outcome.Balanced(),
		Outcome:  outcome,
		Invoice:  inv,
	})
}
