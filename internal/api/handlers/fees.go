package handlers

import (
	"net/http"

	"github.com/eshaffer321/ledger-balancer/internal/api/dto"
	"github.com/eshaffer321/ledger-balancer/internal/domain/fees"
	"github.com/eshaffer321/ledger-balancer/internal/observability"
)

// FeesHandler converts marketplace fees to the home currency.
type FeesHandler struct {
	*Base
	metrics *observability.Metrics
}

// NewFeesHandler creates a new fees handler.
func NewFeesHandler(metrics *observability.Metrics) *FeesHandler {
	return &FeesHandler{
		Base:    &Base{},
		metrics: metrics,
	}
}

// Convert handles POST /api/fees/convert. A missing exchange rate is taken as 1.
func (h *FeesHandler) Convert(w http.ResponseWriter, r *http.Request) {
	var req dto.ConvertFeesRequest
	if !h.ReadJSON(w, r, &req) {
		return
	}
	if req.Currency == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("currency is required"))
		return
	}
	if req.ExchangeRate < 0 {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("exchange_rate cannot be negative"))
		return
	}

	conv, err := fees.ConvertFees(&req.Transaction, req.Currency, req.ExchangeRate)
	if err != nil {
		h.metrics.ObserveDivision(err, 0)
		h.WriteDivisionError(w, err)
		return
	}
	if conv.Converted {
		h.metrics.ObserveDivision(nil, len(conv.Fees))
	}

	h.WriteJSON(w, http.StatusOK, dto.ConvertFeesResponse{
		TransactionID: conv.TransactionID,
		Converted:     conv.Converted,
		Fees:          dto.SharesFrom(conv.Fees),
		FixedFees:     dto.SharesFrom(conv.FixedFees),
		TotalFee:      conv.TotalFee,
	})
}
