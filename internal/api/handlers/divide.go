package handlers

import (
	"math"
	"net/http"

	"github.com/eshaffer321/ledger-balancer/internal/api/dto"
	"github.com/eshaffer321/ledger-balancer/internal/domain/allocator"
	"github.com/eshaffer321/ledger-balancer/internal/observability"
)

// DivideHandler serves the rounded division endpoints.
type DivideHandler struct {
	*Base
	metrics *observability.Metrics
}

// NewDivideHandler creates a new divide handler. metrics may be nil.
func NewDivideHandler(metrics *observability.Metrics) *DivideHandler {
	return &DivideHandler{
		Base:    &Base{},
		metrics: metrics,
	}
}

// Divide handles POST /api/divide - shares a total over weighted keys.
func (h *DivideHandler) Divide(w http.ResponseWriter, r *http.Request) {
	var req dto.DivideRequest
	if !h.ReadJSON(w, r, &req) {
		return
	}

	precision := dto.PrecisionOr(req.Precision, dto.DefaultPrecision)
	divided, err := allocator.DivideRounded(req.Values.ToAllocator(), req.Total, precision)
	h.metrics.ObserveDivision(err, len(divided))
	if err != nil {
		h.WriteDivisionError(w, err)
		return
	}

	factor := math.Pow10(precision)
	h.WriteJSON(w, http.StatusOK, dto.DivideResponse{
		Values:    dto.SharesFrom(divided),
		Total:     math.Round(req.Total*factor) / factor,
		Precision: precision,
	})
}

// Allocate handles POST /api/allocate - shares an order total over items by
// list price, to cents.
func (h *DivideHandler) Allocate(w http.ResponseWriter, r *http.Request) {
	var req dto.AllocateRequest
	if !h.ReadJSON(w, r, &req) {
		return
	}

	items := make([]allocator.Item, len(req.Items))
	for i, item := range req.Items {
		items[i] = allocator.Item{Name: item.Name, ListPrice: item.ListPrice}
	}

	result, err := allocator.Allocate(items, req.OrderTotal)
	if err != nil {
		h.metrics.ObserveDivision(err, 0)
		h.WriteError(w, http.StatusBadRequest, dto.ValidationError(err.Error()))
		return
	}
	h.metrics.ObserveDivision(nil, len(result.Allocations))

	response := dto.AllocateResponse{
		Multiplier:     result.Multiplier,
		Allocations:    make([]dto.AllocationResponse, 0, len(result.Allocations)),
		TotalAllocated: result.TotalAllocated,
	}
	for _, a := range result.Allocations {
		response.Allocations = append(response.Allocations, dto.AllocationResponse{
			Name:          a.Name,
			ListPrice:     a.ListPrice,
			AllocatedCost: a.AllocatedCost,
		})
	}

	h.WriteJSON(w, http.StatusOK, response)
}
