package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/ledger-balancer/internal/api/dto"
	"github.com/eshaffer321/ledger-balancer/internal/infrastructure/storage"
)

// RunsHandler handles recorded run HTTP requests.
type RunsHandler struct {
	*Base
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(repo storage.Repository) *RunsHandler {
	return &RunsHandler{
		Base: NewBase(repo),
	}
}

// List handles GET /api/runs - returns recorded runs, newest first.
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := ParseIntParam(r, "limit", dto.DefaultRunListParams().Limit)

	runs, err := h.repo.ListRuns(limit)
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	response := dto.RunListResponse{
		Runs:  make([]dto.RunResponse, 0, len(runs)),
		Count: len(runs),
	}

	for _, run := range runs {
		response.Runs = append(response.Runs, toRunResponse(run))
	}

	h.WriteJSON(w, http.StatusOK, response)
}

// Get handles GET /api/runs/{id} - returns a run with its adjustments.
func (h *RunsHandler) Get(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	if idStr == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("run ID is required"))
		return
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid run ID"))
		return
	}

	run, err := h.repo.GetRun(id)
	if errors.Is(err, storage.ErrNotFound) {
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("run"))
		return
	}
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	adjustments, err := h.repo.ListAdjustments(id)
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	response := toRunResponse(*run)
	response.Adjustments = make([]dto.AdjustmentResponse, 0, len(adjustments))
	for _, adj := range adjustments {
		response.Adjustments = append(response.Adjustments, toAdjustmentResponse(adj))
	}

	h.WriteJSON(w, http.StatusOK, response)
}

// toRunResponse converts a storage Run to an API response.
func toRunResponse(run storage.Run) dto.RunResponse {
	response := dto.RunResponse{
		ID:           run.ID,
		Kind:         run.Kind,
		SessionID:    run.SessionID,
		DryRun:       run.DryRun,
		Status:       run.Status,
		StartedAt:    run.StartedAt.Format(time.RFC3339),
		ErrorMessage: run.ErrorMessage,
		Found:        run.Found,
		Balanced:     run.Balanced,
		Skipped:      run.Skipped,
		Errored:      run.Errored,
	}
	if run.CompletedAt != nil {
		completedAt := run.CompletedAt.Format(time.RFC3339)
		response.CompletedAt = &completedAt
	}
	return response
}

func toAdjustmentResponse(adj storage.Adjustment) dto.AdjustmentResponse {
	response := dto.AdjustmentResponse{
		Invoice:    adj.Invoice,
		Status:     adj.Status,
		SkipReason: adj.SkipReason,
		BaseTotal:  adj.BaseTotal,
		Error:      adj.Error,
	}
	for _, l := range adj.Lines {
		response.Lines = append(response.Lines, dto.LineChangeResponse{
			Index:    l.Index,
			ItemCode: l.ItemCode,
			Before:   l.Before,
			After:    l.After,
			BaseRate: l.BaseRate,
		})
	}
	return response
}
