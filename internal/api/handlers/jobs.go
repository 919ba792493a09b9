package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/ledger-balancer/internal/api/dto"
	"github.com/eshaffer321/ledger-balancer/internal/application/service"
	"github.com/eshaffer321/ledger-balancer/internal/session"
)

// JobsHandler handles balance job HTTP requests.
type JobsHandler struct {
	*Base
	balanceService *service.BalanceService
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(balanceService *service.BalanceService) *JobsHandler {
	return &JobsHandler{
		Base:           &Base{},
		balanceService: balanceService,
	}
}

// Start handles POST /api/jobs - starts a new balance job.
func (h *JobsHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req dto.StartJobRequest
	if !h.ReadJSON(w, r, &req) {
		return
	}

	if req.SessionID == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("session_id is required"))
		return
	}
	if len(req.Invoices) == 0 {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invoices are required"))
		return
	}

	sess := session.Session{
		ID:           req.SessionID,
		Tag:          req.Tag,
		DocumentType: req.DocumentType,
		DocumentName: req.DocumentName,
	}
	if sess.Tag == "" {
		sess = sess.WithNewTag()
	}

	jobID, err := h.balanceService.Start(r.Context(), sess, service.BalanceRequest{
		Invoices: req.Invoices,
		DryRun:   req.DryRun,
	})
	switch {
	case errors.Is(err, service.ErrSessionBusy):
		h.WriteError(w, http.StatusConflict, dto.ConflictError(err.Error()))
		return
	case err != nil:
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	h.WriteJSON(w, http.StatusAccepted, dto.StartJobResponse{
		JobID:     jobID,
		SessionID: sess.ID,
		Tag:       sess.Tag,
		Status:    string(service.StatusPending),
	})
}

// Get handles GET /api/jobs/{id} - gets a job's status and results.
func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request) {
	job, err := h.balanceService.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("balance job"))
		return
	}
	h.WriteJSON(w, http.StatusOK, toJobResponse(job, true))
}

// List handles GET /api/jobs - lists jobs, newest first. Pass active=true
// to see only pending and running jobs.
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly := ParseBoolParam(r, "active", false)
	jobs := h.balanceService.List()

	response := dto.JobListResponse{
		Jobs: make([]dto.JobResponse, 0, len(jobs)),
	}
	for _, job := range jobs {
		if activeOnly && job.Status != service.StatusPending && job.Status != service.StatusRunning {
			continue
		}
		response.Jobs = append(response.Jobs, toJobResponse(job, false))
	}
	response.Count = len(response.Jobs)

	h.WriteJSON(w, http.StatusOK, response)
}

// Cancel handles DELETE /api/jobs/{id} - cancels a job.
func (h *JobsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	err := h.balanceService.Cancel(chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, service.ErrJobNotFound):
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("balance job"))
		return
	case err != nil:
		h.WriteError(w, http.StatusConflict, dto.APIError{
			Code:    "cancel_failed",
			Message: err.Error(),
		})
		return
	}

	h.WriteJSON(w, http.StatusOK, dto.MessageResponse{
		Message: "Balance job cancelled",
	})
}

// toJobResponse converts a service job snapshot to an API response.
func toJobResponse(job *service.BalanceJob, withResults bool) dto.JobResponse {
	response := dto.JobResponse{
		JobID:     job.ID,
		SessionID: job.Session.ID,
		Tag:       job.Session.Tag,
		Status:    string(job.Status),
		DryRun:    job.DryRun,
		RunID:     job.RunID,
		StartedAt: job.StartedAt.Format(time.RFC3339),
		Progress: dto.JobProgressResponse{
			Phase:      job.Progress.Phase,
			Total:      job.Progress.Total,
			Processed:  job.Progress.Processed,
			Balanced:   job.Progress.Balanced,
			Skipped:    job.Progress.Skipped,
			Errored:    job.Progress.Errored,
			LastUpdate: job.Progress.LastUpdate.Format(time.RFC3339),
		},
	}

	if job.CompletedAt != nil {
		completedAt := job.CompletedAt.Format(time.RFC3339)
		response.CompletedAt = &completedAt
	}

	if job.Error != nil {
		errMsg := job.Error.Error()
		response.Error = &errMsg
	}

	if withResults {
		for _, res := range job.Results {
			response.Results = append(response.Results, dto.InvoiceResultResponse{
				Invoice: res.Invoice,
				Status:  res.Status,
				Outcome: res.Outcome,
				Error:   res.Error,
			})
		}
	}

	return response
}
