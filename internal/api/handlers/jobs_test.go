package handlers_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/ledger-balancer/internal/adapters/rpc"
	"github.com/eshaffer321/ledger-balancer/internal/api/dto"
	"github.com/eshaffer321/ledger-balancer/internal/api/handlers"
	"github.com/eshaffer321/ledger-balancer/internal/application/service"
	"github.com/eshaffer321/ledger-balancer/internal/domain/invoice"
	"github.com/eshaffer321/ledger-balancer/internal/infrastructure/storage"
	"github.com/eshaffer321/ledger-balancer/internal/session"
)

// blockingGateway holds every save until ctx is done.
type blockingGateway struct{}

func (blockingGateway) Call(ctx context.Context, _ string, _ any, _ any) error {
	<-ctx.Done()
	return ctx.Err()
}

func testSession() session.Session {
	return session.New("Sales Invoice", "SINV-00001")
}

func newJobsHandler(t *testing.T, gateway rpc.Gateway) (*handlers.JobsHandler, *service.BalanceService, *storage.MockRepository) {
	t.Helper()
	repo := storage.NewMockRepository()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	opts := service.Options{Precision: invoice.DefaultPrecision, MarketplacePrefix: invoice.DefaultMarketplacePrefix}

	svc := service.NewBalanceService(repo, nil, gateway, nil, logger, opts)
	t.Cleanup(svc.Wait)
	return handlers.NewJobsHandler(svc), svc, repo
}

func TestJobsHandler_Start(t *testing.T) {
	t.Run("starts a job and reports its results", func(t *testing.T) {
		handler, svc, repo := newJobsHandler(t, nil)

		rec := do(t, handler.Start, http.MethodPost, "/api/jobs", dto.StartJobRequest{
			SessionID: "form-1",
			DryRun:    true,
			Invoices:  []invoice.SalesInvoice{convertedInvoice()},
		})

		require.Equal(t, http.StatusAccepted, rec.Code)
		started := decode[dto.StartJobResponse](t, rec)
		assert.NotEmpty(t, started.JobID)
		assert.Equal(t, "form-1", started.SessionID)
		assert.NotEmpty(t, started.Tag, "tag is generated when missing")
		assert.Equal(t, "pending", started.Status)

		svc.Wait()

		req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/jobs/"+started.JobID, nil), "id", started.JobID)
		getRec := httptest.NewRecorder()
		handler.Get(getRec, req)

		require.Equal(t, http.StatusOK, getRec.Code)
		job := decode[dto.JobResponse](t, getRec)
		assert.Equal(t, "completed", job.Status)
		assert.Equal(t, 1, job.Progress.Balanced)
		require.Len(t, job.Results, 1)
		assert.Equal(t, "balanced", job.Results[0].Status)
		assert.NotNil(t, job.CompletedAt)

		run, err := repo.GetRun(job.RunID)
		require.NoError(t, err)
		assert.True(t, run.DryRun)
	})

	t.Run("requires session and invoices", func(t *testing.T) {
		handler, _, _ := newJobsHandler(t, nil)

		rec := do(t, handler.Start, http.MethodPost, "/api/jobs", dto.StartJobRequest{
			Invoices: []invoice.SalesInvoice{convertedInvoice()},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = do(t, handler.Start, http.MethodPost, "/api/jobs", dto.StartJobRequest{SessionID: "form-1"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("one job per session", func(t *testing.T) {
		handler, svc, _ := newJobsHandler(t, blockingGateway{})

		body := dto.StartJobRequest{SessionID: "form-1", Invoices: []invoice.SalesInvoice{convertedInvoice()}}
		rec := do(t, handler.Start, http.MethodPost, "/api/jobs", body)
		require.Equal(t, http.StatusAccepted, rec.Code)
		started := decode[dto.StartJobResponse](t, rec)

		rec = do(t, handler.Start, http.MethodPost, "/api/jobs", body)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, dto.ErrCodeConflict, decode[dto.APIError](t, rec).Code)

		require.NoError(t, svc.Cancel(started.JobID))
	})
}

func TestJobsHandler_GetAndCancel(t *testing.T) {
	t.Run("unknown job", func(t *testing.T) {
		handler, _, _ := newJobsHandler(t, nil)

		req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/jobs/nope", nil), "id", "nope")
		rec := httptest.NewRecorder()
		handler.Get(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		req = withURLParam(httptest.NewRequest(http.MethodDelete, "/api/jobs/nope", nil), "id", "nope")
		rec = httptest.NewRecorder()
		handler.Cancel(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("cancel running then finished job", func(t *testing.T) {
		handler, svc, _ := newJobsHandler(t, blockingGateway{})

		jobID, err := svc.Start(context.Background(), testSession(), service.BalanceRequest{
			Invoices: []invoice.SalesInvoice{convertedInvoice()},
		})
		require.NoError(t, err)

		req := withURLParam(httptest.NewRequest(http.MethodDelete, "/api/jobs/"+jobID, nil), "id", jobID)
		rec := httptest.NewRecorder()
		handler.Cancel(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = httptest.NewRecorder()
		handler.Cancel(rec, req)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "cancel_failed", decode[dto.APIError](t, rec).Code)
	})
}

func TestJobsHandler_List(t *testing.T) {
	handler, svc, _ := newJobsHandler(t, nil)

	_, err := svc.Start(context.Background(), testSession(), service.BalanceRequest{
		Invoices: []invoice.SalesInvoice{convertedInvoice()},
		DryRun:   true,
	})
	require.NoError(t, err)
	svc.Wait()

	rec := do(t, handler.List, http.MethodGet, "/api/jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	response := decode[dto.JobListResponse](t, rec)
	assert.Equal(t, 1, response.Count)
	assert.Empty(t, response.Jobs[0].Results, "results are only listed per job")

	rec = do(t, handler.List, http.MethodGet, "/api/jobs?active=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[dto.JobListResponse](t, rec).Count)
}
