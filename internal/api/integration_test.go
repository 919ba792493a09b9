package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/ledger-balancer/internal/api"
	"github.com/eshaffer321/ledger-balancer/internal/api/dto"
	"github.com/eshaffer321/ledger-balancer/internal/application/service"
	"github.com/eshaffer321/ledger-balancer/internal/domain/invoice"
	"github.com/eshaffer321/ledger-balancer/internal/infrastructure/storage"
	"github.com/eshaffer321/ledger-balancer/internal/observability"
	"github.com/eshaffer321/ledger-balancer/internal/realtime"
)

// =============================================================================
// API Integration Tests
// =============================================================================
// These tests run the full stack against a real SQLite database:
// HTTP request → Router → Handlers → BalanceService → Storage → SQLite,
// with progress streamed back over the websocket endpoint.

type testStack struct {
	ts      *httptest.Server
	store   *storage.Storage
	hub     *realtime.Hub
	service *service.BalanceService
}

func createTestServer(t *testing.T) *testStack {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "api_integration_*.db")
	require.NoError(t, err)
	tmpFile.Close()

	store, err := storage.NewStorage(tmpFile.Name())
	require.NoError(t, err)

	logger := testLogger()
	hub := realtime.NewHub(16, logger)
	metrics := observability.NewMetrics()
	svc := service.NewBalanceService(store, hub, nil, metrics, logger, service.Options{
		Precision:         invoice.DefaultPrecision,
		MarketplacePrefix: invoice.DefaultMarketplacePrefix,
	})

	server := api.NewServer(api.DefaultConfig(), api.Dependencies{
		Repo:           store,
		BalanceService: svc,
		Hub:            hub,
		Metrics:        metrics,
	}, logger)
	ts := httptest.NewServer(server.Router())

	t.Cleanup(func() {
		ts.Close()
		svc.Wait()
		hub.Close()
		store.Close()
		os.Remove(tmpFile.Name())
	})

	return &testStack{ts: ts, store: store, hub: hub, service: svc}
}

func (s *testStack) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(s.ts.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (s *testStack) get(t *testing.T, path string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(s.ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func (s *testStack) dial(t *testing.T, sessionID, tag string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.ts.URL, "http") + "/ws?session=" + sessionID + "&tag=" + tag
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sampleInvoice(name string, rate float64) invoice.SalesInvoice {
	return invoice.SalesInvoice{
		Name:           name,
		Currency:       "USD",
		ConversionRate: rate,
		IsPOS:          true,
		POSProfile:     "eBay Managed Payments",
		Items: []invoice.InvoiceItem{
			{ItemCode: "ITEM-A", Qty: 1, Amount: 3.33, BaseAmount: round2(3.33 * rate)},
			{ItemCode: "ITEM-B", Qty: 1, Amount: 3.33, BaseAmount: round2(3.33 * rate)},
			{ItemCode: "ITEM-C", Qty: 1, Amount: 3.33, BaseAmount: round2(3.33 * rate)},
		},
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func TestAPI_Integration_HealthCheck(t *testing.T) {
	stack := createTestServer(t)

	var health dto.HealthResponse
	resp := stack.get(t, "/health", &health)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", health.Status)
}

func TestAPI_Integration_BalanceJobStreamsProgress(t *testing.T) {
	stack := createTestServer(t)

	conn := stack.dial(t, "form-1", "series-1")
	require.Eventually(t, func() bool { return stack.hub.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	resp := stack.post(t, "/api/jobs", dto.StartJobRequest{
		SessionID: "form-1",
		Tag:       "series-1",
		DryRun:    true,
		Invoices: []invoice.SalesInvoice{
			sampleInvoice("SINV-00001", 0.7913),
			sampleInvoice("SINV-00002", 1),
			sampleInvoice("SINV-00003", 0.7913),
		},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var started dto.StartJobResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&started))
	assert.Equal(t, "series-1", started.Tag)

	// Events arrive in invoice order and the done event closes the series
	var events []realtime.Event
	for len(events) < 4 {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var ev realtime.Event
		require.NoError(t, conn.ReadJSON(&ev))
		events = append(events, ev)
	}

	wantStatus := []string{"balanced", "skipped", "balanced"}
	for i, ev := range events[:3] {
		assert.Equal(t, realtime.EventInvoiceProgress, ev.Name)
		assert.Equal(t, uint64(i+1), ev.Seq)

		var progress realtime.InvoiceProgress
		require.NoError(t, ev.Decode(&progress))
		assert.Equal(t, i+1, progress.Index)
		assert.Equal(t, 3, progress.Total)
		assert.Equal(t, wantStatus[i], progress.Status)
	}
	assert.Equal(t, realtime.EventDone, events[3].Name)
	assert.Equal(t, uint64(4), events[3].Seq)

	stack.service.Wait()

	var job dto.JobResponse
	stack.get(t, "/api/jobs/"+started.JobID, &job)
	assert.Equal(t, "completed", job.Status)
	assert.Equal(t, 2, job.Progress.Balanced)
	assert.Equal(t, 1, job.Progress.Skipped)

	var run dto.RunResponse
	stack.get(t, fmt.Sprintf("/api/runs/%d", job.RunID), &run)
	assert.Equal(t, "completed", run.Status)
	assert.True(t, run.DryRun)
	assert.Equal(t, "form-1", run.SessionID)
	require.Len(t, run.Adjustments, 3)
	assert.Equal(t, "SINV-00001", run.Adjustments[0].Invoice)
	assert.Equal(t, 7.91, run.Adjustments[0].BaseTotal)
	assert.Equal(t, "no_conversion", run.Adjustments[1].SkipReason)

	metricsResp, err := http.Get(stack.ts.URL + "/metrics")
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	body, err := io.ReadAll(metricsResp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `balancer_jobs_total{status="completed"} 1`)
	assert.Contains(t, string(body), `balancer_realtime_events_total{event="invoice_progress"} 3`)
}

func TestAPI_Integration_OtherSeriesNotDelivered(t *testing.T) {
	stack := createTestServer(t)

	other := stack.dial(t, "form-1", "old-series")
	require.Eventually(t, func() bool { return stack.hub.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	resp := stack.post(t, "/api/jobs", dto.StartJobRequest{
		SessionID: "form-1",
		Tag:       "new-series",
		DryRun:    true,
		Invoices:  []invoice.SalesInvoice{sampleInvoice("SINV-00001", 0.7913)},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	stack.service.Wait()

	_ = other.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var ev realtime.Event
	err := other.ReadJSON(&ev)
	assert.Error(t, err, "events for another tag must not be delivered")
}

func TestAPI_Integration_RunsEmpty(t *testing.T) {
	stack := createTestServer(t)

	var result dto.RunListResponse
	resp := stack.get(t, "/api/runs", &result)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, result.Count)
	assert.Empty(t, result.Runs)
}

func TestAPI_Integration_RunNotFound(t *testing.T) {
	stack := createTestServer(t)

	var apiErr dto.APIError
	resp := stack.get(t, "/api/runs/42", &apiErr)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, dto.ErrCodeNotFound, apiErr.Code)
}
