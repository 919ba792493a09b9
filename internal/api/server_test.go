package api_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/ledger-balancer/internal/adapters/rpc"
	"github.com/eshaffer321/ledger-balancer/internal/api"
	"github.com/eshaffer321/ledger-balancer/internal/api/dto"
	"github.com/eshaffer321/ledger-balancer/internal/infrastructure/storage"
	"github.com/eshaffer321/ledger-balancer/internal/observability"
	"github.com/eshaffer321/ledger-balancer/internal/realtime"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestServer serves the stateless and run routes; no jobs, no websocket.
func newTestServer(t *testing.T) (*api.Server, *storage.MockRepository) {
	t.Helper()
	repo := storage.NewMockRepository()
	server := api.NewServer(api.DefaultConfig(), api.Dependencies{
		Repo:    repo,
		Metrics: observability.NewMetrics(),
	}, testLogger())
	return server, repo
}

func serve(server *api.Server, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	return rec
}

func TestServer_HealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	rec := serve(server, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)

	var response dto.HealthResponse
	err := json.NewDecoder(rec.Body).Decode(&response)
	require.NoError(t, err)
	assert.Equal(t, "ok", response.Status)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	serve(server, http.MethodPost, "/api/divide", `{"values": {"a": 1, "b": 1}, "total": 1}`)
	rec := serve(server, http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `balancer_divisions_total{outcome="ok"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestServer_CalculationEndpoints(t *testing.T) {
	server, _ := newTestServer(t)

	t.Run("POST /api/divide", func(t *testing.T) {
		rec := serve(server, http.MethodPost, "/api/divide", `{"values": {"x": 1, "y": 1}, "total": 1, "precision": 0}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"values": {"x": 0, "y": 1}, "total": 1, "precision": 0}`, rec.Body.String())
	})

	t.Run("POST /api/divide with zero total", func(t *testing.T) {
		rec := serve(server, http.MethodPost, "/api/divide", `{"values": {"x": 1}, "total": 0}`)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.JSONEq(t, `{"code": "invalid_total", "message": "total cannot be zero after rounding"}`, rec.Body.String())
	})

	t.Run("POST /api/allocate", func(t *testing.T) {
		rec := serve(server, http.MethodPost, "/api/allocate",
			`{"items": [{"name": "A", "list_price": 50}, {"name": "B", "list_price": 50}], "order_total": 95}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		var response dto.AllocateResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		assert.Equal(t, 95.0, response.TotalAllocated)
	})

	t.Run("POST /api/invoices/balance", func(t *testing.T) {
		rec := serve(server, http.MethodPost, "/api/invoices/balance", `{"invoice": {
			"name": "SINV-00001", "conversion_rate": 0.7913,
			"is_pos": true, "pos_profile": "eBay Managed Payments",
			"items": [
				{"item_code": "A", "qty": 1, "amount": 3.33, "base_amount": 2.64},
				{"item_code": "B", "qty": 1, "amount": 3.33, "base_amount": 2.64},
				{"item_code": "C", "qty": 1, "amount": 3.33, "base_amount": 2.64}
			]}}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		var response dto.BalanceInvoiceResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		assert.True(t, response.Balanced)
	})

	t.Run("POST /api/fees/convert", func(t *testing.T) {
		rec := serve(server, http.MethodPost, "/api/fees/convert", `{
			"transaction": {
				"transaction_id": "TX-1",
				"amount": {"value": "10", "currency": "USD"},
				"total_fee_amount": {"value": "1.00", "currency": "USD"},
				"order_line_items": [{"line_item_id": "li-1", "marketplace_fees": [
					{"fee_type": "FINAL_VALUE_FEE", "amount": {"value": "1.00", "currency": "USD"}}
				]}]
			},
			"currency": "USD", "exchange_rate": 1}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		var response dto.ConvertFeesResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		assert.False(t, response.Converted)
		assert.Equal(t, 1.0, response.TotalFee)
	})
}

func TestServer_RunsEndpoints(t *testing.T) {
	t.Run("GET /api/runs returns runs", func(t *testing.T) {
		server, repo := newTestServer(t)
		_, err := repo.StartRun(storage.RunKindBalance, "form-1", false)
		require.NoError(t, err)

		rec := serve(server, http.MethodGet, "/api/runs", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		var response dto.RunListResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		assert.Equal(t, 1, response.Count)
	})

	t.Run("GET /api/runs/:id returns 404 for missing", func(t *testing.T) {
		server, _ := newTestServer(t)

		rec := serve(server, http.MethodGet, "/api/runs/999", "")

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestServer_OptionalRoutes(t *testing.T) {
	server := api.NewServer(api.DefaultConfig(), api.Dependencies{}, testLogger())

	assert.Equal(t, http.StatusNotFound, serve(server, http.MethodGet, "/metrics", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(server, http.MethodGet, "/ws", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(server, http.MethodGet, "/api/jobs", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(server, http.MethodGet, "/api/runs", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(server, http.MethodPost, "/api/events", "{}").Code)
	assert.Equal(t, http.StatusNotFound, serve(server, http.MethodPost, "/api/categories", "{}").Code)
	assert.Equal(t, http.StatusNotFound, serve(server, http.MethodPost, "/api/slideshows/process", "{}").Code)

	// Calculations need no dependencies
	assert.Equal(t, http.StatusOK, serve(server, http.MethodPost, "/api/divide", `{"values": {"a": 1}, "total": 1}`).Code)
}

// platformGateway answers every call with one eBay listing.
type platformGateway struct{}

func (platformGateway) Call(_ context.Context, _ string, _ any, out any) error {
	return json.Unmarshal([]byte(`[{"selling_platform": "eBay", "status": "Active"}]`), out)
}

func TestServer_BackOfficeRoutes(t *testing.T) {
	hub := realtime.NewHub(16, testLogger())
	defer hub.Close()
	server := api.NewServer(api.DefaultConfig(), api.Dependencies{
		Hub:     hub,
		Gateway: platformGateway{},
	}, testLogger())

	rec := serve(server, http.MethodGet, "/api/items/ITEM-1/platforms", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var platforms dto.PlatformsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&platforms))
	assert.Equal(t, "ITEM-1", platforms.ItemCode)
	assert.Equal(t, []rpc.OnlineSellingItem{{SellingPlatform: "eBay", Status: "Active"}}, platforms.Platforms)

	rec = serve(server, http.MethodPost, "/api/events",
		`{"session_id": "s", "tag": "t", "event": "set_image_number", "payload": {"n_images": 2}}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestServer_CORS(t *testing.T) {
	cfg := api.DefaultConfig()
	cfg.AllowedOrigins = []string{"https://erp.example.com"}
	server := api.NewServer(cfg, api.Dependencies{}, testLogger())

	req := httptest.NewRequest(http.MethodOptions, "/api/divide", nil)
	req.Header.Set("Origin", "https://erp.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://erp.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestConfig_Addr(t *testing.T) {
	cfg := api.DefaultConfig()
	assert.Equal(t, "127.0.0.1:8085", cfg.Addr())

	cfg.Host = ""
	cfg.Port = 9000
	assert.Equal(t, ":9000", cfg.Addr())
}
