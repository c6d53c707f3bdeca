/*
handlers_test.go - HTTP tests for the API surface

Tests run the real router over an in-memory store loaded with the demo
fleet, and assert status codes plus decoded JSON bodies.
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/compliance-engine/store/memory"
	"github.com/warp/compliance-engine/usecase"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) (http.Handler, *Handler) {
	t.Helper()
	store := memory.New()
	logger, _ := logtest.NewNullLogger()
	h := NewHandler(usecase.NewService(store, logger), store, logger)
	require.NoError(t, h.Load(context.Background(), DefaultScenario))
	return NewRouter(h, []string{"http://localhost:5173"}), h
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// =============================================================================
// ROUTES
// =============================================================================

func TestListRoutes(t *testing.T) {
	router, _ := newTestServer(t)

	rec := do(t, router, http.MethodGet, "/api/routes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	routes := decode[[]RouteDTO](t, rec)
	require.Len(t, routes, 5)
	assert.Equal(t, "R001", routes[0].RouteID)
	assert.True(t, routes[0].IsBaseline)

	rec = do(t, router, http.MethodGet, "/api/routes?fuel_type=HFO&year=2025", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	routes = decode[[]RouteDTO](t, rec)
	require.Len(t, routes, 1)
	assert.Equal(t, "R004", routes[0].RouteID)
}

func TestListRoutes_BadYear(t *testing.T) {
	router, _ := newTestServer(t)

	rec := do(t, router, http.MethodGet, "/api/routes?year=twenty", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestComparison(t *testing.T) {
	// GIVEN: The demo fleet with R001 (91.0) as baseline
	// WHEN: Requesting the comparison
	// THEN: Four rows, R002 is 3.30% below baseline and compliant
	router, _ := newTestServer(t)

	rec := do(t, router, http.MethodGet, "/api/routes/comparison", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rows := decode[[]ComparisonDTO](t, rec)
	require.Len(t, rows, 4)
	assert.Equal(t, "R001", rows[0].Baseline.RouteID)
	assert.Equal(t, "R002", rows[0].Comparison.RouteID)
	assert.InDelta(t, -3.2967, rows[0].PercentDiff, 0.01)
	assert.True(t, rows[0].Compliant)
	assert.Equal(t, "R003", rows[1].Comparison.RouteID)
	assert.False(t, rows[1].Compliant)
}

func TestComparison_NoBaseline(t *testing.T) {
	router, _ := newTestServer(t)
	require.Equal(t, http.StatusOK, do(t, router, http.MethodPost, "/api/scenarios/reset", nil).Code)

	rec := do(t, router, http.MethodGet, "/api/routes/comparison", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Details, "no baseline")
}

func TestSetBaseline(t *testing.T) {
	router, _ := newTestServer(t)

	rec := do(t, router, http.MethodPost, "/api/routes/R002/baseline", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[RouteDTO](t, rec).IsBaseline)

	rows := decode[[]ComparisonDTO](t, do(t, router, http.MethodGet, "/api/routes/comparison", nil))
	require.Len(t, rows, 4)
	assert.Equal(t, "R002", rows[0].Baseline.RouteID)
	assert.Equal(t, "R001", rows[0].Comparison.RouteID)

	rec = do(t, router, http.MethodPost, "/api/routes/R999/baseline", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// COMPLIANCE
// =============================================================================

func TestComputeCB(t *testing.T) {
	router, _ := newTestServer(t)

	rec := do(t, router, http.MethodGet, "/api/compliance/cb?ship_id=R002&year=2024", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	cb := decode[ComplianceDTO](t, rec)
	assert.Equal(t, "R002", cb.ShipID)
	assert.Equal(t, 263082240.0, cb.CBValue)
	assert.Equal(t, 196800000.0, cb.EnergyInScope)
	assert.Equal(t, 89.3368, cb.TargetIntensity)
	assert.Equal(t, 88.0, cb.ActualIntensity)
}

func TestComputeCB_Errors(t *testing.T) {
	router, _ := newTestServer(t)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"missing ship", "/api/compliance/cb?year=2024", http.StatusBadRequest},
		{"missing year", "/api/compliance/cb?ship_id=R002", http.StatusBadRequest},
		{"bad year", "/api/compliance/cb?ship_id=R002&year=soon", http.StatusBadRequest},
		{"unknown ship", "/api/compliance/cb?ship_id=GHOST&year=2024", http.StatusNotFound},
		{"adjusted unknown ship", "/api/compliance/adjusted-cb?ship_id=GHOST&year=2024", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, do(t, router, http.MethodGet, tt.path, nil).Code)
		})
	}
}

// =============================================================================
// BANKING
// =============================================================================

func TestBanking_Flow(t *testing.T) {
	// GIVEN: R002 with its 2024 CB computed
	// WHEN: Banking 500,000 then applying 300,000 twice
	// THEN: The first apply succeeds, the second exceeds what is left
	router, _ := newTestServer(t)
	require.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/api/compliance/cb?ship_id=R002&year=2024", nil).Code)

	rec := do(t, router, http.MethodPost, "/api/banking/bank", map[string]any{
		"ship_id": "R002", "year": 2024, "amount": 500000,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	entry := decode[BankEntryDTO](t, rec)
	assert.Equal(t, "bank", entry.Kind)
	assert.Equal(t, 500000.0, entry.Amount)

	rec = do(t, router, http.MethodPost, "/api/banking/apply", map[string]any{
		"ship_id": "R002", "year": 2024, "amount": "300000",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	applied := decode[ApplyResultDTO](t, rec)
	assert.Equal(t, 263082240.0, applied.CBBefore)
	assert.Equal(t, 300000.0, applied.Applied)
	assert.Equal(t, 263382240.0, applied.CBAfter)

	rec = do(t, router, http.MethodPost, "/api/banking/apply", map[string]any{
		"ship_id": "R002", "year": 2024, "amount": 300000,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/banking/records?ship_id=R002&year=2024", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	records := decode[BankingRecordsDTO](t, rec)
	assert.Len(t, records.Entries, 2)
	assert.Equal(t, 500000.0, records.TotalBanked)
	assert.Equal(t, 300000.0, records.TotalApplied)
	assert.Equal(t, 200000.0, records.AvailableBalance)

	rec = do(t, router, http.MethodGet, "/api/compliance/adjusted-cb?ship_id=R002&year=2024", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	adjusted := decode[AdjustedComplianceDTO](t, rec)
	assert.Equal(t, 262882240.0, adjusted.AdjustedCB)
}

func TestBanking_Rejections(t *testing.T) {
	router, _ := newTestServer(t)
	require.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/api/compliance/cb?ship_id=R003&year=2024", nil).Code)

	tests := []struct {
		name   string
		path   string
		body   any
		status int
	}{
		{"deficit ship", "/api/banking/bank", map[string]any{"ship_id": "R003", "year": 2024, "amount": 1}, http.StatusBadRequest},
		{"zero amount", "/api/banking/bank", map[string]any{"ship_id": "R003", "year": 2024, "amount": 0}, http.StatusBadRequest},
		{"no record", "/api/banking/bank", map[string]any{"ship_id": "R002", "year": 2024, "amount": 1}, http.StatusNotFound},
		{"missing ship", "/api/banking/apply", map[string]any{"year": 2024, "amount": 1}, http.StatusBadRequest},
		{"nothing banked", "/api/banking/apply", map[string]any{"ship_id": "R003", "year": 2024, "amount": 1}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, do(t, router, http.MethodPost, tt.path, tt.body).Code)
		})
	}
}

func TestBanking_MalformedBody(t *testing.T) {
	router, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/banking/bank", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request body", decode[ErrorResponse](t, rec).Error)
}

// =============================================================================
// POOLS
// =============================================================================

func TestCreatePool(t *testing.T) {
	router, _ := newTestServer(t)

	rec := do(t, router, http.MethodPost, "/api/pools", map[string]any{
		"year": 2024,
		"members": []map[string]any{
			{"ship_id": "R004", "cb_before": 1000},
			{"ship_id": "R001", "cb_before": -400},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	pool := decode[PoolDTO](t, rec)
	assert.NotEmpty(t, pool.PoolID)
	assert.Equal(t, 600.0, pool.TotalCB)
	require.Len(t, pool.Members, 2)
	assert.Equal(t, "R004", pool.Members[0].ShipID)
	assert.Equal(t, 600.0, pool.Members[0].CBAfter)
	assert.Equal(t, 0.0, pool.Members[1].CBAfter)

	rec = do(t, router, http.MethodGet, "/api/pools/"+pool.PoolID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stored := decode[PoolDTO](t, rec)
	assert.Equal(t, pool.Members, stored.Members)
	assert.NotEmpty(t, stored.CreatedAt)

	rec = do(t, router, http.MethodGet, "/api/pools", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]PoolDTO](t, rec), 1)
}

func TestCreatePool_ValidationFailure(t *testing.T) {
	// GIVEN: Members summing to -400
	// WHEN: Creating the pool
	// THEN: 400 with the error list and the total
	router, _ := newTestServer(t)

	rec := do(t, router, http.MethodPost, "/api/pools", map[string]any{
		"year": 2024,
		"members": []map[string]any{
			{"ship_id": "A", "cb_before": 100},
			{"ship_id": "B", "cb_before": -500},
		},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "Pool validation failed", resp.Error)
	assert.NotEmpty(t, resp.Errors)
	require.NotNil(t, resp.TotalCB)
	assert.Equal(t, -400.0, *resp.TotalCB)
}

func TestCreatePool_BadRequests(t *testing.T) {
	router, _ := newTestServer(t)

	assert.Equal(t, http.StatusBadRequest,
		do(t, router, http.MethodPost, "/api/pools", map[string]any{"year": 2024}).Code)
	assert.Equal(t, http.StatusBadRequest,
		do(t, router, http.MethodPost, "/api/pools", map[string]any{"year": 2024, "members": []any{}}).Code)
	assert.Equal(t, http.StatusNotFound,
		do(t, router, http.MethodGet, "/api/pools/missing", nil).Code)
}

// =============================================================================
// OPS
// =============================================================================

func TestHealthAndMetrics(t *testing.T) {
	router, _ := newTestServer(t)

	rec := do(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])

	do(t, router, http.MethodGet, "/api/routes", nil)
	rec = do(t, router, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "compliance_engine_http_requests_total")
}
