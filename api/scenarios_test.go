package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/compliance-engine/core"
)

func TestListScenarios(t *testing.T) {
	router, _ := newTestServer(t)

	rec := do(t, router, http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	list := decode[[]ScenarioDTO](t, rec)
	require.Len(t, list, 2)
	assert.Equal(t, "fleet", list[0].ID)

	current := decode[ScenarioDTO](t, do(t, router, http.MethodGet, "/api/scenarios/current", nil))
	assert.Equal(t, "fleet", current.ID)
}

func TestLoadScenario_Banking(t *testing.T) {
	// GIVEN: A server with the plain fleet
	// WHEN: Loading the banking scenario
	// THEN: R002 has 500,000 banked and every ship has a stored CB
	router, h := newTestServer(t)

	rec := do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "banking"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	records := decode[BankingRecordsDTO](t, do(t, router, http.MethodGet, "/api/banking/records?ship_id=R002&year=2024", nil))
	assert.Equal(t, 500000.0, records.AvailableBalance)

	for _, f := range fleet {
		rec, err := h.Store.FindCompliance(context.Background(), core.ShipID(f.id), f.year)
		require.NoError(t, err)
		assert.NotNil(t, rec, f.id)
	}
}

func TestLoadScenario_ReplacesData(t *testing.T) {
	router, _ := newTestServer(t)
	require.Equal(t, http.StatusCreated, do(t, router, http.MethodPost, "/api/pools", map[string]any{
		"year": 2024, "members": []map[string]any{{"ship_id": "R002", "cb_before": 10}},
	}).Code)

	require.Equal(t, http.StatusOK,
		do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "fleet"}).Code)

	pools := decode[[]PoolDTO](t, do(t, router, http.MethodGet, "/api/pools", nil))
	assert.Empty(t, pools)
}

func TestLoadScenario_Unknown(t *testing.T) {
	router, h := newTestServer(t)

	rec := do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "armada"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Error(t, h.Load(context.Background(), "armada"))
}

func TestResetDatabase(t *testing.T) {
	router, _ := newTestServer(t)

	require.Equal(t, http.StatusOK, do(t, router, http.MethodPost, "/api/scenarios/reset", nil).Code)

	routes := decode[[]RouteDTO](t, do(t, router, http.MethodGet, "/api/routes", nil))
	assert.Empty(t, routes)
	assert.Equal(t, "null", do(t, router, http.MethodGet, "/api/scenarios/current", nil).Body.String()[:4])
}
