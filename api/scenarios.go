/*
scenarios.go - Demo fleet loaders for testing and demonstrations

PURPOSE:

	Populates the store with a realistic five-ship fleet so the dashboard
	and the compliance endpoints have something to work on.

AVAILABLE SCENARIOS:

	fleet:    Routes R001-R005, R001 designated as baseline
	banking:  fleet, plus CB computed for every ship in its route year
	          and 500,000 of R002's surplus banked

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Save routes
 3. Optionally compute CB and bank through the use cases

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "banking"}

USAGE VIA CLI:

	server seed --scenario banking

NOTE:

	Scenarios reset the database. Only use in development/demo environments.
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/warp/compliance-engine/core"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

const DefaultScenario = "fleet"

var scenarios = []ScenarioDTO{
	{
		ID:          "fleet",
		Name:        "Demo Fleet",
		Description: "Five routes across 2024 and 2025, R001 is the baseline",
	},
	{
		ID:          "banking",
		Name:        "Banking",
		Description: "Demo fleet with compliance balances computed and part of R002's surplus banked",
	},
}

type fleetRoute struct {
	id         string
	vesselType string
	fuelType   string
	year       int
	intensity  string
	fuel       string
	distance   string
	emissions  string
	baseline   bool
}

var fleet = []fleetRoute{
	{"R001", "Container", "HFO", 2024, "91.0", "5000", "12000", "4500", true},
	{"R002", "BulkCarrier", "LNG", 2024, "88.0", "4800", "11500", "4200", false},
	{"R003", "Tanker", "MGO", 2024, "93.5", "5100", "12500", "4700", false},
	{"R004", "RoRo", "HFO", 2025, "89.2", "4900", "11800", "4300", false},
	{"R005", "Container", "LNG", 2025, "90.5", "4950", "11900", "4400", false},
}

// =============================================================================
// SCENARIO HANDLERS
// =============================================================================

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !knownScenario(req.ScenarioID) {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	if err := h.Load(r.Context(), req.ScenarioID); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// Load resets the store and loads scenario id.
func (h *Handler) Load(ctx context.Context, id string) error {
	if !knownScenario(id) {
		return fmt.Errorf("unknown scenario %q", id)
	}
	if err := h.reset(ctx); err != nil {
		return err
	}

	var err error
	switch id {
	case "fleet":
		err = h.loadFleet(ctx)
	case "banking":
		err = h.loadBankingScenario(ctx)
	}
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.currentScenario = id
	h.mu.Unlock()

	h.Log.WithField("scenario", id).Info("scenario loaded")
	return nil
}

func (h *Handler) reset(ctx context.Context) error {
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()

	if err := h.Store.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset store: %w", err)
	}
	return nil
}

func (h *Handler) loadFleet(ctx context.Context) error {
	for _, f := range fleet {
		route := core.Route{
			ID:              core.RouteID(f.id),
			ShipID:          core.ShipID(f.id),
			VesselType:      f.vesselType,
			FuelType:        f.fuelType,
			Year:            f.year,
			GHGIntensity:    decimal.RequireFromString(f.intensity),
			FuelConsumption: decimal.RequireFromString(f.fuel),
			Distance:        decimal.RequireFromString(f.distance),
			TotalEmissions:  decimal.RequireFromString(f.emissions),
			IsBaseline:      f.baseline,
		}
		if err := h.Store.SaveRoute(ctx, route); err != nil {
			return fmt.Errorf("failed to save route %s: %w", f.id, err)
		}
	}
	return nil
}

func (h *Handler) loadBankingScenario(ctx context.Context) error {
	if err := h.loadFleet(ctx); err != nil {
		return err
	}

	for _, f := range fleet {
		if _, err := h.Service.ComputeCB(ctx, core.ShipID(f.id), f.year); err != nil {
			return fmt.Errorf("failed to compute cb for %s: %w", f.id, err)
		}
	}

	if _, err := h.Service.BankSurplus(ctx, "R002", 2024, decimal.NewFromInt(500000)); err != nil {
		return fmt.Errorf("failed to bank surplus: %w", err)
	}
	return nil
}

func knownScenario(id string) bool {
	for _, s := range scenarios {
		if s.ID == id {
			return true
		}
	}
	return false
}
