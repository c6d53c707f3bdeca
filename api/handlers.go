/*
handlers.go - HTTP API handlers for the compliance engine

PURPOSE:
  Exposes the use cases via REST. Handles HTTP request/response and JSON
  serialization, and delegates everything else to usecase.Service.

ENDPOINTS:
  Routes:
    GET    /api/routes                     List routes (vessel_type, fuel_type, year filters)
    POST   /api/routes/{id}/baseline       Designate the baseline route
    GET    /api/routes/comparison          Compare routes against the baseline

  Compliance:
    GET    /api/compliance/cb              Compute and store CB (ship_id, year)
    GET    /api/compliance/adjusted-cb     CB after banking (ship_id, year)

  Banking:
    GET    /api/banking/records            Ledger entries and totals (ship_id, year)
    POST   /api/banking/bank               Bank surplus
    POST   /api/banking/apply              Apply banked surplus

  Pools:
    GET    /api/pools                      List pools, newest first
    POST   /api/pools                      Create a pool
    GET    /api/pools/{id}                 Get one pool

REQUEST FLOW:
  1. Parse HTTP request
  2. Check required inputs are present
  3. Call the use case
  4. Serialize response
  5. Map errors (see errors.go)

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - errors.go: Error to status mapping
  - scenarios.go: Demo fleet loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/warp/compliance-engine/core"
	"github.com/warp/compliance-engine/pooling"
	"github.com/warp/compliance-engine/usecase"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is the storage the API needs beyond the use cases: resetting for
// demo scenarios.
type Store interface {
	core.TxStore
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *usecase.Service
	Store   Store
	Log     logrus.FieldLogger

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler around svc. store must be the same store
// svc was built with.
func NewHandler(svc *usecase.Service, store Store, log logrus.FieldLogger) *Handler {
	return &Handler{Service: svc, Store: store, Log: log}
}

// =============================================================================
// ROUTE HANDLERS
// =============================================================================

// ListRoutes returns routes matching the optional query filters.
func (h *Handler) ListRoutes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := core.RouteFilter{
		VesselType: q.Get("vessel_type"),
		FuelType:   q.Get("fuel_type"),
	}
	if y := q.Get("year"); y != "" {
		year, err := strconv.Atoi(y)
		if err != nil {
			writeError(w, http.StatusBadRequest, "year must be an integer", err)
			return
		}
		filter.Year = year
	}

	routes, err := h.Service.ListRoutes(r.Context(), filter)
	if err != nil {
		writeServiceError(w, "Failed to list routes", err)
		return
	}
	writeJSON(w, http.StatusOK, toRouteDTOs(routes))
}

// SetBaseline designates {id} as the baseline route.
func (h *Handler) SetBaseline(w http.ResponseWriter, r *http.Request) {
	id := core.RouteID(chi.URLParam(r, "id"))

	route, err := h.Service.SetBaseline(r.Context(), id)
	if err != nil {
		writeServiceError(w, "Failed to set baseline", err)
		return
	}
	writeJSON(w, http.StatusOK, toRouteDTO(route))
}

// Comparison returns every non-baseline route compared to the baseline.
func (h *Handler) Comparison(w http.ResponseWriter, r *http.Request) {
	comparisons, err := h.Service.Comparison(r.Context())
	if err != nil {
		writeServiceError(w, "Failed to compare routes", err)
		return
	}
	writeJSON(w, http.StatusOK, toComparisonDTOs(comparisons))
}

// =============================================================================
// COMPLIANCE HANDLERS
// =============================================================================

// ComputeCB computes, stores and returns the ship's CB for the year.
func (h *Handler) ComputeCB(w http.ResponseWriter, r *http.Request) {
	shipID, year, ok := shipYearQuery(w, r)
	if !ok {
		return
	}

	result, err := h.Service.ComputeCB(r.Context(), shipID, year)
	if err != nil {
		writeServiceError(w, "Failed to compute compliance balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toComplianceDTO(result))
}

// AdjustedCB returns the CB after banked and applied amounts.
func (h *Handler) AdjustedCB(w http.ResponseWriter, r *http.Request) {
	shipID, year, ok := shipYearQuery(w, r)
	if !ok {
		return
	}

	result, err := h.Service.AdjustedCB(r.Context(), shipID, year)
	if err != nil {
		writeServiceError(w, "Failed to compute adjusted compliance balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toAdjustedDTO(result))
}

// =============================================================================
// BANKING HANDLERS
// =============================================================================

// BankingRecords returns ledger entries and totals.
func (h *Handler) BankingRecords(w http.ResponseWriter, r *http.Request) {
	shipID, year, ok := shipYearQuery(w, r)
	if !ok {
		return
	}

	record, err := h.Service.BankingRecords(r.Context(), shipID, year)
	if err != nil {
		writeServiceError(w, "Failed to load banking records", err)
		return
	}
	writeJSON(w, http.StatusOK, toBankingRecordsDTO(record))
}

// BankSurplus banks part of a ship's surplus.
func (h *Handler) BankSurplus(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeBankingRequest(w, r)
	if !ok {
		return
	}

	entry, err := h.Service.BankSurplus(r.Context(), core.ShipID(req.ShipID), req.Year, req.Amount)
	if err != nil {
		writeServiceError(w, "Failed to bank surplus", err)
		return
	}
	writeJSON(w, http.StatusCreated, toBankEntryDTO(entry))
}

// ApplyBanked applies previously banked surplus.
func (h *Handler) ApplyBanked(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeBankingRequest(w, r)
	if !ok {
		return
	}

	result, err := h.Service.ApplyBanked(r.Context(), core.ShipID(req.ShipID), req.Year, req.Amount)
	if err != nil {
		writeServiceError(w, "Failed to apply banked surplus", err)
		return
	}
	writeJSON(w, http.StatusOK, toApplyResultDTO(result))
}

func decodeBankingRequest(w http.ResponseWriter, r *http.Request) (BankingRequest, bool) {
	var req BankingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return req, false
	}
	if req.ShipID == "" || req.Year == 0 {
		writeError(w, http.StatusBadRequest, "ship_id, year, and amount are required", nil)
		return req, false
	}
	return req, true
}

// =============================================================================
// POOL HANDLERS
// =============================================================================

// CreatePool validates, allocates and stores a pool.
func (h *Handler) CreatePool(w http.ResponseWriter, r *http.Request) {
	var req CreatePoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Year == 0 || req.Members == nil {
		writeError(w, http.StatusBadRequest, "year and members array are required", nil)
		return
	}

	members := make([]pooling.Member, len(req.Members))
	for i, m := range req.Members {
		members[i] = pooling.Member{ShipID: core.ShipID(m.ShipID), CBBefore: m.CBBefore}
	}

	result, err := h.Service.CreatePool(r.Context(), usecase.PoolRequest{Year: req.Year, Members: members})
	if err != nil {
		writeServiceError(w, "Failed to create pool", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPoolResultDTO(result))
}

// ListPools returns all pools, newest first.
func (h *Handler) ListPools(w http.ResponseWriter, r *http.Request) {
	pools, err := h.Service.ListPools(r.Context())
	if err != nil {
		writeServiceError(w, "Failed to list pools", err)
		return
	}

	dtos := make([]PoolDTO, len(pools))
	for i, p := range pools {
		dtos[i] = toPoolDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetPool returns one pool.
func (h *Handler) GetPool(w http.ResponseWriter, r *http.Request) {
	pool, err := h.Service.GetPool(r.Context(), core.PoolID(chi.URLParam(r, "id")))
	if err != nil {
		writeServiceError(w, "Pool not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toPoolDTO(pool))
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports liveness, and database reachability when the store can
// be pinged.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Store.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unreachable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func shipYearQuery(w http.ResponseWriter, r *http.Request) (core.ShipID, int, bool) {
	q := r.URL.Query()
	shipID := q.Get("ship_id")
	year, err := strconv.Atoi(q.Get("year"))
	if shipID == "" || err != nil {
		writeError(w, http.StatusBadRequest, "ship_id and year are required", nil)
		return "", 0, false
	}
	return core.ShipID(shipID), year, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
