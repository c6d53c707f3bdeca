/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Domain quantities are
  decimals internally; responses render them as JSON numbers, requests
  accept either numbers or numeric strings.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - JSON keys are snake_case

TYPES:
  Routes:     RouteDTO, ComparisonDTO
  Compliance: ComplianceDTO, AdjustedComplianceDTO
  Banking:    BankingRequest, BankEntryDTO, ApplyResultDTO, BankingRecordsDTO
  Pools:      CreatePoolRequest, PoolMemberRequest, PoolDTO, PoolMemberDTO
  Scenarios:  ScenarioDTO, LoadScenarioRequest
  Errors:     ErrorResponse

VALIDATION:
  Presence checks are done in handlers, business rules in usecase. DTOs are
  pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - usecase/service.go: Result types converted here
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/compliance-engine/banking"
	"github.com/warp/compliance-engine/core"
	"github.com/warp/compliance-engine/usecase"
)

// =============================================================================
// ROUTES
// =============================================================================

type RouteDTO struct {
	RouteID         string  `json:"route_id"`
	ShipID          string  `json:"ship_id"`
	VesselType      string  `json:"vessel_type"`
	FuelType        string  `json:"fuel_type"`
	Year            int     `json:"year"`
	GHGIntensity    float64 `json:"ghg_intensity"`
	FuelConsumption float64 `json:"fuel_consumption"`
	Distance        float64 `json:"distance"`
	TotalEmissions  float64 `json:"total_emissions"`
	IsBaseline      bool    `json:"is_baseline"`
}

// ComparisonDTO compares one route against the baseline.
type ComparisonDTO struct {
	Baseline    RouteDTO `json:"baseline"`
	Comparison  RouteDTO `json:"comparison"`
	PercentDiff float64  `json:"percent_diff"`
	Compliant   bool     `json:"compliant"`
}

// =============================================================================
// COMPLIANCE
// =============================================================================

type ComplianceDTO struct {
	ShipID          string  `json:"ship_id"`
	Year            int     `json:"year"`
	CBValue         float64 `json:"cb_value"`
	EnergyInScope   float64 `json:"energy_in_scope"`
	TargetIntensity float64 `json:"target_intensity"`
	ActualIntensity float64 `json:"actual_intensity"`
}

type AdjustedComplianceDTO struct {
	ComplianceDTO
	BankedAmount  float64 `json:"banked_amount"`
	AppliedAmount float64 `json:"applied_amount"`
	AdjustedCB    float64 `json:"adjusted_cb"`
}

// =============================================================================
// BANKING
// =============================================================================

// BankingRequest is the body of both bank and apply.
type BankingRequest struct {
	ShipID string          `json:"ship_id"`
	Year   int             `json:"year"`
	Amount decimal.Decimal `json:"amount"`
}

type BankEntryDTO struct {
	ID        string  `json:"id"`
	ShipID    string  `json:"ship_id"`
	Year      int     `json:"year"`
	Amount    float64 `json:"amount"`
	Kind      string  `json:"kind"`
	CreatedAt string  `json:"created_at,omitempty"`
}

type ApplyResultDTO struct {
	Entry    BankEntryDTO `json:"entry"`
	CBBefore float64      `json:"cb_before"`
	Applied  float64      `json:"applied"`
	CBAfter  float64      `json:"cb_after"`
}

type BankingRecordsDTO struct {
	ShipID           string         `json:"ship_id"`
	Year             int            `json:"year"`
	Entries          []BankEntryDTO `json:"entries"`
	TotalBanked      float64        `json:"total_banked"`
	TotalApplied     float64        `json:"total_applied"`
	AvailableBalance float64        `json:"available_balance"`
}

// =============================================================================
// POOLS
// =============================================================================

type PoolMemberRequest struct {
	ShipID   string          `json:"ship_id"`
	CBBefore decimal.Decimal `json:"cb_before"`
}

type CreatePoolRequest struct {
	Year    int                 `json:"year"`
	Members []PoolMemberRequest `json:"members"`
}

type PoolMemberDTO struct {
	ShipID   string  `json:"ship_id"`
	CBBefore float64 `json:"cb_before"`
	CBAfter  float64 `json:"cb_after"`
}

type PoolDTO struct {
	PoolID    string          `json:"pool_id"`
	Year      int             `json:"year"`
	Members   []PoolMemberDTO `json:"members"`
	TotalCB   float64         `json:"total_cb"`
	CreatedAt string          `json:"created_at,omitempty"`
}

// =============================================================================
// SCENARIOS & ERRORS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the standard error response. Errors and TotalCB are only
// set for pool validation failures.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Details string   `json:"details,omitempty"`
	Errors  []string `json:"errors,omitempty"`
	TotalCB *float64 `json:"total_cb,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func toRouteDTO(r core.Route) RouteDTO {
	return RouteDTO{
		RouteID:         string(r.ID),
		ShipID:          string(r.ShipID),
		VesselType:      r.VesselType,
		FuelType:        r.FuelType,
		Year:            r.Year,
		GHGIntensity:    toFloat(r.GHGIntensity),
		FuelConsumption: toFloat(r.FuelConsumption),
		Distance:        toFloat(r.Distance),
		TotalEmissions:  toFloat(r.TotalEmissions),
		IsBaseline:      r.IsBaseline,
	}
}

func toRouteDTOs(routes []core.Route) []RouteDTO {
	dtos := make([]RouteDTO, len(routes))
	for i, r := range routes {
		dtos[i] = toRouteDTO(r)
	}
	return dtos
}

func toComparisonDTOs(comparisons []usecase.RouteComparison) []ComparisonDTO {
	dtos := make([]ComparisonDTO, len(comparisons))
	for i, c := range comparisons {
		dtos[i] = ComparisonDTO{
			Baseline:    toRouteDTO(c.Baseline),
			Comparison:  toRouteDTO(c.Comparison),
			PercentDiff: toFloat(c.PercentDiff),
			Compliant:   c.Compliant,
		}
	}
	return dtos
}

func toComplianceDTO(c usecase.ComplianceResult) ComplianceDTO {
	return ComplianceDTO{
		ShipID:          string(c.ShipID),
		Year:            c.Year,
		CBValue:         toFloat(c.CB),
		EnergyInScope:   toFloat(c.EnergyInScope),
		TargetIntensity: toFloat(c.TargetIntensity),
		ActualIntensity: toFloat(c.ActualIntensity),
	}
}

func toAdjustedDTO(a usecase.AdjustedResult) AdjustedComplianceDTO {
	return AdjustedComplianceDTO{
		ComplianceDTO: toComplianceDTO(a.ComplianceResult),
		BankedAmount:  toFloat(a.Banked),
		AppliedAmount: toFloat(a.Applied),
		AdjustedCB:    toFloat(a.AdjustedCB),
	}
}

func toBankEntryDTO(e core.BankEntry) BankEntryDTO {
	return BankEntryDTO{
		ID:        string(e.ID),
		ShipID:    string(e.ShipID),
		Year:      e.Year,
		Amount:    toFloat(e.Amount),
		Kind:      string(e.Kind),
		CreatedAt: formatTime(e.CreatedAt),
	}
}

func toApplyResultDTO(r banking.ApplyResult) ApplyResultDTO {
	return ApplyResultDTO{
		Entry:    toBankEntryDTO(r.Entry),
		CBBefore: toFloat(r.CBBefore),
		Applied:  toFloat(r.Applied),
		CBAfter:  toFloat(r.CBAfter),
	}
}

func toBankingRecordsDTO(r banking.Record) BankingRecordsDTO {
	entries := make([]BankEntryDTO, len(r.Entries))
	for i, e := range r.Entries {
		entries[i] = toBankEntryDTO(e)
	}
	return BankingRecordsDTO{
		ShipID:           string(r.ShipID),
		Year:             r.Year,
		Entries:          entries,
		TotalBanked:      toFloat(r.Banked),
		TotalApplied:     toFloat(r.Applied),
		AvailableBalance: toFloat(r.Available()),
	}
}

func toPoolMemberDTOs(members []core.PoolMember) []PoolMemberDTO {
	dtos := make([]PoolMemberDTO, len(members))
	for i, m := range members {
		dtos[i] = PoolMemberDTO{
			ShipID:   string(m.ShipID),
			CBBefore: toFloat(m.CBBefore),
			CBAfter:  toFloat(m.CBAfter),
		}
	}
	return dtos
}

func toPoolResultDTO(r usecase.PoolResult) PoolDTO {
	return PoolDTO{
		PoolID:  string(r.PoolID),
		Year:    r.Year,
		Members: toPoolMemberDTOs(r.Members),
		TotalCB: toFloat(r.TotalCB),
	}
}

func toPoolDTO(p core.Pool) PoolDTO {
	return PoolDTO{
		PoolID:    string(p.ID),
		Year:      p.Year,
		Members:   toPoolMemberDTOs(p.Members),
		TotalCB:   toFloat(p.TotalCB()),
		CreatedAt: formatTime(p.CreatedAt),
	}
}
