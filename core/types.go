/*
Package core provides the shared domain model for the compliance engine.

PURPOSE:
  This package holds the types every other package speaks: compliance
  records, banking ledger entries, routes and pools. It has no behavior
  beyond small helpers; the calculator, banking and pooling packages hold
  the rules, and the usecase package orchestrates them against a Store.

KEY CONCEPTS IN THIS FILE (types.go):
  - ComplianceRecord: Raw computed CB for a ship in a year (upsert semantics)
  - BankEntry: Immutable ledger row, either a bank (deposit) or an apply
  - Route: Voyage telemetry a CB is computed from
  - Pool / PoolMember: Persisted result of a pooling allocation

UNITS:
  CB values are gCO2eq, intensities gCO2e/MJ, fuel in tonnes, energy in MJ.
  All quantities use decimal.Decimal so pool redistribution conserves the
  total exactly.

SEE ALSO:
  - errors.go: Error taxonomy shared by all packages
  - store.go: Persistence interfaces
*/
package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ShipID string
type RouteID string
type PoolID string
type EntryID string

// =============================================================================
// COMPLIANCE RECORD - Raw CB per ship per year
// =============================================================================

// ComplianceRecord is unique per (ShipID, Year). Positive CB is a surplus,
// negative a deficit. Only recomputation changes it; banking never does.
type ComplianceRecord struct {
	ShipID    ShipID
	Year      int
	CB        decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// BANK ENTRY - Append-only ledger row
// =============================================================================

type EntryKind string

const (
	KindBank  EntryKind = "bank"  // Surplus deposited for later use
	KindApply EntryKind = "apply" // Banked surplus used to offset CB
)

func (k EntryKind) Valid() bool {
	return k == KindBank || k == KindApply
}

// BankEntry is never mutated or deleted. Amount is always > 0; the Kind
// carries the direction.
type BankEntry struct {
	ID        EntryID
	ShipID    ShipID
	Year      int
	Amount    decimal.Decimal
	Kind      EntryKind
	CreatedAt time.Time
}

// =============================================================================
// ROUTE - Voyage telemetry
// =============================================================================

type Route struct {
	ID              RouteID
	ShipID          ShipID
	VesselType      string
	FuelType        string
	Year            int
	GHGIntensity    decimal.Decimal // gCO2e/MJ
	FuelConsumption decimal.Decimal // tonnes
	Distance        decimal.Decimal // km
	TotalEmissions  decimal.Decimal // tonnes
	IsBaseline      bool
}

// RouteFilter narrows ListRoutes. Zero values match everything.
type RouteFilter struct {
	VesselType string
	FuelType   string
	Year       int
}

func (f RouteFilter) Matches(r Route) bool {
	if f.VesselType != "" && f.VesselType != r.VesselType {
		return false
	}
	if f.FuelType != "" && f.FuelType != r.FuelType {
		return false
	}
	if f.Year != 0 && f.Year != r.Year {
		return false
	}
	return true
}

// =============================================================================
// POOL - Persisted allocation
// =============================================================================

type PoolMember struct {
	ShipID   ShipID
	CBBefore decimal.Decimal
	CBAfter  decimal.Decimal
}

type Pool struct {
	ID        PoolID
	Year      int
	Members   []PoolMember
	CreatedAt time.Time
}

// TotalCB is the sum of CBBefore over all members.
func (p Pool) TotalCB() decimal.Decimal {
	total := decimal.Zero
	for _, m := range p.Members {
		total = total.Add(m.CBBefore)
	}
	return total
}
