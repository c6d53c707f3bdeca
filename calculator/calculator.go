/*
Package calculator converts fuel and voyage telemetry into compliance
balances.

PURPOSE:
  Pure, deterministic functions. No state, no I/O, no errors: every
  function is total. The zero-division fallbacks (PercentDifference with a
  zero baseline, GHGIntensity with zero distance) return 0 as defined
  behavior, not as a failure signal.

FORMULAS:
  energy  = fuel_tonnes * 41000                      (MJ)
  CB      = (target - actual) * energy               (gCO2eq, + surplus / - deficit)
  diff %  = (comparison / baseline - 1) * 100
  penalty = max(0, deficit) * rate
  CO2     = fuel * emission_factor(fuel_type)
  GHG     = CO2 / (distance * 1000) * 1e6

SEE ALSO:
  - targets.go: Target intensity per regulatory milestone year
  - usecase/service.go: Applies these to stored routes
*/
package calculator

import "github.com/shopspring/decimal"

const (
	// MJPerTonne converts fuel mass into energy in scope.
	MJPerTonne = 41000

	// DefaultYear is the reporting year used when no target is given.
	DefaultYear = 2025

	// DefaultPenaltyRate is the penalty per unit of deficit.
	DefaultPenaltyRate = 2400
)

var (
	hundred = decimal.NewFromInt(100)
	million = decimal.NewFromInt(1_000_000)
	perKm   = decimal.NewFromInt(1000)
)

// EnergyInScope returns the energy (MJ) counted toward compliance for the
// given fuel mass in tonnes.
func EnergyInScope(fuelTonnes decimal.Decimal) decimal.Decimal {
	return fuelTonnes.Mul(decimal.NewFromInt(MJPerTonne))
}

// ComplianceBalance returns (target - actual) * energy. Positive is surplus.
func ComplianceBalance(actualIntensity, fuelTonnes, targetIntensity decimal.Decimal) decimal.Decimal {
	return targetIntensity.Sub(actualIntensity).Mul(EnergyInScope(fuelTonnes))
}

// DefaultComplianceBalance is ComplianceBalance against the DefaultYear target.
func DefaultComplianceBalance(actualIntensity, fuelTonnes decimal.Decimal) decimal.Decimal {
	return ComplianceBalance(actualIntensity, fuelTonnes, TargetIntensity(DefaultYear))
}

// PercentDifference returns how far comparison is from baseline, in percent.
// A zero baseline yields 0.
func PercentDifference(comparisonIntensity, baselineIntensity decimal.Decimal) decimal.Decimal {
	if baselineIntensity.IsZero() {
		return decimal.Zero
	}
	return comparisonIntensity.Div(baselineIntensity).Sub(decimal.NewFromInt(1)).Mul(hundred)
}

// IsCompliant reports whether actual intensity meets the target for year.
func IsCompliant(actualIntensity decimal.Decimal, year int) bool {
	return actualIntensity.LessThanOrEqual(TargetIntensity(year))
}

// Penalty is never negative: a surplus (negative deficit) costs nothing.
func Penalty(deficit, ratePerUnit decimal.Decimal) decimal.Decimal {
	return decimal.Max(decimal.Zero, deficit).Mul(ratePerUnit)
}

// CO2Emissions returns fuel * emission factor. Unknown fuel types use the
// DefaultFuel factor.
func CO2Emissions(fuelConsumed decimal.Decimal, fuelType string) decimal.Decimal {
	return fuelConsumed.Mul(EmissionFactor(fuelType))
}

// GHGIntensity scales emissions per unit of transport work. Zero distance
// yields 0.
func GHGIntensity(co2Emissions, distance decimal.Decimal) decimal.Decimal {
	if distance.IsZero() {
		return decimal.Zero
	}
	transportWork := distance.Mul(perKm)
	return co2Emissions.Div(transportWork).Mul(million)
}

// =============================================================================
// ASSESSMENT - Everything computed for one ship-year
// =============================================================================

// Assessment bundles the CB with the inputs it was derived from.
type Assessment struct {
	Year            int
	ActualIntensity decimal.Decimal
	TargetIntensity decimal.Decimal
	EnergyInScope   decimal.Decimal
	CB              decimal.Decimal
}

// Assess computes the CB for a ship-year against that year's target.
func Assess(actualIntensity, fuelTonnes decimal.Decimal, year int) Assessment {
	target := TargetIntensity(year)
	return Assessment{
		Year:            year,
		ActualIntensity: actualIntensity,
		TargetIntensity: target,
		EnergyInScope:   EnergyInScope(fuelTonnes),
		CB:              ComplianceBalance(actualIntensity, fuelTonnes, target),
	}
}

func (a Assessment) Compliant() bool {
	return a.ActualIntensity.LessThanOrEqual(a.TargetIntensity)
}
