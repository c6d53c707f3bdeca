package calculator

import "github.com/shopspring/decimal"

// TargetIntensity returns the regulatory target (gCO2e/MJ) for year.
// Milestone years map to their step value; every other year, including
// years before the first milestone, uses the 2025 target.
func TargetIntensity(year int) decimal.Decimal {
	switch year {
	case 2024, 2025:
		return decimal.RequireFromString("89.3368")
	case 2030:
		return decimal.NewFromInt(80)
	case 2035:
		return decimal.NewFromInt(65)
	case 2040:
		return decimal.RequireFromString("47.5")
	case 2050:
		return decimal.Zero
	default:
		return decimal.RequireFromString("89.3368")
	}
}

// DefaultFuel is the fuel whose factor applies to unknown fuel types.
const DefaultFuel = "VLSFO"

// EmissionFactor returns tonnes of CO2 per tonne of fuel burned.
func EmissionFactor(fuelType string) decimal.Decimal {
	switch fuelType {
	case "VLSFO":
		return decimal.RequireFromString("3.151")
	case "MGO":
		return decimal.RequireFromString("3.206")
	case "HFO":
		return decimal.RequireFromString("3.114")
	case "LNG":
		return decimal.RequireFromString("2.75")
	case "Methanol":
		return decimal.RequireFromString("1.375")
	case "Biodiesel", "E-Ammonia":
		return decimal.Zero
	default:
		return EmissionFactor(DefaultFuel)
	}
}
