package banking

import (
	"github.com/shopspring/decimal"

	"github.com/warp/compliance-engine/core"
)

// CheckAmount rejects zero and negative amounts.
func CheckAmount(kind core.EntryKind, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return &core.InvalidAmountError{Operation: string(kind), Amount: amount}
	}
	return nil
}

// CheckBank validates a deposit against the record's current CB and what
// has already been banked for it.
func CheckBank(rec core.ComplianceRecord, totalBanked, amount decimal.Decimal) error {
	if err := CheckAmount(core.KindBank, amount); err != nil {
		return err
	}
	if !rec.CB.IsPositive() {
		return &core.NoSurplusError{ShipID: rec.ShipID, Year: rec.Year, CB: rec.CB}
	}

	available := rec.CB.Sub(totalBanked)
	if amount.GreaterThan(available) {
		return &core.ExceedsAvailableError{
			ShipID:    rec.ShipID,
			Year:      rec.Year,
			Kind:      core.KindBank,
			Requested: amount,
			Available: available,
		}
	}
	return nil
}

// CheckApply validates a withdrawal against the available banked balance.
func CheckApply(shipID core.ShipID, year int, available, amount decimal.Decimal) error {
	if err := CheckAmount(core.KindApply, amount); err != nil {
		return err
	}
	if amount.GreaterThan(available) {
		return &core.ExceedsAvailableError{
			ShipID:    shipID,
			Year:      year,
			Kind:      core.KindApply,
			Requested: amount,
			Available: available,
		}
	}
	return nil
}
