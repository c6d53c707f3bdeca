/*
Package banking implements the compliance-balance banking ledger.

PURPOSE:
  Ships may bank a surplus CB and later apply it against a deficit. The
  ledger is the only record of those moves: an append-only list of bank
  and apply entries per (ship, year). There is no balance column; every
  derived figure is a fold over entries.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: Entries are never updated or deleted
  2. CONSERVATION: available = sum(bank) - sum(apply), never negative
  3. BANK LIMIT: sum(bank) never exceeds the CURRENT recorded CB
  4. CHECK-THEN-APPEND IS ATOMIC: Every write runs inside TxStore.WithTx so
     the read that validates an amount and the append that consumes it
     cannot interleave with another write

WHY NOT CHECK AFTERWARDS?
  Invariant 2 is enforced when an apply entry is created. A negative
  available balance is unrepresentable rather than detected.

RAW VS ADJUSTED CB:
  Banking never mutates the ComplianceRecord. Adjusted CB is
  cb - banked + applied, computed on demand.

  Bank availability compares against the record's current CB. If the CB is
  recomputed lower after banking, further banking fails; existing entries
  stay as they are.

EXAMPLE FLOW:
  CB for R002/2024 = +263,082,240
  1. Bank 500,000:  entries [bank 500000]            available 500,000
  2. Apply 300,000: entries [bank 500000, apply 300000] available 200,000
  3. Apply 250,000: rejected, ExceedsAvailable (200,000)

SEE ALSO:
  - rules.go: Pure validation rules used by Ledger
  - core/store.go: BankingStore and TxStore contracts
*/
package banking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/compliance-engine/core"
)

// =============================================================================
// RESULT TYPES
// =============================================================================

// Totals is the fold over one (ship, year) ledger.
type Totals struct {
	Banked  decimal.Decimal
	Applied decimal.Decimal
}

// Available is what may still be applied.
func (t Totals) Available() decimal.Decimal {
	return t.Banked.Sub(t.Applied)
}

// Adjust layers banking on top of a raw CB: cb - banked + applied.
func (t Totals) Adjust(cb decimal.Decimal) decimal.Decimal {
	return cb.Sub(t.Banked).Add(t.Applied)
}

// ApplyResult reports an apply. CBAfter is computed, never stored.
type ApplyResult struct {
	Entry    core.BankEntry
	CBBefore decimal.Decimal
	Applied  decimal.Decimal
	CBAfter  decimal.Decimal
}

// Record is the full ledger view for a (ship, year).
type Record struct {
	ShipID  core.ShipID
	Year    int
	Entries []core.BankEntry
	Totals
}

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	Store core.TxStore

	now   func() time.Time
	newID func() core.EntryID
}

func NewLedger(store core.TxStore) *Ledger {
	return &Ledger{
		Store: store,
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() core.EntryID { return core.EntryID(uuid.NewString()) },
	}
}

// TotalBanked sums all bank entries for (shipID, year).
func (l *Ledger) TotalBanked(ctx context.Context, shipID core.ShipID, year int) (decimal.Decimal, error) {
	return l.Store.SumByKind(ctx, shipID, year, core.KindBank)
}

// TotalApplied sums all apply entries for (shipID, year).
func (l *Ledger) TotalApplied(ctx context.Context, shipID core.ShipID, year int) (decimal.Decimal, error) {
	return l.Store.SumByKind(ctx, shipID, year, core.KindApply)
}

// Totals returns both sums.
func (l *Ledger) Totals(ctx context.Context, shipID core.ShipID, year int) (Totals, error) {
	return totals(ctx, l.Store, shipID, year)
}

// AvailableBanked is TotalBanked - TotalApplied.
func (l *Ledger) AvailableBanked(ctx context.Context, shipID core.ShipID, year int) (decimal.Decimal, error) {
	t, err := l.Totals(ctx, shipID, year)
	if err != nil {
		return decimal.Zero, err
	}
	return t.Available(), nil
}

// Record returns every entry plus the totals.
func (l *Ledger) Record(ctx context.Context, shipID core.ShipID, year int) (Record, error) {
	entries, err := l.Store.ListBankEntries(ctx, shipID, year)
	if err != nil {
		return Record{}, fmt.Errorf("failed to list bank entries: %w", err)
	}

	// Fold the same entries we return so the view is self-consistent.
	t := Totals{Banked: decimal.Zero, Applied: decimal.Zero}
	for _, e := range entries {
		switch e.Kind {
		case core.KindBank:
			t.Banked = t.Banked.Add(e.Amount)
		case core.KindApply:
			t.Applied = t.Applied.Add(e.Amount)
		}
	}
	return Record{ShipID: shipID, Year: year, Entries: entries, Totals: t}, nil
}

// BankSurplus deposits amount of the ship's surplus CB.
func (l *Ledger) BankSurplus(ctx context.Context, shipID core.ShipID, year int, amount decimal.Decimal) (core.BankEntry, error) {
	if err := CheckAmount(core.KindBank, amount); err != nil {
		return core.BankEntry{}, err
	}

	var created core.BankEntry
	err := l.Store.WithTx(ctx, func(s core.Store) error {
		rec, err := findRecord(ctx, s, shipID, year)
		if err != nil {
			return err
		}

		banked, err := s.SumByKind(ctx, shipID, year, core.KindBank)
		if err != nil {
			return fmt.Errorf("failed to sum bank entries: %w", err)
		}

		if err := CheckBank(*rec, banked, amount); err != nil {
			return err
		}

		created, err = s.CreateBankEntry(ctx, l.entry(shipID, year, amount, core.KindBank))
		if err != nil {
			return fmt.Errorf("failed to create bank entry: %w", err)
		}
		return nil
	})
	return created, err
}

// ApplyBanked uses amount of previously banked surplus. It is allowed even
// when the current CB is already positive.
func (l *Ledger) ApplyBanked(ctx context.Context, shipID core.ShipID, year int, amount decimal.Decimal) (ApplyResult, error) {
	if err := CheckAmount(core.KindApply, amount); err != nil {
		return ApplyResult{}, err
	}

	var result ApplyResult
	err := l.Store.WithTx(ctx, func(s core.Store) error {
		rec, err := findRecord(ctx, s, shipID, year)
		if err != nil {
			return err
		}

		t, err := totals(ctx, s, shipID, year)
		if err != nil {
			return err
		}

		if err := CheckApply(shipID, year, t.Available(), amount); err != nil {
			return err
		}

		entry, err := s.CreateBankEntry(ctx, l.entry(shipID, year, amount, core.KindApply))
		if err != nil {
			return fmt.Errorf("failed to create apply entry: %w", err)
		}

		result = ApplyResult{
			Entry:    entry,
			CBBefore: rec.CB,
			Applied:  amount,
			CBAfter:  rec.CB.Add(amount),
		}
		return nil
	})
	return result, err
}

func (l *Ledger) entry(shipID core.ShipID, year int, amount decimal.Decimal, kind core.EntryKind) core.BankEntry {
	return core.BankEntry{
		ID:        l.newID(),
		ShipID:    shipID,
		Year:      year,
		Amount:    amount,
		Kind:      kind,
		CreatedAt: l.now(),
	}
}

func findRecord(ctx context.Context, s core.ComplianceStore, shipID core.ShipID, year int) (*core.ComplianceRecord, error) {
	rec, err := s.FindCompliance(ctx, shipID, year)
	if err != nil {
		return nil, fmt.Errorf("failed to load compliance record: %w", err)
	}
	if rec == nil {
		return nil, core.RecordNotFound(shipID, year)
	}
	return rec, nil
}

func totals(ctx context.Context, s core.BankingStore, shipID core.ShipID, year int) (Totals, error) {
	banked, err := s.SumByKind(ctx, shipID, year, core.KindBank)
	if err != nil {
		return Totals{}, fmt.Errorf("failed to sum bank entries: %w", err)
	}
	applied, err := s.SumByKind(ctx, shipID, year, core.KindApply)
	if err != nil {
		return Totals{}, fmt.Errorf("failed to sum apply entries: %w", err)
	}
	return Totals{Banked: banked, Applied: applied}, nil
}
