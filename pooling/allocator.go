/*
Package pooling validates and allocates compliance pools.

PURPOSE:
  A pool lets surplus ships offset deficit ships for the same period. The
  pool is admissible when its aggregate CB is non-negative; the allocation
  then moves surplus to deficits with a deterministic greedy transfer.

ALLOCATION:
  1. Order members by CBBefore descending (stable on input order)
  2. Split into surplus (> 0) and deficit (< 0), keeping that order
  3. For each deficit, draw from surplus members largest first until the
     deficit is covered or no surplus remains
  4. Clamp: a deficit never ends worse than it started, a surplus never
     ends below zero

GUARANTEES:
  - Surplus members end >= 0
  - Deficit members end >= their CBBefore
  - When TotalCB >= 0 and no clamp fires, sum(CBAfter) == sum(CBBefore)
    exactly (decimal arithmetic)

  Output order matches input order. Both functions are pure; persistence
  and minimum pool size belong to the usecase package.

SEE ALSO:
  - usecase/service.go: CreatePool wires Validate, Allocate and
    CheckConservation together
*/
package pooling

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/warp/compliance-engine/core"
)

// Member is one ship entering a pool with its CB for the period.
type Member struct {
	ShipID   core.ShipID
	CBBefore decimal.Decimal
}

// Validation is the outcome of Validate. Errors is empty when Valid.
type Validation struct {
	Valid   bool
	Errors  []string
	TotalCB decimal.Decimal
}

// Err returns nil when valid, otherwise a *core.PoolValidationError.
func (v Validation) Err() error {
	if v.Valid {
		return nil
	}
	return &core.PoolValidationError{Errors: v.Errors, TotalCB: v.TotalCB}
}

// Validate checks that members can form a pool.
func Validate(members []Member) Validation {
	errs := []string{}
	total := TotalCB(members)

	if total.IsNegative() {
		errs = append(errs, fmt.Sprintf("total pool CB is negative (%s); pool sum must be >= 0", total.StringFixed(2)))
	}
	if len(members) == 0 {
		errs = append(errs, "pool must have at least one member")
	}

	return Validation{
		Valid:   len(errs) == 0,
		Errors:  errs,
		TotalCB: total,
	}
}

func TotalCB(members []Member) decimal.Decimal {
	total := decimal.Zero
	for _, m := range members {
		total = total.Add(m.CBBefore)
	}
	return total
}

// Allocate redistributes CB from surplus to deficit members.
func Allocate(members []Member) []core.PoolMember {
	result := make([]core.PoolMember, len(members))
	if len(members) == 0 {
		return result
	}

	for i, m := range members {
		result[i] = core.PoolMember{ShipID: m.ShipID, CBBefore: m.CBBefore, CBAfter: m.CBBefore}
	}

	order := make([]int, len(members))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return members[order[a]].CBBefore.GreaterThan(members[order[b]].CBBefore)
	})

	var surplus, deficit []int
	for _, i := range order {
		switch members[i].CBBefore.Sign() {
		case 1:
			surplus = append(surplus, i)
		case -1:
			deficit = append(deficit, i)
		}
	}

	for _, di := range deficit {
		remaining := members[di].CBBefore.Abs()

		for _, si := range surplus {
			if !remaining.IsPositive() {
				break
			}
			available := result[si].CBAfter
			if !available.IsPositive() {
				continue
			}

			transfer := decimal.Min(available, remaining)
			result[si].CBAfter = result[si].CBAfter.Sub(transfer)
			result[di].CBAfter = result[di].CBAfter.Add(transfer)
			remaining = remaining.Sub(transfer)
		}
	}

	for i, m := range members {
		if m.CBBefore.IsNegative() && result[i].CBAfter.LessThan(m.CBBefore) {
			result[i].CBAfter = m.CBBefore
		}
		if m.CBBefore.IsPositive() && result[i].CBAfter.IsNegative() {
			result[i].CBAfter = decimal.Zero
		}
	}

	return result
}

// CheckConservation returns a *core.AllocationInvariantError when the
// allocation changed the pool total.
func CheckConservation(allocated []core.PoolMember) error {
	before, after := decimal.Zero, decimal.Zero
	for _, m := range allocated {
		before = before.Add(m.CBBefore)
		after = after.Add(m.CBAfter)
	}
	if !before.Equal(after) {
		return &core.AllocationInvariantError{Before: before, After: after}
	}
	return nil
}
