package pooling_test

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/compliance-engine/core"
	"github.com/warp/compliance-engine/pooling"
)

func member(id string, cb int64) pooling.Member {
	return pooling.Member{ShipID: core.ShipID(id), CBBefore: decimal.NewFromInt(cb)}
}

func after(t *testing.T, result []core.PoolMember, id string) decimal.Decimal {
	t.Helper()
	for _, m := range result {
		if m.ShipID == core.ShipID(id) {
			return m.CBAfter
		}
	}
	t.Fatalf("member %s not in result", id)
	return decimal.Zero
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestValidate_PositiveTotal(t *testing.T) {
	v := pooling.Validate([]pooling.Member{member("SHIP1", 1000), member("SHIP2", -500)})

	assert.True(t, v.Valid)
	assert.Empty(t, v.Errors)
	assert.True(t, v.TotalCB.Equal(decimal.NewFromInt(500)))
	assert.NoError(t, v.Err())
}

func TestValidate_NegativeTotalRejected(t *testing.T) {
	v := pooling.Validate([]pooling.Member{member("SHIP1", 100), member("SHIP2", -500)})

	assert.False(t, v.Valid)
	assert.True(t, v.TotalCB.Equal(decimal.NewFromInt(-400)))
	require.Len(t, v.Errors, 1)
	assert.Contains(t, v.Errors[0], "-400.00")

	var poolErr *core.PoolValidationError
	require.ErrorAs(t, v.Err(), &poolErr)
	assert.ErrorIs(t, v.Err(), core.ErrPoolValidationFailed)
	assert.True(t, poolErr.TotalCB.Equal(decimal.NewFromInt(-400)))
}

func TestValidate_ExactZeroAccepted(t *testing.T) {
	v := pooling.Validate([]pooling.Member{member("SHIP1", 500), member("SHIP2", -500)})

	assert.True(t, v.Valid)
	assert.True(t, v.TotalCB.IsZero())
}

func TestValidate_EmptyRejected(t *testing.T) {
	v := pooling.Validate(nil)

	assert.False(t, v.Valid)
	assert.Equal(t, []string{"pool must have at least one member"}, v.Errors)
}

func TestValidate_SingleMemberAccepted(t *testing.T) {
	// Minimum pool size is an orchestration policy, not a validation rule
	v := pooling.Validate([]pooling.Member{member("SOLO", 0)})
	assert.True(t, v.Valid)
}

// =============================================================================
// ALLOCATION
// =============================================================================

func TestAllocate_Empty(t *testing.T) {
	assert.Empty(t, pooling.Allocate(nil))
}

func TestAllocate_SurplusCoversDeficit(t *testing.T) {
	result := pooling.Allocate([]pooling.Member{member("SURPLUS", 1000), member("DEFICIT", -500)})

	assert.True(t, after(t, result, "SURPLUS").Equal(decimal.NewFromInt(500)))
	assert.True(t, after(t, result, "DEFICIT").IsZero())
}

func TestAllocate_InsufficientSurplus(t *testing.T) {
	// GIVEN: Surplus smaller than the deficit
	// WHEN: Allocating
	// THEN: Surplus drains to exactly zero, deficit improves by that much
	result := pooling.Allocate([]pooling.Member{member("SURPLUS", 300), member("DEFICIT", -500)})

	assert.True(t, after(t, result, "SURPLUS").IsZero())
	assert.True(t, after(t, result, "DEFICIT").Equal(decimal.NewFromInt(-200)))
}

func TestAllocate_PreservesInputOrderAndCBBefore(t *testing.T) {
	input := []pooling.Member{member("D1", -300), member("S1", 1000), member("D2", -200), member("S2", 500)}
	result := pooling.Allocate(input)

	require.Len(t, result, len(input))
	for i, m := range input {
		assert.Equal(t, m.ShipID, result[i].ShipID)
		assert.True(t, m.CBBefore.Equal(result[i].CBBefore))
	}
}

func TestAllocate_LargestSurplusDrawnFirst(t *testing.T) {
	result := pooling.Allocate([]pooling.Member{
		member("SMALL", 500),
		member("BIG", 1000),
		member("D1", -300),
		member("D2", -200),
	})

	// Both deficits are covered entirely from BIG
	assert.True(t, after(t, result, "BIG").Equal(decimal.NewFromInt(500)))
	assert.True(t, after(t, result, "SMALL").Equal(decimal.NewFromInt(500)))
	assert.True(t, after(t, result, "D1").IsZero())
	assert.True(t, after(t, result, "D2").IsZero())
}

func TestAllocate_SmallestDeficitServedFirst(t *testing.T) {
	// GIVEN: 300 of surplus against deficits of 100 and 400
	// WHEN: Allocating (the allocator alone, no validation)
	// THEN: The -100 deficit sorts first and is fully covered
	result := pooling.Allocate([]pooling.Member{
		member("BIG-DEFICIT", -400),
		member("SURPLUS", 300),
		member("SMALL-DEFICIT", -100),
	})

	assert.True(t, after(t, result, "SMALL-DEFICIT").IsZero())
	assert.True(t, after(t, result, "BIG-DEFICIT").Equal(decimal.NewFromInt(-200)))
	assert.True(t, after(t, result, "SURPLUS").IsZero())
}

func TestAllocate_TiesBrokenByInputOrder(t *testing.T) {
	result := pooling.Allocate([]pooling.Member{
		member("FIRST", 500),
		member("SECOND", 500),
		member("DEFICIT", -300),
	})

	assert.True(t, after(t, result, "FIRST").Equal(decimal.NewFromInt(200)))
	assert.True(t, after(t, result, "SECOND").Equal(decimal.NewFromInt(500)))
}

func TestAllocate_ZeroMembersUntouched(t *testing.T) {
	result := pooling.Allocate([]pooling.Member{member("ZERO", 0), member("S", 100), member("D", -50)})

	assert.True(t, after(t, result, "ZERO").IsZero())
	assert.True(t, after(t, result, "S").Equal(decimal.NewFromInt(50)))
}

func TestAllocate_FractionalAmountsConserveExactly(t *testing.T) {
	input := []pooling.Member{
		{ShipID: "A", CBBefore: decimal.RequireFromString("263082240.1")},
		{ShipID: "B", CBBefore: decimal.RequireFromString("-0.3")},
		{ShipID: "C", CBBefore: decimal.RequireFromString("-0.2")},
	}
	result := pooling.Allocate(input)

	assert.NoError(t, pooling.CheckConservation(result))
	assert.True(t, after(t, result, "A").Equal(decimal.RequireFromString("263082239.6")))
}

// =============================================================================
// PROPERTIES
// =============================================================================

func randomPool(r *rand.Rand) []pooling.Member {
	n := 1 + r.Intn(8)
	members := make([]pooling.Member, n)
	for i := range members {
		cb := decimal.New(r.Int63n(2_000_000)-1_000_000, -int32(r.Intn(3)))
		members[i] = pooling.Member{ShipID: core.ShipID(fmt.Sprintf("SHIP-%d", i)), CBBefore: cb}
	}
	return members
}

func TestAllocate_Properties(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	for iter := 0; iter < 500; iter++ {
		members := randomPool(r)
		result := pooling.Allocate(members)
		require.Len(t, result, len(members))

		for i, m := range members {
			if m.CBBefore.IsPositive() {
				assert.False(t, result[i].CBAfter.IsNegative(), "surplus member went negative")
			}
			if m.CBBefore.IsNegative() {
				assert.True(t, result[i].CBAfter.GreaterThanOrEqual(m.CBBefore), "deficit member ended worse off")
			}
		}

		if !pooling.TotalCB(members).IsNegative() {
			assert.NoError(t, pooling.CheckConservation(result), "pool total not conserved")
			for i, m := range members {
				if m.CBBefore.IsNegative() {
					assert.True(t, result[i].CBAfter.IsZero(), "deficit not covered by a non-negative pool")
				}
			}
		}
	}
}

func TestCheckConservation_DetectsDrift(t *testing.T) {
	err := pooling.CheckConservation([]core.PoolMember{
		{ShipID: "A", CBBefore: decimal.NewFromInt(100), CBAfter: decimal.NewFromInt(90)},
	})

	assert.ErrorIs(t, err, core.ErrAllocationInvariant)
}
