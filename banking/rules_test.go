package banking_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/warp/compliance-engine/banking"
	"github.com/warp/compliance-engine/core"
)

func TestCheckBank(t *testing.T) {
	rec := core.ComplianceRecord{ShipID: "R002", Year: 2024, CB: dec(1000)}

	tests := []struct {
		name   string
		rec    core.ComplianceRecord
		banked int64
		amount int64
		want   error
	}{
		{"within surplus", rec, 0, 1000, nil},
		{"partial remaining", rec, 400, 600, nil},
		{"over remaining", rec, 400, 601, core.ErrExceedsAvailable},
		{"zero amount", rec, 0, 0, core.ErrInvalidAmount},
		{"negative amount", rec, 0, -1, core.ErrInvalidAmount},
		{"zero cb", core.ComplianceRecord{ShipID: "R001", Year: 2024}, 0, 1, core.ErrNoSurplus},
		{"deficit cb", core.ComplianceRecord{ShipID: "R003", Year: 2024, CB: dec(-5)}, 0, 1, core.ErrNoSurplus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := banking.CheckBank(tt.rec, dec(tt.banked), dec(tt.amount))
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCheckApply(t *testing.T) {
	assert.NoError(t, banking.CheckApply("R002", 2024, dec(100), dec(100)))
	assert.ErrorIs(t, banking.CheckApply("R002", 2024, dec(100), dec(101)), core.ErrExceedsAvailable)
	assert.ErrorIs(t, banking.CheckApply("R002", 2024, dec(100), dec(0)), core.ErrInvalidAmount)
}
