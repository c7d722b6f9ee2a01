package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movi-dev/movi/internal/model"
)

func TestValidateMovements_Clean(t *testing.T) {
	m := sampleMovement()
	assert.Empty(t, ValidateMovements([]model.Movement{m}))
}

func TestValidateMovements_DuplicateID(t *testing.T) {
	a := sampleMovement()
	b := sampleMovement()
	b.SourceEventID = "m2"

	errs := ValidateMovements([]model.Movement{a, b})
	require.Len(t, errs, 1)
	assert.Equal(t, 1, errs[0].Invariant)
}

func TestValidateMovements_BothRefs(t *testing.T) {
	m := sampleMovement()
	m.AccountingSystemID = "sw-1"

	errs := ValidateMovements([]model.Movement{m})
	require.Len(t, errs, 1)
	assert.Equal(t, 2, errs[0].Invariant)

	// Once pushed, the extra accounting ref is legitimate.
	m.Status = model.StatusInSettlementSystem
	assert.Empty(t, ValidateMovements([]model.Movement{m}))
}

func TestValidateMovements_DanglingSettledRef(t *testing.T) {
	m := sampleMovement()
	m.SettledMovementID = 42

	errs := ValidateMovements([]model.Movement{m})
	require.Len(t, errs, 1)
	assert.Equal(t, 3, errs[0].Invariant)
}

func TestValidateMovements_SnapshotPrecision(t *testing.T) {
	m := sampleMovement()
	m.USDValue = ndec("24.555")

	errs := ValidateMovements([]model.Movement{m})
	require.Len(t, errs, 1)
	assert.Equal(t, 4, errs[0].Invariant)
}

func TestValidateMovements_NegativeAmount(t *testing.T) {
	m := sampleMovement()
	m.Amount = dec("-5")

	errs := ValidateMovements([]model.Movement{m})
	require.Len(t, errs, 1)
	assert.Equal(t, 5, errs[0].Invariant)
}

func TestValidateMovements_UnknownStatus(t *testing.T) {
	m := sampleMovement()
	m.Status = model.Status("paid-ish")

	errs := ValidateMovements([]model.Movement{m})
	require.Len(t, errs, 1)
	assert.Equal(t, 6, errs[0].Invariant)
}
