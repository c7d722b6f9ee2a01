package ledger

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movi-dev/movi/internal/model"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func ndec(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(dec(s))
}

func ts(hour int) time.Time {
	return time.Date(2025, 6, 1, hour, 0, 0, 0, time.UTC)
}

func sampleMovement() model.Movement {
	return model.Movement{
		ID:                10,
		SourceEventID:     "m1",
		Timestamp:         ts(14),
		Amount:            dec("23320"),
		Currency:          model.CLP,
		SourceDescription: "LAS LOMAS",
		UserDescription:   "lunch with flatmates",
		Category:          "food",
		Direction:         model.Outflow,
		Type:              model.TypeExpense,
		Comment:           "",
		CLPValue:          ndec("23320.00"),
		USDValue:          ndec("24.55"),
		GBPValue:          ndec("19.64"),
		Source:            model.SourceMail,
	}
}

func TestMarshalUnmarshalMovement(t *testing.T) {
	m := sampleMovement()

	row := MarshalMovement(m)
	require.Len(t, row, numFields)

	got, err := UnmarshalMovement(row)
	require.NoError(t, err)

	assert.Equal(t, m.ID, got.ID)
	assert.Equal(t, m.SourceEventID, got.SourceEventID)
	assert.True(t, got.Timestamp.Equal(m.Timestamp))
	assert.True(t, got.Amount.Equal(m.Amount))
	assert.Equal(t, m.Currency, got.Currency)
	assert.Equal(t, m.Direction, got.Direction)
	assert.Equal(t, m.Type, got.Type)
	assert.True(t, got.USDValue.Valid)
	assert.True(t, got.USDValue.Decimal.Equal(dec("24.55")))
}

func TestMarshalMovement_NullFields(t *testing.T) {
	m := sampleMovement()
	m.CLPValue = decimal.NullDecimal{}
	m.USDValue = decimal.NullDecimal{}
	m.GBPValue = decimal.NullDecimal{}
	m.SettledMovementID = 0

	row := MarshalMovement(m)
	assert.Empty(t, row[colCLP])
	assert.Empty(t, row[colSettledID])

	got, err := UnmarshalMovement(row)
	require.NoError(t, err)
	assert.False(t, got.CLPValue.Valid)
	assert.Equal(t, 0, got.SettledMovementID)
	assert.True(t, got.NeedsSnapshotRepair())
}

func TestReadWriteMovements(t *testing.T) {
	var buf bytes.Buffer
	movements := []model.Movement{sampleMovement()}

	require.NoError(t, WriteMovements(&buf, movements))
	assert.True(t, strings.HasPrefix(buf.String(), Header))

	got, err := ReadMovements(&buf)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 10, got[0].ID)
}

func TestReadMovements_BadRow(t *testing.T) {
	in := Header + "\n" + "not-an-id,,,,2025-06-01T14:00:00Z,10,CLP,x,,,outflow,expense,,,,,,,mail\n"
	_, err := ReadMovements(strings.NewReader(in))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2")
}
