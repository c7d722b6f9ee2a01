// Package settle pushes owed portions to the external shared-expense
// ledger.
package settle

import (
	"context"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/movi-dev/movi/internal/model"
)

// Settlement describes one owed portion to record externally:
// the full expense total plus how much of it was personal.
type Settlement struct {
	TotalAmount    decimal.Decimal
	PersonalAmount decimal.Decimal
	Currency       model.Currency
	Description    string
	Date           time.Time
}

// OwedAmount is the part others owe.
func (s Settlement) OwedAmount() decimal.Decimal {
	return s.TotalAmount.Sub(s.PersonalAmount)
}

// Pusher is the settlement push capability. On success it returns the
// external ledger's id for the created record.
type Pusher interface {
	CreateSettlement(ctx context.Context, s Settlement) (externalID string, err error)
}

// FormatAmount renders an amount for humans in the external ledger,
// e.g. "£12.34" or "CLP23,320". go-money knows each currency's minor
// unit, so CLP gets no decimals and GBP two.
func FormatAmount(amount decimal.Decimal, currency model.Currency) string {
	cur := money.GetCurrency(string(currency))
	if cur == nil {
		return amount.StringFixed(2) + " " + string(currency)
	}
	minor := amount.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, string(currency)).Display()
}
