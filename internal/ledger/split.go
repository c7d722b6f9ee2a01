package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/movi-dev/movi/internal/model"
)

// Split divides a movement into a personal portion and a shared/owed
// portion. The original row is mutated in place and becomes the
// personal portion; one new row is created for the shared portion.
// Total amount is conserved by construction:
// splitAmount + (original - splitAmount) == original.
func (s *Service) Split(originalID int, splitAmount decimal.Decimal, splitCategory string) (int, error) {
	if !s.categories.Valid(splitCategory) {
		return 0, fmt.Errorf("split #%d: unknown category %q", originalID, splitCategory)
	}

	original, err := s.Get(originalID)
	if err != nil {
		return 0, err
	}

	if splitAmount.LessThanOrEqual(decimal.Zero) {
		return 0, fmt.Errorf("split #%d: amount %s must be positive", originalID, splitAmount)
	}
	if splitAmount.GreaterThan(original.Amount) {
		return 0, fmt.Errorf("split #%d: amount %s exceeds movement amount %s", originalID, splitAmount, original.Amount)
	}

	remaining := original.Amount.Sub(splitAmount)
	ratio := splitAmount.Div(original.Amount)

	// Currency snapshots are scaled by the split ratio rather than
	// re-converted, so no fresh rate fetch is needed and the two
	// portions sum to the original modulo rounding.
	movements, err := s.store.All()
	if err != nil {
		return 0, err
	}
	newID := nextID(movements)

	shared := model.Movement{
		ID:                newID,
		Timestamp:         original.Timestamp,
		Amount:            remaining,
		Currency:          original.Currency,
		SourceDescription: original.SourceDescription,
		UserDescription:   original.UserDescription,
		Category:          original.Category,
		Direction:         model.Neutral,
		Type:              model.TypeDebit,
		Status:            model.StatusPendingDirect,
		Comment:           fmt.Sprintf("Split from #%d", originalID),
		CLPValue:          scaleSnapshot(original.CLPValue, decimal.NewFromInt(1).Sub(ratio)),
		USDValue:          scaleSnapshot(original.USDValue, decimal.NewFromInt(1).Sub(ratio)),
		GBPValue:          scaleSnapshot(original.GBPValue, decimal.NewFromInt(1).Sub(ratio)),
		Source:            original.Source,
	}

	original.Amount = splitAmount
	original.Category = splitCategory
	original.Comment = ""
	original.CLPValue = scaleSnapshot(original.CLPValue, ratio)
	original.USDValue = scaleSnapshot(original.USDValue, ratio)
	original.GBPValue = scaleSnapshot(original.GBPValue, ratio)

	if err := s.store.Update(original); err != nil {
		return 0, fmt.Errorf("split #%d: updating personal portion: %w", originalID, err)
	}
	if err := s.store.Append([]model.Movement{shared}); err != nil {
		return 0, fmt.Errorf("split #%d: appending shared portion: %w", originalID, err)
	}
	return newID, nil
}

func scaleSnapshot(v decimal.NullDecimal, ratio decimal.Decimal) decimal.NullDecimal {
	if !v.Valid {
		return v
	}
	return decimal.NewNullDecimal(v.Decimal.Mul(ratio).Round(2))
}
