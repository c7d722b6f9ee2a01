package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/movi-dev/movi/internal/model"
)

// ValidationError describes a single invariant violation.
type ValidationError struct {
	Invariant   int
	MovementID  int
	Description string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invariant %d [#%d]: %s", e.Invariant, e.MovementID, e.Description)
}

var validStatuses = map[model.Status]bool{
	model.StatusNone:               true,
	model.StatusUnsettled:          true,
	model.StatusPendingDirect:      true,
	model.StatusPendingSplitwise:   true,
	model.StatusInSettlementSystem: true,
	model.StatusSettled:            true,
}

// ValidateMovements enforces 6 invariants on the whole ledger.
func ValidateMovements(movements []model.Movement) []ValidationError {
	var errs []ValidationError

	ids := make(map[int]bool, len(movements))
	for _, m := range movements {
		// Invariant 1: unique ids.
		if ids[m.ID] {
			errs = append(errs, ValidationError{
				Invariant:   1,
				MovementID:  m.ID,
				Description: "duplicate movement id",
			})
		}
		ids[m.ID] = true
	}

	for _, m := range movements {
		// Invariant 2: at most one idempotency key per ingested row.
		// A successful settlement push legitimately adds an
		// accounting ref on top of a mail ref, so pushed rows are
		// exempt.
		if m.SourceEventID != "" && m.AccountingSystemID != "" && m.Status != model.StatusInSettlementSystem {
			errs = append(errs, ValidationError{
				Invariant:   2,
				MovementID:  m.ID,
				Description: "carries both source_event_id and accounting_system_id",
			})
		}

		// Invariant 3: settled_movement_id references an existing id.
		if m.SettledMovementID != 0 && !ids[m.SettledMovementID] {
			errs = append(errs, ValidationError{
				Invariant:   3,
				MovementID:  m.ID,
				Description: fmt.Sprintf("settled_movement_id %d does not exist", m.SettledMovementID),
			})
		}

		// Invariant 4: currency snapshots rounded to 2 decimal places.
		for _, snap := range []struct {
			name  string
			value decimal.NullDecimal
		}{
			{"clp_value", m.CLPValue},
			{"usd_value", m.USDValue},
			{"gbp_value", m.GBPValue},
		} {
			if snap.value.Valid && !snap.value.Decimal.Equal(snap.value.Decimal.Round(2)) {
				errs = append(errs, ValidationError{
					Invariant:   4,
					MovementID:  m.ID,
					Description: fmt.Sprintf("%s %s has more than 2 decimal places", snap.name, snap.value.Decimal),
				})
			}
		}

		// Invariant 5: non-negative amount.
		if m.Amount.IsNegative() {
			errs = append(errs, ValidationError{
				Invariant:   5,
				MovementID:  m.ID,
				Description: fmt.Sprintf("negative amount %s", m.Amount),
			})
		}

		// Invariant 6: known settlement status.
		if !validStatuses[m.Status] {
			errs = append(errs, ValidationError{
				Invariant:   6,
				MovementID:  m.ID,
				Description: fmt.Sprintf("unknown status %q", m.Status),
			})
		}
	}

	return errs
}

// Validate runs ValidateMovements over the whole store.
func (s *Service) Validate() ([]ValidationError, error) {
	movements, err := s.store.All()
	if err != nil {
		return nil, err
	}
	return ValidateMovements(movements), nil
}
