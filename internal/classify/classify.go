// Package classify maps a movement's free-text annotation to a
// configured category and decides whether the movement needs a
// personal/shared split. The model call is a capability; its result
// is validated before anything touches the ledger.
package classify

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/movi-dev/movi/internal/model"
)

// MovementContext is the ledger context handed to the classifier
// alongside the user's note.
type MovementContext struct {
	Amount            decimal.Decimal
	Currency          model.Currency
	SourceDescription string
	Type              model.MovementType
	Direction         model.Direction
}

// Result is a classification outcome. SplitAmount and SplitCategory
// are meaningful only when NeedsSplit is set.
type Result struct {
	Category          string
	NeedsSplit        bool
	SplitAmount       decimal.Decimal
	SplitCategory     string
	CleanDescription  string
	SplitInstructions string
}

// Classifier is the external classification capability.
type Classifier interface {
	Classify(ctx context.Context, text string, mctx MovementContext) (Result, error)
}

// CategorySet tests category keys against the configured vocabulary.
type CategorySet interface {
	Valid(key string) bool
}

// ValidateResult rejects classifier output that references unknown
// categories or carries an unusable split. An invalid result is a
// classification failure: the caller mutates nothing.
func ValidateResult(res Result, cats CategorySet, amount decimal.Decimal) error {
	if !cats.Valid(res.Category) {
		return fmt.Errorf("classifier returned unknown category %q", res.Category)
	}
	if !res.NeedsSplit {
		return nil
	}
	if !cats.Valid(res.SplitCategory) {
		return fmt.Errorf("classifier returned unknown split category %q", res.SplitCategory)
	}
	if res.SplitAmount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("classifier returned non-positive split amount %s", res.SplitAmount)
	}
	if res.SplitAmount.GreaterThan(amount) {
		return fmt.Errorf("classifier split amount %s exceeds movement amount %s", res.SplitAmount, amount)
	}
	return nil
}
