package model

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// RefKind names which of the two idempotency keys a candidate carries.
type RefKind string

const (
	RefSourceEvent      RefKind = "source-event"
	RefAccountingSystem RefKind = "accounting-system"
)

// ErrNoRef is returned by Candidate.Ref when a candidate carries no
// idempotency key.
var ErrNoRef = errors.New("candidate has no idempotency key")

// ErrAmbiguousRef is returned when a candidate carries both keys,
// which ingestion forbids.
var ErrAmbiguousRef = errors.New("candidate carries both idempotency keys")

// Candidate is a normalized movement produced by an ingestion adapter,
// before an id has been assigned. Every automated candidate must carry
// exactly one idempotency key.
type Candidate struct {
	SourceEventID      string
	AccountingSystemID string
	AccountingSystem   string

	Timestamp         time.Time
	Amount            decimal.Decimal
	Currency          Currency
	SourceDescription string
	Direction         Direction
	Type              MovementType
	Status            Status
	Comment           string
	SettledMovementID int
	Source            Source
}

// Ref returns the candidate's idempotency key and its kind.
func (c Candidate) Ref() (RefKind, string, error) {
	switch {
	case c.SourceEventID != "" && c.AccountingSystemID != "":
		return "", "", ErrAmbiguousRef
	case c.SourceEventID != "":
		return RefSourceEvent, c.SourceEventID, nil
	case c.AccountingSystemID != "":
		return RefAccountingSystem, c.AccountingSystemID, nil
	}
	return "", "", ErrNoRef
}

// Movement converts the candidate into a ledger movement with the
// given id. Currency snapshots are left unset; the caller computes
// them before insertion.
func (c Candidate) Movement(id int) Movement {
	return Movement{
		ID:                 id,
		SourceEventID:      c.SourceEventID,
		AccountingSystemID: c.AccountingSystemID,
		AccountingSystem:   c.AccountingSystem,
		Timestamp:          c.Timestamp,
		Amount:             c.Amount,
		Currency:           c.Currency,
		SourceDescription:  c.SourceDescription,
		Direction:          c.Direction,
		Type:               c.Type,
		Status:             c.Status,
		Comment:            c.Comment,
		SettledMovementID:  c.SettledMovementID,
		Source:             c.Source,
	}
}
