package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Currency is one of the three ledger currencies. Other ISO codes may
// appear on ingested movements; converting those goes through the
// external price lookup.
type Currency string

const (
	CLP Currency = "CLP"
	USD Currency = "USD"
	GBP Currency = "GBP"
)

// Known reports whether the currency is one of the three with
// configured pairwise rates.
func (c Currency) Known() bool {
	return c == CLP || c == USD || c == GBP
}

// Direction is the flow of money relative to the ledger owner.
type Direction string

const (
	Outflow Direction = "outflow"
	Inflow  Direction = "inflow"
	// Neutral marks a movement that nets against another one,
	// e.g. the owed leg created by a split.
	Neutral Direction = "neutral"
)

// MovementType classifies what kind of financial event a movement is.
type MovementType string

const (
	TypeExpense MovementType = "expense"
	TypeCash    MovementType = "cash"
	// TypeDebit: the ledger owner paid for others who owe money back.
	TypeDebit MovementType = "debit"
	// TypeCredit: others paid on the ledger owner's behalf.
	TypeCredit          MovementType = "credit"
	TypeDebitRepayment  MovementType = "debit-repayment"
	TypeCreditRepayment MovementType = "credit-repayment"
)

// Status is the settlement state of a debit/credit movement. The zero
// value means the movement does not participate in settlement.
type Status string

const (
	StatusNone                Status = ""
	StatusUnsettled           Status = "unsettled"
	StatusPendingDirect       Status = "pending-direct-settlement"
	StatusPendingSplitwise    Status = "pending-splitwise-settlement"
	StatusInSettlementSystem  Status = "in-settlement-system"
	StatusSettled             Status = "settled"
)

// Terminal reports whether a status is absorbing: once reached it is
// never left.
func (s Status) Terminal() bool {
	return s == StatusSettled || s == StatusInSettlementSystem
}

// transitions is the settlement state machine. A status may only move
// forward along these edges; Terminal states have none.
var transitions = map[Status][]Status{
	StatusUnsettled:        {StatusPendingDirect, StatusPendingSplitwise},
	StatusPendingDirect:    {StatusSettled, StatusPendingSplitwise},
	StatusPendingSplitwise: {StatusInSettlementSystem},
}

// CanTransition reports whether from → to is a legal settlement
// transition. A no-op (from == to) is always legal.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Source tags where a movement was ingested from.
type Source string

const (
	SourceMail             Source = "mail"
	SourceBank             Source = "bank"
	SourceAccountingSystem Source = "accounting-system"
	SourceManual           Source = "manual"
)

// Movement is one ledger line.
type Movement struct {
	ID int // unique, monotonically assigned, never reused

	// Exactly one of SourceEventID / AccountingSystemID is set for
	// automatically ingested movements; manual entries carry neither.
	SourceEventID      string
	AccountingSystemID string
	AccountingSystem   string // which external ledger AccountingSystemID belongs to

	Timestamp         time.Time // when the transaction occurred, not ingestion time
	Amount            decimal.Decimal
	Currency          Currency
	SourceDescription string // original merchant text, immutable provenance
	UserDescription   string // human annotation; presence triggers classification
	Category          string
	Direction         Direction
	Type              MovementType
	Status            Status
	Comment           string
	SettledMovementID int // id of the movement that settles this one, 0 = none

	// Pre-computed currency snapshots of Amount, invalid when
	// conversion failed and a repair pass is needed.
	CLPValue decimal.NullDecimal
	USDValue decimal.NullDecimal
	GBPValue decimal.NullDecimal

	Source Source
}

// Snapshot returns the pre-computed value of the movement in the given
// currency.
func (m Movement) Snapshot(c Currency) decimal.NullDecimal {
	switch c {
	case CLP:
		return m.CLPValue
	case USD:
		return m.USDValue
	case GBP:
		return m.GBPValue
	}
	return decimal.NullDecimal{}
}

// NeedsSnapshotRepair reports whether any currency snapshot is missing.
func (m Movement) NeedsSnapshotRepair() bool {
	return !m.CLPValue.Valid || !m.USDValue.Valid || !m.GBPValue.Valid
}

// NeedsClassification reports whether the movement has a user note but
// no category yet.
func (m Movement) NeedsClassification() bool {
	return m.UserDescription != "" && m.Category == ""
}
