package ledger

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movi-dev/movi/internal/fx"
	"github.com/movi-dev/movi/internal/model"
)

type fakeCategories map[string]bool

func (f fakeCategories) Valid(key string) bool { return f[key] }

func newTestService(t *testing.T) *Service {
	t.Helper()
	store, err := NewCSVStore(t.TempDir())
	require.NoError(t, err)
	return NewService(store, fakeCategories{"food": true, "transport": true})
}

func identitySnapshots(_ context.Context, amount decimal.Decimal, _ model.Currency) fx.Snapshots {
	v := decimal.NewNullDecimal(amount.Round(2))
	return fx.Snapshots{CLP: v, USD: v, GBP: v}
}

func mailCandidate(eventID, merchant, amount string, hour int) model.Candidate {
	return model.Candidate{
		SourceEventID:     eventID,
		Timestamp:         ts(hour),
		Amount:            dec(amount),
		Currency:          model.CLP,
		SourceDescription: merchant,
		Direction:         model.Outflow,
		Type:              model.TypeExpense,
		Source:            model.SourceMail,
	}
}

func TestIngestBatch_InsertsAndAssignsIDs(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.IngestBatch(context.Background(), []model.Candidate{
		mailCandidate("m1", "LAS LOMAS", "23320", 14),
	}, identitySnapshots)
	require.NoError(t, err)
	require.Len(t, res.Inserted, 1)

	m := res.Inserted[0]
	assert.Equal(t, 1, m.ID)
	assert.Equal(t, model.TypeExpense, m.Type)
	assert.Equal(t, model.Outflow, m.Direction)
	assert.Equal(t, model.StatusNone, m.Status)
	assert.True(t, m.CLPValue.Valid)
}

func TestIngestBatch_Idempotent(t *testing.T) {
	svc := newTestService(t)
	batch := []model.Candidate{mailCandidate("m1", "LAS LOMAS", "23320", 14)}

	_, err := svc.IngestBatch(context.Background(), batch, nil)
	require.NoError(t, err)

	res, err := svc.IngestBatch(context.Background(), batch, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Inserted)
	assert.Equal(t, 1, res.Skipped)

	movements, err := svc.All()
	require.NoError(t, err)
	count := 0
	for _, m := range movements {
		if m.SourceEventID == "m1" {
			count++
		}
	}
	assert.Equal(t, 1, count, "exactly one row per external event")
}

func TestIngestBatch_SortsByBusinessTimestamp(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.IngestBatch(context.Background(), []model.Candidate{
		mailCandidate("late", "B", "200", 18),
		mailCandidate("early", "A", "100", 9),
	}, nil)
	require.NoError(t, err)
	require.Len(t, res.Inserted, 2)
	assert.Equal(t, "early", res.Inserted[0].SourceEventID)
	assert.Equal(t, 1, res.Inserted[0].ID)
	assert.Equal(t, "late", res.Inserted[1].SourceEventID)
	assert.Equal(t, 2, res.Inserted[1].ID)
}

func TestIngestBatch_RejectsKeylessCandidate(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.IngestBatch(context.Background(), []model.Candidate{
		{SourceDescription: "no keys", Amount: dec("10"), Currency: model.CLP, Timestamp: ts(10)},
		mailCandidate("m1", "OK", "100", 11),
	}, nil)
	require.NoError(t, err)
	assert.Len(t, res.Rejected, 1, "keyless candidate rejected, batch continues")
	assert.Len(t, res.Inserted, 1)
}

func TestSplit_Conservation(t *testing.T) {
	svc := newTestService(t)
	seedDebitCandidate(t, svc, "m10", "10000", 12)

	newID, err := svc.Split(1, dec("4000"), "food")
	require.NoError(t, err)
	assert.Equal(t, 2, newID)

	personal, err := svc.Get(1)
	require.NoError(t, err)
	assert.True(t, personal.Amount.Equal(dec("4000")))
	assert.Equal(t, "food", personal.Category)
	assert.Empty(t, personal.Comment)

	shared, err := svc.Get(2)
	require.NoError(t, err)
	assert.True(t, shared.Amount.Equal(dec("6000")))
	assert.Equal(t, model.Neutral, shared.Direction)
	assert.Equal(t, model.TypeDebit, shared.Type)
	assert.Equal(t, model.StatusPendingDirect, shared.Status)
	assert.Equal(t, "Split from #1", shared.Comment)

	assert.True(t, personal.Amount.Add(shared.Amount).Equal(dec("10000")), "conservation of money")
}

func TestSplit_SnapshotProportionality(t *testing.T) {
	svc := newTestService(t)
	seedDebitCandidate(t, svc, "m10", "10000", 12)

	_, err := svc.Split(1, dec("3333"), "food")
	require.NoError(t, err)

	personal, err := svc.Get(1)
	require.NoError(t, err)
	shared, err := svc.Get(2)
	require.NoError(t, err)

	tolerance := dec("0.01")
	for _, c := range []model.Currency{model.CLP, model.USD, model.GBP} {
		p := personal.Snapshot(c)
		s := shared.Snapshot(c)
		require.True(t, p.Valid, "%s personal snapshot", c)
		require.True(t, s.Valid, "%s shared snapshot", c)
		diff := p.Decimal.Add(s.Decimal).Sub(dec("10000")).Abs()
		assert.True(t, diff.LessThanOrEqual(tolerance), "%s: portions sum within rounding, diff %s", c, diff)
	}
}

func TestSplit_RejectsBadAmounts(t *testing.T) {
	svc := newTestService(t)
	seedDebitCandidate(t, svc, "m10", "10000", 12)

	_, err := svc.Split(1, dec("0"), "food")
	assert.Error(t, err)

	_, err = svc.Split(1, dec("-5"), "food")
	assert.Error(t, err)

	_, err = svc.Split(1, dec("10001"), "food")
	assert.Error(t, err)
}

func TestSplit_RejectsUnknownCategory(t *testing.T) {
	svc := newTestService(t)
	seedDebitCandidate(t, svc, "m10", "10000", 12)

	_, err := svc.Split(1, dec("4000"), "casino")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown category")

	// No mutation happened.
	m, err := svc.Get(1)
	require.NoError(t, err)
	assert.True(t, m.Amount.Equal(dec("10000")))
}

func TestTransition_Monotonic(t *testing.T) {
	svc := newTestService(t)
	seedStatusCandidate(t, svc, model.StatusUnsettled)

	_, err := svc.Transition(1, model.StatusPendingSplitwise)
	require.NoError(t, err)

	_, err = svc.Transition(1, model.StatusInSettlementSystem)
	require.NoError(t, err)

	// Absorbing: no way back.
	_, err = svc.Transition(1, model.StatusUnsettled)
	assert.Error(t, err)
	_, err = svc.Transition(1, model.StatusPendingSplitwise)
	assert.Error(t, err)

	m, err := svc.Get(1)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInSettlementSystem, m.Status)
}

func TestMarkSettled_RecordsBackReference(t *testing.T) {
	svc := newTestService(t)
	seedStatusCandidate(t, svc, model.StatusUnsettled)

	_, err := svc.IngestBatch(context.Background(), []model.Candidate{{
		AccountingSystemID: "sw-repay-1",
		AccountingSystem:   "splitwise",
		Timestamp:          ts(16),
		Amount:             dec("6000"),
		Currency:           model.CLP,
		SourceDescription:  "Repayment",
		Direction:          model.Inflow,
		Type:               model.TypeDebitRepayment,
		Status:             model.StatusSettled,
		Source:             model.SourceAccountingSystem,
	}}, nil)
	require.NoError(t, err)

	_, err = svc.Transition(1, model.StatusPendingDirect)
	require.NoError(t, err)

	m, err := svc.MarkSettled(1, 2)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSettled, m.Status)
	assert.Equal(t, 2, m.SettledMovementID)

	// Settling against a missing movement fails.
	seedStatusCandidate(t, svc, model.StatusPendingDirect)
	_, err = svc.MarkSettled(3, 99)
	assert.Error(t, err)
}

func TestApplyClassification(t *testing.T) {
	svc := newTestService(t)
	seedDebitCandidate(t, svc, "m10", "10000", 12)

	_, err := svc.ApplyClassification(1, "casino", "", "")
	require.Error(t, err, "unknown category is a hard failure, no mutation")

	m, err := svc.ApplyClassification(1, "transport", "uber home", "late night")
	require.NoError(t, err)
	assert.Equal(t, "transport", m.Category)
	assert.Equal(t, "uber home", m.UserDescription)
	assert.Equal(t, "late night", m.Comment)
}

func TestRepairSnapshots(t *testing.T) {
	svc := newTestService(t)
	// Ingest without snapshots: all three null.
	_, err := svc.IngestBatch(context.Background(), []model.Candidate{
		mailCandidate("m1", "LAS LOMAS", "23320", 14),
	}, nil)
	require.NoError(t, err)

	m, err := svc.Get(1)
	require.NoError(t, err)
	require.True(t, m.NeedsSnapshotRepair())

	repaired, err := svc.RepairSnapshots(context.Background(), identitySnapshots)
	require.NoError(t, err)
	assert.Equal(t, 1, repaired)

	m, err = svc.Get(1)
	require.NoError(t, err)
	assert.False(t, m.NeedsSnapshotRepair())

	// A second pass finds nothing to do.
	repaired, err = svc.RepairSnapshots(context.Background(), identitySnapshots)
	require.NoError(t, err)
	assert.Zero(t, repaired)
}

func TestFindPersonalPortion(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.IngestBatch(context.Background(), []model.Candidate{
		mailCandidate("m1", "LAS LOMAS", "10000", 12),
	}, nil)
	require.NoError(t, err)
	_, err = svc.ApplyClassification(1, "food", "groceries run", "")
	require.NoError(t, err)

	newID, err := svc.Split(1, dec("4000"), "food")
	require.NoError(t, err)

	shared, err := svc.Get(newID)
	require.NoError(t, err)

	sibling, found, err := svc.FindPersonalPortion(shared)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 1, sibling.ID)
	assert.True(t, sibling.Amount.Equal(dec("4000")))

	// No sibling: fallback, not an error.
	seedStatusCandidate(t, svc, model.StatusUnsettled)
	lone, err := svc.Get(3)
	require.NoError(t, err)
	_, found, err = svc.FindPersonalPortion(lone)
	require.NoError(t, err)
	assert.False(t, found)
}

// seedDebitCandidate ingests one mail expense with snapshots so split
// tests have a movement to work on.
func seedDebitCandidate(t *testing.T, svc *Service, eventID, amount string, hour int) {
	t.Helper()
	res, err := svc.IngestBatch(context.Background(), []model.Candidate{
		mailCandidate(eventID, "LAS LOMAS", amount, hour),
	}, identitySnapshots)
	require.NoError(t, err)
	require.Len(t, res.Inserted, 1)
}

var seedSeq int

// seedStatusCandidate ingests one debit movement born with the given
// status.
func seedStatusCandidate(t *testing.T, svc *Service, status model.Status) {
	t.Helper()
	seedSeq++
	c := model.Candidate{
		SourceEventID:     fmt.Sprintf("seed-%d", seedSeq),
		Timestamp:         ts(10),
		Amount:            dec("5000"),
		Currency:          model.CLP,
		SourceDescription: "shared dinner",
		Direction:         model.Outflow,
		Type:              model.TypeDebit,
		Status:            status,
		Source:            model.SourceMail,
	}
	_, err := svc.IngestBatch(context.Background(), []model.Candidate{c}, nil)
	require.NoError(t, err)
}
