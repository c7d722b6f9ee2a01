package reconcile

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movi-dev/movi/internal/classify"
	"github.com/movi-dev/movi/internal/fx"
	"github.com/movi-dev/movi/internal/ingest"
	"github.com/movi-dev/movi/internal/ledger"
	"github.com/movi-dev/movi/internal/logging"
	"github.com/movi-dev/movi/internal/model"
	"github.com/movi-dev/movi/internal/runlog"
	"github.com/movi-dev/movi/internal/settle"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type fakeCategories map[string]bool

func (f fakeCategories) Valid(key string) bool { return f[key] }

var testCategories = fakeCategories{"food": true, "transport": true, "shared": true}

type fakeSource struct {
	name       string
	candidates []model.Candidate
	err        error
}

func (f fakeSource) Name() string { return f.name }

func (f fakeSource) Fetch(context.Context) ([]model.Candidate, error) {
	return f.candidates, f.err
}

type fakeClassifier struct {
	results map[string]classify.Result
	err     error
}

func (f fakeClassifier) Classify(_ context.Context, text string, _ classify.MovementContext) (classify.Result, error) {
	if f.err != nil {
		return classify.Result{}, f.err
	}
	res, ok := f.results[text]
	if !ok {
		return classify.Result{}, errors.New("no canned result")
	}
	return res, nil
}

type fakePusher struct {
	externalID string
	err        error
	calls      []settle.Settlement
}

func (f *fakePusher) CreateSettlement(_ context.Context, s settle.Settlement) (string, error) {
	f.calls = append(f.calls, s)
	if f.err != nil {
		return "", f.err
	}
	return f.externalID, nil
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *ledger.Service, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := ledger.NewCSVStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	svc := ledger.NewService(store, testCategories)
	o := &Orchestrator{
		Ledger:     svc,
		Categories: testCategories,
		PushSystem: "splitwise",
		DataDir:    dir,
		Logger:     logging.NewWithWriter(io.Discard),
	}
	return o, svc, dir
}

func mailCandidate(eventID, merchant, amount string, hour int) model.Candidate {
	return model.Candidate{
		SourceEventID:     eventID,
		Timestamp:         time.Date(2025, 6, 1, hour, 0, 0, 0, time.UTC),
		Amount:            dec(amount),
		Currency:          model.CLP,
		SourceDescription: merchant,
		Direction:         model.Outflow,
		Type:              model.TypeExpense,
		Status:            model.StatusUnsettled,
		Source:            model.SourceMail,
	}
}

func TestRun_IngestsAndWritesRunLog(t *testing.T) {
	o, svc, dir := newTestOrchestrator(t)
	o.Sources = []ingest.Source{fakeSource{
		name: "mail",
		candidates: []model.Candidate{
			mailCandidate("m1", "LAS LOMAS", "23320", 14),
			mailCandidate("m2", "UBER", "4500", 9),
		},
	}}

	sum, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Ingested)
	assert.Equal(t, 0, sum.Errors)
	assert.NotEmpty(t, sum.RunID)

	movements, err := svc.All()
	require.NoError(t, err)
	require.Len(t, movements, 2)

	entries, err := runlog.Read(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, sum.RunID, entries[0].RunID)
	assert.Equal(t, 2, entries[0].Ingested)
	assert.Equal(t, "ok", entries[0].Note)
}

func TestRun_SecondRunSkipsDuplicates(t *testing.T) {
	o, _, dir := newTestOrchestrator(t)
	o.Sources = []ingest.Source{fakeSource{
		name:       "mail",
		candidates: []model.Candidate{mailCandidate("m1", "LAS LOMAS", "23320", 14)},
	}}

	_, err := o.Run(context.Background())
	require.NoError(t, err)
	sum, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Ingested)
	assert.Equal(t, 1, sum.Skipped)

	entries, err := runlog.Read(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestIngest_FailedSourceDoesNotBlockOthers(t *testing.T) {
	o, svc, _ := newTestOrchestrator(t)
	o.Sources = []ingest.Source{
		fakeSource{name: "bank", err: errors.New("401 unauthorized")},
		fakeSource{name: "mail", candidates: []model.Candidate{mailCandidate("m1", "LAS LOMAS", "23320", 14)}},
	}

	sum, err := o.Ingest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Ingested)
	assert.Equal(t, 1, sum.Errors)

	movements, err := svc.All()
	require.NoError(t, err)
	assert.Len(t, movements, 1)
}

// seedAnnotated inserts an expense and sets its user note the way a
// hand edit of the ledger would.
func seedAnnotated(t *testing.T, o *Orchestrator, svc *ledger.Service, eventID, note, amount string) model.Movement {
	t.Helper()
	res, err := svc.IngestBatch(context.Background(), []model.Candidate{mailCandidate(eventID, "LAS LOMAS", amount, 14)}, nil)
	require.NoError(t, err)
	require.Len(t, res.Inserted, 1)

	m := res.Inserted[0]
	m.UserDescription = note
	require.NoError(t, updateMovement(t, o, m))
	return m
}

// updateMovement writes a raw movement edit through a throwaway store
// bound to the same directory.
func updateMovement(t *testing.T, o *Orchestrator, m model.Movement) error {
	t.Helper()
	store, err := ledger.NewCSVStore(o.DataDir)
	require.NoError(t, err)
	defer store.Close()
	return store.Update(m)
}

func TestClassify_AppliesCategoryAndSplits(t *testing.T) {
	o, svc, _ := newTestOrchestrator(t)
	seedAnnotated(t, o, svc, "m1", "dinner, 6000 is shared push to splitwise", "10000")
	o.Classifier = fakeClassifier{results: map[string]classify.Result{
		"dinner, 6000 is shared push to splitwise": {
			Category:          "food",
			NeedsSplit:        true,
			SplitAmount:       dec("4000"),
			SplitCategory:     "food",
			CleanDescription:  "dinner",
			SplitInstructions: "push to splitwise",
		},
	}}

	sum, err := o.Classify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Classified)
	assert.Equal(t, 1, sum.Split)
	assert.Equal(t, 0, sum.Errors)

	movements, err := svc.All()
	require.NoError(t, err)
	require.Len(t, movements, 2)

	original := movements[0]
	assert.Equal(t, "food", original.Category)
	assert.Equal(t, "dinner", original.UserDescription)
	assert.True(t, dec("4000").Equal(original.Amount))

	shared := movements[1]
	assert.Equal(t, "food", shared.Category)
	assert.True(t, dec("6000").Equal(shared.Amount))
	assert.Equal(t, model.Neutral, shared.Direction)
	assert.Equal(t, model.StatusPendingSplitwise, shared.Status)
}

func TestClassify_InvalidResultMutatesNothing(t *testing.T) {
	o, svc, _ := newTestOrchestrator(t)
	seedAnnotated(t, o, svc, "m1", "mystery purchase", "10000")
	o.Classifier = fakeClassifier{results: map[string]classify.Result{
		"mystery purchase": {Category: "gadgets"},
	}}

	sum, err := o.Classify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Classified)
	assert.Equal(t, 1, sum.Errors)

	m, err := svc.Get(1)
	require.NoError(t, err)
	assert.Empty(t, m.Category)
	assert.Equal(t, "mystery purchase", m.UserDescription)
}

// seedShared builds the post-split pair: a personal expense and a
// neutral debit awaiting push, correlated by timestamp and note.
func seedShared(t *testing.T, o *Orchestrator, svc *ledger.Service) (personal, shared model.Movement) {
	t.Helper()
	seedAnnotated(t, o, svc, "m1", "dinner, 6000 is shared", "10000")
	o.Classifier = fakeClassifier{results: map[string]classify.Result{
		"dinner, 6000 is shared": {
			Category:          "food",
			NeedsSplit:        true,
			SplitAmount:       dec("4000"),
			SplitCategory:     "food",
			CleanDescription:  "dinner",
			SplitInstructions: "push",
		},
	}}
	_, err := o.Classify(context.Background())
	require.NoError(t, err)

	movements, err := svc.All()
	require.NoError(t, err)
	require.Len(t, movements, 2)
	return movements[0], movements[1]
}

func TestPush_RecordsExternalSettlement(t *testing.T) {
	o, svc, _ := newTestOrchestrator(t)
	seedShared(t, o, svc)
	pusher := &fakePusher{externalID: "991"}
	o.Pusher = pusher

	sum, err := o.Push(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Pushed)
	assert.Equal(t, 0, sum.Errors)

	require.Len(t, pusher.calls, 1)
	call := pusher.calls[0]
	assert.True(t, dec("10000").Equal(call.TotalAmount), "total = shared + personal sibling")
	assert.True(t, dec("4000").Equal(call.PersonalAmount))
	assert.Equal(t, model.CLP, call.Currency)
	assert.Equal(t, "dinner", call.Description)

	pushed, err := svc.Get(2)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInSettlementSystem, pushed.Status)
	assert.Equal(t, "splitwise", pushed.AccountingSystem)
	assert.Equal(t, "991", pushed.AccountingSystemID)
}

func TestPush_NoSiblingFallsBackToFullAmount(t *testing.T) {
	o, svc, _ := newTestOrchestrator(t)
	_, shared := seedShared(t, o, svc)

	// Detach the sibling by renaming the personal leg's note.
	movements, err := svc.All()
	require.NoError(t, err)
	personal := movements[0]
	personal.UserDescription = "something else"
	require.NoError(t, updateMovement(t, o, personal))

	pusher := &fakePusher{externalID: "992"}
	o.Pusher = pusher

	sum, err := o.Push(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Pushed)

	require.Len(t, pusher.calls, 1)
	assert.True(t, shared.Amount.Equal(pusher.calls[0].TotalAmount))
	assert.True(t, pusher.calls[0].PersonalAmount.IsZero())
}

func TestPush_FailureLeavesMovementPending(t *testing.T) {
	o, svc, _ := newTestOrchestrator(t)
	seedShared(t, o, svc)
	o.Pusher = &fakePusher{err: errors.New("rate limited")}

	sum, err := o.Push(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Pushed)
	assert.Equal(t, 1, sum.Errors)

	m, err := svc.Get(2)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingSplitwise, m.Status)
	assert.Empty(t, m.AccountingSystemID)
}

func TestRepair_FillsMissingSnapshots(t *testing.T) {
	o, svc, _ := newTestOrchestrator(t)
	seedAnnotated(t, o, svc, "m1", "dinner", "95000")
	o.Converter = fx.New(fx.StaticRates{CLPPerUSD: dec("950"), GBPPerUSD: dec("0.8")})

	sum, err := o.Repair(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Repaired)

	m, err := svc.Get(1)
	require.NoError(t, err)
	require.True(t, m.USDValue.Valid)
	assert.True(t, dec("100").Equal(m.USDValue.Decimal))
	require.True(t, m.GBPValue.Valid)
	assert.True(t, dec("80").Equal(m.GBPValue.Decimal))
}

// failingStore breaks every ledger operation, turning the first stage
// that touches the store into a stage-level failure.
type failingStore struct{}

func (failingStore) All() ([]model.Movement, error) { return nil, errors.New("ledger unreadable") }
func (failingStore) Append([]model.Movement) error  { return errors.New("ledger unreadable") }
func (failingStore) Update(model.Movement) error    { return errors.New("ledger unreadable") }
func (failingStore) Close() error                   { return nil }

func TestRun_StageFailureAbortsButStillLogs(t *testing.T) {
	dir := t.TempDir()
	o := &Orchestrator{
		Ledger: ledger.NewService(failingStore{}, testCategories),
		Sources: []ingest.Source{fakeSource{
			name:       "mail",
			candidates: []model.Candidate{mailCandidate("m1", "LAS LOMAS", "23320", 14)},
		}},
		Pusher:  &fakePusher{externalID: "991"},
		DataDir: dir,
		Logger:  logging.NewWithWriter(io.Discard),
	}

	sum, err := o.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, sum.Ingested)
	assert.Equal(t, 0, sum.Pushed)

	entries, readErr := runlog.Read(dir)
	require.NoError(t, readErr)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Note, "ingest stage failed")
}
