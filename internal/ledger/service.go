package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/movi-dev/movi/internal/fx"
	"github.com/movi-dev/movi/internal/model"
)

// ErrNotFound is returned when a movement id does not exist.
var ErrNotFound = errors.New("movement not found")

// CategoryChecker tests whether a category key is in the configured
// set.
type CategoryChecker interface {
	Valid(key string) bool
}

// SnapshotFunc computes the three currency snapshots of an amount.
// An empty result means conversion failed and the movement is left
// for a later repair pass.
type SnapshotFunc func(ctx context.Context, amount decimal.Decimal, currency model.Currency) fx.Snapshots

// Service provides the ledger's business logic over a Store.
type Service struct {
	store      Store
	categories CategoryChecker
}

// NewService creates a ledger Service.
func NewService(store Store, categories CategoryChecker) *Service {
	return &Service{store: store, categories: categories}
}

// All returns every movement.
func (s *Service) All() ([]model.Movement, error) {
	return s.store.All()
}

// Get returns a movement by id.
func (s *Service) Get(id int) (model.Movement, error) {
	movements, err := s.store.All()
	if err != nil {
		return model.Movement{}, err
	}
	for _, m := range movements {
		if m.ID == id {
			return m, nil
		}
	}
	return model.Movement{}, fmt.Errorf("movement #%d: %w", id, ErrNotFound)
}

// ByStatus returns all movements with the given settlement status.
func (s *Service) ByStatus(status model.Status) ([]model.Movement, error) {
	movements, err := s.store.All()
	if err != nil {
		return nil, err
	}
	var out []model.Movement
	for _, m := range movements {
		if m.Status == status {
			out = append(out, m)
		}
	}
	return out, nil
}

// NeedingClassification returns movements with a user note but no
// category.
func (s *Service) NeedingClassification() ([]model.Movement, error) {
	movements, err := s.store.All()
	if err != nil {
		return nil, err
	}
	var out []model.Movement
	for _, m := range movements {
		if m.NeedsClassification() {
			out = append(out, m)
		}
	}
	return out, nil
}

// nextID returns max existing id + 1. Gaps are tolerated and ids are
// never reused.
func nextID(movements []model.Movement) int {
	next := 1
	for _, m := range movements {
		if m.ID >= next {
			next = m.ID + 1
		}
	}
	return next
}

// IngestResult summarizes one adapter batch.
type IngestResult struct {
	Inserted []model.Movement
	Skipped  int     // candidates whose idempotency key already existed
	Rejected []error // per-candidate integrity failures
}

// IngestBatch inserts a batch of candidates from one adapter:
// existing keys are loaded once, duplicates filtered out, survivors
// sorted by business timestamp, assigned sequential ids, and appended
// in a single batch. Candidates with a malformed idempotency key are
// rejected individually while the rest of the batch proceeds.
func (s *Service) IngestBatch(ctx context.Context, candidates []model.Candidate, snapshot SnapshotFunc) (IngestResult, error) {
	var res IngestResult
	if len(candidates) == 0 {
		return res, nil
	}

	movements, err := s.store.All()
	if err != nil {
		return res, err
	}
	seen := make(map[model.RefKind]map[string]bool)
	for _, kind := range []model.RefKind{model.RefSourceEvent, model.RefAccountingSystem} {
		seen[kind] = make(map[string]bool)
	}
	for _, m := range movements {
		if m.SourceEventID != "" {
			seen[model.RefSourceEvent][m.SourceEventID] = true
		}
		if m.AccountingSystemID != "" {
			seen[model.RefAccountingSystem][m.AccountingSystemID] = true
		}
	}

	var survivors []model.Candidate
	for _, c := range candidates {
		kind, key, err := c.Ref()
		if err != nil {
			res.Rejected = append(res.Rejected, fmt.Errorf("candidate %q: %w", c.SourceDescription, err))
			continue
		}
		if seen[kind][key] {
			res.Skipped++
			continue
		}
		// Guard against the same key appearing twice in one batch.
		seen[kind][key] = true
		survivors = append(survivors, c)
	}

	// Insert in business-timestamp order so row order approximates
	// chronological order even when a source delivers out of order.
	sort.SliceStable(survivors, func(i, j int) bool {
		return survivors[i].Timestamp.Before(survivors[j].Timestamp)
	})

	id := nextID(movements)
	batch := make([]model.Movement, 0, len(survivors))
	for _, c := range survivors {
		m := c.Movement(id)
		id++
		if snapshot != nil {
			snaps := snapshot(ctx, m.Amount, m.Currency)
			m.CLPValue, m.USDValue, m.GBPValue = snaps.CLP, snaps.USD, snaps.GBP
		}
		batch = append(batch, m)
	}

	if err := s.store.Append(batch); err != nil {
		return IngestResult{Skipped: res.Skipped, Rejected: res.Rejected}, fmt.Errorf("appending batch: %w", err)
	}
	res.Inserted = batch
	return res, nil
}

// Transition moves a movement to a new settlement status, enforcing
// the state machine: no backward edges, terminal states absorbing.
func (s *Service) Transition(id int, to model.Status) (model.Movement, error) {
	m, err := s.Get(id)
	if err != nil {
		return model.Movement{}, err
	}
	if !model.CanTransition(m.Status, to) {
		return model.Movement{}, fmt.Errorf("movement #%d: illegal transition %q → %q", id, m.Status, to)
	}
	if m.Status == to {
		return m, nil
	}
	m.Status = to
	if err := s.store.Update(m); err != nil {
		return model.Movement{}, err
	}
	return m, nil
}

// MarkSettled settles a movement directly, optionally recording the
// movement that settles it.
func (s *Service) MarkSettled(id, settledBy int) (model.Movement, error) {
	m, err := s.Get(id)
	if err != nil {
		return model.Movement{}, err
	}
	if !model.CanTransition(m.Status, model.StatusSettled) {
		return model.Movement{}, fmt.Errorf("movement #%d: illegal transition %q → %q", id, m.Status, model.StatusSettled)
	}
	if settledBy != 0 {
		if _, err := s.Get(settledBy); err != nil {
			return model.Movement{}, fmt.Errorf("settling movement: %w", err)
		}
		m.SettledMovementID = settledBy
	}
	m.Status = model.StatusSettled
	if err := s.store.Update(m); err != nil {
		return model.Movement{}, err
	}
	return m, nil
}

// MarkInSettlementSystem records a successful push to the external
// settlement ledger.
func (s *Service) MarkInSettlementSystem(id int, system, externalID string) (model.Movement, error) {
	m, err := s.Get(id)
	if err != nil {
		return model.Movement{}, err
	}
	if !model.CanTransition(m.Status, model.StatusInSettlementSystem) {
		return model.Movement{}, fmt.Errorf("movement #%d: illegal transition %q → %q", id, m.Status, model.StatusInSettlementSystem)
	}
	m.Status = model.StatusInSettlementSystem
	m.AccountingSystem = system
	m.AccountingSystemID = externalID
	if err := s.store.Update(m); err != nil {
		return model.Movement{}, err
	}
	return m, nil
}

// ApplyClassification records a classifier result on a movement. The
// category must be in the configured set; nothing is written
// otherwise.
func (s *Service) ApplyClassification(id int, categoryKey, cleanDescription, comment string) (model.Movement, error) {
	if !s.categories.Valid(categoryKey) {
		return model.Movement{}, fmt.Errorf("movement #%d: unknown category %q", id, categoryKey)
	}
	m, err := s.Get(id)
	if err != nil {
		return model.Movement{}, err
	}
	m.Category = categoryKey
	if cleanDescription != "" {
		m.UserDescription = cleanDescription
	}
	if comment != "" {
		m.Comment = comment
	}
	if err := s.store.Update(m); err != nil {
		return model.Movement{}, err
	}
	return m, nil
}

// RepairSnapshots recomputes the currency snapshots of every movement
// missing one. Movements whose conversion still fails are left
// untouched for the next run.
func (s *Service) RepairSnapshots(ctx context.Context, snapshot SnapshotFunc) (int, error) {
	movements, err := s.store.All()
	if err != nil {
		return 0, err
	}
	repaired := 0
	for _, m := range movements {
		if !m.NeedsSnapshotRepair() {
			continue
		}
		snaps := snapshot(ctx, m.Amount, m.Currency)
		if snaps.Empty() {
			continue
		}
		m.CLPValue, m.USDValue, m.GBPValue = snaps.CLP, snaps.USD, snaps.GBP
		if err := s.store.Update(m); err != nil {
			return repaired, err
		}
		repaired++
	}
	return repaired, nil
}

// FindPersonalPortion locates the personal-portion sibling of a debit
// movement: an expense sharing its timestamp and user description
// with a different id. This is a best-effort correlation, not a
// foreign key; when nothing matches the caller assumes a zero
// personal portion.
func (s *Service) FindPersonalPortion(debit model.Movement) (model.Movement, bool, error) {
	movements, err := s.store.All()
	if err != nil {
		return model.Movement{}, false, err
	}
	for _, m := range movements {
		if m.ID == debit.ID {
			continue
		}
		if m.Type != model.TypeExpense {
			continue
		}
		if m.Timestamp.Equal(debit.Timestamp) && m.UserDescription == debit.UserDescription {
			return m, true, nil
		}
	}
	return model.Movement{}, false, nil
}
