// Package reconcile runs the end-to-end pipeline over the ledger:
// ingest new movements, classify and split annotated ones, push owed
// portions to the settlement system, and repair missing currency
// snapshots. Stages run sequentially; a stage failure aborts the
// stages after it but never rolls back what already happened.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/LerianStudio/lib-uncommons/uncommons/backoff"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/movi-dev/movi/internal/classify"
	"github.com/movi-dev/movi/internal/fx"
	"github.com/movi-dev/movi/internal/ingest"
	"github.com/movi-dev/movi/internal/ledger"
	"github.com/movi-dev/movi/internal/logging"
	"github.com/movi-dev/movi/internal/model"
	"github.com/movi-dev/movi/internal/runlog"
	"github.com/movi-dev/movi/internal/settle"
)

// Summary counts what one run did.
type Summary struct {
	RunID      string
	Ingested   int
	Skipped    int
	Classified int
	Split      int
	Pushed     int
	Repaired   int
	Errors     int
}

func (s Summary) logEntry(note string) runlog.Entry {
	return runlog.Entry{
		Timestamp:  time.Now().UTC(),
		RunID:      s.RunID,
		Ingested:   s.Ingested,
		Skipped:    s.Skipped,
		Classified: s.Classified,
		Split:      s.Split,
		Pushed:     s.Pushed,
		Repaired:   s.Repaired,
		Errors:     s.Errors,
		Note:       note,
	}
}

// Orchestrator wires the pipeline. Sources, Classifier, and Pusher
// are optional; a nil capability skips its stage.
type Orchestrator struct {
	Ledger     *ledger.Service
	Converter  *fx.Converter
	Sources    []ingest.Source
	Classifier classify.Classifier
	Categories classify.CategorySet
	Pusher     settle.Pusher
	PushSystem string
	Cooldown   time.Duration
	DataDir    string
	Logger     zerolog.Logger
}

func (o *Orchestrator) snapshots(ctx context.Context, amount decimal.Decimal, currency model.Currency) fx.Snapshots {
	if o.Converter == nil {
		return fx.Snapshots{}
	}
	return o.Converter.AllValues(ctx, amount, currency)
}

// Run executes all stages in order and appends one run-log row. The
// returned Summary is valid even when err is non-nil.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	sum := Summary{RunID: uuid.NewString()}
	logger := o.Logger.With().Str("run_id", sum.RunID).Logger()
	// Stages pick the run-scoped logger back out of the context.
	ctx = logging.WithContext(ctx, logger)
	logger.Info().Msg("starting reconciliation run")

	note := "ok"
	var runErr error
	stages := []struct {
		name string
		fn   func(context.Context, *Summary) error
	}{
		{"ingest", o.ingest},
		{"classify", o.classify},
		{"push", o.push},
		{"repair", o.repair},
	}
	for _, stage := range stages {
		if err := stage.fn(ctx, &sum); err != nil {
			logger.Error().Err(err).Str("stage", stage.name).Msg("stage failed, aborting run")
			sum.Errors++
			note = fmt.Sprintf("%s stage failed: %v", stage.name, err)
			runErr = fmt.Errorf("%s stage: %w", stage.name, err)
			break
		}
	}

	if o.DataDir != "" {
		if err := runlog.Append(o.DataDir, []runlog.Entry{sum.logEntry(note)}); err != nil {
			logger.Error().Err(err).Msg("writing run log")
			if runErr == nil {
				runErr = fmt.Errorf("writing run log: %w", err)
			}
		}
	}

	logger.Info().
		Int("ingested", sum.Ingested).
		Int("skipped", sum.Skipped).
		Int("classified", sum.Classified).
		Int("split", sum.Split).
		Int("pushed", sum.Pushed).
		Int("repaired", sum.Repaired).
		Int("errors", sum.Errors).
		Msg("run finished")
	return sum, runErr
}

// ingest pulls every source in turn. A source that fails to fetch is
// logged and skipped so the other sources still run.
func (o *Orchestrator) ingest(ctx context.Context, sum *Summary) error {
	for _, src := range o.Sources {
		logger := logging.FromContext(ctx).With().Str("source", src.Name()).Logger()
		candidates, err := src.Fetch(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("fetching candidates")
			sum.Errors++
			continue
		}
		res, err := o.Ledger.IngestBatch(ctx, candidates, o.snapshots)
		if err != nil {
			return fmt.Errorf("ingesting from %s: %w", src.Name(), err)
		}
		for _, rejErr := range res.Rejected {
			logger.Warn().Err(rejErr).Msg("rejected candidate")
			sum.Errors++
		}
		sum.Ingested += len(res.Inserted)
		sum.Skipped += res.Skipped
		logger.Info().Int("inserted", len(res.Inserted)).Int("skipped", res.Skipped).Msg("ingested source")
	}
	return nil
}

// classify runs the classifier over every movement with an annotation
// but no category. Invalid classifier output mutates nothing.
func (o *Orchestrator) classify(ctx context.Context, sum *Summary) error {
	if o.Classifier == nil {
		return nil
	}
	pending, err := o.Ledger.NeedingClassification()
	if err != nil {
		return err
	}
	for _, m := range pending {
		logger := logging.FromContext(ctx).With().Int("movement", m.ID).Logger()
		res, err := o.Classifier.Classify(ctx, m.UserDescription, classify.MovementContext{
			Amount:            m.Amount,
			Currency:          m.Currency,
			SourceDescription: m.SourceDescription,
			Type:              m.Type,
			Direction:         m.Direction,
		})
		if err != nil {
			logger.Error().Err(err).Msg("classifying")
			sum.Errors++
			continue
		}
		if err := classify.ValidateResult(res, o.Categories, m.Amount); err != nil {
			logger.Warn().Err(err).Msg("rejecting classifier result")
			sum.Errors++
			continue
		}
		if _, err := o.Ledger.ApplyClassification(m.ID, res.Category, res.CleanDescription, res.SplitInstructions); err != nil {
			logger.Error().Err(err).Msg("applying classification")
			sum.Errors++
			continue
		}
		sum.Classified++
		if !res.NeedsSplit {
			continue
		}
		sharedID, err := o.Ledger.Split(m.ID, res.SplitAmount, res.SplitCategory)
		if err != nil {
			logger.Error().Err(err).Msg("splitting")
			sum.Errors++
			continue
		}
		sum.Split++
		logger.Info().Int("shared", sharedID).Str("category", res.SplitCategory).Msg("split movement")
		if res.SplitInstructions != "" {
			if _, err := o.Ledger.Transition(sharedID, model.StatusPendingSplitwise); err != nil {
				logger.Error().Err(err).Msg("queueing shared leg for push")
				sum.Errors++
			}
		}
	}
	return nil
}

// push records every movement awaiting external settlement in the
// settlement system, pacing consecutive pushes by the cooldown. A
// failed push leaves the movement pending for the next run.
func (o *Orchestrator) push(ctx context.Context, sum *Summary) error {
	if o.Pusher == nil {
		return nil
	}
	pending, err := o.Ledger.ByStatus(model.StatusPendingSplitwise)
	if err != nil {
		return err
	}
	for i, m := range pending {
		if i > 0 && o.Cooldown > 0 {
			if err := backoff.SleepWithContext(ctx, o.Cooldown); err != nil {
				return err
			}
		}
		logger := logging.FromContext(ctx).With().Int("movement", m.ID).Logger()

		total := m.Amount
		personal := decimal.Zero
		sibling, found, err := o.Ledger.FindPersonalPortion(m)
		if err != nil {
			return err
		}
		if found {
			total = m.Amount.Add(sibling.Amount)
			personal = sibling.Amount
		}

		desc := m.UserDescription
		if desc == "" {
			desc = m.SourceDescription
		}
		externalID, err := o.Pusher.CreateSettlement(ctx, settle.Settlement{
			TotalAmount:    total,
			PersonalAmount: personal,
			Currency:       m.Currency,
			Description:    desc,
			Date:           m.Timestamp,
		})
		if err != nil {
			logger.Error().Err(err).Msg("pushing settlement")
			sum.Errors++
			continue
		}
		if _, err := o.Ledger.MarkInSettlementSystem(m.ID, o.PushSystem, externalID); err != nil {
			return fmt.Errorf("recording push of movement #%d: %w", m.ID, err)
		}
		sum.Pushed++
		logger.Info().Str("external_id", externalID).Msg("pushed settlement")
	}
	return nil
}

// repair recomputes missing currency snapshots.
func (o *Orchestrator) repair(ctx context.Context, sum *Summary) error {
	if o.Converter == nil {
		return nil
	}
	repaired, err := o.Ledger.RepairSnapshots(ctx, o.snapshots)
	sum.Repaired += repaired
	return err
}

func (o *Orchestrator) stageContext(ctx context.Context, runID string) context.Context {
	return logging.WithContext(ctx, o.Logger.With().Str("run_id", runID).Logger())
}

// Ingest runs just the ingest stage.
func (o *Orchestrator) Ingest(ctx context.Context) (Summary, error) {
	sum := Summary{RunID: uuid.NewString()}
	err := o.ingest(o.stageContext(ctx, sum.RunID), &sum)
	return sum, err
}

// Classify runs just the classify stage.
func (o *Orchestrator) Classify(ctx context.Context) (Summary, error) {
	sum := Summary{RunID: uuid.NewString()}
	err := o.classify(o.stageContext(ctx, sum.RunID), &sum)
	return sum, err
}

// Push runs just the push stage.
func (o *Orchestrator) Push(ctx context.Context) (Summary, error) {
	sum := Summary{RunID: uuid.NewString()}
	err := o.push(o.stageContext(ctx, sum.RunID), &sum)
	return sum, err
}

// Repair runs just the repair stage.
func (o *Orchestrator) Repair(ctx context.Context) (Summary, error) {
	sum := Summary{RunID: uuid.NewString()}
	err := o.repair(o.stageContext(ctx, sum.RunID), &sum)
	return sum, err
}
