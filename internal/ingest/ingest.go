// Package ingest holds the adapters that turn heterogeneous external
// sources into normalized movement candidates. Every adapter must
// stamp exactly one idempotency key on each candidate; de-duplication
// and id assignment happen in the ledger, not here.
package ingest

import (
	"context"

	"github.com/movi-dev/movi/internal/model"
)

// Source produces candidate movements from one external system.
type Source interface {
	// Name identifies the adapter in logs and run summaries.
	Name() string
	// Fetch returns the current batch of candidates. Events the
	// adapter cannot parse into a complete candidate are dropped,
	// never returned half-populated.
	Fetch(ctx context.Context) ([]model.Candidate, error)
}
